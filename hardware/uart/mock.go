package uart

// Public API to easy create modem stubs to test your code.
import (
	"bytes"
	"strings"
	"sync"
	"time"
)

// MockPort answers every written line with Respond(line).
type MockPort struct {
	sync.Mutex
	Respond func(line string) string

	written []string
	pending bytes.Buffer
	timeout time.Duration
	closed  bool
}

func NewMockPort(respond func(line string) string) *MockPort {
	return &MockPort{Respond: respond}
}

func (m *MockPort) Write(b []byte) (int, error) {
	m.Lock()
	defer m.Unlock()
	line := strings.TrimRight(string(b), "\r\n")
	m.written = append(m.written, line)
	if m.Respond != nil {
		m.pending.WriteString(m.Respond(line))
	}
	return len(b), nil
}

func (m *MockPort) Read(b []byte) (int, error) {
	m.Lock()
	if m.pending.Len() == 0 {
		d := m.timeout
		m.Unlock()
		time.Sleep(d)
		return 0, nil
	}
	defer m.Unlock()
	return m.pending.Read(b)
}

// Inject queues unsolicited bytes, e.g. URC.
func (m *MockPort) Inject(s string) {
	m.Lock()
	m.pending.WriteString(s)
	m.Unlock()
}

func (m *MockPort) SetReadTimeout(d time.Duration) error {
	m.Lock()
	m.timeout = d
	m.Unlock()
	return nil
}

func (m *MockPort) ResetInputBuffer() error {
	m.Lock()
	m.pending.Reset()
	m.Unlock()
	return nil
}

func (m *MockPort) Close() error {
	m.Lock()
	m.closed = true
	m.Unlock()
	return nil
}

func (m *MockPort) Written() []string {
	m.Lock()
	defer m.Unlock()
	return append([]string(nil), m.written...)
}
