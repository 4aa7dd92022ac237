package i2c

// Public API to easy create bus stubs to test your code.
import (
	"encoding/hex"
	"fmt"
	"sync"
	"testing"
)

type MockTx struct {
	Addr  uint16
	Write string // hex, may be empty
	Read  string // hex response, may be empty
	Err   error
}

// MockBus checks every Tx against expected script, in order.
type MockBus struct {
	sync.Mutex
	t      testing.TB
	script []MockTx
	pos    int
}

func NewMockBus(t testing.TB, script ...MockTx) *MockBus {
	return &MockBus{t: t, script: script}
}

func (m *MockBus) Expect(script ...MockTx) {
	m.Lock()
	m.script = append(m.script, script...)
	m.Unlock()
}

func (m *MockBus) Tx(addr uint16, w []byte, r []byte) error {
	m.Lock()
	defer m.Unlock()
	if m.pos >= len(m.script) {
		m.t.Errorf("i2c mock unexpected Tx addr=%02x w=%x len(r)=%d", addr, w, len(r))
		return fmt.Errorf("i2c mock script end")
	}
	tx := m.script[m.pos]
	m.pos++
	if tx.Addr != addr {
		m.t.Errorf("i2c mock Tx #%d addr expected=%02x actual=%02x", m.pos, tx.Addr, addr)
	}
	if actual := hex.EncodeToString(w); actual != tx.Write {
		m.t.Errorf("i2c mock Tx #%d write expected=%s actual=%s", m.pos, tx.Write, actual)
	}
	if tx.Err != nil {
		return tx.Err
	}
	if len(r) != 0 {
		b, err := hex.DecodeString(tx.Read)
		if err != nil {
			m.t.Fatalf("i2c mock Tx #%d invalid read hex=%s err=%v", m.pos, tx.Read, err)
		}
		if len(b) < len(r) {
			return fmt.Errorf("i2c mock short read expected=%d available=%d", len(r), len(b))
		}
		copy(r, b)
	}
	return nil
}

func (m *MockBus) Close() error { return nil }

// ExpectEnd fails test if some scripted Tx were not performed.
func (m *MockBus) ExpectEnd() {
	m.Lock()
	defer m.Unlock()
	if m.pos != len(m.script) {
		m.t.Errorf("i2c mock performed=%d of script=%d", m.pos, len(m.script))
	}
}
