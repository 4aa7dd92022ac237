package restart

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/airq/airnode/log2"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStorage struct{ b []byte }

func (m *memStorage) Read() ([]byte, error) { return m.b, nil }
func (m *memStorage) Write(b []byte) (int, error) {
	m.b = append([]byte(nil), b...)
	return len(b), nil
}

func TestJournalBootCycle(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	log := log2.NewTest(t, log2.LDebug)

	j := OpenJournal(root, log)
	prev, err := j.Boot()
	require.NoError(t, err)
	assert.Equal(t, Fault{}, prev)
	assert.Equal(t, uint32(1), j.State().BootCount)
	at := time.Unix(1700000000, 0)
	require.NoError(t, j.RecordFault(fmt.Errorf("publish failed twice"), at))

	j2 := OpenJournal(root, log)
	prev, err = j2.Boot()
	require.NoError(t, err)
	assert.Equal(t, Fault{BootCount: 1, LastFault: "publish failed twice", LastFaultAt: 1700000000}, prev)
	assert.Equal(t, uint32(2), j2.State().BootCount)
}

func TestJournalCorruptContent(t *testing.T) {
	t.Parallel()

	j := &Journal{log: log2.NewTest(t, log2.LDebug), storage: &memStorage{b: []byte("{garbage")}}
	prev, err := j.Boot()
	require.NoError(t, err)
	assert.Equal(t, Fault{}, prev)
	assert.Equal(t, uint32(1), j.State().BootCount)
}

func TestJournalNil(t *testing.T) {
	t.Parallel()

	var j *Journal
	prev, err := j.Boot()
	assert.NoError(t, err)
	assert.Equal(t, Fault{}, prev)
	assert.NoError(t, j.RecordFault(fmt.Errorf("x"), time.Now()))
	assert.Equal(t, Fault{}, j.State())
}

func TestSystemRestart(t *testing.T) {
	t.Parallel()

	storage := &memStorage{}
	j := &Journal{log: log2.NewTest(t, log2.LDebug), storage: storage}
	s := NewSystem(log2.NewTest(t, log2.LDebug), j)
	_, ok := s.Reason()
	assert.False(t, ok)
	s.now = func() time.Time { return time.Unix(1700000100, 0) }
	var mu sync.Mutex
	reboots, exits := 0, []int{}
	s.reboot = func() error {
		mu.Lock()
		reboots++
		mu.Unlock()
		return fmt.Errorf("operation not permitted")
	}
	s.exit = func(code int) {
		mu.Lock()
		exits = append(exits, code)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Restart(fmt.Errorf("reason %d", i))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, reboots)
	assert.Equal(t, []int{1}, exits)
	assert.Contains(t, j.State().LastFault, "reason ")
	assert.Equal(t, int64(1700000100), j.State().LastFaultAt)
	first, ok := s.Reason()
	assert.True(t, ok)
	assert.Equal(t, j.State().LastFault, first.Error())
}

func TestFatal(t *testing.T) {
	t.Parallel()

	var got []error
	r := RestartFunc(func(reason error) { got = append(got, reason) })
	reason := fmt.Errorf("broker unreachable")
	err := Fatal(r, reason)
	require.Error(t, err)
	assert.Equal(t, []error{reason}, got)
	assert.True(t, IsFatal(err))
	assert.True(t, IsFatal(errors.Annotate(err, "establish")))
	assert.False(t, IsFatal(reason))
	assert.Equal(t, "fatal: broker unreachable", err.Error())
}
