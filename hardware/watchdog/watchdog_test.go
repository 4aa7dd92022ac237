package watchdog

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/airq/airnode/log2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countFeeder struct {
	n   int32
	err error
}

func (c *countFeeder) Feed() error {
	atomic.AddInt32(&c.n, 1)
	return c.err
}

func TestLeaseFedStaysAlive(t *testing.T) {
	t.Parallel()

	var expired int32
	f := &countFeeder{}
	l := NewLease(50*time.Millisecond, func(time.Duration) { atomic.AddInt32(&expired, 1) },
		log2.NewTest(t, log2.LDebug), f)
	l.Start()
	for i := 0; i < 10; i++ {
		time.Sleep(10 * time.Millisecond)
		require.NoError(t, l.Feed())
	}
	l.Stop()
	assert.Equal(t, int32(0), atomic.LoadInt32(&expired))
	assert.Equal(t, int32(10), atomic.LoadInt32(&f.n))
	assert.False(t, l.Expired())
}

func TestLeaseExpiresOnce(t *testing.T) {
	t.Parallel()

	var expired int32
	ch := make(chan time.Duration, 1)
	l := NewLease(20*time.Millisecond, func(idle time.Duration) {
		atomic.AddInt32(&expired, 1)
		ch <- idle
	}, log2.NewTest(t, log2.LDebug))
	l.Start()
	select {
	case idle := <-ch:
		assert.True(t, idle > 20*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("lease did not expire")
	}
	time.Sleep(50 * time.Millisecond)
	l.Stop()
	assert.Equal(t, int32(1), atomic.LoadInt32(&expired))
	assert.True(t, l.Expired())
	assert.NoError(t, l.Feed())
}

func TestLeaseFeederErrors(t *testing.T) {
	t.Parallel()

	ok := &countFeeder{}
	bad := &countFeeder{err: fmt.Errorf("sd_notify socket")}
	l := NewLease(time.Minute, func(time.Duration) {}, log2.NewTest(t, log2.LDebug), bad, ok)
	err := l.Feed()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sd_notify socket")
	assert.Equal(t, int32(1), atomic.LoadInt32(&ok.n))
}
