package watchdog

import (
	"sync/atomic"
	"time"

	"github.com/airq/airnode/helpers"
	"github.com/airq/airnode/helpers/atomic_clock"
	"github.com/airq/airnode/log2"
	"github.com/temoto/alive/v2"
)

type ExpireFunc func(idle time.Duration)

// Lease must be fed within window or onExpire is called, once.
type Lease struct {
	window   time.Duration
	feeders  []Feeder
	onExpire ExpireFunc
	log      *log2.Log
	last     atomic_clock.Clock
	expired  uint32
	alive    *alive.Alive
}

func NewLease(window time.Duration, onExpire ExpireFunc, log *log2.Log, feeders ...Feeder) *Lease {
	l := &Lease{
		window:   window,
		feeders:  feeders,
		onExpire: onExpire,
		log:      log,
		alive:    alive.NewAlive(),
	}
	l.last.SetNow()
	return l
}

// Feed extends lease and forwards to every feeder.
// Feed after expiry is ignored, restart is already on the way.
func (l *Lease) Feed() error {
	if l.Expired() {
		return nil
	}
	l.last.SetNow()
	var errs []error
	for _, f := range l.feeders {
		if err := f.Feed(); err != nil {
			errs = append(errs, err)
		}
	}
	return helpers.FoldErrors(errs)
}

func (l *Lease) Expired() bool { return atomic.LoadUint32(&l.expired) != 0 }

func (l *Lease) LastFeed() time.Time { return l.last.Time() }

// Start runs monitor goroutine. Window starts now.
func (l *Lease) Start() {
	if !l.alive.Add(1) {
		return
	}
	l.last.SetNow()
	tick := l.window / 4
	if tick <= 0 {
		tick = time.Millisecond
	}
	go func() {
		defer l.alive.Done()
		t := time.NewTicker(tick)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				idle := atomic_clock.Since(&l.last)
				if idle > l.window && atomic.CompareAndSwapUint32(&l.expired, 0, 1) {
					l.log.Errorf("watchdog lease expired idle=%v window=%v", idle, l.window)
					l.onExpire(idle)
					return
				}
			case <-l.alive.StopChan():
				return
			}
		}
	}()
}

// Stop is for tests and CLI, production lease lives until restart.
func (l *Lease) Stop() {
	l.alive.Stop()
	l.alive.Wait()
}
