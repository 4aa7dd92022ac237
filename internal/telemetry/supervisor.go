// Package telemetry composes periodic records and keeps publishing them,
// escalating persistent failure to device restart.
package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/airq/airnode/hardware/watchdog"
	"github.com/airq/airnode/helpers"
	"github.com/airq/airnode/internal/restart"
	"github.com/airq/airnode/log2"
	"github.com/juju/errors"
)

type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

type Supervisor struct {
	Composer  *Composer
	Publisher Publisher
	Lease     watchdog.Feeder
	Restarter restart.Restarter
	Policy    Policy
	Cycle     time.Duration
	Log       *log2.Log
	Sleep     helpers.SleepFunc

	cycles    uint32
	failures  uint32
	published uint32
}

type Stat struct {
	Cycles    uint32
	Failures  uint32
	Published uint32
}

func (s *Supervisor) Stat() Stat {
	return Stat{
		Cycles:    atomic.LoadUint32(&s.cycles),
		Failures:  atomic.LoadUint32(&s.failures),
		Published: atomic.LoadUint32(&s.published),
	}
}

// Run returns only on context cancel or, after requesting restart, with FatalError.
func (s *Supervisor) Run(ctx context.Context) error {
	sleep := s.Sleep
	if sleep == nil {
		sleep = helpers.Sleep
	}
	cycle := s.Cycle
	if cycle <= 0 {
		cycle = DefaultCycle
	}
	consecutive := 0
	for {
		atomic.AddUint32(&s.cycles, 1)
		err := s.once(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			consecutive = 0
			atomic.AddUint32(&s.published, 1)
			if err := s.Lease.Feed(); err != nil {
				s.Log.Errorf("watchdog feed err=%v", err)
			}
			if err := sleep(ctx, cycle); err != nil {
				return err
			}
			continue
		}

		consecutive++
		atomic.AddUint32(&s.failures, 1)
		switch d := s.Policy.Decide(consecutive); d {
		case Retry:
			grace := s.Policy.GraceInterval()
			s.Log.Errorf("telemetry cycle failed consecutive=%d retry after=%v err=%v", consecutive, grace, err)
			if err := sleep(ctx, grace); err != nil {
				return err
			}
		case Restart:
			return restart.Fatal(s.Restarter, errors.Annotatef(err, "telemetry cycle failed consecutive=%d", consecutive))
		default:
			s.Log.Errorf("code error policy decision=%s on failure", d)
		}
	}
}

func (s *Supervisor) once(ctx context.Context) error {
	r, err := s.Composer.Compose(ctx)
	if err != nil {
		return err
	}
	b, err := r.Marshal()
	if err != nil {
		return err
	}
	return s.Publisher.Publish(ctx, b)
}
