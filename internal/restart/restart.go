// Package restart is the only recovery primitive: full device restart.
package restart

import (
	"os"
	"sync"
	"time"

	"github.com/airq/airnode/helpers"
	"github.com/airq/airnode/log2"
	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

type Restarter interface {
	// Restart does not return on real device.
	Restart(reason error)
}

// FatalError is returned by components after Restart was requested.
// Only observable where Restarter returns, i.e. tests and dry run.
type FatalError struct {
	Reason error
}

func (e *FatalError) Error() string { return "fatal: " + e.Reason.Error() }
func (e *FatalError) Unwrap() error { return e.Reason }

// Fatal requests restart and returns FatalError for the caller to propagate.
func Fatal(r Restarter, reason error) error {
	r.Restart(reason)
	return &FatalError{Reason: reason}
}

func IsFatal(err error) bool {
	_, ok := errors.Cause(err).(*FatalError)
	return ok
}

type RestartFunc func(reason error)

func (f RestartFunc) Restart(reason error) { f(reason) }

// System reboots the board. When reboot is not permitted, e.g. missing
// CAP_SYS_BOOT, process exits and service manager starts it again.
type System struct {
	Log     *log2.Log
	Journal *Journal
	DryRun  bool

	once   sync.Once
	reason helpers.AtomicError
	now    func() time.Time
	reboot func() error
	exit   func(int)
}

func NewSystem(log *log2.Log, j *Journal) *System {
	return &System{
		Log:     log,
		Journal: j,
		now:     time.Now,
		reboot:  func() error { return unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART) },
		exit:    os.Exit,
	}
}

func (s *System) Restart(reason error) {
	s.reason.StoreOnce(reason)
	s.once.Do(func() {
		first, _ := s.reason.Load()
		s.restart(first)
	})
}

// Reason returns first requested restart reason, ok=false if none yet.
func (s *System) Reason() (error, bool) { return s.reason.Load() }

func (s *System) restart(reason error) {
	s.Log.Errorf("restart reason=%v", reason)
	if err := s.Journal.RecordFault(reason, s.now()); err != nil {
		s.Log.Errorf("restart journal err=%v", err)
	}
	if s.DryRun {
		s.Log.Infof("restart dry run, continue")
		return
	}
	unix.Sync()
	if err := s.reboot(); err != nil {
		s.Log.Errorf("reboot err=%v, exit", err)
	}
	s.exit(1)
}
