// Package watchdog keeps the device alive only while the publish loop makes progress.
// Lease is the software layer, Device and Systemd forward each feed to hardware and
// service manager watchdogs, so a hung process is reset even if Lease itself is stuck.
package watchdog

import (
	"os"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

type Feeder interface {
	Feed() error
}

// Device is Linux watchdog character device, e.g. /dev/watchdog.
// Kernel resets the board when no write arrives within timeout.
type Device struct {
	f *os.File
}

func OpenDevice(path string, timeout time.Duration) (*Device, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, errors.Annotatef(err, "watchdog open %s", path)
	}
	if timeout > 0 {
		sec := int(timeout / time.Second)
		if err = unix.IoctlSetPointerInt(int(f.Fd()), unix.WDIOC_SETTIMEOUT, sec); err != nil {
			_ = f.Close()
			return nil, errors.Annotatef(err, "watchdog %s set timeout=%ds", path, sec)
		}
	}
	return &Device{f: f}, nil
}

func (d *Device) Feed() error {
	_, err := d.f.Write([]byte{0})
	return errors.Annotate(err, "watchdog device feed")
}

// Systemd feeds WatchdogSec= of the service unit.
type Systemd struct{}

func (Systemd) Feed() error {
	_, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog)
	return errors.Annotate(err, "sd_notify watchdog")
}

// SystemdEnabled reports WatchdogSec= presence for this process.
func SystemdEnabled() bool { return SystemdInterval() > 0 }

// SystemdInterval is WatchdogSec= of the service unit or 0.
func SystemdInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return 0
	}
	return d
}
