package telemetry

import (
	"context"
	"time"

	"github.com/airq/airnode/hardware/scd30"
	"github.com/airq/airnode/hardware/sensirion"
	"github.com/airq/airnode/hardware/sps30"
	"github.com/airq/airnode/helpers"
	"github.com/airq/airnode/log2"
	"github.com/juju/errors"
)

const (
	DefaultReadyTimeout = 3 * time.Second
	readyPollInterval   = 50 * time.Millisecond
)

// Reading is named quantities of one sensor, one cycle.
type Reading map[string]float32

type Sensor interface {
	Name() string
	Read(ctx context.Context) (Reading, error)
}

// Starter is optional, sensors in continuous mode need it once after power up.
type Starter interface {
	Start() error
}

func StartSensors(sensors []Sensor, log *log2.Log) error {
	var errs []error
	for _, s := range sensors {
		if st, ok := s.(Starter); ok {
			if err := st.Start(); err != nil {
				log.Errorf("sensor=%s start err=%v", s.Name(), err)
				errs = append(errs, errors.Annotatef(err, "sensor=%s", s.Name()))
			}
		}
	}
	return helpers.FoldErrors(errs)
}

type readyFunc func() (bool, error)

// waitReady polls until ready or timeout. Crc mismatch on ready flag is
// transient and polled again.
func waitReady(ctx context.Context, name string, isReady readyFunc, timeout time.Duration, sleep helpers.SleepFunc) error {
	tbegin := time.Now()
	for {
		ready, err := isReady()
		if err != nil && !sensirion.IsCRC(err) {
			return err
		}
		if ready {
			return nil
		}
		if time.Since(tbegin) >= timeout {
			return errors.Timeoutf("sensor=%s data ready timeout=%v", name, timeout)
		}
		if err := sleep(ctx, readyPollInterval); err != nil {
			return err
		}
	}
}

type SCD30 struct {
	Dev          *scd30.Device
	Pressure     uint16
	Interval     uint16
	ReadyTimeout time.Duration
	Sleep        helpers.SleepFunc
}

func (s *SCD30) Name() string { return "scd30" }

func (s *SCD30) Start() error {
	if s.Interval != 0 {
		if err := s.Dev.SetMeasurementInterval(s.Interval); err != nil {
			return err
		}
	}
	return s.Dev.StartMeasurement(s.Pressure)
}

func (s *SCD30) Read(ctx context.Context) (Reading, error) {
	if err := waitReady(ctx, s.Name(), s.Dev.IsDataReady, readyTimeoutDefault(s.ReadyTimeout), sleepDefault(s.Sleep)); err != nil {
		return nil, err
	}
	m, err := s.Dev.ReadMeasurement()
	if err != nil {
		return nil, err
	}
	return Reading(m.Map()), nil
}

type SPS30 struct {
	Dev          *sps30.Device
	ReadyTimeout time.Duration
	Sleep        helpers.SleepFunc
}

func (s *SPS30) Name() string { return "sps30" }

func (s *SPS30) Start() error { return s.Dev.StartMeasurement() }

func (s *SPS30) Read(ctx context.Context) (Reading, error) {
	if err := waitReady(ctx, s.Name(), s.Dev.IsDataReady, readyTimeoutDefault(s.ReadyTimeout), sleepDefault(s.Sleep)); err != nil {
		return nil, err
	}
	m, err := s.Dev.ReadMeasurement()
	if err != nil {
		return nil, err
	}
	return Reading(m.Map()), nil
}

func readyTimeoutDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultReadyTimeout
	}
	return d
}

func sleepDefault(f helpers.SleepFunc) helpers.SleepFunc {
	if f == nil {
		return helpers.Sleep
	}
	return f
}
