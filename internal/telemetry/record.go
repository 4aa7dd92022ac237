package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/airq/airnode/helpers"
	"github.com/airq/airnode/log2"
	"github.com/google/uuid"
	"github.com/juju/errors"
)

// Record is built once per cycle and never persisted.
type Record struct {
	MessageID string             `json:"message_id"`
	DeviceID  string             `json:"device_id"`
	BootTime  int64              `json:"boot_time"`
	Time      int64              `json:"time"`
	Health    Health             `json:"health"`
	Sensors   map[string]Reading `json:"sensors"`
}

func (r *Record) Marshal() ([]byte, error) {
	b, err := json.Marshal(r)
	return b, errors.Annotate(err, "record marshal")
}

type Composer struct {
	DeviceID string
	BootTime time.Time
	Sensors  []Sensor
	Health   HealthSource
	Log      *log2.Log

	now   func() time.Time
	newID func() string
}

func NewComposer(deviceID string, bootTime time.Time, sensors []Sensor, health HealthSource, log *log2.Log) *Composer {
	return &Composer{
		DeviceID: deviceID,
		BootTime: bootTime,
		Sensors:  sensors,
		Health:   health,
		Log:      log,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// Compose reads every sensor. Failed sensor is absent from record;
// error only when all configured sensors failed.
func (c *Composer) Compose(ctx context.Context) (*Record, error) {
	r := &Record{
		MessageID: c.newID(),
		DeviceID:  c.DeviceID,
		BootTime:  c.BootTime.Unix(),
		Sensors:   make(map[string]Reading, len(c.Sensors)),
	}
	var errs []error
	for _, s := range c.Sensors {
		reading, err := s.Read(ctx)
		if err != nil {
			c.Log.Errorf("sensor=%s read err=%v", s.Name(), err)
			errs = append(errs, errors.Annotatef(err, "sensor=%s", s.Name()))
			continue
		}
		r.Sensors[s.Name()] = reading
	}
	if len(c.Sensors) != 0 && len(r.Sensors) == 0 {
		return nil, errors.Annotate(helpers.FoldErrors(errs), "all sensors failed")
	}
	if c.Health != nil {
		r.Health = c.Health.Health()
	}
	r.Time = c.now().Unix()
	return r, nil
}
