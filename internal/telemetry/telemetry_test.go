package telemetry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/airq/airnode/hardware/i2c"
	"github.com/airq/airnode/hardware/scd30"
	"github.com/airq/airnode/hardware/watchdog"
	"github.com/airq/airnode/internal/bringup"
	"github.com/airq/airnode/internal/restart"
	"github.com/airq/airnode/log2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type fakeSensor struct {
	name    string
	reading Reading
	err     error
	delay   time.Duration
}

func (f *fakeSensor) Name() string { return f.name }

func (f *fakeSensor) Read(ctx context.Context) (Reading, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.reading, f.err
}

type fixedHealth Health

func (h fixedHealth) Health() Health { return Health(h) }

func newTestComposer(t *testing.T, sensors ...Sensor) *Composer {
	c := NewComposer("node-1", time.Unix(1700000000, 0), sensors, fixedHealth{UptimeSec: 100, BootCount: 3, SignalRSSI: 17}, log2.NewTest(t, log2.LDebug))
	c.now = func() time.Time { return time.Unix(1700000100, 0) }
	c.newID = func() string { return "00000000-0000-4000-8000-000000000001" }
	return c
}

func TestPolicy(t *testing.T) {
	t.Parallel()

	p := Policy{}
	assert.Equal(t, Continue, p.Decide(0))
	assert.Equal(t, Retry, p.Decide(1))
	assert.Equal(t, Restart, p.Decide(2))
	assert.Equal(t, Restart, p.Decide(3))
	assert.Equal(t, DefaultGrace, p.GraceInterval())

	p = Policy{Grace: time.Second, RestartAfter: 3}
	assert.Equal(t, Retry, p.Decide(2))
	assert.Equal(t, Restart, p.Decide(3))
	assert.Equal(t, time.Second, p.GraceInterval())
}

func TestCompose(t *testing.T) {
	t.Parallel()

	co2 := &fakeSensor{name: "scd30", reading: Reading{"co2_ppm": 412.5, "temp_celsius": 21.25, "rh_percent": 40.5}}
	pm := &fakeSensor{name: "sps30", err: fmt.Errorf("crc mismatch")}
	c := newTestComposer(t, co2, pm)

	r, err := c.Compose(context.Background())
	require.NoError(t, err)
	b, err := r.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"message_id":"00000000-0000-4000-8000-000000000001",
		"device_id":"node-1","boot_time":1700000000,"time":1700000100,
		"health":{"uptime_sec":100,"free_ram":0,"load1":0,"boot_count":3,"signal_rssi":17},
		"sensors":{"scd30":{"co2_ppm":412.5,"rh_percent":40.5,"temp_celsius":21.25}}}`, string(b))

	co2.err = fmt.Errorf("nack")
	_, err = c.Compose(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all sensors failed")
	assert.Contains(t, err.Error(), "nack")
	assert.Contains(t, err.Error(), "crc mismatch")
}

func TestComposeUniqueID(t *testing.T) {
	t.Parallel()

	c := NewComposer("node-1", time.Now(), nil, nil, log2.NewTest(t, log2.LDebug))
	r1, err := c.Compose(context.Background())
	require.NoError(t, err)
	r2, err := c.Compose(context.Background())
	require.NoError(t, err)
	assert.Len(t, r1.MessageID, 36)
	assert.NotEqual(t, r1.MessageID, r2.MessageID)
}

func TestSystemHealth(t *testing.T) {
	t.Parallel()

	h := NewSystemHealth(restart.Fault{BootCount: 7, LastFault: "publish"}, nil)
	h.sysinfo = func(si *unix.Sysinfo_t) error {
		si.Uptime = 3600
		si.Freeram = 1000
		si.Unit = 4
		si.Loads[0] = 1 << 15
		return nil
	}
	h.readFile = func(string) ([]byte, error) { return []byte("48200\n"), nil }
	r := h.Health()
	assert.Equal(t, int64(3600), r.UptimeSec)
	assert.Equal(t, uint64(4000), r.FreeRAM)
	assert.Equal(t, 0.5, r.Load1)
	require.NotNil(t, r.SoCTempCelsius)
	assert.InDelta(t, 48.2, *r.SoCTempCelsius, 0.001)
	assert.Equal(t, uint32(7), r.BootCount)
	assert.Equal(t, "publish", r.LastFault)
	assert.Equal(t, bringup.RSSIUnknown, r.SignalRSSI)

	h.readFile = func(string) ([]byte, error) { return nil, fmt.Errorf("no thermal zone") }
	assert.Nil(t, h.Health().SoCTempCelsius)
}

func TestSCD30Sensor(t *testing.T) {
	t.Parallel()

	bus := i2c.NewMockBus(t,
		i2c.MockTx{Addr: scd30.DefaultAddr, Write: "0202"},
		i2c.MockTx{Addr: scd30.DefaultAddr, Read: "000081"},
		i2c.MockTx{Addr: scd30.DefaultAddr, Write: "0202"},
		i2c.MockTx{Addr: scd30.DefaultAddr, Read: "0001b1"}, // crc mismatch, poll again
		i2c.MockTx{Addr: scd30.DefaultAddr, Write: "0202"},
		i2c.MockTx{Addr: scd30.DefaultAddr, Read: "0001b0"},
		i2c.MockTx{Addr: scd30.DefaultAddr, Write: "0300"},
		i2c.MockTx{Addr: scd30.DefaultAddr, Read: "43ce7d40000841aadb000081422235000081"},
	)
	log := log2.NewTest(t, log2.LDebug)
	dev := scd30.New(bus, log)
	dev.SetSleep(func(time.Duration) {})
	polls := 0
	s := &SCD30{Dev: dev, Sleep: func(context.Context, time.Duration) error { polls++; return nil }}
	r, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Reading{"co2_ppm": 412.5, "temp_celsius": 21.25, "rh_percent": 40.5}, r)
	assert.Equal(t, 2, polls)
	bus.ExpectEnd()
}

func TestSCD30SensorReadyTimeout(t *testing.T) {
	t.Parallel()

	bus := i2c.NewMockBus(t)
	for i := 0; i < 2; i++ {
		bus.Expect(
			i2c.MockTx{Addr: scd30.DefaultAddr, Write: "0202"},
			i2c.MockTx{Addr: scd30.DefaultAddr, Read: "000081"},
		)
	}
	s := &SCD30{
		Dev:          scd30.New(bus, log2.NewTest(t, log2.LDebug)),
		ReadyTimeout: 25 * time.Millisecond,
		Sleep: func(context.Context, time.Duration) error {
			time.Sleep(30 * time.Millisecond)
			return nil
		},
	}
	_, err := s.Read(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
	bus.ExpectEnd()
}

type fakePublisher struct {
	mu       sync.Mutex
	script   []error
	calls    int
	payloads [][]byte
	onCall   func(n int)
}

func (p *fakePublisher) Publish(ctx context.Context, payload []byte) error {
	p.mu.Lock()
	p.calls++
	n := p.calls
	var err error
	if n <= len(p.script) {
		err = p.script[n-1]
	}
	if err == nil {
		p.payloads = append(p.payloads, payload)
	}
	onCall := p.onCall
	p.mu.Unlock()
	if onCall != nil {
		onCall(n)
	}
	return err
}

type countFeeder struct{ n int32 }

func (c *countFeeder) Feed() error {
	atomic.AddInt32(&c.n, 1)
	return nil
}

type countRestarter struct{ n int32 }

func (c *countRestarter) Restart(error) { atomic.AddInt32(&c.n, 1) }

func newTestSupervisor(t *testing.T, pub Publisher, feeder watchdog.Feeder, r restart.Restarter, slept *[]time.Duration) *Supervisor {
	sensor := &fakeSensor{name: "scd30", reading: Reading{"co2_ppm": 400}}
	var mu sync.Mutex
	return &Supervisor{
		Composer:  newTestComposer(t, sensor),
		Publisher: pub,
		Lease:     feeder,
		Restarter: r,
		Policy:    Policy{Grace: 5 * time.Second},
		Cycle:     10 * time.Second,
		Log:       log2.NewTest(t, log2.LDebug),
		Sleep: func(ctx context.Context, d time.Duration) error {
			mu.Lock()
			*slept = append(*slept, d)
			mu.Unlock()
			return ctx.Err()
		},
	}
}

func TestSupervisorGraceRetry(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pub := &fakePublisher{script: []error{nil, fmt.Errorf("timeout"), nil, nil}}
	pub.onCall = func(n int) {
		if n == 4 {
			cancel()
		}
	}
	feeder := &countFeeder{}
	r := &countRestarter{}
	var slept []time.Duration
	s := newTestSupervisor(t, pub, feeder, r, &slept)

	err := s.Run(ctx)
	assert.Equal(t, context.Canceled, err)
	assert.Equal(t, int32(0), r.n)
	// fed after each successful publish, except last one interrupted by cancel
	assert.Equal(t, int32(2), feeder.n)
	assert.Equal(t, []time.Duration{10 * time.Second, 5 * time.Second, 10 * time.Second}, slept)
	assert.Equal(t, Stat{Cycles: 4, Failures: 1, Published: 2}, s.Stat())
}

func TestSupervisorRestartAfterTwoFailures(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{script: []error{nil, fmt.Errorf("timeout"), fmt.Errorf("not connected")}}
	feeder := &countFeeder{}
	r := &countRestarter{}
	var slept []time.Duration
	s := newTestSupervisor(t, pub, feeder, r, &slept)

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, restart.IsFatal(err))
	assert.Contains(t, err.Error(), "not connected")
	assert.Equal(t, int32(1), r.n)
	assert.Equal(t, int32(1), feeder.n)
	assert.Equal(t, 3, pub.calls)
	assert.Equal(t, []time.Duration{10 * time.Second, 5 * time.Second}, slept)
}

func TestSupervisorAllSensorsFailed(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	r := &countRestarter{}
	var slept []time.Duration
	s := newTestSupervisor(t, pub, &countFeeder{}, r, &slept)
	s.Composer = newTestComposer(t, &fakeSensor{name: "scd30", err: fmt.Errorf("nack")})

	err := s.Run(context.Background())
	assert.True(t, restart.IsFatal(err))
	assert.Equal(t, int32(1), r.n)
	assert.Equal(t, 0, pub.calls)
}

func TestWatchdogSupremacy(t *testing.T) {
	t.Parallel()

	r := &countRestarter{}
	lease := watchdog.NewLease(30*time.Millisecond, func(idle time.Duration) {
		r.Restart(fmt.Errorf("watchdog lease expired idle=%v", idle))
	}, log2.NewStderr(log2.LError))
	defer lease.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	slow := &fakeSensor{name: "scd30", reading: Reading{"co2_ppm": 400}, delay: 150 * time.Millisecond}
	s := &Supervisor{
		Composer:  newTestComposer(t, slow),
		Publisher: &fakePublisher{},
		Lease:     lease,
		Restarter: r,
		Cycle:     time.Millisecond,
		Log:       log2.NewStderr(log2.LError),
	}
	lease.Start()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&r.n) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint32(0), s.Stat().Failures)
	cancel()
	assert.Equal(t, context.Canceled, <-done)
	assert.Equal(t, int32(1), atomic.LoadInt32(&r.n))
}
