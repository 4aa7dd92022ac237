// Package state holds device configuration and the explicitly passed device
// context which owns hardware handles, bring-up machine and cloud session.
package state

import (
	"context"
	"sync"
	"time"

	"github.com/airq/airnode/hardware/i2c"
	"github.com/airq/airnode/hardware/modem"
	"github.com/airq/airnode/hardware/scd30"
	"github.com/airq/airnode/hardware/sps30"
	"github.com/airq/airnode/hardware/uart"
	"github.com/airq/airnode/hardware/watchdog"
	"github.com/airq/airnode/helpers"
	"github.com/airq/airnode/internal/bringup"
	"github.com/airq/airnode/internal/cloud"
	"github.com/airq/airnode/internal/restart"
	"github.com/airq/airnode/internal/telemetry"
	"github.com/airq/airnode/log2"
	"github.com/juju/errors"
	gpio "github.com/temoto/gpio-cdev-go"
)

type Global struct {
	Config    *Config
	Log       *log2.Log
	BootTime  time.Time
	Boot      restart.Fault
	Journal   *restart.Journal
	Restarter restart.Restarter

	// Preset handles are used as is, tests put mocks here.
	Hardware struct {
		Bus   i2c.Bus
		Chip  gpio.Chiper
		Port  uart.Port
		Power bringup.Resetter
		Link  modem.Link
	}
	Connector cloud.Connector
	Signer    func(audience string, now time.Time) (string, error)
	// Sleep replaces every wait of lifecycle components, used in tests.
	Sleep helpers.SleepFunc

	Lease      *watchdog.Lease
	Modem      *bringup.Machine
	Session    *cloud.Session
	Supervisor *telemetry.Supervisor

	lk sync.Mutex
}

func NewGlobal(c *Config, log *log2.Log) *Global {
	return &Global{
		Config:   c,
		Log:      log,
		BootTime: time.Now(),
	}
}

// Init loads fault journal. Restarter defaults to real device reboot.
func (g *Global) Init() {
	if g.Journal == nil {
		g.Journal = restart.OpenJournal(g.Config.Persist.Root, g.Log)
	}
	boot, err := g.Journal.Boot()
	if err != nil {
		g.Log.Errorf("fault journal err=%v", err)
	}
	// last fault of previous run, boot count including this one
	g.Boot = boot
	g.Boot.BootCount = g.Journal.State().BootCount
	if boot.LastFault != "" {
		g.Log.Infof("boot count=%d previous fault=%s", boot.BootCount, boot.LastFault)
	}
	if g.Restarter == nil {
		g.Restarter = restart.NewSystem(g.Log, g.Journal)
	}
}

func (g *Global) subLog(debug bool) *log2.Log {
	if debug {
		return g.Log.Clone(log2.LDebug)
	}
	return g.Log.Clone(log2.LInfo)
}

func (g *Global) Bus() (i2c.Bus, error) {
	g.lk.Lock()
	defer g.lk.Unlock()
	if g.Hardware.Bus != nil {
		return g.Hardware.Bus, nil
	}
	bus, err := i2c.OpenPeriph(g.Config.Sensors.Bus)
	if err != nil {
		return nil, errors.Annotatef(err, "config: sensors.bus=%s", g.Config.Sensors.Bus)
	}
	g.Hardware.Bus = bus
	return bus, nil
}

// Sensors returns enabled sensors in record order.
func (g *Global) Sensors() ([]telemetry.Sensor, error) {
	bus, err := g.Bus()
	if err != nil {
		return nil, err
	}
	c := &g.Config.Sensors
	log := g.subLog(c.LogDebug)
	ready := time.Duration(c.ReadyTimeoutMs) * time.Millisecond
	sensors := make([]telemetry.Sensor, 0, 2)
	if c.SCD30.Enable {
		sensors = append(sensors, &telemetry.SCD30{
			Dev:          scd30.New(bus, log),
			Pressure:     uint16(c.SCD30.PressureMbar),
			Interval:     uint16(c.SCD30.IntervalSec),
			ReadyTimeout: ready,
		})
	}
	if c.SPS30.Enable {
		sensors = append(sensors, &telemetry.SPS30{
			Dev:          sps30.New(bus, log),
			ReadyTimeout: ready,
		})
	}
	return sensors, nil
}

func (g *Global) Chip() (gpio.Chiper, error) {
	g.lk.Lock()
	defer g.lk.Unlock()
	if g.Hardware.Chip != nil {
		return g.Hardware.Chip, nil
	}
	chip, err := gpio.Open(g.Config.Modem.PinChip, "airnode")
	if err != nil {
		return nil, errors.Annotatef(err, "config: modem.pin_chip=%s", g.Config.Modem.PinChip)
	}
	g.Hardware.Chip = chip
	return chip, nil
}

// InitModem opens serial port, power lines and link, then builds bring-up machine.
func (g *Global) InitModem() (*bringup.Machine, error) {
	if g.Modem != nil {
		return g.Modem, nil
	}
	c := &g.Config.Modem
	log := g.subLog(c.LogDebug)
	if g.Hardware.Port == nil {
		port, err := uart.Open(c.UartDevice, c.Baudrate)
		if err != nil {
			return nil, errors.Annotatef(err, "config: modem.uart_device=%s", c.UartDevice)
		}
		g.Hardware.Port = port
	}
	if g.Hardware.Power == nil {
		chip, err := g.Chip()
		if err != nil {
			return nil, err
		}
		power, err := modem.OpenPower(chip, g.Config.PowerConfig(), log)
		if err != nil {
			return nil, err
		}
		g.Hardware.Power = power
	}
	if g.Hardware.Link == nil {
		g.Hardware.Link = modem.NewPPP(g.Config.PPPConfig(), log)
	}
	g.Modem = bringup.NewMachine(g.Config.BringupConfig(), bringup.DefaultTable(c.APN),
		g.Hardware.Port, g.Hardware.Power, g.Hardware.Link, log)
	if g.Sleep != nil {
		g.Modem.Sleep = g.Sleep
	}
	return g.Modem, nil
}

func (g *Global) sign(audience string, now time.Time) (string, error) {
	if g.Signer != nil {
		return g.Signer(audience, now)
	}
	key, err := cloud.LoadPrivateKey(g.Config.Cloud.PrivateKeyFile)
	if err != nil {
		return "", errors.Annotatef(err, "config: cloud.private_key_file=%s", g.Config.Cloud.PrivateKeyFile)
	}
	return cloud.MintToken(audience, key, time.Duration(g.Config.Cloud.TokenTTLSec)*time.Second, now)
}

// OpenSession mints access token and establishes cloud session.
// Exhausted connect attempts already requested restart.
func (g *Global) OpenSession(ctx context.Context) (*cloud.Session, error) {
	c := &g.Config.Cloud
	log := g.subLog(c.LogDebug)
	id := g.Config.Identity()
	token, err := g.sign(id.Audience(), time.Now())
	if err != nil {
		return nil, err
	}
	if g.Connector == nil {
		tlsConfig, err := cloud.TLSConfig(c.TLSCAFile)
		if err != nil {
			return nil, errors.Annotate(err, "config: cloud.tls_ca_file")
		}
		g.Connector = &cloud.PahoConnector{
			Broker:    c.MqttBroker,
			TLS:       tlsConfig,
			KeepAlive: time.Duration(c.KeepaliveSec) * time.Second,
			Log:       log,
		}
	}
	e := &cloud.Establisher{
		Connector:      g.Connector,
		Restarter:      g.Restarter,
		MaxAttempts:    c.ConnectAttempts,
		RetryInterval:  time.Duration(c.ConnectRetryMs) * time.Millisecond,
		PublishTimeout: time.Duration(c.PublishTimeoutSec) * time.Second,
		Log:            log,
		Sleep:          g.Sleep,
	}
	s, err := e.Open(ctx, id, token)
	if err != nil {
		return nil, err
	}
	g.Session = s
	return s, nil
}

// StartLease opens watchdog backends and arms lease. Expiry requests restart.
func (g *Global) StartLease() *watchdog.Lease {
	if g.Lease != nil {
		return g.Lease
	}
	c := &g.Config.Watchdog
	feeders := make([]watchdog.Feeder, 0, 2)
	if c.Device != "" {
		dev, err := watchdog.OpenDevice(c.Device, time.Duration(c.TimeoutSec)*time.Second)
		if err != nil {
			g.Log.Errorf("config: watchdog.device=%s err=%v", c.Device, err)
		} else {
			feeders = append(feeders, dev)
		}
	}
	if c.Systemd && watchdog.SystemdEnabled() {
		feeders = append(feeders, watchdog.Systemd{})
	}
	window := helpers.IntSecondDefault(c.LeaseSec, 90*time.Second)
	g.Lease = watchdog.NewLease(window, func(idle time.Duration) {
		g.Restarter.Restart(errors.Errorf("watchdog lease expired idle=%v window=%v", idle, window))
	}, g.Log, feeders...)
	g.Lease.Start()
	return g.Lease
}

// checkSystemdWatchdog warns when service manager would kill the process
// before bring-up and session establishment give up on their own.
func (g *Global) checkSystemdWatchdog(interval time.Duration) bool {
	if interval <= 0 {
		return true
	}
	budget := g.Config.BringupBudget()
	if interval < budget {
		g.Log.Errorf("config: systemd WatchdogSec=%v less than modem bring-up budget=%v, unit may be killed during bring-up", interval, budget)
		return false
	}
	return true
}

// Run is the device lifecycle: bring-up, session, sensors, supervised publish loop.
// Returns only on context cancel or with *restart.FatalError after restart request.
func (g *Global) Run(ctx context.Context) error {
	if g.Config.Watchdog.Systemd {
		g.checkSystemdWatchdog(watchdog.SystemdInterval())
	}
	m, err := g.InitModem()
	if err != nil {
		return restart.Fatal(g.Restarter, errors.Annotate(err, "modem init"))
	}
	if err = m.BringUp(ctx, g.Config.Modem.BringupAttempts); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return restart.Fatal(g.Restarter, errors.Annotate(err, "modem bring-up"))
	}

	session, err := g.OpenSession(ctx)
	if err != nil {
		if restart.IsFatal(err) || ctx.Err() != nil {
			return err
		}
		return restart.Fatal(g.Restarter, errors.Annotate(err, "cloud session"))
	}

	sensors, err := g.Sensors()
	if err != nil {
		return restart.Fatal(g.Restarter, errors.Annotate(err, "sensors init"))
	}
	if err = telemetry.StartSensors(sensors, g.Log); err != nil {
		g.Log.Errorf("sensors start err=%v", err)
	}

	health := telemetry.NewSystemHealth(g.Boot, m)
	g.Supervisor = &telemetry.Supervisor{
		Composer:  telemetry.NewComposer(g.Config.Device.ID, g.BootTime, sensors, health, g.Log),
		Publisher: session,
		Lease:     g.StartLease(),
		Restarter: g.Restarter,
		Policy:    g.Config.Policy(),
		Cycle:     time.Duration(g.Config.Supervisor.CycleSec) * time.Second,
		Log:       g.Log,
		Sleep:     g.Sleep,
	}
	return g.Supervisor.Run(ctx)
}
