package state

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/airq/airnode/hardware/modem"
	"github.com/airq/airnode/hardware/scd30"
	"github.com/airq/airnode/helpers"
	"github.com/airq/airnode/internal/bringup"
	"github.com/airq/airnode/internal/cloud"
	"github.com/airq/airnode/internal/telemetry"
	"github.com/airq/airnode/log2"
	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
)

const DefaultConfigPath = "/etc/airnode/airnode.hcl"

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	Device struct {
		ID string `hcl:"id"`
	} `hcl:"device"`
	Persist struct {
		Root string `hcl:"root"`
	} `hcl:"persist"`
	Modem      ModemConfig      `hcl:"modem"`
	Cloud      CloudConfig      `hcl:"cloud"`
	Sensors    SensorsConfig    `hcl:"sensors"`
	Supervisor SupervisorConfig `hcl:"supervisor"`
	Watchdog   WatchdogConfig   `hcl:"watchdog"`
	Log        struct {
		Debug bool `hcl:"debug"`
	} `hcl:"log"`

	_copy_guard sync.Mutex //nolint:unused
}

type ModemConfig struct {
	UartDevice  string `hcl:"uart_device"`
	Baudrate    int    `hcl:"baudrate"`
	PinChip     string `hcl:"pin_chip"`
	PinPowerKey int    `hcl:"pin_power_key"`
	PinReset    int    `hcl:"pin_reset"`
	PinPowerOn  int    `hcl:"pin_power_on"`
	APN         string `hcl:"apn"`

	CommandDelayMs    int `hcl:"command_delay_ms"`
	ResponseTimeoutMs int `hcl:"response_timeout_ms"`
	ChunkTimeoutMs    int `hcl:"chunk_timeout_ms"`
	StepTimeoutSec    int `hcl:"step_timeout_sec"`
	BringupAttempts   int `hcl:"bringup_attempts"`

	Link struct {
		Interface string `hcl:"interface"`
		PPPDPeer  string `hcl:"pppd_peer"`
		PollTicks int    `hcl:"poll_ticks"`
	} `hcl:"link"`
	LogDebug bool `hcl:"log_debug"`
}

type CloudConfig struct {
	ProjectID         string `hcl:"project_id"`
	Region            string `hcl:"region"`
	RegistryID        string `hcl:"registry_id"`
	MqttBroker        string `hcl:"mqtt_broker"`
	PrivateKeyFile    string `hcl:"private_key_file"`
	TokenTTLSec       int    `hcl:"token_ttl_sec"`
	ConnectAttempts   int    `hcl:"connect_attempts"`
	ConnectRetryMs    int    `hcl:"connect_retry_ms"`
	TLSCAFile         string `hcl:"tls_ca_file"`
	PublishTimeoutSec int    `hcl:"publish_timeout_sec"`
	KeepaliveSec      int    `hcl:"keepalive_sec"`
	LogDebug          bool   `hcl:"log_debug"`
}

type SensorsConfig struct {
	Bus   string `hcl:"bus"`
	SCD30 struct {
		Enable       bool `hcl:"enable"`
		IntervalSec  int  `hcl:"interval_sec"`
		PressureMbar int  `hcl:"pressure_mbar"`
	} `hcl:"scd30"`
	SPS30 struct {
		Enable bool `hcl:"enable"`
	} `hcl:"sps30"`
	ReadyTimeoutMs int  `hcl:"ready_timeout_ms"`
	LogDebug       bool `hcl:"log_debug"`
}

type SupervisorConfig struct {
	CycleSec     int `hcl:"cycle_sec"`
	GraceSec     int `hcl:"grace_sec"`
	RestartAfter int `hcl:"restart_after"`
}

type WatchdogConfig struct {
	Device     string `hcl:"device"`
	TimeoutSec int    `hcl:"timeout_sec"`
	// Systemd feeds WatchdogSec= of the unit from the publish loop only.
	// WatchdogSec must exceed Config.BringupBudget.
	Systemd    bool   `hcl:"systemd"`
	LeaseSec   int    `hcl:"lease_sec"`
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

// Normalize fills defaults and validates. Call once after all sources are read.
func (c *Config) Normalize() error {
	errs := make([]error, 0, 8)

	if c.Device.ID == "" {
		errs = append(errs, errors.NotValidf("config: device.id=empty"))
	}
	if c.Persist.Root == "" {
		c.Persist.Root = "/var/lib/airnode"
	}

	m := &c.Modem
	if m.UartDevice == "" {
		m.UartDevice = "/dev/ttyS0"
	}
	if m.Baudrate == 0 {
		m.Baudrate = 115200
	}
	if m.PinChip == "" {
		m.PinChip = "/dev/gpiochip0"
	}
	if m.APN == "" {
		errs = append(errs, errors.NotValidf("config: modem.apn=empty"))
	}
	if m.BringupAttempts <= 0 {
		m.BringupAttempts = 3
	}

	cc := &c.Cloud
	if cc.MqttBroker == "" {
		cc.MqttBroker = "ssl://mqtt.googleapis.com:8883"
	}
	if cc.PrivateKeyFile == "" {
		errs = append(errs, errors.NotValidf("config: cloud.private_key_file=empty"))
	}
	if c.Device.ID != "" {
		if err := c.Identity().Valid(); err != nil {
			errs = append(errs, errors.Annotate(err, "config: cloud"))
		}
	}

	s := &c.Sensors
	if s.Bus == "" {
		s.Bus = "/dev/i2c-1"
	}
	if !s.SCD30.Enable && !s.SPS30.Enable {
		errs = append(errs, errors.NotValidf("config: sensors all disabled"))
	}
	if s.SCD30.PressureMbar < 0 || s.SCD30.PressureMbar > 0xffff {
		errs = append(errs, errors.NotValidf("config: sensors.scd30.pressure_mbar=%d", s.SCD30.PressureMbar))
	}
	if s.SCD30.IntervalSec != 0 && (s.SCD30.IntervalSec < scd30.IntervalMin || s.SCD30.IntervalSec > scd30.IntervalMax) {
		errs = append(errs, errors.NotValidf("config: sensors.scd30.interval_sec=%d must be in [%d,%d]",
			s.SCD30.IntervalSec, scd30.IntervalMin, scd30.IntervalMax))
	}

	if c.Supervisor.CycleSec <= 0 {
		c.Supervisor.CycleSec = int(telemetry.DefaultCycle / time.Second)
	}
	if c.Watchdog.LeaseSec <= 0 {
		c.Watchdog.LeaseSec = 90
	}
	if c.Watchdog.LeaseSec <= c.Supervisor.CycleSec {
		errs = append(errs, errors.NotValidf("config: watchdog.lease_sec=%d must exceed supervisor.cycle_sec=%d",
			c.Watchdog.LeaseSec, c.Supervisor.CycleSec))
	}

	return helpers.FoldErrors(errs)
}

func (c *Config) Identity() cloud.Identity {
	return cloud.Identity{
		ProjectID:  c.Cloud.ProjectID,
		Region:     c.Cloud.Region,
		RegistryID: c.Cloud.RegistryID,
		DeviceID:   c.Device.ID,
	}
}

func (c *Config) BringupConfig() bringup.Config {
	bc := bringup.Config{
		CommandDelay:    time.Duration(c.Modem.CommandDelayMs) * time.Millisecond,
		ResponseTimeout: helpers.IntMillisecondDefault(c.Modem.ResponseTimeoutMs, bringup.DefaultResponseTimeout),
		StepTimeout:     helpers.IntSecondDefault(c.Modem.StepTimeoutSec, bringup.DefaultStepTimeout),
		ChunkTimeout:    time.Duration(c.Modem.ChunkTimeoutMs) * time.Millisecond,
		LinkPollTicks:   c.Modem.Link.PollTicks,
	}
	if c.Modem.CommandDelayMs == 0 {
		bc.CommandDelay = bringup.DefaultCommandDelay
	}
	return bc
}

// BringupBudget is the worst case time of failing bring-up: every attempt
// runs into step timeout and waits for the link.
func (c *Config) BringupBudget() time.Duration {
	bc := c.BringupConfig()
	ticks := bc.LinkPollTicks
	if ticks <= 0 {
		ticks = bringup.DefaultLinkPollTicks
	}
	attempts := c.Modem.BringupAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return time.Duration(attempts) * (bc.StepTimeout + time.Duration(ticks)*bringup.DefaultLinkPollInterval)
}

func (c *Config) PowerConfig() modem.PowerConfig {
	return modem.PowerConfig{
		PowerKey: uint32(c.Modem.PinPowerKey),
		Reset:    uint32(c.Modem.PinReset),
		PowerOn:  uint32(c.Modem.PinPowerOn),
	}
}

func (c *Config) PPPConfig() modem.PPPConfig {
	return modem.PPPConfig{
		Interface: c.Modem.Link.Interface,
		Peer:      c.Modem.Link.PPPDPeer,
	}
}

func (c *Config) Policy() telemetry.Policy {
	return telemetry.Policy{
		Grace:        helpers.IntSecondDefault(c.Supervisor.GraceSec, telemetry.DefaultGrace),
		RestartAfter: c.Supervisor.RestartAfter,
	}
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil && !source.Optional {
		*errs = append(*errs, errors.NotFoundf("config required name=%s path=%s", source.Name, norm))
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	if err = hcl.Unmarshal(bs, c); err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config unmarshal source=%s", source.Name))
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		if _, ok := c.includeSeen[fs.Normalize(include.Name)]; ok {
			*errs = append(*errs, errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name))
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// ReadConfig reads names in order, later values overwrite earlier.
// With OsFullReader, includes are relative to directory of the first name.
func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.Errorf("code error ReadConfig() without names")
	}
	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{includeSeen: make(map[string]struct{})}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	if len(errs) != 0 {
		return c, helpers.FoldErrors(errs)
	}
	return c, c.Normalize()
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
