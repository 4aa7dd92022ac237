package telemetry

import (
	"io/ioutil"
	"strconv"
	"strings"

	"github.com/airq/airnode/internal/bringup"
	"github.com/airq/airnode/internal/restart"
	"golang.org/x/sys/unix"
)

const DefaultThermalPath = "/sys/class/thermal/thermal_zone0/temp"

// sysinfo loads are fixed point, kernel SI_LOAD_SHIFT
const loadShift = 16

type Health struct {
	UptimeSec      int64    `json:"uptime_sec"`
	FreeRAM        uint64   `json:"free_ram"`
	Load1          float64  `json:"load1"`
	SoCTempCelsius *float64 `json:"soc_temp_celsius,omitempty"`
	BootCount      uint32   `json:"boot_count"`
	LastFault      string   `json:"last_fault,omitempty"`
	SignalRSSI     int      `json:"signal_rssi"` // 0..31 or 99 unknown
}

type HealthSource interface {
	Health() Health
}

// SignalSource is modem signal quality, see bringup.Machine.
type SignalSource interface {
	RSSI() int
}

type SystemHealth struct {
	Boot        restart.Fault
	Signal      SignalSource
	ThermalPath string

	sysinfo  func(*unix.Sysinfo_t) error
	readFile func(string) ([]byte, error)
}

func NewSystemHealth(boot restart.Fault, signal SignalSource) *SystemHealth {
	return &SystemHealth{
		Boot:        boot,
		Signal:      signal,
		ThermalPath: DefaultThermalPath,
		sysinfo:     unix.Sysinfo,
		readFile:    ioutil.ReadFile,
	}
}

func (h *SystemHealth) Health() Health {
	r := Health{
		BootCount:  h.Boot.BootCount,
		LastFault:  h.Boot.LastFault,
		SignalRSSI: bringup.RSSIUnknown,
	}
	if h.Signal != nil {
		r.SignalRSSI = h.Signal.RSSI()
	}
	var si unix.Sysinfo_t
	if err := h.sysinfo(&si); err == nil {
		unit := uint64(si.Unit)
		if unit == 0 {
			unit = 1
		}
		r.UptimeSec = int64(si.Uptime)
		r.FreeRAM = uint64(si.Freeram) * unit
		r.Load1 = float64(si.Loads[0]) / float64(1<<loadShift)
	}
	if b, err := h.readFile(h.ThermalPath); err == nil {
		// millidegree Celsius
		if milli, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64); err == nil {
			t := float64(milli) / 1000
			r.SoCTempCelsius = &t
		}
	}
	return r
}
