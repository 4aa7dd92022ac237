// Package scd30 drives Sensirion SCD30 CO2, temperature and humidity sensor.
package scd30

import (
	"time"

	"github.com/airq/airnode/hardware/i2c"
	"github.com/airq/airnode/hardware/sensirion"
	"github.com/airq/airnode/log2"
	"github.com/juju/errors"
)

const DefaultAddr = 0x61

const (
	opStartMeasurement = 0x0010
	opStopMeasurement  = 0x0104
	opInterval         = 0x4600
	opDataReady        = 0x0202
	opReadMeasurement  = 0x0300
	opFirmwareVersion  = 0xd100

	readSettle = 5 * time.Millisecond

	IntervalMin = 2
	IntervalMax = 1800
)

const (
	KeyCO2         = "co2_ppm"
	KeyTemperature = "temp_celsius"
	KeyHumidity    = "rh_percent"
)

type Measurement struct {
	CO2         float32
	Temperature float32
	Humidity    float32
}

func (m Measurement) Map() map[string]float32 {
	return map[string]float32{
		KeyCO2:         m.CO2,
		KeyTemperature: m.Temperature,
		KeyHumidity:    m.Humidity,
	}
}

type Device struct {
	dev sensirion.Device
	log *log2.Log
}

func New(bus i2c.Bus, log *log2.Log) *Device {
	return &Device{dev: sensirion.Device{Bus: bus, Addr: DefaultAddr}, log: log}
}

// FirmwareVersion returns major, minor.
func (d *Device) FirmwareVersion() (byte, byte, error) {
	words, err := d.dev.Read(opFirmwareVersion, 1, 0)
	if err != nil {
		return 0, 0, errors.Annotate(err, "scd30 firmware version")
	}
	return byte(words[0] >> 8), byte(words[0]), nil
}

// StartMeasurement starts continuous mode, pressure compensation in mbar, 0 disables it.
func (d *Device) StartMeasurement(pressure uint16) error {
	return errors.Annotate(d.dev.CommandArg(opStartMeasurement, pressure), "scd30 start")
}

func (d *Device) StopMeasurement() error {
	return errors.Annotate(d.dev.Command(opStopMeasurement), "scd30 stop")
}

func (d *Device) SetMeasurementInterval(sec uint16) error {
	if sec < IntervalMin || sec > IntervalMax {
		return errors.NotValidf("scd30 interval=%d must be in [%d,%d]", sec, IntervalMin, IntervalMax)
	}
	return errors.Annotate(d.dev.CommandArg(opInterval, sec), "scd30 set interval")
}

func (d *Device) MeasurementInterval() (uint16, error) {
	words, err := d.dev.Read(opInterval, 1, 0)
	if err != nil {
		return 0, errors.Annotate(err, "scd30 interval")
	}
	return words[0], nil
}

// IsDataReady on crc mismatch logs warning and returns false with error
// matching sensirion.IsCRC, so caller may just poll again.
func (d *Device) IsDataReady() (bool, error) {
	words, err := d.dev.Read(opDataReady, 1, 0)
	if err != nil {
		if sensirion.IsCRC(err) {
			d.log.Warningf("scd30 data ready err=%v", err)
		}
		return false, err
	}
	return byte(words[0]) != 0, nil
}

// ReadMeasurement must follow IsDataReady()=true, otherwise sensor returns stale or garbage data.
func (d *Device) ReadMeasurement() (Measurement, error) {
	words, err := d.dev.Read(opReadMeasurement, 6, readSettle)
	if err != nil {
		return Measurement{}, errors.Annotate(err, "scd30 read measurement")
	}
	fs, err := sensirion.Float32s(words)
	if err != nil {
		return Measurement{}, errors.Annotate(err, "scd30 read measurement")
	}
	return Measurement{CO2: fs[0], Temperature: fs[1], Humidity: fs[2]}, nil
}

// SetSleep replaces settle delay function, used in tests.
func (d *Device) SetSleep(f func(time.Duration)) { d.dev.Sleep = f }
