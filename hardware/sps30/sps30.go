// Package sps30 drives Sensirion SPS30 particulate matter sensor in float mode.
package sps30

import (
	"github.com/airq/airnode/hardware/i2c"
	"github.com/airq/airnode/hardware/sensirion"
	"github.com/airq/airnode/log2"
	"github.com/juju/errors"
)

const DefaultAddr = 0x69

const (
	opStartMeasurement = 0x0010
	opStopMeasurement  = 0x0104
	opDataReady        = 0x0202
	opReadMeasurement  = 0x0300
	opReset            = 0xd304

	formatFloat = 0x0300
)

// Keys in order of values on the wire.
var Keys = [...]string{
	"mc_1p0", "mc_2p5", "mc_4p0", "mc_10p0",
	"nc_0p5", "nc_1p0", "nc_2p5", "nc_4p0", "nc_10p0",
	"typical_particle_size",
}

type Measurement [len(Keys)]float32

func (m Measurement) Map() map[string]float32 {
	r := make(map[string]float32, len(Keys))
	for i, k := range Keys {
		r[k] = m[i]
	}
	return r
}

type Device struct {
	dev sensirion.Device
	log *log2.Log
}

func New(bus i2c.Bus, log *log2.Log) *Device {
	return &Device{dev: sensirion.Device{Bus: bus, Addr: DefaultAddr}, log: log}
}

func (d *Device) StartMeasurement() error {
	return errors.Annotate(d.dev.CommandArg(opStartMeasurement, formatFloat), "sps30 start")
}

func (d *Device) StopMeasurement() error {
	return errors.Annotate(d.dev.Command(opStopMeasurement), "sps30 stop")
}

func (d *Device) Reset() error {
	return errors.Annotate(d.dev.Command(opReset), "sps30 reset")
}

func (d *Device) IsDataReady() (bool, error) {
	words, err := d.dev.Read(opDataReady, 1, 0)
	if err != nil {
		if sensirion.IsCRC(err) {
			d.log.Warningf("sps30 data ready err=%v", err)
		}
		return false, err
	}
	return byte(words[0]) != 0, nil
}

func (d *Device) ReadMeasurement() (Measurement, error) {
	var m Measurement
	words, err := d.dev.Read(opReadMeasurement, 2*len(m), 0)
	if err != nil {
		return m, errors.Annotate(err, "sps30 read measurement")
	}
	fs, err := sensirion.Float32s(words)
	if err != nil {
		return m, errors.Annotate(err, "sps30 read measurement")
	}
	copy(m[:], fs)
	return m, nil
}
