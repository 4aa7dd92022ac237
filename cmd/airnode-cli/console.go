package main

import (
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/airq/airnode/hardware/i2c"
	"github.com/airq/airnode/hardware/scd30"
	"github.com/airq/airnode/hardware/sensirion"
	"github.com/airq/airnode/hardware/sps30"
	"github.com/airq/airnode/log2"
	"github.com/juju/errors"
)

type action func(c *console) error

type console struct {
	log   *log2.Log
	bus   i2c.Bus
	scd   *scd30.Device
	sps   *sps30.Device
	sleep func(time.Duration)
}

func newConsole(bus i2c.Bus, log *log2.Log) *console {
	return &console{
		log:   log,
		bus:   bus,
		scd:   scd30.New(bus, log),
		sps:   sps30.New(bus, log),
		sleep: time.Sleep,
	}
}

func (c *console) exec(line string) {
	actions, loopn, err := parseLine(line)
	if err != nil {
		c.log.Error(err)
		return
	}
	if loopn == 0 {
		loopn = 1
	}
	for i := uint(0); i < loopn; i++ {
		for _, a := range actions {
			if err := a(c); err != nil {
				c.log.Error(errors.ErrorStack(err))
				return
			}
		}
	}
}

func parseLine(line string) ([]action, uint, error) {
	loopn := uint(0)
	actions := make([]action, 0, 4)
	for _, word := range strings.Fields(line) {
		switch {
		case word == "help":
			return []action{doUsage}, 0, nil
		case strings.HasPrefix(word, "loop="):
			if loopn != 0 {
				return nil, 0, errors.Errorf("multiple loop commands, expected at most one")
			}
			i, err := strconv.ParseUint(word[5:], 10, 32)
			if err != nil {
				return nil, 0, errors.Annotatef(err, "word=%s", word)
			}
			loopn = uint(i)
		default:
			a, err := parseCommand(word)
			if err != nil {
				return nil, 0, err
			}
			actions = append(actions, a)
		}
	}
	return actions, loopn, nil
}

func parseCommand(word string) (action, error) {
	name, arg := word, ""
	if i := strings.IndexByte(word, '='); i > 0 {
		name, arg = word[:i], word[i+1:]
	}
	switch name {
	case "log":
		return parseLog(arg)
	case "scd30.fw":
		return doSCDFirmware, nil
	case "scd30.start":
		pressure, err := parseUint16(word, arg)
		if err != nil {
			return nil, err
		}
		return func(c *console) error { return c.scd.StartMeasurement(pressure) }, nil
	case "scd30.stop":
		return func(c *console) error { return c.scd.StopMeasurement() }, nil
	case "scd30.interval":
		if arg == "" {
			return doSCDInterval, nil
		}
		sec, err := parseUint16(word, arg)
		if err != nil {
			return nil, err
		}
		return func(c *console) error { return c.scd.SetMeasurementInterval(sec) }, nil
	case "scd30.ready":
		return func(c *console) error { return c.ready("scd30", c.scd.IsDataReady) }, nil
	case "scd30.read":
		return doSCDRead, nil
	case "sps30.start":
		return func(c *console) error { return c.sps.StartMeasurement() }, nil
	case "sps30.stop":
		return func(c *console) error { return c.sps.StopMeasurement() }, nil
	case "sps30.reset":
		return func(c *console) error { return c.sps.Reset() }, nil
	case "sps30.ready":
		return func(c *console) error { return c.ready("sps30", c.sps.IsDataReady) }, nil
	case "sps30.read":
		return doSPSRead, nil
	}
	switch word[0] {
	case 's':
		i, err := strconv.ParseUint(word[1:], 10, 32)
		if err != nil {
			return nil, errors.Annotatef(err, "word=%s", word)
		}
		d := time.Duration(i) * time.Millisecond
		return func(c *console) error { c.sleep(d); return nil }, nil
	case '@':
		return parseRaw(word)
	}
	return nil, errors.Errorf("invalid command: '%s'", word)
}

func parseLog(arg string) (action, error) {
	switch arg {
	case "yes":
		return func(c *console) error { c.log.SetLevel(log2.LDebug); return nil }, nil
	case "no":
		return func(c *console) error { c.log.SetLevel(log2.LInfo); return nil }, nil
	}
	return nil, errors.Errorf("invalid log=%s expected yes|no", arg)
}

func parseUint16(word, arg string) (uint16, error) {
	if arg == "" {
		return 0, nil
	}
	x, err := strconv.ParseUint(arg, 10, 16)
	return uint16(x), errors.Annotatef(err, "word=%s", word)
}

// parseRaw @AA:XXXX/N
func parseRaw(word string) (action, error) {
	rest := word[1:]
	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return nil, errors.Errorf("raw word=%s expected @AA:XXXX/N", word)
	}
	addr, err := strconv.ParseUint(rest[:colon], 16, 8)
	if err != nil {
		return nil, errors.Annotatef(err, "raw word=%s address", word)
	}
	rest = rest[colon+1:]
	readn := uint64(0)
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		if readn, err = strconv.ParseUint(rest[slash+1:], 10, 8); err != nil {
			return nil, errors.Annotatef(err, "raw word=%s read length", word)
		}
		rest = rest[:slash]
	}
	w, err := hex.DecodeString(rest)
	if err != nil {
		return nil, errors.Annotatef(err, "raw word=%s hex", word)
	}
	if len(w) == 0 && readn == 0 {
		return nil, errors.Errorf("raw word=%s nothing to do", word)
	}
	return func(c *console) error { return c.raw(uint16(addr), w, int(readn)) }, nil
}

func (c *console) raw(addr uint16, w []byte, n int) error {
	if len(w) != 0 {
		if err := c.bus.Tx(addr, w, nil); err != nil {
			return err
		}
	}
	if n == 0 {
		return nil
	}
	r := make([]byte, n)
	if err := c.bus.Tx(addr, nil, r); err != nil {
		return err
	}
	status := "-"
	if n%sensirion.FrameLength == 0 {
		status = "crc=ok"
		if _, err := sensirion.DecodeFrames(r, n/sensirion.FrameLength); err != nil {
			status = "crc=invalid"
		}
	}
	c.log.Infof("< %x %s", r, status)
	return nil
}

func (c *console) ready(name string, f func() (bool, error)) error {
	ready, err := f()
	if err != nil {
		return err
	}
	c.log.Infof("%s ready=%t", name, ready)
	return nil
}

func doUsage(c *console) error {
	c.log.Infof(usage)
	return nil
}

func doSCDFirmware(c *console) error {
	major, minor, err := c.scd.FirmwareVersion()
	if err != nil {
		return err
	}
	c.log.Infof("scd30 firmware=%d.%d", major, minor)
	return nil
}

func doSCDInterval(c *console) error {
	sec, err := c.scd.MeasurementInterval()
	if err != nil {
		return err
	}
	c.log.Infof("scd30 interval=%ds", sec)
	return nil
}

func doSCDRead(c *console) error {
	m, err := c.scd.ReadMeasurement()
	if err != nil {
		return err
	}
	c.logMap("scd30", m.Map())
	return nil
}

func doSPSRead(c *console) error {
	m, err := c.sps.ReadMeasurement()
	if err != nil {
		return err
	}
	c.logMap("sps30", m.Map())
	return nil
}

func (c *console) logMap(name string, m map[string]float32) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(strconv.FormatFloat(float64(m[k]), 'f', -1, 32))
	}
	c.log.Infof("%s%s", name, b.String())
}
