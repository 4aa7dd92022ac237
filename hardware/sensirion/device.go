package sensirion

import (
	"time"

	"github.com/airq/airnode/hardware/i2c"
	"github.com/juju/errors"
)

// Device is a sensor at fixed bus address.
// Preconditions such as started measurement are caller business.
type Device struct {
	Bus  i2c.Bus
	Addr uint16
	// Sleep is replaced in tests.
	Sleep func(time.Duration)
}

func (d *Device) Command(op uint16) error {
	if err := d.Bus.Tx(d.Addr, EncodeCommand(op), nil); err != nil {
		return errors.Annotatef(err, "sensirion addr=%02x command=%04x", d.Addr, op)
	}
	return nil
}

func (d *Device) CommandArg(op uint16, arg uint16) error {
	b, err := EncodeCommandArg(op, arg)
	if err != nil {
		return err
	}
	if err = d.Bus.Tx(d.Addr, b, nil); err != nil {
		return errors.Annotatef(err, "sensirion addr=%02x command=%04x arg=%04x", d.Addr, op, arg)
	}
	return nil
}

// Read sends opcode, waits settle, reads n frames.
func (d *Device) Read(op uint16, n int, settle time.Duration) ([]uint16, error) {
	if err := d.Command(op); err != nil {
		return nil, err
	}
	if settle > 0 {
		d.sleep(settle)
	}
	buf := make([]byte, n*FrameLength)
	if err := d.Bus.Tx(d.Addr, nil, buf); err != nil {
		return nil, errors.Annotatef(err, "sensirion addr=%02x read=%04x", d.Addr, op)
	}
	words, err := DecodeFrames(buf, n)
	if err != nil {
		return nil, errors.Annotatef(err, "sensirion addr=%02x read=%04x", d.Addr, op)
	}
	return words, nil
}

func (d *Device) sleep(dur time.Duration) {
	if d.Sleep != nil {
		d.Sleep(dur)
		return
	}
	time.Sleep(dur)
}
