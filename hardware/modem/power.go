// Package modem controls cellular modem power lines and packet data link.
package modem

import (
	"context"
	"time"

	"github.com/airq/airnode/helpers"
	"github.com/airq/airnode/log2"
	"github.com/juju/errors"
	gpio "github.com/temoto/gpio-cdev-go"
)

const (
	DefaultResetPulse = 100 * time.Millisecond
	DefaultBootDelay  = 3 * time.Second
)

type PowerConfig struct {
	PowerKey uint32
	Reset    uint32
	PowerOn  uint32
	// ResetPulse is reset line high time.
	ResetPulse time.Duration
	// BootDelay is wait after power-on before modem accepts commands.
	BootDelay time.Duration
}

type Power struct {
	c     PowerConfig
	log   *log2.Log
	lines gpio.Lineser

	powerKey gpio.LineSetFunc
	reset    gpio.LineSetFunc
	powerOn  gpio.LineSetFunc

	Sleep helpers.SleepFunc
}

func OpenPower(chip gpio.Chiper, c PowerConfig, log *log2.Log) (*Power, error) {
	if c.ResetPulse <= 0 {
		c.ResetPulse = DefaultResetPulse
	}
	if c.BootDelay <= 0 {
		c.BootDelay = DefaultBootDelay
	}
	lines, err := chip.OpenLines(gpio.GPIOHANDLE_REQUEST_OUTPUT, "airnode-modem", c.PowerKey, c.Reset, c.PowerOn)
	if err != nil {
		return nil, errors.Annotatef(err, "modem power lines key=%d reset=%d on=%d", c.PowerKey, c.Reset, c.PowerOn)
	}
	p := &Power{
		c:        c,
		log:      log,
		lines:    lines,
		powerKey: lines.SetFunc(c.PowerKey),
		reset:    lines.SetFunc(c.Reset),
		powerOn:  lines.SetFunc(c.PowerOn),
		Sleep:    helpers.Sleep,
	}
	return p, nil
}

// Reset performs hardware reset: power key low, reset pulse, power on high.
func (p *Power) Reset(ctx context.Context) error {
	p.log.Debugf("modem hardware reset")
	p.powerKey(0)
	p.reset(1)
	if err := p.lines.Flush(); err != nil {
		return errors.Annotate(err, "modem reset assert")
	}
	if err := p.Sleep(ctx, p.c.ResetPulse); err != nil {
		return err
	}
	p.reset(0)
	p.powerOn(1)
	if err := p.lines.Flush(); err != nil {
		return errors.Annotate(err, "modem power on")
	}
	return p.Sleep(ctx, p.c.BootDelay)
}

func (p *Power) Close() error { return p.lines.Close() }
