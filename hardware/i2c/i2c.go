package i2c

import (
	"sync"

	"github.com/juju/errors"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"
)

// Bus is used to interact with two-wire bus peripherals.
// Write and read parts of Tx are separate transactions when the peripheral
// needs a pause between them; callers pass nil for the other side.
type Bus interface {
	Tx(addr uint16, w []byte, r []byte) error
	Close() error
}

type periphBus struct {
	name string
	lk   sync.Mutex
	bus  i2c.BusCloser
}

// OpenPeriph opens bus by name, e.g. "/dev/i2c-1", "1" or "" for the first available.
func OpenPeriph(name string) (Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Annotate(err, "periph/init")
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, errors.Annotatef(err, "i2c open bus=%s", name)
	}
	return &periphBus{name: name, bus: bus}, nil
}

// Tx is serialized, the bus has single owner at a time.
func (b *periphBus) Tx(addr uint16, w []byte, r []byte) error {
	if len(w) == 0 && len(r) == 0 {
		return errors.Errorf("i2c Tx both w=r=nil nothing to do")
	}
	b.lk.Lock()
	defer b.lk.Unlock()
	if err := b.bus.Tx(addr, w, r); err != nil {
		return errors.Annotatef(err, "i2c bus=%s addr=%02x w=%x", b.name, addr, w)
	}
	return nil
}

func (b *periphBus) Close() error {
	b.lk.Lock()
	defer b.lk.Unlock()
	return b.bus.Close()
}
