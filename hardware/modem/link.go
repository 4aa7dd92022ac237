package modem

import (
	"context"
	"net"
	"os/exec"
	"strings"
	"sync"

	"github.com/airq/airnode/log2"
	"github.com/juju/errors"
)

// Link is packet data interface over the dialed modem.
type Link interface {
	Activate(ctx context.Context) error
	Connected() bool
	Addr() string
}

type PPPConfig struct {
	Interface string
	// Peer is pppd "call" argument, a file in /etc/ppp/peers.
	Peer    string
	Command string
}

// PPP runs pppd on the serial line after ATD*99# returned CONNECT.
type PPP struct {
	c   PPPConfig
	log *log2.Log

	mu   sync.Mutex
	done chan struct{}
	// replaced in tests
	lookup func(name string) (iface, error)
}

type iface interface {
	Up() bool
	Addrs() ([]net.Addr, error)
}

type netIface struct{ *net.Interface }

func (i netIface) Up() bool { return i.Flags&net.FlagUp != 0 }

func lookupNet(name string) (iface, error) {
	i, err := net.InterfaceByName(name)
	if err != nil {
		return nil, err
	}
	return netIface{i}, nil
}

func NewPPP(c PPPConfig, log *log2.Log) *PPP {
	if c.Interface == "" {
		c.Interface = "ppp0"
	}
	if c.Command == "" {
		c.Command = "pppd"
	}
	return &PPP{c: c, log: log, lookup: lookupNet}
}

func (p *PPP) Activate(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		select {
		case <-p.done:
		default:
			return nil
		}
	}
	args := []string{"nodetach"}
	if p.c.Peer != "" {
		args = append(args, "call", p.c.Peer)
	}
	cmd := exec.CommandContext(ctx, p.c.Command, args...)
	if err := cmd.Start(); err != nil {
		return errors.Annotatef(err, "ppp start %s %s", p.c.Command, strings.Join(args, " "))
	}
	done := make(chan struct{})
	p.done = done
	go func() {
		err := cmd.Wait()
		p.log.Infof("ppp exited err=%v", err)
		close(done)
	}()
	p.log.Infof("ppp started pid=%d", cmd.Process.Pid)
	return nil
}

func (p *PPP) Connected() bool {
	i, err := p.lookup(p.c.Interface)
	if err != nil || !i.Up() {
		return false
	}
	addrs, err := i.Addrs()
	return err == nil && len(addrs) != 0
}

func (p *PPP) Addr() string {
	i, err := p.lookup(p.c.Interface)
	if err != nil {
		return ""
	}
	addrs, err := i.Addrs()
	if err != nil || len(addrs) == 0 {
		return ""
	}
	ss := make([]string, len(addrs))
	for j, a := range addrs {
		ss[j] = a.String()
	}
	return strings.Join(ss, ",")
}
