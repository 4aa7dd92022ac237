package bringup

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/airq/airnode/hardware/modem"
	"github.com/airq/airnode/hardware/uart"
	"github.com/airq/airnode/helpers"
	"github.com/airq/airnode/log2"
	"github.com/juju/errors"
)

const (
	DefaultCommandDelay     = 300 * time.Millisecond
	DefaultResponseTimeout  = time.Second
	DefaultStepTimeout      = 60 * time.Second
	DefaultLinkPollTicks    = 30
	DefaultLinkPollInterval = time.Second
)

type Config struct {
	CommandDelay     time.Duration
	ResponseTimeout  time.Duration
	ChunkTimeout     time.Duration
	StepTimeout      time.Duration
	LinkPollTicks    int
	LinkPollInterval time.Duration
}

func (c *Config) normalize() {
	if c.CommandDelay < 0 {
		c.CommandDelay = DefaultCommandDelay
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = DefaultResponseTimeout
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = DefaultStepTimeout
	}
	if c.LinkPollTicks <= 0 {
		c.LinkPollTicks = DefaultLinkPollTicks
	}
	if c.LinkPollInterval <= 0 {
		c.LinkPollInterval = DefaultLinkPollInterval
	}
}

// Resetter is modem hardware reset, see modem.Power.
type Resetter interface {
	Reset(ctx context.Context) error
}

type Stat struct {
	Cursor   Cursor
	Steps    uint32
	Attempts uint32
	RSSI     int
	Operator string
	Addr     string
}

type Machine struct {
	c     Config
	log   *log2.Log
	port  uart.Port
	power Resetter
	link  modem.Link
	table Table

	Sleep helpers.SleepFunc

	steps    uint32
	attempts uint32
	mu       sync.Mutex
	cursor   Cursor
	rssi     int
	operator string
	addr     string
}

func NewMachine(c Config, table Table, port uart.Port, power Resetter, link modem.Link, log *log2.Log) *Machine {
	c.normalize()
	return &Machine{
		c:     c,
		log:   log,
		port:  port,
		power: power,
		link:  link,
		table: table,
		Sleep: helpers.Sleep,
		rssi:  RSSIUnknown,
	}
}

func (m *Machine) Stat() Stat {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stat{
		Cursor:   m.cursor,
		Steps:    atomic.LoadUint32(&m.steps),
		Attempts: atomic.LoadUint32(&m.attempts),
		RSSI:     m.rssi,
		Operator: m.operator,
		Addr:     m.addr,
	}
}

// RSSI satisfies telemetry signal source.
func (m *Machine) RSSI() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rssi
}

// BringUp tries full Run up to attempts times, hardware reset before each.
func (m *Machine) BringUp(ctx context.Context, attempts int) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = m.Run(ctx); err == nil {
			return nil
		}
		m.log.Errorf("modem bring-up attempt=%d/%d err=%v", i, attempts, err)
		if ctx.Err() != nil {
			break
		}
	}
	return errors.Annotatef(err, "modem bring-up failed attempts=%d", attempts)
}

// Run resets modem and drives table from Init to Done.
func (m *Machine) Run(ctx context.Context) error {
	atomic.AddUint32(&m.attempts, 1)
	if err := m.power.Reset(ctx); err != nil {
		return errors.Annotate(err, "modem reset")
	}
	m.setCursor(Cursor{State: Init})
	for {
		cur := m.getCursor()
		if cur.State == Done {
			m.log.Infof("modem bring-up done steps=%d", atomic.LoadUint32(&m.steps))
			return nil
		}
		row, ok := m.table.Row(cur.State)
		if !ok {
			return errors.NotFoundf("modem table row state=%s", cur.State)
		}
		if len(row.Commands) == 0 {
			if row.Action != nil {
				if err := row.Action(m, ctx); err != nil {
					return err
				}
			}
			m.log.Debugf("modem state %s -> %s", cur.State, row.Next)
			m.setCursor(Cursor{State: row.Next})
			continue
		}
		next, err := m.step(ctx, cur, row.Commands[cur.Step])
		if err != nil {
			return err
		}
		if next.State != cur.State {
			m.log.Debugf("modem state %s -> %s", cur.State, next.State)
		}
		m.setCursor(next)
	}
}

// step repeats one command until cursor moves or step timeout.
func (m *Machine) step(ctx context.Context, cur Cursor, cmd string) (Cursor, error) {
	tbegin := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return cur, err
		}
		m.log.Debugf("modem send=%q", cmd)
		if err := uart.WriteLine(m.port, cmd); err != nil {
			return cur, err
		}
		atomic.AddUint32(&m.steps, 1)
		if err := m.Sleep(ctx, m.c.CommandDelay); err != nil {
			return cur, err
		}
		response, err := uart.ReadResponse(m.port, m.c.ResponseTimeout, m.c.ChunkTimeout)
		if err != nil {
			return cur, err
		}
		m.log.Debugf("modem recv=%q", response)
		m.observe(cmd, response)
		if next := Advance(m.table, cur, response); next != cur {
			return next, nil
		}
		if elapsed := time.Since(tbegin); elapsed >= m.c.StepTimeout {
			return cur, &ConnectivityError{State: cur.State, Command: cmd, Last: response, Elapsed: elapsed}
		}
	}
}

func (m *Machine) observe(cmd, response string) {
	switch cmd {
	case "AT+CSQ":
		if rssi, ok := ParseCSQ(response); ok {
			m.mu.Lock()
			m.rssi = rssi
			m.mu.Unlock()
			dbm, _ := RSSIdBm(rssi)
			m.log.Infof("modem signal rssi=%d dbm=%d", rssi, dbm)
		}
	case "AT+COPS?":
		if op, ok := ParseCOPS(response); ok {
			m.mu.Lock()
			m.operator = op
			m.mu.Unlock()
			m.log.Infof("modem operator=%q", op)
		}
	}
}

func (m *Machine) activateLink(ctx context.Context) error {
	if err := m.link.Activate(ctx); err != nil {
		return errors.Annotate(err, "modem link activate")
	}
	for i := 1; i <= m.c.LinkPollTicks; i++ {
		if err := m.Sleep(ctx, m.c.LinkPollInterval); err != nil {
			return err
		}
		if m.link.Connected() {
			m.log.Debugf("modem link connected tick=%d", i)
			return nil
		}
	}
	return &ConnectivityError{
		State:   LinkUp,
		Command: "link",
		Last:    fmt.Sprintf("not connected after ticks=%d", m.c.LinkPollTicks),
		Elapsed: time.Duration(m.c.LinkPollTicks) * m.c.LinkPollInterval,
	}
}

func (m *Machine) reportLink(ctx context.Context) error {
	addr := m.link.Addr()
	m.mu.Lock()
	m.addr = addr
	m.mu.Unlock()
	m.log.Infof("modem link up addr=%s", addr)
	return nil
}

func (m *Machine) getCursor() Cursor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

func (m *Machine) setCursor(c Cursor) {
	m.mu.Lock()
	m.cursor = c
	m.mu.Unlock()
}
