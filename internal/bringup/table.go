// Package bringup powers the cellular modem and walks it to an active data link
// through a declarative command table.
package bringup

import (
	"context"
	"fmt"
	"strings"
)

type State int

const (
	Init State = iota
	EchoNegotiated
	Registered
	DataRegistered
	ApnConfigured
	DialActive
	LinkUp
	Connected
	Done
)

var stateNames = [...]string{
	Init:           "init",
	EchoNegotiated: "echo-negotiated",
	Registered:     "registered",
	DataRegistered: "data-registered",
	ApnConfigured:  "apn-configured",
	DialActive:     "dial-active",
	LinkUp:         "link-up",
	Connected:      "connected",
	Done:           "done",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Predicate tells whether response satisfies current command.
type Predicate func(response string) bool

func Contains(subs ...string) Predicate {
	return func(response string) bool {
		for _, s := range subs {
			if strings.Contains(response, s) {
				return true
			}
		}
		return false
	}
}

type Action func(m *Machine, ctx context.Context) error

// Transition row. Nil Match means any non-empty response advances.
// Row without Commands runs Action and moves to Next.
type Transition struct {
	State    State
	Commands []string
	Match    Predicate
	Action   Action
	Next     State
}

type Table []Transition

func (t Table) Row(s State) (*Transition, bool) {
	for i := range t {
		if t[i].State == s {
			return &t[i], true
		}
	}
	return nil, false
}

// CommandCount is number of commands to reach Done when every response matches first time.
func (t Table) CommandCount() int {
	n := 0
	for _, row := range t {
		n += len(row.Commands)
	}
	return n
}

type Cursor struct {
	State State
	Step  int
}

func (c Cursor) String() string { return fmt.Sprintf("%s/%d", c.State, c.Step) }

// Advance is pure transition function for command rows.
// Non matching response keeps cursor, the same command is retried.
func Advance(table Table, c Cursor, response string) Cursor {
	row, ok := table.Row(c.State)
	if !ok || c.Step >= len(row.Commands) {
		return c
	}
	if row.Match == nil {
		if response == "" {
			return c
		}
	} else if !row.Match(response) {
		return c
	}
	c.Step++
	if c.Step >= len(row.Commands) {
		return Cursor{State: row.Next}
	}
	return c
}

func DefaultTable(apn string) Table {
	return Table{
		{State: Init, Commands: []string{"AT"}, Match: Contains("AT", "OK"), Next: EchoNegotiated},
		{State: EchoNegotiated, Commands: []string{"ATE0", "ATI", "AT+CPIN?", "AT+CREG=0", "AT+CGREG=0"}, Next: Registered},
		{State: Registered, Commands: []string{"AT+CREG?"}, Match: Contains("+CREG: 0,1", "+CREG: 0,5"), Next: DataRegistered},
		{State: DataRegistered, Commands: []string{"AT+CGREG?"}, Match: Contains("+CGREG: 0,1", "+CGREG: 0,5"), Next: ApnConfigured},
		{State: ApnConfigured, Commands: []string{
			"AT+COPS?",
			"AT+CSQ",
			fmt.Sprintf(`AT+QICSGP=1,1,"%s","","",0`, apn),
		}, Next: DialActive},
		{State: DialActive, Commands: []string{"ATD*99#"}, Match: Contains("CONNECT"), Next: LinkUp},
		{State: LinkUp, Action: (*Machine).activateLink, Next: Connected},
		{State: Connected, Action: (*Machine).reportLink, Next: Done},
	}
}
