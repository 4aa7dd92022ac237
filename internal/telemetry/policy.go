package telemetry

import "time"

type Decision int

const (
	Continue Decision = iota
	Retry
	Restart
)

func (d Decision) String() string {
	switch d {
	case Continue:
		return "continue"
	case Retry:
		return "retry"
	case Restart:
		return "restart"
	}
	return "invalid"
}

const (
	DefaultGrace          = 5 * time.Second
	DefaultCycle          = 10 * time.Second
	DefaultFailureRestart = 2
)

// Policy decides supervisor reaction to consecutive cycle failures.
type Policy struct {
	Grace time.Duration
	// RestartAfter consecutive failures, 2 means one grace retry.
	RestartAfter int
}

func (p Policy) Decide(consecutiveFailures int) Decision {
	limit := p.RestartAfter
	if limit <= 0 {
		limit = DefaultFailureRestart
	}
	switch {
	case consecutiveFailures <= 0:
		return Continue
	case consecutiveFailures < limit:
		return Retry
	default:
		return Restart
	}
}

func (p Policy) GraceInterval() time.Duration {
	if p.Grace <= 0 {
		return DefaultGrace
	}
	return p.Grace
}
