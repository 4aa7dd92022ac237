package bringup

import (
	"fmt"
	"time"

	"github.com/juju/errors"
)

// ConnectivityError means modem did not reach expected state in time.
type ConnectivityError struct {
	State   State
	Command string
	Last    string
	Elapsed time.Duration
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("modem stuck state=%s command=%q elapsed=%v last=%q", e.State, e.Command, e.Elapsed, e.Last)
}

func IsConnectivity(err error) bool {
	_, ok := errors.Cause(err).(*ConnectivityError)
	return ok
}
