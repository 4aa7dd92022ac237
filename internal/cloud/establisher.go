package cloud

import (
	"context"
	"time"

	"github.com/airq/airnode/helpers"
	"github.com/airq/airnode/internal/restart"
	"github.com/airq/airnode/log2"
	"github.com/juju/errors"
)

type Establisher struct {
	Connector      Connector
	Restarter      restart.Restarter
	MaxAttempts    int
	RetryInterval  time.Duration
	PublishTimeout time.Duration
	Log            *log2.Log
	Sleep          helpers.SleepFunc
}

// Open tries to connect up to MaxAttempts times. Exhaustion is fatal:
// Restarter is invoked once and *restart.FatalError returned.
func (e *Establisher) Open(ctx context.Context, id Identity, token string) (*Session, error) {
	maxAttempts := e.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	retry := e.RetryInterval
	if retry <= 0 {
		retry = DefaultRetryInterval
	}
	sleep := e.Sleep
	if sleep == nil {
		sleep = helpers.Sleep
	}
	cred := Credentials{ClientID: id.ClientID(), Username: Username, Password: token}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		conn, err := e.Connector.Connect(ctx, cred)
		if err == nil {
			s, err := e.subscribe(ctx, conn, id, attempt)
			if err == nil {
				e.Log.Infof("cloud session open client=%s attempt=%d", cred.ClientID, attempt)
				return s, nil
			}
			conn.Close()
			lastErr = err
		} else {
			lastErr = err
		}
		e.Log.Errorf("cloud connect attempt=%d/%d err=%v", attempt, maxAttempts, lastErr)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < maxAttempts {
			if err := sleep(ctx, retry); err != nil {
				return nil, err
			}
		}
	}
	reason := errors.Annotatef(lastErr, "cloud connect attempts=%d exhausted", maxAttempts)
	return nil, restart.Fatal(e.Restarter, reason)
}

func (e *Establisher) subscribe(ctx context.Context, conn Conn, id Identity, attempt int) (*Session, error) {
	publishTimeout := e.PublishTimeout
	if publishTimeout <= 0 {
		publishTimeout = DefaultPublishWait
	}
	s := &Session{
		conn:           conn,
		identity:       id,
		log:            e.Log,
		attempts:       attempt,
		publishTimeout: publishTimeout,
	}
	if err := conn.Subscribe(ctx, id.ConfigTopic(), QoSAtLeastOnce, s.onConfig); err != nil {
		return nil, err
	}
	if err := conn.Subscribe(ctx, id.CommandsTopic(), QoSAtLeastOnce, s.onCommand); err != nil {
		return nil, err
	}
	return s, nil
}
