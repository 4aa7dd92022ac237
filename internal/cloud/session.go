package cloud

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/airq/airnode/log2"
	"github.com/juju/errors"
)

const (
	QoSAtLeastOnce       byte = 1
	DefaultPublishWait        = 30 * time.Second
	DefaultMaxAttempts        = 20
	DefaultRetryInterval      = time.Second
)

// Session exists only after link is up. Never closed explicitly,
// the device restarts instead.
type Session struct {
	conn           Conn
	identity       Identity
	log            *log2.Log
	attempts       int
	publishTimeout time.Duration

	mu         sync.Mutex
	lastConfig []byte
	received   uint32
	published  uint32
}

// Attempts used to establish this session.
func (s *Session) Attempts() int { return s.attempts }

func (s *Session) Identity() Identity { return s.identity }

// Publish sends payload to events topic, QoS1, bounded wait.
func (s *Session) Publish(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	topic := s.identity.EventsTopic()
	if err := s.conn.Publish(ctx, topic, QoSAtLeastOnce, payload); err != nil {
		return errors.Annotatef(err, "cloud publish len=%d", len(payload))
	}
	atomic.AddUint32(&s.published, 1)
	s.log.Debugf("cloud published topic=%s len=%d", topic, len(payload))
	return nil
}

// LastConfig is the latest payload received on config topic, nil if none.
func (s *Session) LastConfig() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastConfig
}

func (s *Session) Received() uint32  { return atomic.LoadUint32(&s.received) }
func (s *Session) Published() uint32 { return atomic.LoadUint32(&s.published) }

func (s *Session) IsConnected() bool { return s.conn.IsConnected() }

func (s *Session) Close() { s.conn.Close() }

func (s *Session) onConfig(m Message) {
	atomic.AddUint32(&s.received, 1)
	s.log.Infof("cloud config topic=%s payload=%s", m.Topic, m.Payload)
	b := append([]byte(nil), m.Payload...)
	s.mu.Lock()
	s.lastConfig = b
	s.mu.Unlock()
}

func (s *Session) onCommand(m Message) {
	atomic.AddUint32(&s.received, 1)
	s.log.Infof("cloud command topic=%s payload=%s", m.Topic, m.Payload)
}
