package cloud

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io/ioutil"
	"time"

	"github.com/airq/airnode/log2"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
)

// Username is ignored by broker, password carries the token.
const Username = "unused"

// Disconnect waits this long for in-flight work.
const quiesceMs = 250

type Credentials struct {
	ClientID string
	Username string
	Password string
}

type Message struct {
	Topic   string
	Payload []byte
}

type MessageHandler func(Message)

type Conn interface {
	Subscribe(ctx context.Context, topic string, qos byte, h MessageHandler) error
	Publish(ctx context.Context, topic string, qos byte, payload []byte) error
	IsConnected() bool
	Close()
}

type Connector interface {
	Connect(ctx context.Context, cred Credentials) (Conn, error)
}

// PahoConnector is production Connector over eclipse/paho.mqtt.golang.
// Auto reconnect is off: lost session surfaces as publish error and
// supervisor policy decides.
type PahoConnector struct {
	Broker         string
	TLS            *tls.Config
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	Log            *log2.Log
}

func TLSConfig(caFile string) (*tls.Config, error) {
	c := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return c, nil
	}
	pem, err := ioutil.ReadFile(caFile)
	if err != nil {
		return nil, errors.Annotatef(err, "tls ca file=%s", caFile)
	}
	c.RootCAs = x509.NewCertPool()
	if !c.RootCAs.AppendCertsFromPEM(pem) {
		return nil, errors.NotValidf("tls ca file=%s no certificates", caFile)
	}
	return c, nil
}

func (p *PahoConnector) Connect(ctx context.Context, cred Credentials) (Conn, error) {
	keepAlive := p.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 60 * time.Second
	}
	connectTimeout := p.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}
	opt := mqtt.NewClientOptions().
		AddBroker(p.Broker).
		SetClientID(cred.ClientID).
		SetUsername(cred.Username).
		SetPassword(cred.Password).
		SetProtocolVersion(4).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetKeepAlive(keepAlive).
		SetConnectTimeout(connectTimeout).
		SetOrderMatters(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			p.Log.Errorf("mqtt connection lost err=%v", err)
		})
	if p.TLS != nil {
		opt.SetTLSConfig(p.TLS)
	}
	c := mqtt.NewClient(opt)
	if err := wait(ctx, c.Connect(), connectTimeout); err != nil {
		return nil, errors.Annotatef(err, "mqtt connect broker=%s", p.Broker)
	}
	return &pahoConn{c: c, timeout: connectTimeout}, nil
}

type pahoConn struct {
	c       mqtt.Client
	timeout time.Duration
}

func (p *pahoConn) Subscribe(ctx context.Context, topic string, qos byte, h MessageHandler) error {
	cb := func(_ mqtt.Client, m mqtt.Message) {
		h(Message{Topic: m.Topic(), Payload: m.Payload()})
	}
	return errors.Annotatef(wait(ctx, p.c.Subscribe(topic, qos, cb), p.timeout), "mqtt subscribe topic=%s", topic)
}

func (p *pahoConn) Publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	if !p.c.IsConnectionOpen() {
		return errors.Errorf("mqtt publish topic=%s not connected", topic)
	}
	return errors.Annotatef(wait(ctx, p.c.Publish(topic, qos, false, payload), p.timeout), "mqtt publish topic=%s", topic)
}

func (p *pahoConn) IsConnected() bool { return p.c.IsConnectionOpen() }

// Close sends DISCONNECT and stops client goroutines.
func (p *pahoConn) Close() { p.c.Disconnect(quiesceMs) }

func wait(ctx context.Context, t mqtt.Token, timeout time.Duration) error {
	tmr := time.NewTimer(timeout)
	defer tmr.Stop()
	select {
	case <-t.Done():
		return t.Error()
	case <-tmr.C:
		return errors.Timeoutf("mqtt wait %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
