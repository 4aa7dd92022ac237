// Package uart is line oriented access to modem serial port.
package uart

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/airq/airnode/helpers"
	"github.com/juju/errors"
	"go.bug.st/serial"
)

const DefaultChunkTimeout = 100 * time.Millisecond

type Port interface {
	io.ReadWriteCloser
	// Read returns 0, nil after timeout without data.
	SetReadTimeout(time.Duration) error
	ResetInputBuffer() error
}

func Open(dev string, baud int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(dev, mode)
	if err != nil {
		return nil, errors.Annotatef(err, "uart open dev=%s baud=%d", dev, baud)
	}
	if err = p.SetReadTimeout(DefaultChunkTimeout); err != nil {
		_ = p.Close()
		return nil, errors.Annotatef(err, "uart dev=%s set read timeout", dev)
	}
	return p, nil
}

// WriteLine sends s with CR LF terminator.
func WriteLine(p Port, s string) error {
	if err := p.ResetInputBuffer(); err != nil {
		return errors.Annotate(err, "uart reset input")
	}
	if err := helpers.WriteAll(p, []byte(s+"\r\n")); err != nil {
		return errors.Annotatef(err, "uart write=%q", s)
	}
	return nil
}

// ReadResponse collects bytes until total timeout expires or, after first
// data, the line is quiet for one chunk timeout. Empty result is not an error.
func ReadResponse(p Port, timeout time.Duration, chunk time.Duration) (string, error) {
	if chunk <= 0 {
		chunk = DefaultChunkTimeout
	}
	if chunk > timeout {
		chunk = timeout
	}
	if err := p.SetReadTimeout(chunk); err != nil {
		return "", errors.Annotate(err, "uart set read timeout")
	}
	var acc bytes.Buffer
	buf := make([]byte, 256)
	deadline := time.Now().Add(timeout)
	for {
		n, err := p.Read(buf)
		acc.Write(buf[:n])
		if err != nil && !helpers.IsTimeout(err) {
			return Clean(acc.String()), errors.Annotate(err, "uart read")
		}
		if n == 0 && acc.Len() > 0 {
			break
		}
		if !time.Now().Before(deadline) {
			break
		}
	}
	return Clean(acc.String()), nil
}

// Clean removes blank lines and surrounding whitespace, joins lines with "\n".
func Clean(s string) string {
	lines := strings.FieldsFunc(s, func(r rune) bool { return r == '\r' || r == '\n' })
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
