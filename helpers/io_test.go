package helpers

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

type throttleWriter struct {
	w io.Writer
	n int
}

func (tw *throttleWriter) Write(p []byte) (int, error) {
	if len(p) > tw.n {
		p = p[:tw.n]
	}
	return tw.w.Write(p)
}

func TestWriteAll(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		limit     int
		expectErr error
	}{
		{"whole", 64, nil},
		{"partial", 7, nil},
		{"byte", 1, nil},
		{"stuck", 0, io.ErrShortWrite},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			buf := bytes.NewBuffer(nil)
			err := WriteAll(&throttleWriter{buf, c.limit}, []byte("AT+QICSGP=1,1,\"uinternet\"\r\n"))
			assert.Equal(t, c.expectErr, err)
			if c.expectErr == nil {
				assert.Equal(t, "AT+QICSGP=1,1,\"uinternet\"\r\n", buf.String())
			}
		})
	}
}
