package uart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input  string
		expect string
	}{
		{"", ""},
		{"\r\n", ""},
		{"\r\nOK\r\n", "OK"},
		{"AT\r\r\nOK\r\n", "AT\nOK"},
		{"\r\n+CREG: 0,1\r\n\r\nOK\r\n", "+CREG: 0,1\nOK"},
		{"  CONNECT 150000000 \r\n", "CONNECT 150000000"},
	}
	for _, c := range cases {
		assert.Equal(t, c.expect, Clean(c.input), "input=%q", c.input)
	}
}

func TestReadResponse(t *testing.T) {
	t.Parallel()

	p := NewMockPort(func(line string) string {
		if line == "AT+CSQ" {
			return "\r\n+CSQ: 17,99\r\n\r\nOK\r\n"
		}
		return ""
	})
	require.NoError(t, WriteLine(p, "AT+CSQ"))
	s, err := ReadResponse(p, time.Second, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "+CSQ: 17,99\nOK", s)
	assert.Equal(t, []string{"AT+CSQ"}, p.Written())
}

func TestReadResponseSilence(t *testing.T) {
	t.Parallel()

	p := NewMockPort(nil)
	require.NoError(t, WriteLine(p, "AT"))
	start := time.Now()
	s, err := ReadResponse(p, 30*time.Millisecond, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "", s)
	assert.True(t, time.Since(start) >= 30*time.Millisecond)
}

func TestWriteLineDropsStaleInput(t *testing.T) {
	t.Parallel()

	p := NewMockPort(func(string) string { return "OK\r\n" })
	p.Inject("RING\r\n")
	require.NoError(t, WriteLine(p, "AT"))
	s, err := ReadResponse(p, time.Second, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "OK", s)
}
