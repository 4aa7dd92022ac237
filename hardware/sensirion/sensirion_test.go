package sensirion

import (
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/airq/airnode/hardware/i2c"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// co2=412.5 temp=21.25 rh=40.5
const measurementHex = "43ce7d40000841aadb000081422235000081"

func mustHex(t testing.TB, s string) []byte {
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestEncodeCommandArg(t *testing.T) {
	t.Parallel()

	cases := []struct {
		op     uint16
		arg    uint16
		expect string
	}{
		{0x0010, 0x0000, "0010000081"},
		{0x0010, 0x03f5, "001003f5db"},
		{0x0010, 0x0300, "00100300ac"},
		{0x4600, 0x0002, "46000002e3"},
	}
	for _, c := range cases {
		c := c
		t.Run(fmt.Sprintf("%04x/%04x", c.op, c.arg), func(t *testing.T) {
			b, err := EncodeCommandArg(c.op, c.arg)
			require.NoError(t, err)
			assert.Equal(t, c.expect, hex.EncodeToString(b))
		})
	}
	assert.Equal(t, "d100", hex.EncodeToString(EncodeCommand(0xd100)))
}

func TestDecodeFrames(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		input  string
		n      int
		expect []uint16
		check  func(error) bool
	}{
		{"ready", "0001b0", 1, []uint16{0x0001}, nil},
		{"not-ready", "000081", 1, []uint16{0x0000}, nil},
		{"measurement", measurementHex, 6, []uint16{0x43ce, 0x4000, 0x41aa, 0x0000, 0x4222, 0x0000}, nil},
		{"crc", "0001b1", 1, nil, IsCRC},
		{"short", "0001", 1, nil, IsLength},
		{"long", "0001b000", 1, nil, IsLength},
		{"empty", "", 0, []uint16{}, nil},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			words, err := DecodeFrames(mustHex(t, c.input), c.n)
			if c.check != nil {
				require.Error(t, err)
				assert.True(t, c.check(err), errors.ErrorStack(err))
				assert.True(t, errors.IsNotValid(err))
				assert.Nil(t, words)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.expect, words)
		})
	}
}

func TestDecodeRejectsAnySingleByteCorruption(t *testing.T) {
	t.Parallel()

	good := mustHex(t, measurementHex)
	for i := range good {
		for _, mask := range []byte{0x01, 0x80, 0xff} {
			b := append([]byte(nil), good...)
			b[i] ^= mask
			words, err := DecodeFrames(b, 6)
			assert.True(t, IsCRC(err), "byte=%d mask=%02x err=%v", i, mask, err)
			assert.Nil(t, words)
		}
	}
}

func TestFloat32s(t *testing.T) {
	t.Parallel()

	words, err := DecodeFrames(mustHex(t, measurementHex), 6)
	require.NoError(t, err)
	fs, err := Float32s(words)
	require.NoError(t, err)
	assert.Equal(t, []float32{412.5, 21.25, 40.5}, fs)

	_, err = Float32s(words[:3])
	assert.True(t, IsLength(err))
}

func TestDeviceRead(t *testing.T) {
	t.Parallel()

	bus := i2c.NewMockBus(t,
		i2c.MockTx{Addr: 0x61, Write: "0300"},
		i2c.MockTx{Addr: 0x61, Read: measurementHex},
	)
	var slept time.Duration
	d := &Device{Bus: bus, Addr: 0x61, Sleep: func(d time.Duration) { slept += d }}
	words, err := d.Read(0x0300, 6, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, words, 6)
	assert.Equal(t, 5*time.Millisecond, slept)
	bus.ExpectEnd()
}

func TestDeviceBusError(t *testing.T) {
	t.Parallel()

	bus := i2c.NewMockBus(t, i2c.MockTx{Addr: 0x61, Write: "0010000081", Err: fmt.Errorf("nack")})
	d := &Device{Bus: bus, Addr: 0x61}
	err := d.CommandArg(0x0010, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nack")
	bus.ExpectEnd()
}
