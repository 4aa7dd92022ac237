// Package sensirion implements the word+crc framing shared by Sensirion
// two-wire sensors. Every 16-bit word on the wire is followed by crc8 of its
// two bytes; a single mismatch invalidates the whole response.
package sensirion

import (
	"bytes"
	"math"

	"github.com/airq/airnode/crc"
	"github.com/juju/errors"
	"github.com/lunixbochs/struc"
)

const FrameLength = 3

var (
	ErrCRC    = errors.NewNotValid(nil, "sensirion crc mismatch")
	ErrLength = errors.NewNotValid(nil, "sensirion response length")
)

type Frame struct {
	Word uint16 `struc:"uint16,big"`
	CRC  uint8  `struc:"uint8"`
}

func NewFrame(word uint16) Frame {
	return Frame{Word: word, CRC: crc.CRC8(byte(word>>8), byte(word))}
}

func (f Frame) Valid() bool {
	return f.CRC == crc.CRC8(byte(f.Word>>8), byte(f.Word))
}

type command struct {
	Opcode uint16 `struc:"uint16,big"`
	Arg    Frame
}

func EncodeCommand(op uint16) []byte {
	return []byte{byte(op >> 8), byte(op)}
}

// EncodeCommandArg returns opcode followed by argument frame.
func EncodeCommandArg(op uint16, arg uint16) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 2+FrameLength))
	if err := struc.Pack(buf, &command{Opcode: op, Arg: NewFrame(arg)}); err != nil {
		return nil, errors.Annotatef(err, "sensirion pack op=%04x", op)
	}
	return buf.Bytes(), nil
}

// DecodeFrames requires exactly n frames with valid crc, otherwise returns
// ErrLength or ErrCRC and no words.
func DecodeFrames(b []byte, n int) ([]uint16, error) {
	if len(b) != n*FrameLength {
		return nil, errors.Annotatef(ErrLength, "expected=%d actual=%d", n*FrameLength, len(b))
	}
	words := make([]uint16, n)
	r := bytes.NewReader(b)
	for i := 0; i < n; i++ {
		var f Frame
		if err := struc.Unpack(r, &f); err != nil {
			return nil, errors.Annotatef(err, "sensirion unpack frame=%d", i)
		}
		if !f.Valid() {
			raw := b[i*FrameLength : (i+1)*FrameLength]
			return nil, errors.Annotatef(ErrCRC, "frame=%d data=%x expected=%02x", i, raw, crc.CRC8(raw[0], raw[1]))
		}
		words[i] = f.Word
	}
	return words, nil
}

// Float32s joins word pairs into big-endian IEEE-754 values.
func Float32s(words []uint16) ([]float32, error) {
	if len(words)%2 != 0 {
		return nil, errors.Annotatef(ErrLength, "odd word count=%d", len(words))
	}
	fs := make([]float32, len(words)/2)
	for i := range fs {
		fs[i] = math.Float32frombits(uint32(words[2*i])<<16 | uint32(words[2*i+1]))
	}
	return fs, nil
}

func IsCRC(err error) bool    { return errors.Cause(err) == ErrCRC }
func IsLength(err error) bool { return errors.Cause(err) == ErrLength }
