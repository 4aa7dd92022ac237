// Package crc implements CRC-8 used by Sensirion sensors on the I2C bus:
// polynomial 0x31 (x^8 + x^5 + x^4 + 1), init 0xff, MSB first, no final xor.
package crc

import (
	snk "github.com/snksoft/crc"
)

const (
	CRC_POLY_31 byte = 0x31
	CRC_INIT_FF byte = 0xff
)

var Params = snk.Parameters{
	Width:      8,
	Polynomial: uint64(CRC_POLY_31),
	ReflectIn:  false,
	ReflectOut: false,
	Init:       uint64(CRC_INIT_FF),
	FinalXor:   0x00,
}

var table = snk.NewTable(&Params)

// CRC8_p31 feeds one byte into running crc, 8 shifts.
func CRC8_p31(crc, data byte) byte {
	crc ^= data
	var i byte = 0
	for ; i < 8; i++ {
		if (crc & 0x80) != 0 {
			crc <<= 1
			crc ^= CRC_POLY_31
		} else {
			crc <<= 1
		}
	}
	return crc
}

// CRC8 of one data word as sent by sensor: two bytes, big endian.
func CRC8(b1, b2 byte) byte {
	out := CRC8_p31(CRC_INIT_FF, b1)
	out = CRC8_p31(out, b2)
	return out
}

// CRC8_n is table driven, for arbitrary length input.
func CRC8_n(bs []byte) byte {
	return table.CRC8(table.UpdateCrc(table.InitCrc(), bs))
}
