package crc

import (
	"testing"
)

func makeCheck2(fun func(byte, byte) byte, tag string) func(t *testing.T, v1, v2, expect byte) {
	return func(t *testing.T, v1, v2, expect byte) {
		if fun(v1, v2) != expect {
			t.Errorf("%s(%02x, %02x) != %02x", tag, v1, v2, expect)
		}
	}
}

func makeCheckN(fun func([]byte) byte, tag string) func(t *testing.T, vs []byte, expect byte) {
	return func(t *testing.T, vs []byte, expect byte) {
		if fun(vs) != expect {
			t.Errorf("%s(%x) != %02x", tag, vs, expect)
		}
	}
}

func TestReference(t *testing.T) {
	t.Parallel()
	check2 := makeCheck2(CRC8, "CRC8")
	check2(t, 0xbe, 0xef, 0x92)
	check2(t, 0x00, 0x00, 0x81)
	check2(t, 0x00, 0x01, 0xb0)
	check2(t, 0x00, 0x02, 0xe3)
	check2(t, 0x43, 0xdb, 0xcb)
	check2(t, 0x8c, 0x2e, 0x8f)
	check2(t, 0x05, 0x00, 0xf6)
}

func TestTable(t *testing.T) {
	t.Parallel()
	checkN := makeCheckN(CRC8_n, "CRC8_n")
	checkN(t, []byte{0xbe, 0xef}, 0x92)
	checkN(t, []byte{0x00, 0x20}, 0x07)
	checkN(t, []byte{0x3a, 0x1b}, 0x74)
}

func TestDeterministicAllPairs(t *testing.T) {
	t.Parallel()
	for a := 0; a < 256; a++ {
		for b := 0; b < 256; b++ {
			x1 := CRC8(byte(a), byte(b))
			x2 := CRC8(byte(a), byte(b))
			tbl := CRC8_n([]byte{byte(a), byte(b)})
			if x1 != x2 || x1 != tbl {
				t.Fatalf("CRC8(%02x, %02x) unstable first=%02x second=%02x table=%02x", a, b, x1, x2, tbl)
			}
		}
	}
}
