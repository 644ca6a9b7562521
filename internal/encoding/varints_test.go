package encoding

import (
	"bytes"
	"testing"

	"pgregory.net/rapid"
)

func TestParseVarIntScenarios(t *testing.T) {
	cases := []struct {
		name     string
		in       []byte
		consumed int
		value    uint64
	}{
		{"single-byte", []byte{0x01}, 1, 1},
		{"u16-prefix", []byte{0xfd, 0xab, 0xcd}, 3, 0xcdab},
		{"u64-prefix", []byte{0xff, 0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}, 9, 0xefcdab8967452301},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			consumed, value, err := ParseVarInt(c.in)
			if err != nil {
				t.Fatalf("ParseVarInt(%x): %v", c.in, err)
			}
			if consumed != c.consumed || value != c.value {
				t.Fatalf("ParseVarInt(%x) = (%d, %d), want (%d, %d)", c.in, consumed, value, c.consumed, c.value)
			}
		})
	}
}

func TestVarIntRoundTrip(t *testing.T) {
	for _, n := range []uint64{0, 0xfc, 0xfd, 0xffff, 0x10000, 0xffffffff, 0x100000000} {
		encoded, err := EncodeVarInt(n)
		if err != nil {
			t.Fatalf("EncodeVarInt(%d): %v", n, err)
		}
		decoded, err := ReadVarInt(bytes.NewReader(encoded))
		if err != nil {
			t.Fatalf("ReadVarInt(%x): %v", encoded, err)
		}
		if decoded != n {
			t.Fatalf("round-trip %d: got %d", n, decoded)
		}

		consumed, value, err := ParseVarInt(encoded)
		if err != nil {
			t.Fatalf("ParseVarInt(%x): %v", encoded, err)
		}
		if consumed != len(encoded) || value != n {
			t.Fatalf("ParseVarInt round-trip %d: got (%d, %d)", n, consumed, value)
		}
	}
}

func TestVarIntRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.Uint64().Draw(rt, "n")
		encoded, err := EncodeVarInt(n)
		if err != nil {
			rt.Fatalf("EncodeVarInt(%d): %v", n, err)
		}
		decoded, err := ReadVarInt(bytes.NewReader(encoded))
		if err != nil {
			rt.Fatalf("ReadVarInt(%x): %v", encoded, err)
		}
		if decoded != n {
			rt.Fatalf("round-trip %d: got %d", n, decoded)
		}
	})
}
