// SPDX-License-Identifier: MIT
package codec

import (
	"bytes"
	"testing"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"one full group", []byte{0, 1, 2, 3, 4, 5, 6}},
		{"all bits set", []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
		{"two groups", bytes.Repeat([]byte{0xaa, 0x55}, 7)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packed := Pack(tt.data)
			if len(packed)%8 != 0 {
				t.Fatalf("Pack output length %d is not a multiple of 8", len(packed))
			}

			wantGroups := (len(tt.data) + 6) / 7
			if len(packed) != wantGroups*8 {
				t.Fatalf("Pack(%v) length = %d, want %d", tt.data, len(packed), wantGroups*8)
			}

			unpacked, err := Unpack(packed)
			if err != nil {
				t.Fatalf("Unpack: %v", err)
			}

			padded := make([]byte, wantGroups*7)
			copy(padded, tt.data)
			if !bytes.Equal(unpacked, padded) {
				t.Fatalf("round trip mismatch: got %v, want %v", unpacked, padded)
			}
		})
	}
}

func TestUnpackBadLength(t *testing.T) {
	_, err := Unpack(make([]byte, 7))
	if err == nil {
		t.Fatal("expected error for non-multiple-of-8 input")
	}

	var bl *BadLengthError
	if _, ok := err.(*BadLengthError); !ok {
		t.Fatalf("expected *BadLengthError, got %T", err)
	}
	_ = bl
}

func TestPackHighBitsClear(t *testing.T) {
	data := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	packed := Pack(data)
	for i, b := range packed {
		if b&0x80 != 0 {
			t.Fatalf("packed[%d] = 0x%02x has MSB set", i, b)
		}
	}
}

func TestUnpackRecoversHighBits(t *testing.T) {
	data := []byte{0x80, 0x00, 0x81, 0xff, 0x7f, 0x00, 0x01}
	packed := Pack(data)
	unpacked, err := Unpack(packed)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if !bytes.Equal(unpacked, data) {
		t.Fatalf("got %v, want %v", unpacked, data)
	}
}
