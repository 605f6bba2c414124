// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package crc

import "testing"

// reference is the bitwise shift-register form of the SP checksum.
func reference(b []byte) uint16 {
	var c uint16
	for _, x := range b {
		c ^= uint16(x) << 8
		for i := 0; i < 8; i++ {
			if c&0x8000 != 0 {
				c = c<<1 ^ 0x1021
			} else {
				c <<= 1
			}
		}
	}
	return c
}

func TestCRC(t *testing.T) {
	var crc CRC
	crc.Reset().PushBytes([]byte("123456789"))

	if crc.Value() != 0x31C3 {
		t.Fatalf("crc expected %04X, actual %04X", 0x31C3, crc.Value())
	}
}

func TestChecksumMatchesReference(t *testing.T) {
	inputs := [][]byte{
		{},
		{0x00},
		{0x10, 0x01, 0x00, 0x80, 0x10, 0x1F, 0x1D, 0x10, 0x02, 0x30, 0x10, 0x03},
		[]byte("TEMP = 23.5"),
	}
	for _, in := range inputs {
		if got, want := Checksum(in), reference(in); got != want {
			t.Errorf("Checksum(% X) = %04X, want %04X", in, got, want)
		}
	}
}

func TestAppendHighFirst(t *testing.T) {
	b := Append([]byte("123456789"))
	if b[len(b)-2] != 0x31 || b[len(b)-1] != 0xC3 {
		t.Fatalf("trailer = % X, want 31 C3", b[len(b)-2:])
	}
}
