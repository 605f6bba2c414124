// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package sp

import (
	"fmt"

	"github.com/ffutop/sp-gateway/internal/fault"
)

// bodyHeaderSize counts SOH DAD SAD ISI FNC. Those bytes carry values
// that may equal a marker, so Destuff does not treat them as delimiters.
const bodyHeaderSize = headerSize + 1

// minStuffedSize is the smallest buffer Destuff accepts.
const minStuffedSize = bodyHeaderSize + 2

// Markers describes a compacted buffer.
type Markers struct {
	// Len is the compacted length.
	Len int
	// STX and ETX are the compacted positions of the last STX and ETX
	// seen, or -1.
	STX, ETX int

	stxCount, etxCount int
}

// StuffedLen returns the length of src once stuffed.
func StuffedLen(src []byte) int {
	n := len(src)
	for _, b := range src {
		if isMarker(b) {
			n++
		}
	}
	return n
}

// Stuff writes src into dst, escaping every reserved marker with DLE.
// Nothing is written when dst cannot hold the whole result.
func Stuff(dst, src []byte) (int, error) {
	need := StuffedLen(src)
	if need > len(dst) {
		return 0, fmt.Errorf("sp: stuffed length %d exceeds buffer of %d: %w", need, len(dst), fault.ErrResource)
	}
	n := 0
	for _, b := range src {
		if isMarker(b) {
			dst[n] = DLE
			n++
		}
		dst[n] = b
		n++
	}
	return n, nil
}

// Unstuff compacts buf in place, dropping every DLE that escapes a
// reserved marker. It does not validate the result.
func Unstuff(buf []byte) Markers {
	return unstuff(buf, 0)
}

// unstuff records STX and ETX only at compacted positions >= from.
func unstuff(buf []byte, from int) Markers {
	m := Markers{STX: -1, ETX: -1}
	w := 0
	for r := 0; r < len(buf); r++ {
		b := buf[r]
		if b == DLE && r+1 < len(buf) && isMarker(buf[r+1]) {
			r++
			b = buf[r]
		}
		switch {
		case w < from:
		case b == STX:
			m.STX = w
			m.stxCount++
		case b == ETX:
			m.ETX = w
			m.etxCount++
		}
		buf[w] = b
		w++
	}
	m.Len = w
	return m
}

// Destuff compacts buf, a stuffed frame starting at SOH, in place. The
// text after the SOH DAD SAD ISI FNC header must hold exactly one STX
// followed later by exactly one ETX.
func Destuff(buf []byte) (Markers, error) {
	if len(buf) < minStuffedSize {
		return Markers{STX: -1, ETX: -1}, fmt.Errorf("sp: buffer of %d bytes too short to destuff: %w", len(buf), fault.ErrFormat)
	}
	m := unstuff(buf, bodyHeaderSize)
	switch {
	case m.stxCount != 1 || m.etxCount != 1:
		return m, fmt.Errorf("sp: found %d STX and %d ETX markers: %w", m.stxCount, m.etxCount, fault.ErrFormat)
	case m.STX >= m.ETX:
		return m, fmt.Errorf("sp: STX at %d is not before ETX at %d: %w", m.STX, m.ETX, fault.ErrFormat)
	}
	return m, nil
}
