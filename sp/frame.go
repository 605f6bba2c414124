// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package sp

import (
	"fmt"

	"github.com/ffutop/sp-gateway/internal/fault"
	"github.com/ffutop/sp-gateway/sp/crc"
)

const (
	// MinFrameSize is the shortest wire frame considered for decoding.
	MinFrameSize = 10
	// MaxFrameSize bounds a wire frame in either direction.
	MaxFrameSize = 512
	// MaxPayload is the largest request payload a template can carry.
	MaxPayload = 95

	headerSize = 4 // SOH DAD SAD ISI
	syncSize   = 2
	crcSize    = 2
	// crcOffset skips FF FF DLE SOH.
	crcOffset = syncSize + 2
)

// ErrShortFrame is returned by Decode for frames under MinFrameSize.
var ErrShortFrame = fmt.Errorf("sp: short frame: %w", fault.ErrFormat)

// Header is the addressing block that follows SOH.
type Header struct {
	DAD byte
	SAD byte
	ISI byte
	FNC byte
}

// ParseHeader checks that body runs from SOH to ETX and extracts the
// header fields.
func ParseHeader(body []byte) (Header, error) {
	if len(body) < headerSize+2 {
		return Header{}, fmt.Errorf("sp: body of %d bytes too short for a header: %w", len(body), fault.ErrFormat)
	}
	if body[0] != SOH {
		return Header{}, fmt.Errorf("sp: body starts with 0x%02X, want SOH: %w", body[0], fault.ErrFormat)
	}
	if body[len(body)-1] != ETX {
		return Header{}, fmt.Errorf("sp: body ends with 0x%02X, want ETX: %w", body[len(body)-1], fault.ErrFormat)
	}
	return Header{DAD: body[1], SAD: body[2], ISI: body[3], FNC: body[4]}, nil
}

// Frame is a decoded inbound frame. Body aliases the scratch buffer
// passed to Decode.
type Frame struct {
	Header
	// Body is the destuffed frame from SOH to ETX inclusive.
	Body     []byte
	STX, ETX int
}

// Payload returns the bytes between STX and ETX.
func (f Frame) Payload() []byte {
	return f.Body[f.STX+1 : f.ETX]
}

// Decode validates raw and destuffs it into scratch.
func Decode(raw, scratch []byte) (Frame, error) {
	n := len(raw)
	if n < MinFrameSize {
		return Frame{}, fmt.Errorf("%w (%d bytes)", ErrShortFrame, n)
	}

	received := uint16(raw[n-2])<<8 | uint16(raw[n-1])
	if calculated := crc.Checksum(raw[crcOffset : n-crcSize]); received != calculated {
		return Frame{}, fmt.Errorf("sp: crc received %04X, calculated %04X: %w", received, calculated, fault.ErrIntegrity)
	}

	stuffed := raw[syncSize : n-crcSize]
	if len(stuffed) > len(scratch) {
		return Frame{}, fmt.Errorf("sp: frame of %d bytes exceeds buffer of %d: %w", len(stuffed), len(scratch), fault.ErrResource)
	}
	buf := scratch[:copy(scratch, stuffed)]

	m, err := Destuff(buf)
	if err != nil {
		return Frame{}, err
	}
	body := buf[:m.Len]
	h, err := ParseHeader(body)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Header: h, Body: body, STX: m.STX, ETX: m.ETX}, nil
}

// Encoder builds request frames in owned buffers. The slice returned by
// Encode is valid until the next call.
type Encoder struct {
	plain [headerSize + MaxPayload]byte
	wire  [syncSize + 2*(headerSize+MaxPayload) + crcSize]byte
}

// Encode frames payload behind a SOH DAD SAD ISI header.
func (e *Encoder) Encode(dad, sad byte, payload []byte) ([]byte, error) {
	if len(payload) == 0 || len(payload) > MaxPayload {
		return nil, fmt.Errorf("sp: payload of %d bytes out of range 1..%d: %w", len(payload), MaxPayload, fault.ErrResource)
	}
	plain := append(e.plain[:0], SOH, dad, sad, ISI)
	plain = append(plain, payload...)

	wire := e.wire[:]
	wire[0], wire[1] = SyncByte, SyncByte
	n, err := Stuff(wire[syncSize:len(wire)-crcSize], plain)
	if err != nil {
		return nil, err
	}
	end := syncSize + n
	sum := crc.Checksum(wire[crcOffset:end])
	wire[end] = byte(sum >> 8)
	wire[end+1] = byte(sum)
	return wire[:end+crcSize], nil
}
