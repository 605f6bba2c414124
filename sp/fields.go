// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package sp

import (
	"bytes"
	"fmt"

	"github.com/ffutop/sp-gateway/internal/fault"
)

// MaxRecords bounds the number of records taken from one payload.
const MaxRecords = 20

// Record is one FF-delimited parameter block. All spans alias the payload.
type Record struct {
	Value     []byte
	Units     []byte
	Timestamp []byte
}

// Records appends the records of payload to dst, up to MaxRecords in total.
// Empty records are skipped.
func Records(dst []Record, payload []byte) []Record {
	start := 0
	for i, b := range payload {
		if len(dst) >= MaxRecords {
			return dst
		}
		if b != FF {
			continue
		}
		if i > start {
			dst = append(dst, parseRecord(payload[start:i]))
		}
		start = i + 1
	}
	if start < len(payload) && len(dst) < MaxRecords {
		dst = append(dst, parseRecord(payload[start:]))
	}
	return dst
}

// SkipIndex drops the request pointer that precedes the first FF of an
// index array response.
func SkipIndex(payload []byte) ([]byte, error) {
	i := bytes.IndexByte(payload, FF)
	if i < 0 {
		return nil, fmt.Errorf("sp: index array without FF separator: %w", fault.ErrFormat)
	}
	return payload[i+1:], nil
}

// parseRecord splits value, units and timestamp on HT.
func parseRecord(block []byte) Record {
	var r Record
	p := 0
	if p < len(block) && block[p] == HT {
		p++
	}
	r.Value, p = field(block, p, true)
	if p < len(block) && block[p] == HT {
		r.Units, p = field(block, p+1, true)
	}
	if p < len(block) && block[p] == HT {
		r.Timestamp, _ = field(block, p+1, false)
	}
	return r
}

func field(block []byte, p int, stopAtHT bool) ([]byte, int) {
	start := p
	for p < len(block) && block[p] != FF && !(stopAtHT && block[p] == HT) {
		p++
	}
	return block[start:p], p
}
