// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package sp

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/ffutop/sp-gateway/internal/fault"
)

func TestRecords(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []Record
	}{
		{"ValueUnitsTimestamp", "23.5\tC\t12:00", []Record{{[]byte("23.5"), []byte("C"), []byte("12:00")}}},
		{"LeadingHT", "\t7\tbar", []Record{{Value: []byte("7"), Units: []byte("bar")}}},
		{"SkipEmpty", "\f\f1\f\f2\f", []Record{{Value: []byte("1")}, {Value: []byte("2")}}},
		{"LastBlockWithoutFF", "1\f2", []Record{{Value: []byte("1")}, {Value: []byte("2")}}},
		{"Empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Records(nil, []byte(tt.payload))
			if len(got) != len(tt.want) {
				t.Fatalf("Records() = %d records, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if !bytes.Equal(got[i].Value, tt.want[i].Value) ||
					!bytes.Equal(got[i].Units, tt.want[i].Units) ||
					!bytes.Equal(got[i].Timestamp, tt.want[i].Timestamp) {
					t.Errorf("record %d = %q/%q/%q, want %q/%q/%q", i,
						got[i].Value, got[i].Units, got[i].Timestamp,
						tt.want[i].Value, tt.want[i].Units, tt.want[i].Timestamp)
				}
			}
		})
	}
}

func TestRecordsLimit(t *testing.T) {
	payload := strings.Repeat("9\f", MaxRecords+5)
	if got := Records(nil, []byte(payload)); len(got) != MaxRecords {
		t.Fatalf("Records() = %d records, want %d", len(got), MaxRecords)
	}
}

func TestSkipIndex(t *testing.T) {
	rest, err := SkipIndex([]byte("0\t5\f1.5\f2"))
	if err != nil {
		t.Fatalf("SkipIndex() error: %v", err)
	}
	if string(rest) != "1.5\f2" {
		t.Errorf("SkipIndex() = %q", rest)
	}
	if _, err := SkipIndex([]byte("no separator")); !errors.Is(err, fault.ErrFormat) {
		t.Errorf("SkipIndex() error = %v", err)
	}
}
