// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tags

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/ffutop/sp-gateway/internal/fault"
)

func TestGetOrCreate(t *testing.T) {
	s := NewStore(2)

	a, err := s.GetOrCreate("TEMP", 4)
	if err != nil {
		t.Fatal(err)
	}
	again, err := s.GetOrCreate("TEMP", 10)
	if err != nil || again != a {
		t.Errorf("GetOrCreate not idempotent: %p %p %v", a, again, err)
	}
	if _, err := s.GetOrCreate("PRES", 4); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetOrCreate("FLOW", 4); !errors.Is(err, fault.ErrResource) {
		t.Errorf("third tag: %v, want resource error", err)
	}
	// Existing names still resolve when full.
	if _, err := s.GetOrCreate("PRES", 4); err != nil {
		t.Errorf("existing tag when full: %v", err)
	}
	if _, err := s.GetOrCreate("", 4); !errors.Is(err, fault.ErrFormat) {
		t.Errorf("empty name: %v, want format error", err)
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d", s.Len())
	}
	names := []string{}
	for _, tag := range s.Tags() {
		names = append(names, tag.Name())
	}
	if !reflect.DeepEqual(names, []string{"TEMP", "PRES"}) {
		t.Errorf("Tags order = %v", names)
	}
}

func TestNameTruncation(t *testing.T) {
	s := NewStore(DefaultCapacity)
	long := strings.Repeat("N", 40)
	tag, err := s.GetOrCreate(long, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(tag.Name()) != MaxNameLen {
		t.Errorf("name length %d", len(tag.Name()))
	}
	if found, ok := s.Find(long); !ok || found != tag {
		t.Error("Find with the untruncated name failed")
	}
}

func TestHistoryWrap(t *testing.T) {
	s := NewStore(1)
	tag, _ := s.GetOrCreate("TEMP", 3)

	tag.Update(1)
	tag.Update(2)
	snap := tag.Snapshot()
	if !reflect.DeepEqual(snap.History, []float64{1, 2}) {
		t.Errorf("partial history = %v", snap.History)
	}

	tag.Update(3)
	tag.Update(4)
	snap = tag.Snapshot()
	if !reflect.DeepEqual(snap.History, []float64{2, 3, 4}) {
		t.Errorf("wrapped history = %v", snap.History)
	}
	if snap.Value != 4 || snap.Updates != 4 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Updated.IsZero() {
		t.Error("update time not stamped")
	}
}

func TestConcurrentUpdates(t *testing.T) {
	s := NewStore(DefaultCapacity)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				tag, err := s.GetOrCreate(fmt.Sprintf("T%d", j%5), DefaultHistory)
				if err != nil {
					t.Error(err)
					return
				}
				tag.Update(float64(i))
			}
		}(i)
	}
	wg.Wait()
	var total uint64
	for _, tag := range s.Tags() {
		total += tag.Snapshot().Updates
	}
	if total != 400 {
		t.Errorf("total updates = %d, want 400", total)
	}
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		tag     string
		want    float64
		wantErr bool
	}{
		{"Simple", "TEMP=23.5", "TEMP", 23.5, false},
		{"Blanks", "TEMP \t=  23.5\xFF", "TEMP", 23.5, false},
		{"DecimalComma", "TEMP=23,5", "TEMP", 23.5, false},
		{"Negative", "A=1\tTEMP=-4.25e1;", "TEMP", -42.5, false},
		{"LongestPrefix", "TEMP=12.5-3", "TEMP", 12.5, false},
		{"DanglingExponent", "TEMP=7e", "TEMP", 7, false},
		{"FirstValidWins", "TEMP=x TEMP=5 TEMP=6", "TEMP", 5, false},
		{"CaseSensitive", "temp=5", "TEMP", 0, true},
		{"NoEquals", "TEMP 5", "TEMP", 0, true},
		{"NoNumber", "TEMP=abc", "TEMP", 0, true},
		{"SignOnly", "TEMP=+", "TEMP", 0, true},
		{"Missing", "PRES=1", "TEMP", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract([]byte(tt.payload), tt.tag)
			if tt.wantErr {
				if !errors.Is(err, fault.ErrProtocol) {
					t.Errorf("got %v, %v; want protocol error", got, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := Extract([]byte("=1"), ""); !errors.Is(err, fault.ErrFormat) {
		t.Errorf("empty name: %v", err)
	}
}

func TestExtractTokenLimit(t *testing.T) {
	payload := "V=" + strings.Repeat("1", 40)
	got, err := Extract([]byte(payload), "V")
	if err != nil {
		t.Fatal(err)
	}
	if want := 1111111111111111111111111111111.0; got != want {
		t.Errorf("got %v, want the first 31 digits", got)
	}
}

func TestTemplateNames(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []string
	}{
		{"Two", "TEMP\x00PRES\x00", []string{"TEMP", "PRES"}},
		{"Unterminated", "TEMP\x00PRES", []string{"TEMP", "PRES"}},
		{"StopsAtEmpty", "TEMP\x00\x00PRES\x00", []string{"TEMP"}},
		{"Empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TemplateNames([]byte(tt.payload)); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIngest(t *testing.T) {
	s := NewStore(DefaultCapacity)
	payload := []byte("TEMP=21.5\tPRES = 1,013\f")
	n := Ingest(s, payload, []string{"TEMP", "PRES", "FLOW"}, 10)
	if n != 2 {
		t.Errorf("updated %d, want 2", n)
	}
	tag, ok := s.Find("PRES")
	if !ok {
		t.Fatal("PRES not created")
	}
	if v := tag.Snapshot().Value; v != 1.013 {
		t.Errorf("PRES = %v", v)
	}
	if _, ok := s.Find("FLOW"); ok {
		t.Error("tag created for a missing value")
	}

	// Idempotent: a second frame updates, never duplicates.
	Ingest(s, payload, []string{"TEMP", "PRES"}, 10)
	if s.Len() != 2 {
		t.Errorf("Len = %d after second ingest", s.Len())
	}
}
