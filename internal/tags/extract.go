// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tags

import (
	"bytes"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ffutop/sp-gateway/internal/fault"
)

const maxToken = 31

// Extract finds "name = number" in payload and returns the number. The
// number may use a decimal comma. The first occurrence that yields a
// number wins.
func Extract(payload []byte, name string) (float64, error) {
	if name == "" {
		return 0, fmt.Errorf("tags: empty name: %w", fault.ErrFormat)
	}
	key := []byte(name)
	for from := 0; from < len(payload); {
		i := bytes.Index(payload[from:], key)
		if i < 0 {
			break
		}
		pos := from + i + len(key)
		from += i + 1

		pos = skipBlanks(payload, pos)
		if pos >= len(payload) || payload[pos] != '=' {
			continue
		}
		pos = skipBlanks(payload, pos+1)

		start := pos
		for pos < len(payload) && isNumeric(payload[pos]) {
			pos++
		}
		if pos == start {
			continue
		}
		if pos-start > maxToken {
			pos = start + maxToken
		}
		if v, ok := parsePrefix(payload[start:pos]); ok {
			return v, nil
		}
	}
	return 0, fmt.Errorf("tags: no value for %q: %w", name, fault.ErrProtocol)
}

func skipBlanks(b []byte, pos int) int {
	for pos < len(b) && (b[pos] == ' ' || b[pos] == '\t') {
		pos++
	}
	return pos
}

func isNumeric(c byte) bool {
	return c >= '0' && c <= '9' || c == '.' || c == ',' || c == '-' || c == '+' || c == 'e' || c == 'E'
}

// parsePrefix parses the longest prefix of tok that is a float.
func parsePrefix(tok []byte) (float64, bool) {
	buf := make([]byte, len(tok))
	for i, c := range tok {
		if c == ',' {
			c = '.'
		}
		buf[i] = c
	}
	for n := len(buf); n > 0; n-- {
		v, err := strconv.ParseFloat(string(buf[:n]), 64)
		if err == nil {
			return v, true
		}
		// Out of range values still parse to ±Inf or 0.
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return v, true
		}
	}
	return 0, false
}

// TemplateNames splits a response template payload into tag names. Names
// are NUL separated and the list ends at the first empty name.
func TemplateNames(payload []byte) []string {
	var names []string
	for len(payload) > 0 {
		i := bytes.IndexByte(payload, 0)
		var name []byte
		if i < 0 {
			name, payload = payload, nil
		} else {
			name, payload = payload[:i], payload[i+1:]
		}
		if len(name) == 0 {
			break
		}
		names = append(names, string(name))
	}
	return names
}

// Ingest extracts every name from payload into store and returns the
// number of tags updated.
func Ingest(store *Store, payload []byte, names []string, historyCap int) int {
	updated := 0
	for _, name := range names {
		v, err := Extract(payload, name)
		if err != nil {
			slog.Warn("Failed to extract tag value", "tag", name, "err", err)
			continue
		}
		t, err := store.GetOrCreate(name, historyCap)
		if err != nil {
			slog.Warn("Failed to store tag", "tag", name, "err", err)
			continue
		}
		t.Update(v)
		slog.Debug("Tag updated", "tag", t.Name(), "value", v)
		updated++
	}
	return updated
}
