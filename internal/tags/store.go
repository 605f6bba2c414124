// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package tags keeps named device values extracted from SP responses,
// each with a fixed-size history ring.
package tags

import (
	"fmt"
	"sync"
	"time"

	"github.com/ffutop/sp-gateway/internal/fault"
)

const (
	// DefaultCapacity is the default number of tags a store accepts.
	DefaultCapacity = 50
	// DefaultHistory is the default history ring size of a new tag.
	DefaultHistory = 100
	// MaxNameLen bounds a tag name; longer names are truncated.
	MaxNameLen = 31
)

// Tag is a named value with its recent history.
type Tag struct {
	name string

	mu      sync.Mutex
	value   float64
	history []float64
	index   int
	updates uint64
	updated time.Time
}

// Name returns the tag name.
func (t *Tag) Name() string {
	return t.name
}

// Update records v as the current value.
func (t *Tag) Update(v float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.value = v
	t.history[t.index] = v
	t.index = (t.index + 1) % len(t.history)
	t.updates++
	t.updated = time.Now()
}

// Snapshot is a consistent copy of a tag.
type Snapshot struct {
	Name    string
	Value   float64
	History []float64 // oldest first
	Updated time.Time
	Updates uint64
}

// Snapshot copies the tag under its lock.
func (t *Tag) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		Name:    t.name,
		Value:   t.value,
		Updated: t.updated,
		Updates: t.updates,
	}
	if t.updates < uint64(len(t.history)) {
		s.History = append([]float64(nil), t.history[:t.index]...)
	} else {
		s.History = make([]float64, 0, len(t.history))
		s.History = append(s.History, t.history[t.index:]...)
		s.History = append(s.History, t.history[:t.index]...)
	}
	return s
}

// Store holds up to a fixed number of tags. Tags are never evicted.
type Store struct {
	mu       sync.RWMutex
	capacity int
	byName   map[string]*Tag
	order    []*Tag
}

// NewStore creates a store for at most capacity tags.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		byName:   make(map[string]*Tag, capacity),
	}
}

// GetOrCreate returns the tag called name, creating it with a history
// of historyCap values if needed. The history size of an existing tag
// is left unchanged.
func (s *Store) GetOrCreate(name string, historyCap int) (*Tag, error) {
	if name == "" {
		return nil, fmt.Errorf("tags: empty name: %w", fault.ErrFormat)
	}
	if len(name) > MaxNameLen {
		name = name[:MaxNameLen]
	}
	if historyCap <= 0 {
		historyCap = DefaultHistory
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.byName[name]; ok {
		return t, nil
	}
	if len(s.order) >= s.capacity {
		return nil, fmt.Errorf("tags: store full (%d), cannot add %q: %w", s.capacity, name, fault.ErrResource)
	}
	t := &Tag{name: name, history: make([]float64, historyCap)}
	s.byName[name] = t
	s.order = append(s.order, t)
	return t, nil
}

// Find looks a tag up by name.
func (s *Store) Find(name string) (*Tag, bool) {
	if len(name) > MaxNameLen {
		name = name[:MaxNameLen]
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byName[name]
	return t, ok
}

// Len returns the number of tags.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Tags returns the tags in creation order.
func (s *Store) Tags() []*Tag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Tag(nil), s.order...)
}
