// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

// MemoryStorage is a non-persistent store with the same layout as the
// file backends.
type MemoryStorage struct {
	image
}

func NewMemoryStorage() *MemoryStorage {
	ms := &MemoryStorage{}
	// A zeroed slice has no signature, so attach formats it. No hook, no error.
	_, _ = ms.attach(make([]byte, imageSize), nil)
	return ms
}

func (ms *MemoryStorage) Close() error {
	return nil
}
