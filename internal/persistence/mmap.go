// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/edsrzf/mmap-go"
)

// MmapStorage implements persistence using a memory-mapped file. Every
// change is flushed with msync before the call returns.
type MmapStorage struct {
	image
	path string
	file *os.File
	mm   mmap.MMap
}

// NewMmapStorage creates a new MmapStorage. Open must be called before use.
func NewMmapStorage(path string) *MmapStorage {
	return &MmapStorage{
		path: path,
	}
}

// Open maps the file, formatting a new or unsigned image.
func (ms *MmapStorage) Open() error {
	// Open file, creating if necessary
	f, err := os.OpenFile(ms.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open mmap file: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	if fi.Size() != int64(imageSize) {
		if err := f.Truncate(int64(imageSize)); err != nil {
			f.Close()
			return fmt.Errorf("failed to resize mmap file: %w", err)
		}
	}

	mm, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return fmt.Errorf("mmap failed: %w", err)
	}
	ms.file = f
	ms.mm = mm

	formatted, err := ms.attach(mm, ms.flush)
	if err != nil {
		ms.Close()
		return err
	}
	if formatted {
		slog.Info("Formatted template storage", "path", ms.path)
	}
	return nil
}

func (ms *MmapStorage) flush(_, _ int) error {
	return ms.mm.Flush()
}

// Close unmaps and closes the file.
func (ms *MmapStorage) Close() error {
	ms.detach()
	var err error
	if ms.mm != nil {
		if e := ms.mm.Unmap(); e != nil {
			err = e
		}
		ms.mm = nil
	}
	if ms.file != nil {
		if e := ms.file.Close(); e != nil {
			err = e
		}
		ms.file = nil
	}
	return err
}
