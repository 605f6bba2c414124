// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// FileStorage keeps the image in memory and writes each change through
// to the file followed by fsync.
type FileStorage struct {
	image
	path string
	file *os.File
}

// NewFileStorage creates a new FileStorage. Open must be called before use.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{
		path: path,
	}
}

// Open loads the image, formatting a new or unsigned file.
func (fs *FileStorage) Open() error {
	// Open file, creating if necessary
	f, err := os.OpenFile(fs.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	if fi.Size() != int64(imageSize) {
		if err := f.Truncate(int64(imageSize)); err != nil {
			f.Close()
			return fmt.Errorf("failed to resize file: %w", err)
		}
	}

	data, err := io.ReadAll(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to read file: %w", err)
	}
	fs.file = f

	formatted, err := fs.attach(data, fs.sync)
	if err != nil {
		f.Close()
		fs.file = nil
		return err
	}
	if formatted {
		slog.Info("Formatted template storage", "path", fs.path)
	}
	return nil
}

func (fs *FileStorage) sync(off, n int) error {
	if _, err := fs.file.WriteAt(fs.data[off:off+n], int64(off)); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := fs.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file to disk: %w", err)
	}
	return nil
}

// Close the file.
func (fs *FileStorage) Close() error {
	fs.detach()
	if fs.file == nil {
		return nil
	}
	err := fs.file.Close()
	fs.file = nil
	return err
}
