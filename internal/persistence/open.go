// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"log/slog"

	"github.com/ffutop/sp-gateway/internal/config"
)

// Open creates and opens the backend selected by cfg.Type.
func Open(cfg config.PersistenceConfig) (Storage, error) {
	switch cfg.Type {
	case "file":
		slog.Info("Initializing template storage with file persistence", "path", cfg.Path)
		fs := NewFileStorage(cfg.Path)
		if err := fs.Open(); err != nil {
			return nil, err
		}
		return fs, nil
	case "mmap":
		slog.Info("Initializing template storage with MMAP persistence", "path", cfg.Path)
		ms := NewMmapStorage(cfg.Path)
		if err := ms.Open(); err != nil {
			return nil, err
		}
		return ms, nil
	case "sql":
		slog.Info("Initializing template storage with SQL persistence", "driver", cfg.Driver, "dsn", cfg.Path)
		ss := NewSQLStorage(cfg.Driver, cfg.Path)
		if err := ss.Open(); err != nil {
			return nil, err
		}
		return ss, nil
	case "", "memory":
		slog.Info("Initializing template storage in memory (non-persistent)")
		return NewMemoryStorage(), nil
	}
	return nil, fmt.Errorf("persistence: unknown type %q", cfg.Type)
}
