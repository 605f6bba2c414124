// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
log:
  level: "debug"
modbus:
  device: "/dev/ttyS0"
  baud_rate: 19200
  parity: "e"
sp:
  device: "/dev/ttyS1"
  repeat: 10s
persistence:
  type: "MMAP"
  path: "/var/lib/spgw/store.bin"
tags:
  capacity: 20
metrics:
  listen: ":9108"
`)

	cfg, err := LoadConfig(path, nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("log.level = %q", cfg.Log.Level)
	}
	if cfg.Modbus.Device != "/dev/ttyS0" || cfg.Modbus.BaudRate != 19200 {
		t.Errorf("modbus = %+v", cfg.Modbus)
	}
	if cfg.Modbus.Parity != "E" {
		t.Errorf("parity not normalised: %q", cfg.Modbus.Parity)
	}
	if cfg.Modbus.Timeout != 20*time.Millisecond {
		t.Errorf("modbus.timeout = %v", cfg.Modbus.Timeout)
	}
	if cfg.SP.Device != "/dev/ttyS1" || cfg.SP.Repeat != 10*time.Second {
		t.Errorf("sp = %+v", cfg.SP)
	}
	if cfg.SP.Timeout != 10*time.Millisecond || cfg.SP.DataBits != 8 {
		t.Errorf("sp serial defaults = %+v", cfg.SP.SerialConfig)
	}
	if cfg.Persistence.Type != "mmap" || cfg.Persistence.Driver != "sqlite3" {
		t.Errorf("persistence = %+v", cfg.Persistence)
	}
	if cfg.Tags.Capacity != 20 || cfg.Tags.History != 100 {
		t.Errorf("tags = %+v", cfg.Tags)
	}
	if cfg.Metrics.Listen != ":9108" {
		t.Errorf("metrics.listen = %q", cfg.Metrics.Listen)
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, "log:\n  level: warn\n")

	t.Run("Env", func(t *testing.T) {
		t.Setenv("SPGW_PERSISTENCE_TYPE", "file")
		cfg, err := LoadConfig(path, nil)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Persistence.Type != "file" {
			t.Errorf("persistence.type = %q, want env override", cfg.Persistence.Type)
		}
		if cfg.Log.Level != "warn" {
			t.Errorf("log.level = %q", cfg.Log.Level)
		}
	})

	t.Run("Flag", func(t *testing.T) {
		fs := Flags()
		if err := fs.Parse([]string{"-v", "error", "--log-file", "/tmp/spgw.log"}); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadConfig(path, fs)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Log.Level != "error" || cfg.Log.File != "/tmp/spgw.log" {
			t.Errorf("log = %+v, want flag values", cfg.Log)
		}
	})

	t.Run("FlagDefault", func(t *testing.T) {
		fs := Flags()
		if err := fs.Parse(nil); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadConfig(path, fs)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Log.Level != "warn" {
			t.Errorf("unset flag overrode config: %q", cfg.Log.Level)
		}
	})
}
