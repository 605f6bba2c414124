// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package staging moves templates and the system config between storage
// and the register windows on request.
package staging

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ffutop/sp-gateway/internal/fault"
	"github.com/ffutop/sp-gateway/internal/persistence"
	"github.com/ffutop/sp-gateway/internal/registers"
)

// DefaultInterval is the polling period of the staging task.
const DefaultInterval = 50 * time.Millisecond

// Config operation types, bits [14:8] of RegConfigOperation.
const (
	ConfigStation0 = 1
	ConfigStation1 = 2
	ConfigStation2 = 3
	ConfigAP       = 4
	ConfigSerial   = 5
	ConfigFirmware = 6
)

// configRead marks a config read in RegConfigOperation.
const configRead uint16 = 0x8000

// maskedPassword replaces stored passwords on read.
const maskedPassword uint16 = 0x2A2A // "**"

// Service is the staging task.
type Service struct {
	Bank     *registers.Bank
	Store    persistence.Storage
	Interval time.Duration
}

// New creates a staging service polling at DefaultInterval.
func New(bank *registers.Bank, store persistence.Storage) *Service {
	return &Service{Bank: bank, Store: store, Interval: DefaultInterval}
}

// Start runs the task until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	slog.Info("Staging task started", "interval", s.Interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Step()
		}
	}
}

// Step serves every pending request in one bank transaction. Storage I/O
// runs with the bank locked.
func (s *Service) Step() {
	s.Bank.Do(func(tx *registers.Tx) {
		if op := tx.Get(registers.RegConfigOperation); op != registers.Sentinel {
			if err := s.configure(tx, op); err != nil {
				slog.Error("Config operation failed", "op", fmt.Sprintf("0x%04X", op), "err", err)
			}
			tx.Set(registers.RegConfigOperation, registers.Sentinel)
			tx.Set(registers.RegConfigIndex, registers.Sentinel)
		}

		s.stage(tx, registers.RegReadRequest, persistence.Request, s.readTemplate)
		s.stage(tx, registers.RegWriteRequest, persistence.Request, s.writeTemplate)
		s.stage(tx, registers.RegReadResponse, persistence.Response, s.readTemplate)
		s.stage(tx, registers.RegWriteResponse, persistence.Response, s.writeTemplate)
	})
}

func (s *Service) stage(tx *registers.Tx, reg uint16, ns persistence.Namespace, fn func(*registers.Tx, persistence.Namespace, int) error) {
	v := tx.Get(reg)
	if v == registers.Sentinel {
		return
	}
	id := int(v & 0xFF)
	if err := fn(tx, ns, id); err != nil {
		slog.Error("Template staging failed", "namespace", ns, "id", id, "err", err)
	}
	tx.Set(reg, registers.Sentinel)
}

// readTemplate packs the raw record, length byte first, into the read
// window. Absent templates read as zeros.
func (s *Service) readTemplate(tx *registers.Tx, ns persistence.Namespace, id int) error {
	tpl, err := s.Store.ReadTemplate(ns, id)
	if err != nil {
		return err
	}
	if _, ok := tpl.Payload(); !ok {
		tpl = persistence.Template{}
	}
	tx.PutBytes(registers.ReadWindow, registers.ReadWindow.Start, tpl[:])
	slog.Debug("Template staged for read", "namespace", ns, "id", id)
	return nil
}

// writeTemplate stores the first WriteLen bytes of the write window.
func (s *Service) writeTemplate(tx *registers.Tx, ns persistence.Namespace, id int) error {
	data := tx.Bytes(registers.WriteWindow.Start, persistence.TemplateSize)
	n := tx.WriteLen()
	if n <= 0 || n >= persistence.TemplateSize {
		return fmt.Errorf("staging: byte count %d out of range: %w", n, fault.ErrStorage)
	}
	tpl, err := persistence.NewTemplate(data[:n])
	if err != nil {
		return err
	}
	if err := s.Store.WriteTemplate(ns, id, tpl); err != nil {
		return err
	}
	slog.Info("Template stored", "namespace", ns, "id", id, "len", n)
	return nil
}

func (s *Service) configure(tx *registers.Tx, op uint16) error {
	typ := int(op>>8) & 0x7F
	slog.Info("Config operation", "read", op&configRead != 0, "type", typ, "index", tx.Get(registers.RegConfigIndex)&0xFF)

	cfg, err := s.Store.LoadSystem()
	if err != nil {
		return err
	}
	if op&configRead != 0 {
		return readConfig(tx, cfg, typ)
	}

	switch typ {
	case ConfigStation0, ConfigStation1, ConfigStation2:
		cfg.Station[typ-ConfigStation0] = credential(tx)
	case ConfigAP:
		cfg.AP = credential(tx)
	case ConfigSerial:
		cfg.Serial = cstring(tx, 0, persistence.SerialSize)
	case ConfigFirmware:
		return fmt.Errorf("staging: firmware version is read-only: %w", fault.ErrProtocol)
	default:
		return fmt.Errorf("staging: unknown config type %d: %w", typ, fault.ErrProtocol)
	}
	if err := s.Store.SaveSystem(cfg); err != nil {
		return err
	}
	slog.Info("Configuration saved", "type", typ)
	return nil
}

func readConfig(tx *registers.Tx, cfg persistence.SystemConfig, typ int) error {
	switch typ {
	case ConfigStation0, ConfigStation1, ConfigStation2:
		putString(tx, cfg.Station[typ-ConfigStation0].SSID, persistence.SSIDSize)
		maskPassword(tx)
	case ConfigAP:
		putString(tx, cfg.AP.SSID, persistence.SSIDSize)
		maskPassword(tx)
	case ConfigSerial:
		putString(tx, cfg.Serial, persistence.SerialSize)
	case ConfigFirmware:
		putString(tx, cfg.Firmware, persistence.FirmwareSize)
	default:
		return fmt.Errorf("staging: unknown config type %d: %w", typ, fault.ErrProtocol)
	}
	slog.Debug("Config staged for read", "type", typ)
	return nil
}

// putString writes s NUL padded to size bytes at the start of the read
// window.
func putString(tx *registers.Tx, s string, size int) {
	buf := make([]byte, size)
	copy(buf[:size-1], s)
	tx.PutBytes(registers.ReadWindow, registers.ReadWindow.Start, buf)
}

func maskPassword(tx *registers.Tx) {
	start := registers.ReadWindow.Start + persistence.SSIDSize/2
	for i := uint16(0); i < persistence.PasswordSize/2; i++ {
		tx.Set(start+i, maskedPassword)
	}
}

func credential(tx *registers.Tx) persistence.Credential {
	return persistence.Credential{
		SSID:     cstring(tx, 0, persistence.SSIDSize),
		Password: cstring(tx, persistence.SSIDSize, persistence.PasswordSize),
	}
}

// cstring unpacks a NUL terminated string of at most size-1 bytes found
// off bytes into the read window.
func cstring(tx *registers.Tx, off, size int) string {
	b := tx.Bytes(registers.ReadWindow.Start+uint16(off/2), size)
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	if len(b) > size-1 {
		b = b[:size-1]
	}
	return string(b)
}
