// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ffutop/sp-gateway/internal/config"
	"github.com/ffutop/sp-gateway/internal/metrics"
	"github.com/ffutop/sp-gateway/internal/persistence"
	"github.com/ffutop/sp-gateway/internal/registers"
	"github.com/ffutop/sp-gateway/internal/slave"
	"github.com/ffutop/sp-gateway/internal/splink"
	"github.com/ffutop/sp-gateway/internal/staging"
	"github.com/ffutop/sp-gateway/internal/tags"
	"github.com/ffutop/sp-gateway/modbus"
	"github.com/ffutop/sp-gateway/transport/rtu"
	"github.com/ffutop/sp-gateway/transport/serial"
)

// Firmware is reported through the system config when none is stored.
var Firmware = "1.1.0"

// Gateway bridges a Modbus RTU master to an SP field device through the
// shared register bank.
type Gateway struct {
	Config  *config.Config
	Bank    *registers.Bank
	Store   persistence.Storage
	Tags    *tags.Store
	Metrics *metrics.Metrics

	Modbus  *rtu.Server
	SP      *splink.Link
	Staging *staging.Service

	slave *slave.Slave
}

// NewGateway loads the persisted parameters into a fresh bank and wires
// the three tasks around it.
func NewGateway(cfg *config.Config, store persistence.Storage) (*Gateway, error) {
	bank := registers.New()
	if err := persistence.LoadParams(store, bank); err != nil {
		return nil, fmt.Errorf("failed to load parameters: %w", err)
	}
	if err := ensureFirmware(store); err != nil {
		return nil, err
	}
	if secs := cfg.SP.Repeat / time.Second; secs > 0 {
		bank.Set(registers.RegRepeat, uint16(secs))
	}

	tagStore := tags.NewStore(cfg.Tags.Capacity)
	m := metrics.New(tagStore)

	return &Gateway{
		Config:  cfg,
		Bank:    bank,
		Store:   store,
		Tags:    tagStore,
		Metrics: m,
		Modbus:  rtu.NewServer(cfg.Modbus, bank, m),
		SP:      splink.New(cfg.SP.SerialConfig, bank, store, tagStore, m, cfg.Tags.History),
		Staging: staging.New(bank, store),
		slave:   slave.New(bank, store),
	}, nil
}

func ensureFirmware(store persistence.Storage) error {
	sys, err := store.LoadSystem()
	if err != nil {
		return fmt.Errorf("failed to load system config: %w", err)
	}
	if sys.Firmware != "" {
		return nil
	}
	sys.Firmware = Firmware
	if err := store.SaveSystem(sys); err != nil {
		return fmt.Errorf("failed to save system config: %w", err)
	}
	return nil
}

// SetOpener replaces the serial opener of both links.
func (g *Gateway) SetOpener(open serial.Opener) {
	g.Modbus.Open = open
	g.SP.Open = open
}

// Start runs every task and blocks until ctx is cancelled and all of
// them have returned.
func (g *Gateway) Start(ctx context.Context) error {
	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slog.Info("Starting task", "task", name)
			if err := fn(ctx); err != nil {
				slog.Error("Task stopped with error", "task", name, "err", err)
			}
		}()
	}

	run("modbus", func(ctx context.Context) error { return g.Modbus.Start(ctx, g.handleRequest) })
	run("sp", g.SP.Start)
	run("staging", g.Staging.Start)
	if addr := g.Config.Metrics.Listen; addr != "" {
		run("metrics", func(ctx context.Context) error { return g.Metrics.Serve(ctx, addr) })
	}

	<-ctx.Done()
	g.Modbus.Close()
	wg.Wait()
	return nil
}

func (g *Gateway) handleRequest(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	resp, err := g.slave.Process(pdu)
	if err != nil {
		slog.Error("Request failed", "slaveID", slaveID, "func", pdu.FunctionCode, "err", err)
		return modbus.ProtocolDataUnit{}, err
	}
	return resp, nil
}
