// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package metrics exposes link counters and tag values to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ffutop/sp-gateway/internal/fault"
	"github.com/ffutop/sp-gateway/internal/tags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Link labels.
const (
	LinkModbus = "modbus"
	LinkSP     = "sp"
)

// Frame results.
const (
	ResultOK       = "ok"
	ResultCRC      = "crc"
	ResultFormat   = "format"
	ResultAddress  = "address"
	ResultOverflow = "overflow"
	ResultResource = "resource"
	ResultProtocol = "protocol"
)

// Command origins.
const (
	OriginManual = "manual"
	OriginRepeat = "repeat"
)

// Metrics holds the gateway collectors. A nil *Metrics discards
// everything, so tests can run the links without a registry.
type Metrics struct {
	reg        *prometheus.Registry
	frames     *prometheus.CounterVec
	exceptions *prometheus.CounterVec
	commands   *prometheus.CounterVec
}

// New creates the collectors and registers them, together with a
// collector reporting the tags in store.
func New(store *tags.Store) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spgw_frames_total",
				Help: "Frames received per link and outcome",
			},
			[]string{"link", "result"}),
		exceptions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spgw_modbus_exceptions_total",
				Help: "Modbus exception responses sent",
			},
			[]string{"code"}),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spgw_sp_commands_total",
				Help: "SP requests transmitted",
			},
			[]string{"origin"}),
	}
	m.reg.MustRegister(m.frames)
	m.reg.MustRegister(m.exceptions)
	m.reg.MustRegister(m.commands)
	// Instantiate the counters to zero
	for _, link := range []string{LinkModbus, LinkSP} {
		m.frames.WithLabelValues(link, ResultOK)
	}
	for _, origin := range []string{OriginManual, OriginRepeat} {
		m.commands.WithLabelValues(origin)
	}

	if store != nil {
		m.reg.MustRegister(newTagCollector(store))
	}

	// Register system metrics
	m.reg.MustRegister(collectors.NewBuildInfoCollector())
	m.reg.MustRegister(collectors.NewGoCollector())
	m.reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Frame counts a received frame.
func (m *Metrics) Frame(link, result string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(link, result).Inc()
}

// Exception counts a Modbus exception response.
func (m *Metrics) Exception(code byte) {
	if m == nil {
		return
	}
	m.exceptions.WithLabelValues(fmt.Sprintf("%d", code)).Inc()
}

// Command counts a transmitted SP request.
func (m *Metrics) Command(origin string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(origin).Inc()
}

// Result classifies a frame error for the frames counter.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, fault.ErrIntegrity):
		return ResultCRC
	case errors.Is(err, fault.ErrResource):
		return ResultResource
	case errors.Is(err, fault.ErrFormat):
		return ResultFormat
	}
	return ResultProtocol
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics listener: %w", err)
	}
	return nil
}
