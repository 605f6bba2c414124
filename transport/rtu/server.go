// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ffutop/sp-gateway/internal/config"
	"github.com/ffutop/sp-gateway/internal/metrics"
	"github.com/ffutop/sp-gateway/internal/registers"
	modbusrtu "github.com/ffutop/sp-gateway/modbus/rtu"
	"github.com/ffutop/sp-gateway/transport"
	"github.com/ffutop/sp-gateway/transport/serial"
)

// Server implements a Modbus RTU Server (Upstream).
// It acts as a Slave on the serial bus, answering an external Master at
// the address held in the slave address register.
type Server struct {
	Config  config.SerialConfig
	Bank    *registers.Bank
	Metrics *metrics.Metrics
	// Open opens the serial line. Defaults to serial.Open.
	Open serial.Opener

	baud int
}

var _ transport.Upstream = (*Server)(nil)

// NewServer creates a new RTU Server.
func NewServer(cfg config.SerialConfig, bank *registers.Bank, m *metrics.Metrics) *Server {
	return &Server{
		Config:  cfg,
		Bank:    bank,
		Metrics: m,
		Open:    serial.Open,
	}
}

// Start opens the port and serves requests until ctx is cancelled.
func (s *Server) Start(ctx context.Context, handler transport.RequestHandler) error {
	s.baud = s.Config.BaudRate
	if s.baud == 0 {
		idx := s.Bank.Get(registers.RegModbusBaud)
		baud, ok := registers.BaudRate(idx)
		if !ok {
			return fmt.Errorf("modbus: invalid baud index %d", idx)
		}
		s.baud = baud
	}

	port, err := s.Open(s.Config, s.baud)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.Config.Device, err)
	}
	defer port.Close()
	slog.Info("RTU Server listening", "device", s.Config.Device, "baud", s.baud, "slave", s.Bank.Get(registers.RegSlaveAddr))

	// handle close
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	return s.serve(ctx, port, handler)
}

func (s *Server) serve(ctx context.Context, port io.ReadWriter, handler transport.RequestHandler) error {
	r := serial.NewReader(port, modbusrtu.MaxSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		silence := serial.Silence(s.Bank.Get(registers.RegModbusTimeout), s.baud)
		frame, err := r.Poll(silence)
		if frame != nil {
			s.handleFrame(ctx, port, frame, handler)
		}
		switch {
		case err == nil:
		case errors.Is(err, serial.ErrOverflow):
			slog.Warn("Modbus frame overflow, dropped", "max", modbusrtu.MaxSize)
			s.Metrics.Frame(metrics.LinkModbus, metrics.ResultOverflow)
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, io.EOF):
			return fmt.Errorf("modbus: serial port closed: %w", err)
		}
		// Any other read error is a timeout tick.
	}
}

func (s *Server) handleFrame(ctx context.Context, w io.Writer, frame []byte, handler transport.RequestHandler) {
	adu, err := modbusrtu.Decode(frame)
	if err != nil {
		slog.Debug("Dropped Modbus frame", "err", err, "frame", hex.EncodeToString(frame))
		s.Metrics.Frame(metrics.LinkModbus, metrics.Result(err))
		return
	}
	if addr := s.Bank.Get(registers.RegSlaveAddr); uint16(adu.SlaveID) != addr {
		s.Metrics.Frame(metrics.LinkModbus, metrics.ResultAddress)
		return
	}

	resp, err := handler(ctx, adu.SlaveID, adu.Pdu)
	if err != nil {
		slog.Error("Upstream handler failed", "err", err)
		s.Metrics.Frame(metrics.LinkModbus, metrics.ResultProtocol)
		return
	}
	if resp.IsException() && len(resp.Data) > 0 {
		s.Metrics.Exception(resp.Data[0])
	}

	out := modbusrtu.ApplicationDataUnit{SlaveID: adu.SlaveID, Pdu: resp}
	raw, err := out.Encode()
	if err != nil {
		slog.Error("Failed to encode Modbus response", "err", err)
		s.Metrics.Frame(metrics.LinkModbus, metrics.Result(err))
		return
	}
	slog.Debug("Modbus exchange", "request", adu.Pdu, "response", resp)
	if _, err := w.Write(raw); err != nil {
		slog.Error("Failed to write Modbus response", "err", err)
		return
	}
	s.Metrics.Frame(metrics.LinkModbus, metrics.ResultOK)
}

func (s *Server) Close() error {
	return nil
}
