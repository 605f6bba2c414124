// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/goburrow/modbus"

	"github.com/ffutop/sp-gateway/internal/config"
	"github.com/ffutop/sp-gateway/internal/persistence"
	"github.com/ffutop/sp-gateway/internal/registers"
)

var errTimeout = errors.New("serial: timeout")

type mockPort struct {
	in      chan []byte
	out     chan []byte
	closed  chan struct{}
	pending []byte
}

func newMockPort() *mockPort {
	return &mockPort{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (m *mockPort) Read(b []byte) (int, error) {
	if len(m.pending) > 0 {
		n := copy(b, m.pending)
		m.pending = m.pending[n:]
		return n, nil
	}
	select {
	case chunk := <-m.in:
		n := copy(b, chunk)
		m.pending = chunk[n:]
		return n, nil
	case <-m.closed:
		return 0, io.EOF
	case <-time.After(time.Millisecond):
		return 0, errTimeout
	}
}

func (m *mockPort) Write(b []byte) (int, error) {
	m.out <- append([]byte(nil), b...)
	return len(b), nil
}

func (m *mockPort) Close() error {
	select {
	case <-m.closed:
	default:
		close(m.closed)
	}
	return nil
}

// loopback carries the master's frames over the Modbus mock port.
type loopback struct {
	*modbus.RTUClientHandler
	port *mockPort
}

func (l *loopback) Send(aduRequest []byte) ([]byte, error) {
	l.port.in <- aduRequest
	select {
	case resp := <-l.port.out:
		return resp, nil
	case <-time.After(time.Second):
		return nil, errors.New("loopback: no response")
	}
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Modbus.Device = "modbus"
	cfg.SP.Device = "sp"
	cfg.Tags.Capacity = 50
	cfg.Tags.History = 100
	return cfg
}

func startGateway(t *testing.T, cfg *config.Config) (*Gateway, modbus.Client, *mockPort) {
	t.Helper()
	store := persistence.NewMemoryStorage()
	t.Cleanup(func() { store.Close() })

	g, err := NewGateway(cfg, store)
	if err != nil {
		t.Fatalf("NewGateway() error: %v", err)
	}
	g.Staging.Interval = 5 * time.Millisecond

	mb, sp := newMockPort(), newMockPort()
	g.SetOpener(func(c config.SerialConfig, baud int) (io.ReadWriteCloser, error) {
		if c.Device == "sp" {
			return sp, nil
		}
		return mb, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Start returned %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("gateway did not stop")
		}
	})

	handler := modbus.NewRTUClientHandler("loopback")
	handler.SlaveId = 6
	client := modbus.NewClient(&loopback{RTUClientHandler: handler, port: mb})
	return g, client, sp
}

func waitRegister(t *testing.T, client modbus.Client, addr, want uint16) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		b, err := client.ReadHoldingRegisters(addr, 1)
		if err != nil {
			t.Fatalf("ReadHoldingRegisters(0x%02X) error: %v", addr, err)
		}
		if v := uint16(b[0])<<8 | uint16(b[1]); v == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("register 0x%02X never became %04X", addr, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewGateway(t *testing.T) {
	cfg := testConfig()
	cfg.SP.Repeat = 10 * time.Second
	store := persistence.NewMemoryStorage()
	defer store.Close()

	g, err := NewGateway(cfg, store)
	if err != nil {
		t.Fatalf("NewGateway() error: %v", err)
	}
	if v := g.Bank.Get(registers.RegVersion); v != persistence.CurrentVersion {
		t.Errorf("version = %d, want %d", v, persistence.CurrentVersion)
	}
	if v := g.Bank.Get(registers.RegSlaveAddr); v != 6 {
		t.Errorf("slave address = %d, want default 6", v)
	}
	if v := g.Bank.Get(registers.RegRepeat); v != 10 {
		t.Errorf("repeat = %d, want 10", v)
	}
	if v := g.Bank.Get(registers.RegSPCommand); v != registers.Sentinel {
		t.Errorf("command = %04X, want sentinel", v)
	}
	sys, err := store.LoadSystem()
	if err != nil {
		t.Fatal(err)
	}
	if sys.Firmware != Firmware {
		t.Errorf("firmware = %q, want %q", sys.Firmware, Firmware)
	}
}

func TestKeepsStoredFirmware(t *testing.T) {
	store := persistence.NewMemoryStorage()
	defer store.Close()
	if err := store.SaveSystem(persistence.SystemConfig{Firmware: "0.9.0"}); err != nil {
		t.Fatal(err)
	}
	if _, err := NewGateway(testConfig(), store); err != nil {
		t.Fatalf("NewGateway() error: %v", err)
	}
	sys, err := store.LoadSystem()
	if err != nil {
		t.Fatal(err)
	}
	if sys.Firmware != "0.9.0" {
		t.Errorf("firmware = %q, want stored value", sys.Firmware)
	}
}

func TestEndToEnd(t *testing.T) {
	_, client, sp := startGateway(t, testConfig())

	// Stage the request template "ReadParams 0,1 -> 0,60" into slot 5.
	template := []byte{0x1D, 0x09, '0', 0x09, '1', 0x0C, 0x02, 0x09, '0', 0x09, '6', '0', 0x0C, 0x03}
	if _, err := client.WriteMultipleRegisters(0x80, uint16(len(template)/2), template); err != nil {
		t.Fatalf("WriteMultipleRegisters() error: %v", err)
	}
	if _, err := client.WriteSingleRegister(registers.RegWriteRequest, 5); err != nil {
		t.Fatalf("WriteSingleRegister() error: %v", err)
	}
	waitRegister(t, client, registers.RegWriteRequest, registers.Sentinel)

	if _, err := client.WriteSingleRegister(registers.RegSPCommand, 5); err != nil {
		t.Fatalf("WriteSingleRegister() error: %v", err)
	}

	wantRequest := []byte{
		0xFF, 0xFF, 0x10, 0x01, 0x00, 0x80, 0x10, 0x1F, 0x1D, 0x09, 0x30, 0x09,
		0x31, 0x0C, 0x10, 0x02, 0x09, 0x30, 0x09, 0x36, 0x30, 0x0C, 0x10, 0x03,
		0x15, 0x60,
	}
	select {
	case got := <-sp.out:
		if !bytes.Equal(got, wantRequest) {
			t.Fatalf("SP request = % X\nwant % X", got, wantRequest)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no SP request sent")
	}

	sp.in <- []byte{
		0xFF, 0xFF, 0x10, 0x01, 0x80, 0x00, 0x10, 0x1F, 0x10, 0x03, 0x10, 0x02,
		0x32, 0x33, 0x2E, 0x35, 0x09, 0x43, 0x09, 0x31, 0x32, 0x3A, 0x30, 0x30,
		0x0C, 0x37, 0x09, 0x62, 0x61, 0x72, 0x10, 0x03, 0x22, 0xB2,
	}
	waitRegister(t, client, 0x20, 2)

	got, err := client.ReadHoldingRegisters(0x20, 6)
	if err != nil {
		t.Fatalf("ReadHoldingRegisters() error: %v", err)
	}
	want := []byte{0x00, 0x02, 0x00, 0x04, '2', '3', '.', '5', 0x00, 0x01, '7', 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("read window = % X, want % X", got, want)
	}
	waitRegister(t, client, registers.RegSPError, registers.StatusOK)
}

func TestEndToEndException(t *testing.T) {
	_, client, _ := startGateway(t, testConfig())

	_, err := client.ReadHoldingRegisters(0xE0, 1)
	var mbErr *modbus.ModbusError
	if !errors.As(err, &mbErr) {
		t.Fatalf("ReadHoldingRegisters() error = %v, want ModbusError", err)
	}
	if mbErr.ExceptionCode != modbus.ExceptionCodeIllegalDataAddress {
		t.Errorf("exception = %d, want %d", mbErr.ExceptionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
}

func TestEndToEndParamPersisted(t *testing.T) {
	g, client, _ := startGateway(t, testConfig())

	// Out of range values are clamped but echoed as written.
	if _, err := client.WriteSingleRegister(registers.RegSPTimeout, 1000); err != nil {
		t.Fatalf("WriteSingleRegister() error: %v", err)
	}
	waitRegister(t, client, registers.RegSPTimeout, 100)

	v, err := g.Store.GetParam(int(registers.RegSPTimeout))
	if err != nil {
		t.Fatal(err)
	}
	if v != 100 {
		t.Errorf("stored param = %d, want 100", v)
	}
}
