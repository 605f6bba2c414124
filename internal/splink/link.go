// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package splink drives the SP side of the gateway: it turns command
// register writes into SP requests and unpacks SP responses into the
// read window and the tag store.
package splink

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ffutop/sp-gateway/internal/config"
	"github.com/ffutop/sp-gateway/internal/fault"
	"github.com/ffutop/sp-gateway/internal/metrics"
	"github.com/ffutop/sp-gateway/internal/persistence"
	"github.com/ffutop/sp-gateway/internal/registers"
	"github.com/ffutop/sp-gateway/internal/tags"
	"github.com/ffutop/sp-gateway/sp"
	"github.com/ffutop/sp-gateway/transport/serial"
)

// rawWindow is the number of body bytes copied in raw mode.
const rawWindow = 2 * 96

// Link is the SP link task.
type Link struct {
	Config  config.SerialConfig
	Bank    *registers.Bank
	Store   persistence.Storage
	Tags    *tags.Store
	Metrics *metrics.Metrics
	// History is the ring size of tags created from responses.
	History int
	// Open opens the serial line. Defaults to serial.Open.
	Open serial.Opener
	// Now is the clock used for auto-repeat.
	Now func() time.Time

	baud int

	enc     sp.Encoder
	scratch [sp.MaxFrameSize]byte
	records []sp.Record
	fields  [][]byte

	// Outstanding request.
	active    uint16
	reqFNC    byte
	hasActive bool

	// Auto-repeat state.
	last     uint16
	lastSent time.Time
	hasLast  bool
}

// New creates a Link.
func New(cfg config.SerialConfig, bank *registers.Bank, store persistence.Storage, tagStore *tags.Store, m *metrics.Metrics, history int) *Link {
	return &Link{
		Config:  cfg,
		Bank:    bank,
		Store:   store,
		Tags:    tagStore,
		Metrics: m,
		History: history,
		Open:    serial.Open,
		Now:     time.Now,
		records: make([]sp.Record, 0, sp.MaxRecords),
		fields:  make([][]byte, 0, sp.MaxRecords),
	}
}

// Start opens the port and runs the link until ctx is cancelled.
func (l *Link) Start(ctx context.Context) error {
	l.baud = l.Config.BaudRate
	if l.baud == 0 {
		idx := l.Bank.Get(registers.RegSPBaud)
		baud, ok := registers.BaudRate(idx)
		if !ok {
			return fmt.Errorf("sp: invalid baud index %d", idx)
		}
		l.baud = baud
	}

	port, err := l.Open(l.Config, l.baud)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", l.Config.Device, err)
	}
	defer port.Close()
	slog.Info("SP link started", "device", l.Config.Device, "baud", l.baud)

	go func() {
		<-ctx.Done()
		port.Close()
	}()

	return l.run(ctx, port)
}

func (l *Link) run(ctx context.Context, port io.ReadWriter) error {
	r := serial.NewReader(port, sp.MaxFrameSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		l.Poll(port, l.Now())

		silence := serial.Silence(l.Bank.Get(registers.RegSPTimeout), l.baud)
		frame, err := r.Poll(silence)
		if frame != nil {
			l.Receive(frame)
		}
		switch {
		case err == nil:
		case errors.Is(err, serial.ErrOverflow):
			l.fail(fmt.Errorf("sp: %w", err))
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, io.EOF):
			return fmt.Errorf("sp: serial port closed: %w", err)
		}
	}
}

// Poll transmits a pending command, arming an auto-repeat first when
// one is due. The command register is released only if it still holds
// the command that was sent.
func (l *Link) Poll(w io.Writer, now time.Time) error {
	origin := metrics.OriginManual
	if l.repeatDue(now) && l.Bank.CompareAndSwap(registers.RegSPCommand, registers.Sentinel, l.last) {
		origin = metrics.OriginRepeat
	}

	cmd := l.Bank.Get(registers.RegSPCommand)
	if cmd == registers.Sentinel {
		return nil
	}
	err := l.issue(w, cmd, now)
	if err != nil {
		slog.Error("Failed to issue SP command", "command", fmt.Sprintf("0x%04X", cmd), "err", err)
	} else {
		l.Metrics.Command(origin)
	}
	l.Bank.CompareAndReset(registers.RegSPCommand, cmd)
	return err
}

func (l *Link) repeatDue(now time.Time) bool {
	period := l.Bank.Get(registers.RegRepeat)
	if period < registers.RepeatMin || !l.hasLast {
		return false
	}
	return now.Sub(l.lastSent) >= time.Duration(period)*time.Second
}

func (l *Link) issue(w io.Writer, cmd uint16, now time.Time) error {
	// A failed attempt still restarts the repeat period.
	l.last, l.lastSent, l.hasLast = cmd, now, true

	id := int(cmd & 0xFF)
	tpl, err := l.Store.ReadTemplate(persistence.Request, id)
	if err != nil {
		return err
	}
	payload, ok := tpl.Payload()
	if !ok {
		return fmt.Errorf("splink: request template %d is empty: %w", id, fault.ErrStorage)
	}

	var dad, sad byte
	l.Bank.Do(func(tx *registers.Tx) {
		dad = byte(tx.Get(registers.RegSPDestAddr))
		sad = byte(tx.Get(registers.RegSPSrcAddr))
	})
	frame, err := l.enc.Encode(dad, sad, payload)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("splink: write request: %w", err)
	}
	slog.Debug("SP request sent", "command", fmt.Sprintf("0x%04X", cmd), "frame", hex.EncodeToString(frame))

	l.Bank.Set(registers.RegSPError, registers.StatusOK)
	l.active, l.reqFNC, l.hasActive = cmd, payload[0], true
	return nil
}

// Receive decodes an inbound frame and dispatches it. Errors are
// reported in the status register and returned for logging only.
func (l *Link) Receive(raw []byte) error {
	f, err := sp.Decode(raw, l.scratch[:])
	if err != nil {
		l.fail(err)
		return err
	}
	l.Metrics.Frame(metrics.LinkSP, metrics.ResultOK)
	slog.Debug("SP frame received", "dad", f.DAD, "sad", f.SAD, "fnc", f.FNC, "len", len(f.Body))

	if !l.hasActive {
		err := fmt.Errorf("splink: unsolicited frame fnc=0x%02X: %w", f.FNC, fault.ErrProtocol)
		slog.Warn("Ignored SP frame", "err", err)
		return err
	}
	// One response per request.
	l.hasActive = false

	if l.active&registers.RawFlag == registers.RawFlag {
		l.copyRaw(f.Body)
		return nil
	}

	err = l.dispatch(f)
	if err != nil {
		slog.Warn("SP response not unpacked", "err", err)
	}
	l.ingest(f.Body)
	return err
}

func (l *Link) fail(err error) {
	if status, ok := registers.StatusFor(err); ok {
		l.Bank.Set(registers.RegSPError, status)
	}
	l.Metrics.Frame(metrics.LinkSP, metrics.Result(err))
	slog.Warn("SP frame rejected", "err", err)
}

func (l *Link) dispatch(f sp.Frame) error {
	cmd := sp.NewCommand(l.reqFNC, f.FNC)
	payload := f.Payload()

	switch cmd {
	case sp.CmdReadParams:
	case sp.CmdReadIndexArray:
		rest, err := sp.SkipIndex(payload)
		if err != nil {
			return err
		}
		payload = rest
	default:
		if cmd.Known() {
			return fmt.Errorf("splink: %v is not supported: %w", cmd, fault.ErrProtocol)
		}
		return fmt.Errorf("splink: unmatched %v: %w", cmd, fault.ErrProtocol)
	}

	l.records = sp.Records(l.records[:0], payload)
	l.fields = l.fields[:0]
	for _, r := range l.records {
		l.fields = append(l.fields, r.Value)
	}
	var packed int
	l.Bank.Do(func(tx *registers.Tx) {
		packed = tx.PackFields(l.fields)
	})
	if packed < len(l.fields) {
		slog.Warn("Read window full, fields dropped", "command", cmd, "packed", packed, "fields", len(l.fields))
	}
	slog.Debug("SP response unpacked", "command", cmd, "fields", packed)
	return nil
}

func (l *Link) copyRaw(body []byte) {
	if len(body) > rawWindow {
		slog.Warn("Raw response truncated", "len", len(body), "max", rawWindow)
		body = body[:rawWindow]
	}
	l.Bank.Do(func(tx *registers.Tx) {
		tx.PutBytes(registers.ReadWindow, registers.ReadWindow.Start, body)
	})
	slog.Debug("Raw SP response copied", "bytes", len(body))
}

// ingest updates the tags named by the response template of the
// active command.
func (l *Link) ingest(body []byte) {
	if l.Tags == nil {
		return
	}
	id := int(l.active & 0xFF)
	tpl, err := l.Store.ReadTemplate(persistence.Response, id)
	if err != nil {
		slog.Error("Failed to read response template", "id", id, "err", err)
		return
	}
	names, ok := tpl.Payload()
	if !ok {
		return
	}
	tags.Ingest(l.Tags, body, tags.TemplateNames(names), l.History)
}
