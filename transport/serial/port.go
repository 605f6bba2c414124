// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package serial opens the gateway's serial lines and splits their byte
// streams into frames on inter-byte silence.
package serial

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ffutop/sp-gateway/internal/config"
	"github.com/grid-x/serial"
)

// Opener opens a configured line at the given speed. Tests substitute an
// in-process pipe.
type Opener func(cfg config.SerialConfig, baud int) (io.ReadWriteCloser, error)

// Open opens the device named in cfg with grid-x/serial.
func Open(cfg config.SerialConfig, baud int) (io.ReadWriteCloser, error) {
	sc := &serial.Config{
		Address:  cfg.Device,
		BaudRate: baud,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.Timeout, // Read timeout
	}
	if cfg.RS485 {
		sc.RS485.Enabled = true
		sc.RS485.DelayRtsBeforeSend = cfg.DelayRtsBeforeSend
		sc.RS485.DelayRtsAfterSend = cfg.DelayRtsAfterSend
		sc.RS485.RtsHighDuringSend = cfg.RtsHighDuringSend
		sc.RS485.RtsHighAfterSend = cfg.RtsHighAfterSend
		sc.RS485.RxDuringTx = cfg.RxDuringTx
	}

	port, err := serial.Open(sc)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", cfg.Device, err)
	}
	slog.Debug("Serial port opened", "device", cfg.Device, "baud", baud, "parity", cfg.Parity)
	return port, nil
}

// FrameDelay returns the t3.5 inter-frame silence for a line speed.
// Above 19200 baud it is fixed at 1750us.
func FrameDelay(baud int) time.Duration {
	if baud <= 0 || baud > 19200 {
		return 1750 * time.Microsecond
	}
	return time.Duration(35000000/baud) * time.Microsecond
}

// Silence returns the configured timeout in milliseconds, never shorter
// than the t3.5 time for baud.
func Silence(ms uint16, baud int) time.Duration {
	d := time.Duration(ms) * time.Millisecond
	if t35 := FrameDelay(baud); d < t35 {
		return t35
	}
	return d
}
