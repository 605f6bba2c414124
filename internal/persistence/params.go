// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ffutop/sp-gateway/internal/registers"
)

// ParamCount is the number of persisted control registers.
const ParamCount = registers.ParamCount

// CurrentVersion is the layout version kept in parameter 0. A stored
// version that differs resets every parameter to its default.
const CurrentVersion = 110

const maxRetries = 3

// ParamMeta bounds a persisted control register.
type ParamMeta struct {
	Min, Max, Default uint16
}

// Params describes control registers 0x00..0x09.
var Params = [ParamCount]ParamMeta{
	{0, 999, CurrentVersion}, // version
	{0, 250, 6},              // modbus slave address
	{0, 9, 5},                // modbus baud index
	{2, 10, 4},               // modbus timeout, ms
	{0, 29, 0},               // SP DAD
	{0, 255, 0x80},           // SP SAD
	{0, 9, 9},                // SP baud index
	{4, 100, 40},             // SP timeout, ms
	{0, 511, 0},              // reserved
	{0, 2, 2},                // wifi mode
}

// Clamp limits v to the range of parameter index.
func Clamp(index int, v uint16) uint16 {
	m := Params[index]
	if v < m.Min {
		return m.Min
	}
	if v > m.Max {
		return m.Max
	}
	return v
}

// SaveParam clamps and stores a parameter, retrying transient failures.
func SaveParam(st Storage, index int, v uint16) error {
	if err := checkParamIndex(index); err != nil {
		return err
	}
	v = Clamp(index, v)
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err = st.SetParam(index, v); err == nil {
			return nil
		}
		slog.Warn("Failed to store parameter", "index", index, "attempt", attempt, "err", err)
	}
	return err
}

// LoadParams fills the persisted control registers of bank at boot.
func LoadParams(st Storage, bank *registers.Bank) error {
	version, err := st.GetParam(0)
	if err != nil || version != CurrentVersion {
		slog.Info("Parameter version changed, writing defaults", "stored", version, "current", CurrentVersion, "err", err)
		return writeDefaults(st, bank)
	}

	values := make([]uint16, ParamCount)
	for i := range values {
		v, err := st.GetParam(i)
		switch {
		case errors.Is(err, ErrNotSet):
			slog.Warn("Parameter not found, using default", "index", i)
			v = Params[i].Default
		case err != nil:
			slog.Warn("Failed to read parameter, using default", "index", i, "err", err)
			v = Params[i].Default
		}
		values[i] = Clamp(i, v)
	}

	bank.Do(func(tx *registers.Tx) {
		for i, v := range values {
			tx.Set(uint16(i), v)
		}
	})
	return nil
}

func writeDefaults(st Storage, bank *registers.Bank) error {
	var firstErr error
	bank.Do(func(tx *registers.Tx) {
		for i, m := range Params {
			tx.Set(uint16(i), m.Default)
		}
	})
	for i, m := range Params {
		if err := SaveParam(st, i, m.Default); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("persistence: write default parameter %d: %w", i, err)
		}
	}
	return firstErr
}
