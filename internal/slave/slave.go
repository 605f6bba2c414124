// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package slave implements the gateway's Modbus function handling on
// top of the register bank.
package slave

import (
	"bytes"
	"encoding/binary"
	"log/slog"

	"github.com/ffutop/sp-gateway/internal/persistence"
	"github.com/ffutop/sp-gateway/internal/registers"
	"github.com/ffutop/sp-gateway/modbus"
)

const (
	maxReadQuantity  = 125
	maxWriteQuantity = 123
)

// templateTail ends a template staged over 0x10. Its final zero is the
// pad byte of an odd-length payload and is not counted.
var templateTail = []byte{0x0C, 0x03, 0x00}

// Slave executes Modbus requests against a Bank.
type Slave struct {
	bank  *registers.Bank
	store persistence.Storage
}

// New creates a Slave. Writes to persisted control registers go to store.
func New(bank *registers.Bank, store persistence.Storage) *Slave {
	return &Slave{bank: bank, store: store}
}

// Process executes the Modbus Function Code against the register bank.
// Protocol violations are answered with an exception PDU, never an error.
func (s *Slave) Process(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	switch req.FunctionCode {
	case modbus.FuncCodeReadHoldingRegisters:
		return s.handleReadHoldingRegisters(req)
	case modbus.FuncCodeWriteSingleRegister:
		return s.handleWriteSingleRegister(req)
	case modbus.FuncCodeWriteMultipleRegisters:
		return s.handleWriteMultipleRegisters(req)
	default:
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalFunction), nil
	}
}

func (s *Slave) handleReadHoldingRegisters(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) != 4 {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])

	if quantity == 0 || int(address)+int(quantity) > registers.Count {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress), nil
	}
	if quantity > maxReadQuantity {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	data, err := s.bank.ReadRegisters(address, quantity)
	if err != nil {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress), nil
	}

	respData := make([]byte, 1+len(data))
	respData[0] = byte(len(data))
	copy(respData[1:], data)

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}, nil
}

func (s *Slave) handleWriteSingleRegister(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) != 4 {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	value := binary.BigEndian.Uint16(req.Data[2:4])

	if !registers.Control.Contains(address, 1) && !registers.WriteWindow.Contains(address, 1) {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress), nil
	}

	if address >= registers.ParamCount {
		s.bank.Set(address, value)
		return req, nil // Echo request
	}

	clamped := persistence.Clamp(int(address), value)
	if clamped != value {
		slog.Warn("Parameter clamped", "register", address, "value", value, "clamped", clamped)
	}
	s.bank.Set(address, clamped)
	if err := persistence.SaveParam(s.store, int(address), clamped); err != nil {
		slog.Error("Failed to persist parameter", "register", address, "err", err)
	}

	return req, nil // Echo request
}

func (s *Slave) handleWriteMultipleRegisters(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) < 5 {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	byteCount := int(req.Data[4])
	values := req.Data[5:]

	if address < registers.ReadWindow.Start || int(address)+int(quantity) > registers.Count {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress), nil
	}
	if quantity < 1 || quantity > maxWriteQuantity {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	if byteCount != 2*int(quantity) || len(values) != byteCount {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	actual := byteCount
	if bytes.HasSuffix(values, templateTail) {
		actual--
	}

	var err error
	s.bank.Do(func(tx *registers.Tx) {
		if err = tx.WriteRegisters(address, values); err == nil {
			tx.SetWriteLen(actual)
		}
	})
	if err != nil {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress), nil
	}

	respData := make([]byte, 4)
	binary.BigEndian.PutUint16(respData[0:2], address)
	binary.BigEndian.PutUint16(respData[2:4], quantity)

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}, nil
}
