// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package registers

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ffutop/sp-gateway/internal/fault"
)

// Bank holds the holding registers shared by the Modbus link, the SP
// link and the staging task. One lock guards every register.
type Bank struct {
	mu   sync.RWMutex
	regs [Count]uint16

	// writeLen is the payload length of the last multi-register write.
	writeLen int
}

// New creates a bank with zeroed registers and idle command registers.
func New() *Bank {
	b := &Bank{}
	for _, addr := range commandRegisters {
		b.regs[addr] = Sentinel
	}
	return b
}

// Get returns a single register.
func (b *Bank) Get(addr uint16) uint16 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.regs[addr]
}

// Set writes a single register.
func (b *Bank) Set(addr, value uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.regs[addr] = value
}

// CompareAndSwap sets addr to new if it holds old.
func (b *Bank) CompareAndSwap(addr, old, new uint16) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.regs[addr] != old {
		return false
	}
	b.regs[addr] = new
	return true
}

// CompareAndReset returns addr to the sentinel if it still holds value.
func (b *Bank) CompareAndReset(addr, value uint16) bool {
	return b.CompareAndSwap(addr, value, Sentinel)
}

// Take returns a pending command and resets its register to the sentinel.
func (b *Bank) Take(addr uint16) (uint16, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v := b.regs[addr]
	if v == Sentinel {
		return 0, false
	}
	b.regs[addr] = Sentinel
	return v, true
}

// ReadRegisters reads a range of registers and returns them as BigEndian bytes.
func (b *Bank) ReadRegisters(address, quantity uint16) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := validateRange(address, quantity); err != nil {
		return nil, err
	}

	result := make([]byte, int(quantity)*2)
	for i := 0; i < int(quantity); i++ {
		binary.BigEndian.PutUint16(result[i*2:], b.regs[int(address)+i])
	}
	return result, nil
}

// WriteRegisters writes a range of registers from BigEndian bytes.
func (b *Bank) WriteRegisters(address uint16, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writeRegisters(address, data)
}

func (b *Bank) writeRegisters(address uint16, data []byte) error {
	quantity := len(data) / 2
	if len(data)%2 != 0 || quantity > Count {
		return fmt.Errorf("registers: odd or oversized data length %d: %w", len(data), fault.ErrProtocol)
	}
	if err := validateRange(address, uint16(quantity)); err != nil {
		return err
	}
	for i := 0; i < quantity; i++ {
		b.regs[int(address)+i] = binary.BigEndian.Uint16(data[i*2:])
	}
	return nil
}

// Do runs fn with the bank locked. Every sequence touching more than one
// register, or a handshake pair read by another task, goes through Do.
func (b *Bank) Do(fn func(tx *Tx)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&Tx{b: b})
}

func validateRange(address, quantity uint16) error {
	if quantity == 0 {
		return fmt.Errorf("registers: quantity must be greater than 0: %w", fault.ErrProtocol)
	}
	if int(address)+int(quantity) > Count {
		return fmt.Errorf("registers: range 0x%02X+%d out of bounds: %w", address, quantity, fault.ErrProtocol)
	}
	return nil
}
