// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package registers

// Tx is a locked view of a Bank. It is only valid inside Bank.Do.
type Tx struct {
	b *Bank
}

func (tx *Tx) Get(addr uint16) uint16 {
	return tx.b.regs[addr]
}

func (tx *Tx) Set(addr, value uint16) {
	tx.b.regs[addr] = value
}

// WriteRegisters writes BigEndian data starting at address.
func (tx *Tx) WriteRegisters(address uint16, data []byte) error {
	return tx.b.writeRegisters(address, data)
}

// WriteLen returns the payload length recorded by the last staged write.
func (tx *Tx) WriteLen() int {
	return tx.b.writeLen
}

// SetWriteLen records the payload length of a staged write.
func (tx *Tx) SetWriteLen(n int) {
	tx.b.writeLen = n
}

// PutBytes packs data two bytes per register, big-endian, starting at
// address. An odd trailing byte lands in the high half of its register.
// Bytes that would pass the end of region r are dropped. It returns the
// number of registers written.
func (tx *Tx) PutBytes(r Region, address uint16, data []byte) int {
	n := 0
	for i := 0; i < len(data) && address < r.End(); i += 2 {
		v := uint16(data[i]) << 8
		if i+1 < len(data) {
			v |= uint16(data[i+1])
		}
		tx.b.regs[address] = v
		address++
		n++
	}
	return n
}

// Bytes unpacks n bytes from the registers starting at address.
func (tx *Tx) Bytes(address uint16, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		v := tx.b.regs[int(address)+i/2]
		if i%2 == 0 {
			out[i] = byte(v >> 8)
		} else {
			out[i] = byte(v)
		}
	}
	return out
}

// Fill sets every register of r to value.
func (tx *Tx) Fill(r Region, value uint16) {
	for a := r.Start; a < r.End(); a++ {
		tx.b.regs[a] = value
	}
}

// PackFields writes fields into the read window: a count register, then
// for each field a length register followed by its packed bytes. It stops
// before the first field that does not fit and returns how many were
// written.
func (tx *Tx) PackFields(fields [][]byte) int {
	r := ReadWindow
	addr := r.Start + 1
	written := 0
	for _, f := range fields {
		need := 1 + (len(f)+1)/2
		if int(addr)+need > int(r.End()) {
			break
		}
		tx.b.regs[addr] = uint16(len(f))
		addr++
		addr += uint16(tx.PutBytes(r, addr, f))
		written++
	}
	tx.b.regs[r.Start] = uint16(written)
	return written
}
