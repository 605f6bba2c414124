// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package crc computes the SP link checksum: CCITT polynomial 0x1021,
// seed 0, MSB-first. The value is sent high byte first.
package crc

import "github.com/sigurn/crc16"

var table = crc16.MakeTable(crc16.CRC16_XMODEM)

// CRC accumulates an SP CRC16.
type CRC struct {
	value uint16
}

func (crc *CRC) Reset() *CRC {
	crc.value = crc16.Init(table)
	return crc
}

func (crc *CRC) PushBytes(bs []byte) *CRC {
	crc.value = crc16.Update(crc.value, bs, table)
	return crc
}

func (crc *CRC) Value() uint16 {
	return crc16.Complete(crc.value, table)
}

// Checksum returns the CRC of b.
func Checksum(b []byte) uint16 {
	return crc16.Checksum(b, table)
}

// Append appends the checksum of b to b, high byte first.
func Append(b []byte) []byte {
	sum := Checksum(b)
	return append(b, byte(sum>>8), byte(sum))
}
