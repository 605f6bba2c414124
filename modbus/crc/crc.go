// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package crc computes the Modbus RTU checksum (polynomial 0xA001
// reflected, seed 0xFFFF). The value is sent low byte first.
package crc

import "github.com/sigurn/crc16"

var table = crc16.MakeTable(crc16.CRC16_MODBUS)

// CRC accumulates a Modbus CRC16.
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

// Append appends the checksum of b to b, low byte first.
func Append(b []byte) []byte {
	sum := Checksum(b)
	return append(b, byte(sum), byte(sum>>8))
}
