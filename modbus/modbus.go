// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import "fmt"

// Function Codes
const (
	FuncCodeReadHoldingRegisters   = 0x03
	FuncCodeWriteSingleRegister    = 0x06
	FuncCodeWriteMultipleRegisters = 0x10
)

// Exception Codes
const (
	ExceptionCodeIllegalFunction    = 0x01
	ExceptionCodeIllegalDataAddress = 0x02
	ExceptionCodeIllegalDataValue   = 0x03
)

// ProtocolDataUnit (PDU) is independent of underlying communication layers.
type ProtocolDataUnit struct {
	FunctionCode byte
	Data         []byte
}

// Exception builds the exception PDU for funcCode.
func Exception(funcCode, code byte) ProtocolDataUnit {
	return ProtocolDataUnit{
		FunctionCode: funcCode | 0x80,
		Data:         []byte{code},
	}
}

// IsException reports whether the PDU carries an exception response.
func (pdu ProtocolDataUnit) IsException() bool {
	return pdu.FunctionCode&0x80 != 0
}

func (pdu ProtocolDataUnit) String() string {
	return fmt.Sprintf("func=0x%02X data=% X", pdu.FunctionCode, pdu.Data)
}
