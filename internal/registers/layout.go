// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package registers

// Count is the number of holding registers exposed on the Modbus link.
const Count = 224

// Sentinel marks an idle command register.
const Sentinel uint16 = 0xFFFF

// Region is a contiguous block of the bank.
type Region struct {
	Name  string
	Start uint16
	Count uint16
}

// End returns the first address past the region.
func (r Region) End() uint16 {
	return r.Start + r.Count
}

// Contains reports whether [addr, addr+qty) lies wholly inside r.
func (r Region) Contains(addr, qty uint16) bool {
	return qty > 0 && addr >= r.Start && int(addr)+int(qty) <= int(r.End())
}

var (
	// Control holds configuration, status and command registers.
	Control = Region{Name: "control", Start: 0x00, Count: 32}
	// ReadWindow receives data from the SP link and from template reads.
	ReadWindow = Region{Name: "read", Start: 0x20, Count: 96}
	// WriteWindow stages template writes from the Modbus master.
	WriteWindow = Region{Name: "write", Start: 0x80, Count: 96}
)

// Control registers. The first ParamCount are mirrored to persistent storage.
const (
	RegVersion         uint16 = 0x00
	RegSlaveAddr       uint16 = 0x01
	RegModbusBaud      uint16 = 0x02
	RegModbusTimeout   uint16 = 0x03 // inter-frame silence, ms
	RegSPDestAddr      uint16 = 0x04
	RegSPSrcAddr       uint16 = 0x05
	RegSPBaud          uint16 = 0x06
	RegSPTimeout       uint16 = 0x07 // inter-frame silence, ms
	RegReserved        uint16 = 0x08
	RegWiFiMode        uint16 = 0x09
	RegSPError         uint16 = 0x0A
	RegSPCommand       uint16 = 0x0B
	RegReadResponse    uint16 = 0x0C
	RegWriteResponse   uint16 = 0x0D
	RegReadRequest     uint16 = 0x0E
	RegWriteRequest    uint16 = 0x0F
	RegRepeat          uint16 = 0x17 // seconds
	RegTarget          uint16 = 0x18
	RegConfigUpdate    uint16 = 0x19
	RegConfigOperation uint16 = 0x1A // [15] read, [14:8] type, [7:0] index
	RegConfigIndex     uint16 = 0x1B
)

// ParamCount is the number of persisted control registers.
const ParamCount = 10

// RepeatMin is the shortest auto-repeat period in seconds.
const RepeatMin = 5

// RawFlag in the high byte of a command selects raw copy of the response.
const RawFlag uint16 = 0xFF00

// SP link status codes written to RegSPError.
const (
	StatusOK         uint16 = 0x0000
	StatusShortFrame uint16 = 0xFFFF
	StatusCRC        uint16 = 0xFFFE
	StatusResource   uint16 = 0xFFFD
	StatusMarkers    uint16 = 0xFFFC
)

// commandRegisters start out idle.
var commandRegisters = [...]uint16{
	RegSPCommand,
	RegReadResponse,
	RegWriteResponse,
	RegReadRequest,
	RegWriteRequest,
	RegConfigOperation,
	RegConfigIndex,
}

// BaudRates maps the baud index registers to line speeds.
var BaudRates = [...]int{300, 600, 1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200}

// BaudRate returns the line speed for a baud index.
func BaudRate(index uint16) (int, bool) {
	if int(index) >= len(BaudRates) {
		return 0, false
	}
	return BaudRates[index], true
}
