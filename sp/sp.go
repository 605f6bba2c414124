// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package sp implements the framing of the SP serial link:
//
//	FF FF | stuffed(SOH DAD SAD ISI FNC ... STX ... ETX) | CRChi CRClo
//
// The four reserved markers are escaped with a DLE prefix inside the
// stuffed section.
package sp

import "fmt"

// Reserved markers.
const (
	SOH = 0x01
	STX = 0x02
	ETX = 0x03
	ISI = 0x1F
	DLE = 0x10
)

// Payload separators.
const (
	HT = 0x09
	LF = 0x0A
	FF = 0x0C
	CR = 0x0D
)

// SyncByte is sent twice ahead of every frame.
const SyncByte = 0xFF

// Command is the dispatch key of a response: the function byte of the
// request in the high byte and the function byte of the response in the
// low byte.
type Command uint16

const (
	CmdReadParams           Command = 0x1D03
	CmdWriteParam           Command = 0x037F
	CmdReadIndexArray       Command = 0x0C14
	CmdWriteIndexedArray    Command = 0x147F
	CmdReadTimeStampsArray  Command = 0x0E16
	CmdReadTimeSliceArchive Command = 0x1820
	CmdWriteArchiveStruct   Command = 0x1921
)

// NewCommand combines the request and response function bytes.
func NewCommand(requestFNC, responseFNC byte) Command {
	return Command(uint16(requestFNC)<<8 | uint16(responseFNC))
}

// Known reports whether c is in the command table.
func (c Command) Known() bool {
	_, ok := commandNames[c]
	return ok
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Command(0x%04X)", uint16(c))
}

var commandNames = map[Command]string{
	CmdReadParams:           "ReadParams",
	CmdWriteParam:           "WriteParam",
	CmdReadIndexArray:       "ReadIndexArray",
	CmdWriteIndexedArray:    "WriteIndexedArray",
	CmdReadTimeStampsArray:  "ReadTimeStampsArray",
	CmdReadTimeSliceArchive: "ReadTimeSliceArchive",
	CmdWriteArchiveStruct:   "WriteArchiveStruct",
}

func isMarker(b byte) bool {
	return b == SOH || b == ISI || b == STX || b == ETX
}
