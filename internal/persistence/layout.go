// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"bytes"
	"encoding/binary"
)

// Image layout shared by the memory, file and mmap backends.
// Multi-byte values are little-endian.
//
// - Signature: 4 bytes (Offset 0)
// - Request templates: 42 * 96 bytes
// - Response templates: 42 * 96 bytes
// - Params: 10 * 2 bytes, 0xFFFF when unset
// - System config: fixed-width NUL padded strings
const (
	signature uint32 = 0x55AAC3D9

	sizeSignature = 4
	sizeTemplates = TemplateCount * TemplateSize
	sizeParams    = ParamCount * 2
	sizeSystem    = 3*SSIDSize + 3*PasswordSize + SSIDSize + PasswordSize + SerialSize + FirmwareSize

	offsetRequest  = sizeSignature
	offsetResponse = offsetRequest + sizeTemplates
	offsetParams   = offsetResponse + sizeTemplates
	offsetSystem   = offsetParams + sizeParams

	imageSize = offsetSystem + sizeSystem
)

func templateOffset(ns Namespace, id int) int {
	if ns == Response {
		return offsetResponse + id*TemplateSize
	}
	return offsetRequest + id*TemplateSize
}

func paramOffset(index int) int {
	return offsetParams + index*2
}

// formatted reports whether data carries a valid signature.
func formatted(data []byte) bool {
	return binary.LittleEndian.Uint32(data) == signature
}

// format erases templates and params, clears the system block and
// signs the image.
func format(data []byte) {
	for i := offsetRequest; i < offsetSystem; i++ {
		data[i] = erased
	}
	for i := offsetSystem; i < imageSize; i++ {
		data[i] = 0
	}
	binary.LittleEndian.PutUint32(data, signature)
}

func encodeSystem(dst []byte, cfg SystemConfig) {
	w := dst
	for _, s := range cfg.Station {
		putString(w[:SSIDSize], s.SSID)
		w = w[SSIDSize:]
	}
	for _, s := range cfg.Station {
		putString(w[:PasswordSize], s.Password)
		w = w[PasswordSize:]
	}
	putString(w[:SSIDSize], cfg.AP.SSID)
	w = w[SSIDSize:]
	putString(w[:PasswordSize], cfg.AP.Password)
	w = w[PasswordSize:]
	putString(w[:SerialSize], cfg.Serial)
	w = w[SerialSize:]
	putString(w[:FirmwareSize], cfg.Firmware)
}

func decodeSystem(src []byte) SystemConfig {
	var cfg SystemConfig
	r := src
	for i := range cfg.Station {
		cfg.Station[i].SSID = getString(r[:SSIDSize])
		r = r[SSIDSize:]
	}
	for i := range cfg.Station {
		cfg.Station[i].Password = getString(r[:PasswordSize])
		r = r[PasswordSize:]
	}
	cfg.AP.SSID = getString(r[:SSIDSize])
	r = r[SSIDSize:]
	cfg.AP.Password = getString(r[:PasswordSize])
	r = r[PasswordSize:]
	cfg.Serial = getString(r[:SerialSize])
	r = r[SerialSize:]
	cfg.Firmware = getString(r[:FirmwareSize])
	return cfg
}

// putString writes s NUL terminated, truncating to len(dst)-1 bytes.
func putString(dst []byte, s string) {
	n := copy(dst[:len(dst)-1], s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

func getString(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		src = src[:i]
	}
	return string(src)
}
