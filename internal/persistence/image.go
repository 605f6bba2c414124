// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ffutop/sp-gateway/internal/fault"
)

// image implements Storage over a byte slice in the shared layout.
// Backends supply the slice and an onWrite hook that makes a change
// durable.
type image struct {
	mu      sync.Mutex
	data    []byte
	onWrite func(off, n int) error
}

// attach validates data, formatting it when the signature is missing.
// It reports whether the image was formatted.
func (im *image) attach(data []byte, onWrite func(off, n int) error) (bool, error) {
	if len(data) < imageSize {
		return false, fmt.Errorf("persistence: image of %d bytes, want %d: %w", len(data), imageSize, fault.ErrStorage)
	}
	im.data = data
	im.onWrite = onWrite
	if formatted(data) {
		return false, nil
	}
	format(data)
	return true, im.commit(0, imageSize)
}

func (im *image) commit(off, n int) error {
	if im.onWrite == nil {
		return nil
	}
	if err := im.onWrite(off, n); err != nil {
		return fmt.Errorf("persistence: %v: %w", err, fault.ErrStorage)
	}
	return nil
}

func (im *image) ready() error {
	if im.data == nil {
		return fmt.Errorf("persistence: storage not open: %w", fault.ErrStorage)
	}
	return nil
}

func (im *image) ReadTemplate(ns Namespace, id int) (Template, error) {
	var t Template
	if err := checkTemplateID(ns, id); err != nil {
		return t, err
	}
	im.mu.Lock()
	defer im.mu.Unlock()
	if err := im.ready(); err != nil {
		return t, err
	}
	copy(t[:], im.data[templateOffset(ns, id):])
	return t, nil
}

func (im *image) WriteTemplate(ns Namespace, id int, t Template) error {
	if err := checkTemplateID(ns, id); err != nil {
		return err
	}
	im.mu.Lock()
	defer im.mu.Unlock()
	if err := im.ready(); err != nil {
		return err
	}
	off := templateOffset(ns, id)
	copy(im.data[off:off+TemplateSize], t[:])
	return im.commit(off, TemplateSize)
}

func (im *image) GetParam(index int) (uint16, error) {
	if err := checkParamIndex(index); err != nil {
		return 0, err
	}
	im.mu.Lock()
	defer im.mu.Unlock()
	if err := im.ready(); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(im.data[paramOffset(index):])
	if v == 0xFFFF {
		return 0, ErrNotSet
	}
	return v, nil
}

func (im *image) SetParam(index int, value uint16) error {
	if err := checkParamIndex(index); err != nil {
		return err
	}
	im.mu.Lock()
	defer im.mu.Unlock()
	if err := im.ready(); err != nil {
		return err
	}
	off := paramOffset(index)
	binary.LittleEndian.PutUint16(im.data[off:], value)
	return im.commit(off, 2)
}

func (im *image) LoadSystem() (SystemConfig, error) {
	im.mu.Lock()
	defer im.mu.Unlock()
	if err := im.ready(); err != nil {
		return SystemConfig{}, err
	}
	return decodeSystem(im.data[offsetSystem:imageSize]), nil
}

func (im *image) SaveSystem(cfg SystemConfig) error {
	im.mu.Lock()
	defer im.mu.Unlock()
	if err := im.ready(); err != nil {
		return err
	}
	encodeSystem(im.data[offsetSystem:imageSize], cfg)
	return im.commit(offsetSystem, sizeSystem)
}

// detach drops the slice so later calls fail instead of touching
// unmapped memory.
func (im *image) detach() {
	im.mu.Lock()
	im.data = nil
	im.mu.Unlock()
}
