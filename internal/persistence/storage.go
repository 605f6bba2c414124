// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"

	"github.com/ffutop/sp-gateway/internal/fault"
	"github.com/ffutop/sp-gateway/sp"
)

const (
	// TemplateSize is the size of one stored template record.
	TemplateSize = 96
	// TemplateCount is the number of template slots per namespace.
	TemplateCount = 42

	erased = 0xFF
)

// ErrNotSet is returned by GetParam for a parameter never written.
var ErrNotSet = fmt.Errorf("persistence: parameter not set: %w", fault.ErrStorage)

// Namespace selects the request or response template area.
type Namespace int

const (
	Request Namespace = iota
	Response
)

func (ns Namespace) String() string {
	switch ns {
	case Request:
		return "request"
	case Response:
		return "response"
	}
	return fmt.Sprintf("namespace(%d)", int(ns))
}

// Template is a stored record: a length byte followed by the payload.
type Template [TemplateSize]byte

// ErasedTemplate is the content of a slot that was never written.
func ErasedTemplate() Template {
	var t Template
	for i := range t {
		t[i] = erased
	}
	return t
}

// NewTemplate builds a record around payload, padding with 0xFF.
func NewTemplate(payload []byte) (Template, error) {
	n := len(payload)
	if n == 0 || n > sp.MaxPayload {
		return Template{}, fmt.Errorf("persistence: template length %d out of range 1..%d: %w", n, sp.MaxPayload, fault.ErrStorage)
	}
	t := ErasedTemplate()
	t[0] = byte(n)
	copy(t[1:], payload)
	return t, nil
}

// Payload returns the stored bytes, or false for an erased, empty or
// corrupt record.
func (t *Template) Payload() ([]byte, bool) {
	n := int(t[0])
	if n == erased || n == 0 || n > sp.MaxPayload {
		return nil, false
	}
	return t[1 : 1+n], true
}

// Credential is a stored WiFi network name and password.
type Credential struct {
	SSID     string
	Password string
}

// Field widths of the system config, including the NUL terminator.
const (
	SSIDSize     = 32
	PasswordSize = 64
	SerialSize   = 24
	FirmwareSize = 16
)

// SystemConfig is the device identity block. Credentials are only stored.
type SystemConfig struct {
	Station  [3]Credential
	AP       Credential
	Serial   string
	Firmware string
}

// Storage persists templates, control parameters and the system config.
type Storage interface {
	ReadTemplate(ns Namespace, id int) (Template, error)
	WriteTemplate(ns Namespace, id int, t Template) error

	// GetParam returns ErrNotSet for a parameter never written.
	GetParam(index int) (uint16, error)
	SetParam(index int, value uint16) error

	LoadSystem() (SystemConfig, error)
	SaveSystem(cfg SystemConfig) error

	Close() error
}

func checkTemplateID(ns Namespace, id int) error {
	if ns != Request && ns != Response {
		return fmt.Errorf("persistence: unknown %v: %w", ns, fault.ErrStorage)
	}
	if id < 0 || id >= TemplateCount {
		return fmt.Errorf("persistence: %s template id %d out of range: %w", ns, id, fault.ErrStorage)
	}
	return nil
}

func checkParamIndex(index int) error {
	if index < 0 || index >= ParamCount {
		return fmt.Errorf("persistence: parameter index %d out of range: %w", index, fault.ErrStorage)
	}
	return nil
}
