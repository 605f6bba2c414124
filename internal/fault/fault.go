// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package fault holds the error classes shared by both links.
// Call sites wrap one of these with fmt.Errorf("...: %w", ...) and
// callers classify with errors.Is.
package fault

import "errors"

var (
	// ErrFormat reports framing or marker violations.
	ErrFormat = errors.New("format error")
	// ErrIntegrity reports a checksum mismatch on either link.
	ErrIntegrity = errors.New("integrity error")
	// ErrProtocol reports an unmatched command or an illegal request.
	ErrProtocol = errors.New("protocol error")
	// ErrResource reports exhaustion of a fixed capacity.
	ErrResource = errors.New("resource error")
	// ErrStorage reports a template or config read/write failure.
	ErrStorage = errors.New("storage error")
)
