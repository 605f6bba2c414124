// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package registers

import (
	"errors"

	"github.com/ffutop/sp-gateway/internal/fault"
	"github.com/ffutop/sp-gateway/sp"
)

// StatusFor maps an SP link error to the code reported in RegSPError.
// Errors with no status of their own leave the register unchanged and
// report false.
func StatusFor(err error) (uint16, bool) {
	switch {
	case err == nil:
		return StatusOK, true
	case errors.Is(err, sp.ErrShortFrame):
		return StatusShortFrame, true
	case errors.Is(err, fault.ErrIntegrity):
		return StatusCRC, true
	case errors.Is(err, fault.ErrResource):
		return StatusResource, true
	case errors.Is(err, fault.ErrFormat):
		return StatusMarkers, true
	}
	return 0, false
}
