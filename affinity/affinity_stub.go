//go:build !linux && !windows
// +build !linux,!windows

// File: affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.
// Returns error to indicate unavailability.

package affinity

import "github.com/elsid/apq/errs"

// pinPlatform is a stub for platforms where CPU affinity is not supported.
func pinPlatform(cpuID int) *errs.Error {
	return errs.New(errs.NotSupported, "affinity: not supported on this platform")
}
