//go:build !linux
// +build !linux

// File: reactor/stub_other.go
// Author: momentics <momentics@gmail.com>
//
// Non-Linux platforms have no readiness reactor in this module; wire
// connections are Linux-only for now (see SPEC_FULL.md Non-goals).

package reactor

import "errors"

// ErrNotSupported is returned by New on platforms without a Reactor
// implementation.
var ErrNotSupported = errors.New("reactor: not supported on this platform")

func newPlatformReactor(opts Options) (Reactor, error) {
	return nil, ErrNotSupported
}
