//go:build windows
// +build windows

// File: affinity/affinity_windows.go
// Author: momentics <momentics@gmail.com>
//
// Windows-specific implementation for setting thread CPU affinity.

package affinity

import (
	"syscall"

	"github.com/elsid/apq/errs"
)

// pinPlatform sets thread affinity to a given CPU for Windows.
func pinPlatform(cpuID int) *errs.Error {
	kernel32 := syscall.NewLazyDLL("kernel32.dll")
	procSetThreadAffinityMask := kernel32.NewProc("SetThreadAffinityMask")
	procGetCurrentThread := kernel32.NewProc("GetCurrentThread")
	hThread, _, _ := procGetCurrentThread.Call()
	mask := uintptr(1) << cpuID
	ret, _, callErr := procSetThreadAffinityMask.Call(hThread, mask)
	if ret == 0 {
		return errs.Wrap(callErr, errs.Io, "affinity: SetThreadAffinityMask failed")
	}
	return nil
}
