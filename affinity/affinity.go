// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations are located
// in separate files (affinity_linux.go, affinity_windows.go, etc.) guarded by build tags.

package affinity

import "github.com/elsid/apq/errs"

// Pin pins the calling OS thread to a logical CPU, so a reactor poll
// goroutine or executor worker that has locked itself to that thread
// stays on that CPU instead of migrating under scheduler pressure. On
// platforms without a pinning primitive it returns an *errs.Error of
// Kind errs.NotSupported; callers treat that as best-effort and proceed
// unpinned.
func Pin(cpuID int) *errs.Error {
	return pinPlatform(cpuID)
}
