// File: wire/testing.go
// Author: momentics <momentics@gmail.com>
//
// Test-only constructors, exported so apqtest and other packages' tests
// can build a NativeHandle without a real socket.

package wire

// NewTestHandle builds a NativeHandle around an arbitrary (possibly fake)
// fd, already past the handshake, for use by tests outside this package.
func NewTestHandle(fd int, info ConnInfo) *NativeHandle {
	return &NativeHandle{
		fd:     fd,
		info:   info,
		stage:  stageDone,
		status: StatusOk,
		params: make(map[string]string),
	}
}

// NewTestHandleAtStage builds a NativeHandle before the handshake, for
// driving ConnectPoll from tests: with writing true its first ConnectPoll
// reports PollWriting; otherwise it starts at the stage that checks
// SO_ERROR on fd.
func NewTestHandleAtStage(fd int, info ConnInfo, writing bool) *NativeHandle {
	h := &NativeHandle{
		fd:     fd,
		info:   info,
		status: StatusConnecting,
		params: make(map[string]string),
	}
	if writing {
		h.stage = stageConnecting
	} else {
		h.stage = stageAwaitingWritable
	}
	return h
}

// NewTestHandleBad builds a NativeHandle already marked StatusBad, for
// exercising ConnectionStatusBad short-circuits from tests.
func NewTestHandleBad(fd int, info ConnInfo, errorMessage string) *NativeHandle {
	return &NativeHandle{
		fd:           fd,
		info:         info,
		stage:        stageDone,
		status:       StatusBad,
		errorMessage: errorMessage,
		params:       make(map[string]string),
	}
}
