// File: wire/handle.go
// Author: momentics <momentics@gmail.com>
//
// NativeHandle: an owned, move-only wrapper around the PostgreSQL protocol
// descriptor, driving the v3 startup handshake via pgproto3.Frontend.

package wire

import (
	"github.com/jackc/pgx/v5/pgproto3"
)

// Status reflects a NativeHandle's protocol-level health.
type Status int

const (
	// StatusConnecting is the initial status until the handshake completes.
	StatusConnecting Status = iota
	// StatusOk means the handshake completed and the connection is usable.
	StatusOk
	// StatusBad means the connection failed or the server reported an error.
	StatusBad
)

// PollStatus is the outcome of one ConnectPoll step, matching spec.md §6's
// protocol-library contract: {Writing, Reading, Ok, Failed, Active}.
type PollStatus int

const (
	PollWriting PollStatus = iota
	PollReading
	PollOk
	PollFailed
	// PollActive means "still making progress, no I/O needed" — a libpq
	// legacy outcome this driver never produces itself, but pollop.Connect
	// still treats it as failure per spec.md §4.2's open question.
	PollActive
)

type handshakeStage int

const (
	stageConnecting handshakeStage = iota
	stageAwaitingWritable
	stageHandshake
	stageDone
)

// NativeHandle owns exactly one fd and, once the TCP connect completes, the
// pgproto3.Frontend driving the startup handshake over it. A null fd (-1)
// is a valid, "closed" state.
type NativeHandle struct {
	fd    int
	info  ConnInfo
	stage handshakeStage

	rawConn      *RawConn
	frontend     *pgproto3.Frontend
	startupSent  bool

	status       Status
	errorMessage string

	pid, secretKey uint32
	params         map[string]string
}

// Fd returns the owned descriptor, or -1 if closed/null.
func (h *NativeHandle) Fd() int {
	return h.fd
}

// Status reports the handle's current protocol-level health.
func (h *NativeHandle) Status() Status {
	return h.status
}

// ErrorMessage is the best-effort narrative error text from the protocol
// library, preserved across the failing completion.
func (h *NativeHandle) ErrorMessage() string {
	return h.errorMessage
}

// ProcessID and SecretKey are captured from BackendKeyData during the
// startup handshake; both are zero until the handshake completes.
func (h *NativeHandle) ProcessID() uint32 { return h.pid }
func (h *NativeHandle) SecretKey() uint32 { return h.secretKey }

// ParameterStatus returns a server runtime parameter captured during
// startup (e.g. "server_version"), or "" if unknown.
func (h *NativeHandle) ParameterStatus(name string) string {
	return h.params[name]
}

// Host/Port/Database/User expose the conninfo values captured at
// StartConnection time, for logging and metrics labels — the accessor
// supplement of SPEC_FULL.md §5.
func (h *NativeHandle) Host() string     { return h.info.Host }
func (h *NativeHandle) Port() string     { return h.info.Port }
func (h *NativeHandle) Database() string { return h.info.Database }
func (h *NativeHandle) User() string     { return h.info.User }

// Frontend exposes the underlying pgproto3 driver for use once the
// handshake has completed (PollOk), e.g. to run queries.
func (h *NativeHandle) Frontend() *pgproto3.Frontend {
	return h.frontend
}

// IsNull reports whether this handle owns no descriptor.
func (h *NativeHandle) IsNull() bool {
	return h.fd < 0
}

// Close releases the descriptor. Idempotent.
func (h *NativeHandle) Close() error {
	if h.fd < 0 {
		return nil
	}
	fd := h.fd
	h.fd = -1
	return closeFd(fd)
}
