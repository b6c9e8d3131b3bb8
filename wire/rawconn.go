// File: wire/rawconn.go
// Author: momentics <momentics@gmail.com>
//
// RawConn adapts a non-blocking socket fd to the io.Reader/io.Writer
// contract pgproto3.Frontend expects, so the wire-protocol driver sees
// ordinary blocking-style semantics while the underlying socket stays
// edge-triggered and non-blocking.

package wire

import (
	"errors"
	"io"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by RawConn.Read and by
// RawConn.DrainPending when the underlying syscall would otherwise block.
// connect.go treats it as "wait and retry", never as a hard failure.
var ErrWouldBlock = errors.New("wire: operation would block")

// RawConn is a non-blocking fd wrapped for use as pgproto3.NewFrontend's
// reader and writer. Writes that cannot complete immediately are buffered
// internally and drained later via DrainPending, so Frontend.Send/Flush
// never observe a short write or EAGAIN.
type RawConn struct {
	fd      int
	pending []byte
}

// NewRawConn wraps fd. The caller retains ownership of fd's lifecycle.
func NewRawConn(fd int) *RawConn {
	return &RawConn{fd: fd}
}

// Read implements io.Reader. EAGAIN/EWOULDBLOCK surfaces as ErrWouldBlock.
func (c *RawConn) Read(p []byte) (int, error) {
	n, err := unix.Read(c.fd, p)
	if err != nil {
		if isWouldBlock(err) {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write implements io.Writer. It always reports success for the full
// slice: unsent bytes (whether from a short write or immediate EAGAIN) are
// copied into the pending buffer and handed to the kernel later by
// DrainPending once the fd reports write-readiness.
func (c *RawConn) Write(p []byte) (int, error) {
	if len(c.pending) > 0 {
		c.pending = append(c.pending, p...)
		return len(p), nil
	}
	n, err := unix.Write(c.fd, p)
	if err != nil {
		if isWouldBlock(err) {
			c.pending = append(c.pending, p...)
			return len(p), nil
		}
		return 0, err
	}
	if n < len(p) {
		c.pending = append(c.pending, p[n:]...)
	}
	return len(p), nil
}

// HasPendingWrite reports whether bytes are buffered awaiting a
// write-ready event.
func (c *RawConn) HasPendingWrite() bool {
	return len(c.pending) > 0
}

// DrainPending pushes as much of the pending buffer to the kernel as it
// will accept. Returns ErrWouldBlock if bytes remain buffered (caller
// should keep waiting for write-readiness), nil once fully drained, or a
// genuine I/O error.
func (c *RawConn) DrainPending() error {
	for len(c.pending) > 0 {
		n, err := unix.Write(c.fd, c.pending)
		if err != nil {
			if isWouldBlock(err) {
				return ErrWouldBlock
			}
			return err
		}
		c.pending = c.pending[n:]
	}
	return nil
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}
