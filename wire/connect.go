// File: wire/connect.go
// Author: momentics <momentics@gmail.com>
//
// The protocol-library contract of spec.md §6: start_connection,
// assign_socket, connect_poll. Grounded on the dial/startup-handshake shape
// of client/client.go's dialAndHandshake and the rxAuthenticationX/hexMD5
// pattern of the jackc-pgx reference pgconn.go, adapted to a non-blocking,
// poll-driven state machine instead of a blocking dial.

package wire

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/jackc/pgx/v5/pgproto3"
	"golang.org/x/sys/unix"

	"github.com/elsid/apq/errs"
)

// StartConnection parses conninfo and initiates a non-blocking TCP connect.
// Mirrors spec.md §6's `start_connection(conninfo) → error`.
func StartConnection(conninfo string) (*NativeHandle, *errs.Error) {
	info, err := ParseConnInfo(conninfo)
	if err != nil {
		return nil, errs.Wrap(err, errs.ConnectionStartFailed, "parse conninfo")
	}

	sa, resolveErr := resolveSockaddr(info.Host, info.Port)
	if resolveErr != nil {
		return nil, errs.Wrap(resolveErr, errs.ConnectionStartFailed, "resolve address").
			WithDetail("host", info.Host).WithDetail("port", info.Port)
	}

	domain := unix.AF_INET
	if _, ok := sa.(*unix.SockaddrInet6); ok {
		domain = unix.AF_INET6
	}
	fd, sockErr := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if sockErr != nil {
		return nil, errs.Wrap(sockErr, errs.ConnectionStartFailed, "socket")
	}

	if connErr := unix.Connect(fd, sa); connErr != nil && connErr != unix.EINPROGRESS {
		_ = unix.Close(fd)
		return nil, errs.Wrap(connErr, errs.ConnectionStartFailed, "connect")
	}

	return &NativeHandle{
		fd:     fd,
		info:   info,
		stage:  stageConnecting,
		status: StatusConnecting,
		params: make(map[string]string),
	}, nil
}

func resolveSockaddr(host, port string) (unix.Sockaddr, error) {
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", port, err)
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return &unix.SockaddrInet4{Port: portNum, Addr: [4]byte(v4)}, nil
		}
	}
	for _, ip := range ips {
		if v6 := ip.To16(); v6 != nil {
			return &unix.SockaddrInet6{Port: portNum, Addr: [16]byte(v6)}, nil
		}
	}
	return nil, fmt.Errorf("no usable address for host %q", host)
}

// AssignSocket yields the fd for reactor registration. Mirrors spec.md
// §6's `assign_socket() → error`.
func (h *NativeHandle) AssignSocket() (uintptr, *errs.Error) {
	if h.fd < 0 {
		return 0, errs.New(errs.AssignSocketFailed, "native handle has no socket")
	}
	return uintptr(h.fd), nil
}

// ConnectPoll advances the handshake by exactly one step and reports which
// readiness direction (if any) the caller must wait for next. Mirrors
// spec.md §6's `connect_poll() → {Writing, Reading, Ok, Failed, Active}`.
func (h *NativeHandle) ConnectPoll() (PollStatus, *errs.Error) {
	switch h.stage {
	case stageConnecting:
		h.stage = stageAwaitingWritable
		return PollWriting, nil

	case stageAwaitingWritable:
		errno, err := unix.GetsockoptInt(h.fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			return h.fail("getsockopt SO_ERROR", err)
		}
		if errno != 0 {
			return h.fail("connect", unix.Errno(errno))
		}
		h.rawConn = NewRawConn(h.fd)
		h.frontend = pgproto3.NewFrontend(h.rawConn, h.rawConn)
		h.stage = stageHandshake
		return h.pumpHandshake()

	case stageHandshake:
		return h.pumpHandshake()

	default: // stageDone
		return PollOk, nil
	}
}

func (h *NativeHandle) pumpHandshake() (PollStatus, *errs.Error) {
	if !h.startupSent {
		startup := &pgproto3.StartupMessage{
			ProtocolVersion: pgproto3.ProtocolVersionNumber,
			Parameters:      h.startupParameters(),
		}
		h.frontend.Send(startup)
		if err := h.frontend.Flush(); err != nil {
			return h.fail("send startup", err)
		}
		h.startupSent = true
	}

	if h.rawConn.HasPendingWrite() {
		if err := h.rawConn.DrainPending(); err != nil {
			if errors.Is(err, ErrWouldBlock) {
				return PollWriting, nil
			}
			return h.fail("flush", err)
		}
	}

	for {
		msg, err := h.frontend.Receive()
		if err != nil {
			if errors.Is(err, ErrWouldBlock) {
				return PollReading, nil
			}
			return h.fail("receive", err)
		}

		switch m := msg.(type) {
		case *pgproto3.BackendKeyData:
			h.pid, h.secretKey = m.ProcessID, m.SecretKey
		case *pgproto3.ParameterStatus:
			h.params[m.Name] = m.Value
		case *pgproto3.Authentication:
			if aerr := h.handleAuthentication(m); aerr != nil {
				return PollFailed, aerr
			}
			if h.rawConn.HasPendingWrite() {
				if err := h.rawConn.DrainPending(); err != nil {
					if errors.Is(err, ErrWouldBlock) {
						return PollWriting, nil
					}
					return h.fail("flush password", err)
				}
			}
		case *pgproto3.ReadyForQuery:
			h.stage = stageDone
			h.status = StatusOk
			return PollOk, nil
		case *pgproto3.ErrorResponse:
			h.status = StatusBad
			h.errorMessage = m.Message
			return PollFailed, errs.New(errs.ConnectPollFailed, m.Message).
				WithDetail("code", m.Code).WithDetail("severity", m.Severity)
		case *pgproto3.NoticeResponse:
			// best-effort diagnostics only, never a poll outcome
		default:
			// unrecognized startup-phase message, ignore and keep pumping
		}
	}
}

func (h *NativeHandle) handleAuthentication(msg *pgproto3.Authentication) *errs.Error {
	switch msg.Type {
	case pgproto3.AuthTypeOk:
		return nil
	case pgproto3.AuthTypeCleartextPassword:
		h.frontend.Send(&pgproto3.PasswordMessage{Password: h.info.Password})
	case pgproto3.AuthTypeMD5Password:
		digested := "md5" + hexMD5(hexMD5(h.info.Password+h.info.User)+string(msg.Salt[:]))
		h.frontend.Send(&pgproto3.PasswordMessage{Password: digested})
	default:
		return errs.New(errs.ConnectPollFailed, "unsupported authentication method")
	}
	if err := h.frontend.Flush(); err != nil {
		return errs.Wrap(err, errs.ConnectPollFailed, "send password")
	}
	return nil
}

func (h *NativeHandle) startupParameters() map[string]string {
	params := make(map[string]string, len(h.info.RuntimeParams)+2)
	for k, v := range h.info.RuntimeParams {
		params[k] = v
	}
	params["user"] = h.info.User
	if h.info.Database != "" {
		params["database"] = h.info.Database
	}
	return params
}

func (h *NativeHandle) fail(context string, err error) (PollStatus, *errs.Error) {
	h.status = StatusBad
	h.errorMessage = fmt.Sprintf("%s: %v", context, err)
	return PollFailed, errs.Wrap(err, errs.ConnectPollFailed, context)
}

func hexMD5(s string) string {
	hash := md5.New()
	_, _ = hash.Write([]byte(s))
	return hex.EncodeToString(hash.Sum(nil))
}

func closeFd(fd int) error {
	return unix.Close(fd)
}
