// Package transport performs the network half of a call: one TCP connection per call,
// carrying exactly one request frame out and one response frame back.
//
//	Exchange ──dial──→ provider
//	         ──write request frame──→
//	         ←──read response frame──
//	         ──close──
//
// Deadlines come from the caller's context and apply to connect, send and receive alike.
// Cancelling the context unblocks any pending read or write.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"mprpc/protocol"
)

// Dialer opens connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Op names the step of an exchange that failed.
type Op string

const (
	OpConnect Op = "connect"
	OpSend    Op = "send"
	OpRecv    Op = "recv"
)

// OpError is returned by Exchange for every network failure.
type OpError struct {
	Op   Op
	Addr string
	Err  error
}

func (e *OpError) Error() string {
	if errno, ok := e.Errno(); ok {
		return fmt.Sprintf("%s %s error! errno: %d: %v", e.Op, e.Addr, int(errno), e.Err)
	}
	return fmt.Sprintf("%s %s error! %v", e.Op, e.Addr, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Errno returns the OS error number behind the failure, if there is one.
func (e *OpError) Errno() (syscall.Errno, bool) {
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		return errno, true
	}
	return 0, false
}

// Exchange sends frame to addr over a fresh TCP connection and returns the body of the
// single response frame. Responses declaring more than maxResponse bytes fail with
// protocol.ErrResponseTooLarge; 0 means protocol.DefaultMaxResponseSize.
// The connection is always closed before Exchange returns.
func Exchange(ctx context.Context, d Dialer, addr string, frame []byte, maxResponse uint32) ([]byte, error) {
	if d == nil {
		d = &net.Dialer{}
	}

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &OpError{Op: OpConnect, Addr: addr, Err: ctxErr(ctx, err)}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	// On cancellation, a deadline in the past makes blocked reads and writes return at once
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	n, err := conn.Write(frame)
	if err == nil && n != len(frame) {
		err = fmt.Errorf("short write: %d of %d bytes", n, len(frame))
	}
	if err != nil {
		return nil, &OpError{Op: OpSend, Addr: addr, Err: ctxErr(ctx, err)}
	}

	body, err := protocol.DecodeResponse(conn, maxResponse)
	if err != nil {
		return nil, &OpError{Op: OpRecv, Addr: addr, Err: ctxErr(ctx, err)}
	}
	return body, nil
}

// ctxErr prefers the context's reason over the timeout error it caused.
// The socket deadline and the context timer share one instant, so the socket can
// report first while ctx.Err is still nil. The only socket deadline ever set is the
// context's, so a socket timeout under a context deadline is that deadline.
func ctxErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("%w: %w", cerr, err)
	}
	if _, ok := ctx.Deadline(); ok && errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return err
}
