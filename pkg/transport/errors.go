package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Class partitions every transport failure into the taxonomy callers branch
// on. Backend-specific causes stay wrapped inside Err; upstream code never
// needs to know which backend produced them.
type Class int

const (
	// ClassConfig marks an invalid transport configuration (e.g. KindUnknown).
	// Fatal at startup; a process should not proceed past it.
	ClassConfig Class = iota + 1
	// ClassAddress marks a malformed, unresolvable or unreachable address.
	ClassAddress
	// ClassCodec marks a marshal/unmarshal failure for one message.
	ClassCodec
	// ClassIO marks a backend I/O failure, with the cause wrapped.
	ClassIO
	// ClassTimeout marks an operation that gave up waiting; distinguishes
	// "no response" from explicit failure for retry policy upstream.
	ClassTimeout
	// ClassClosed marks use of a closed sender or an ended receive stream.
	ClassClosed
)

func (c Class) String() string {
	switch c {
	case ClassConfig:
		return "config"
	case ClassAddress:
		return "address"
	case ClassCodec:
		return "codec"
	case ClassIO:
		return "io"
	case ClassTimeout:
		return "timeout"
	case ClassClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Sentinel causes shared across backends.
var (
	ErrClosed      = errors.New("transport closed")
	ErrPeerUnknown = errors.New("peer not in directory")
)

// Error is the uniform failure value produced by every Sender and Receiver
// regardless of backend.
type Error struct {
	Class Class
	Op    string // operation that failed: "dial", "send", "listen", "recv", ...
	Addr  string // remote or bind address, when known
	Err   error  // underlying cause, possibly backend-specific
}

func (e *Error) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("transport: %s %s %s: %v", e.Op, e.Addr, e.Class, e.Err)
	}
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Timeout reports whether the error is a timeout, satisfying the shape of
// net.Error for callers that already branch on it.
func (e *Error) Timeout() bool { return e.Class == ClassTimeout }

// ClassOf extracts the Class from err, or 0 if err is not a transport error.
func ClassOf(err error) Class {
	var te *Error
	if errors.As(err, &te) {
		return te.Class
	}
	return 0
}

// IsClosed reports whether err marks a closed transport or an ended stream.
func IsClosed(err error) bool { return ClassOf(err) == ClassClosed }

// Errf builds a classified transport error.
func Errf(class Class, op, addr string, err error) *Error {
	return &Error{Class: class, Op: op, Addr: addr, Err: err}
}

// ClassifyNetErr maps a raw network error to the taxonomy: timeouts to
// ClassTimeout, address/DNS problems to ClassAddress, everything else to
// ClassIO. Used by backends when wrapping dial/read/write failures.
func ClassifyNetErr(op, addr string, err error) *Error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Errf(ClassTimeout, op, addr, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Errf(ClassTimeout, op, addr, err)
	}
	var ae *net.AddrError
	var de *net.DNSError
	if errors.As(err, &ae) || errors.As(err, &de) {
		return Errf(ClassAddress, op, addr, err)
	}
	return Errf(ClassIO, op, addr, err)
}

// RecvErr maps the outcome of a Recv select to the taxonomy: context
// cancellation ends the pull as ClassClosed, a deadline as ClassTimeout.
func RecvErr(ctx context.Context) *Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Errf(ClassTimeout, "recv", "", ctx.Err())
	}
	return Errf(ClassClosed, "recv", "", ctx.Err())
}
