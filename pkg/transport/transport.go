// Package transport defines the backend-agnostic contracts for peer-to-peer
// message exchange: a Sender pushes one typed message to one resolved peer
// address, a Receiver exposes an unbounded pull stream of inbound typed
// messages, and a Kind selects which wire backend implements both.
//
// Concrete backends live in the subpackages tcp, http, quic, udp and mem.
// The consensus layer above never sees backend-specific error types or
// connection state; every failure surfaces as a *transport.Error.
package transport

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Kind identifies the wire backend a Sender/Receiver pair is bound to.
type Kind int

const (
	KindUnknown Kind = iota
	KindTCP
	KindHTTP
	KindQUIC
	KindUDP
	KindMem
)

func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "tcp"
	case KindHTTP:
		return "http"
	case KindQUIC:
		return "quic"
	case KindUDP:
		return "udp"
	case KindMem:
		return "mem"
	default:
		return "unknown"
	}
}

// ParseKind maps a configuration string to a Kind. Unrecognized values map
// to KindUnknown; constructing a transport for KindUnknown fails with a
// ClassConfig error, so a bad configuration is caught at startup, not at the
// first send.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tcp":
		return KindTCP
	case "http":
		return KindHTTP
	case "quic", "h3", "http3":
		return KindQUIC
	case "udp":
		return KindUDP
	case "mem", "inproc":
		return KindMem
	default:
		return KindUnknown
	}
}

// Sender delivers typed messages to resolved peer addresses.
//
// Send attempts delivery at most once; retry policy belongs to the caller.
// A nil return means the backend accepted the message for transmission
// (written/queued), not that the peer acknowledged it. Implementations apply
// bounded timeouts and never block indefinitely. A Sender is safe for
// concurrent use; writes sharing one logical connection are serialized
// internally so frames of two messages never interleave.
type Sender[M any] interface {
	Send(ctx context.Context, addr string, msg M) error
	Close() error
}

// Receiver is a single-consumer stream of inbound messages.
//
// Recv blocks until a message has fully arrived and decoded, the context is
// done, or the receiver is closed. After Close the stream has ended for good:
// every Recv returns a ClassClosed error and a new Receiver must be
// constructed to resume listening. A malformed inbound payload is dropped
// (and logged by the backend); it never terminates the stream.
type Receiver[M any] interface {
	Recv(ctx context.Context) (M, error)
	Addr() net.Addr
	Close() error
}

// Directory resolves a peer identity to a reachable address for the bound
// backend. Lookups must be deterministic at a given point in time; staleness
// and refresh are the directory's concern, not the transport's.
type Directory[P comparable] interface {
	Resolve(peer P) (addr string, ok bool)
}

// Roster is a Directory that can also enumerate its peers, which is all
// Broadcast needs.
type Roster[P comparable] interface {
	Directory[P]
	Peers() []P
}

// SendTo resolves peer through dir and sends msg to the resulting address.
// An unresolvable peer is an address error, reported without touching the
// wire.
func SendTo[P comparable, M any](ctx context.Context, s Sender[M], dir Directory[P], peer P, msg M) error {
	addr, ok := dir.Resolve(peer)
	if !ok {
		return &Error{Class: ClassAddress, Op: "resolve", Err: ErrPeerUnknown}
	}
	return s.Send(ctx, addr, msg)
}

// Broadcast sends msg to every peer in the roster. It does not stop at the
// first failure; per-peer errors are joined so the caller can still tell
// which deliveries failed. Peers that no longer resolve are reported the
// same way as failed sends.
func Broadcast[P comparable, M any](ctx context.Context, s Sender[M], roster Roster[P], msg M) error {
	var errs []error
	for _, p := range roster.Peers() {
		if err := SendTo(ctx, s, roster, p, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
