// Package mem implements the transport contracts in-process. Addresses are
// arbitrary names in a process-wide registry; messages still round-trip
// through the codec so value semantics match the networked backends. Useful
// for tests and single-process setups.
package mem

import (
	"context"
	"errors"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/Fantom-foundation/libtransport/pkg/codec"
	"github.com/Fantom-foundation/libtransport/pkg/transport"
)

// Options configures both sides of the backend.
type Options struct {
	// Codec marshals outbound and unmarshals inbound messages. Required.
	Codec codec.Codec
}

func (o *Options) defaults() error {
	if o.Codec == nil {
		return transport.Errf(transport.ClassConfig, "options", "", errors.New("mem: codec is required"))
	}
	return nil
}

// registry maps listen names to delivery endpoints. Package-wide so senders
// and receivers constructed independently still find each other, like
// sockets on a shared loopback.
var registry = struct {
	mu        sync.Mutex
	endpoints map[string]*endpoint
}{endpoints: make(map[string]*endpoint)}

type endpoint struct {
	name    string
	deliver func(payload []byte) bool
}

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }

// Sender delivers marshaled messages straight to the named endpoint.
type Sender[M any] struct {
	opts Options

	mu     sync.Mutex
	closed bool
}

func NewSender[M any](opts Options) (*Sender[M], error) {
	if err := opts.defaults(); err != nil {
		return nil, err
	}
	return &Sender[M]{opts: opts}, nil
}

func (s *Sender[M]) Send(_ context.Context, addr string, msg M) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return transport.Errf(transport.ClassClosed, "send", addr, transport.ErrClosed)
	}
	payload, err := s.opts.Codec.Marshal(msg)
	if err != nil {
		return transport.Errf(transport.ClassCodec, "send", addr, err)
	}
	registry.mu.Lock()
	ep := registry.endpoints[addr]
	registry.mu.Unlock()
	if ep == nil {
		return transport.Errf(transport.ClassAddress, "send", addr, errors.New("mem: no listener"))
	}
	if !ep.deliver(payload) {
		return transport.Errf(transport.ClassIO, "send", addr, errors.New("mem: listener closed"))
	}
	return nil
}

func (s *Sender[M]) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Receiver owns one name in the registry for its lifetime.
type Receiver[M any] struct {
	opts Options
	name string

	msgCh     chan M
	closeOnce sync.Once
	closeCh   chan struct{}
}

// NewReceiver claims name in the registry. A name still held by a live
// receiver fails construction, matching "address already in use" on the
// networked backends.
func NewReceiver[M any](name string, opts Options) (*Receiver[M], error) {
	if err := opts.defaults(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, transport.Errf(transport.ClassAddress, "listen", name, errors.New("mem: empty listen name"))
	}
	r := &Receiver[M]{
		opts:    opts,
		name:    name,
		msgCh:   make(chan M, 64),
		closeCh: make(chan struct{}),
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, ok := registry.endpoints[name]; ok {
		return nil, transport.Errf(transport.ClassIO, "listen", name, errors.New("mem: name already in use"))
	}
	registry.endpoints[name] = &endpoint{name: name, deliver: r.deliver}
	return r, nil
}

func (r *Receiver[M]) Addr() net.Addr { return memAddr(r.name) }

func (r *Receiver[M]) Recv(ctx context.Context) (M, error) {
	var zero M
	select {
	case <-ctx.Done():
		return zero, transport.RecvErr(ctx)
	case <-r.closeCh:
		return zero, transport.Errf(transport.ClassClosed, "recv", "", transport.ErrClosed)
	case m := <-r.msgCh:
		return m, nil
	}
}

// Close releases the name so a new receiver can claim it immediately.
func (r *Receiver[M]) Close() error {
	r.closeOnce.Do(func() {
		close(r.closeCh)
		registry.mu.Lock()
		delete(registry.endpoints, r.name)
		registry.mu.Unlock()
	})
	return nil
}

func (r *Receiver[M]) deliver(payload []byte) bool {
	var m M
	if err := r.opts.Codec.Unmarshal(payload, &m); err != nil {
		zap.L().Warn("mem: dropping malformed payload",
			zap.String("name", r.name), zap.Int("bytes", len(payload)), zap.Error(err))
		return true // delivered as far as the wire is concerned
	}
	select {
	case r.msgCh <- m:
		return true
	case <-r.closeCh:
		return false
	}
}
