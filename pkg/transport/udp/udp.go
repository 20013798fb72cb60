// Package udp implements the transport contracts over UDP datagrams, one
// message per datagram. Messages larger than one datagram are rejected at
// send time; delivery is best effort, as the wire itself is.
package udp

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Fantom-foundation/libtransport/pkg/codec"
	"github.com/Fantom-foundation/libtransport/pkg/transport"
)

// maxDatagramSize caps one encoded message; beyond this UDP fragmentation
// makes loss near certain.
const maxDatagramSize = 64 << 10

// Options configures both sides of the backend.
type Options struct {
	// Codec marshals outbound and unmarshals inbound messages. Required.
	Codec codec.Codec
	// WriteTimeout bounds one datagram write. Default 10s.
	WriteTimeout time.Duration
}

func (o *Options) defaults() error {
	if o.Codec == nil {
		return transport.Errf(transport.ClassConfig, "options", "", errors.New("udp: codec is required"))
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	return nil
}

// Sender keeps one connected UDP socket per address.
type Sender[M any] struct {
	opts Options

	mu     sync.Mutex
	conns  map[string]*net.UDPConn
	closed bool
}

func NewSender[M any](opts Options) (*Sender[M], error) {
	if err := opts.defaults(); err != nil {
		return nil, err
	}
	return &Sender[M]{opts: opts, conns: make(map[string]*net.UDPConn)}, nil
}

func (s *Sender[M]) Send(_ context.Context, addr string, msg M) error {
	payload, err := s.opts.Codec.Marshal(msg)
	if err != nil {
		return transport.Errf(transport.ClassCodec, "send", addr, err)
	}
	if len(payload) > maxDatagramSize {
		return transport.Errf(transport.ClassCodec, "send", addr, errors.New("udp: message exceeds datagram limit"))
	}
	c, err := s.conn(addr)
	if err != nil {
		return err
	}
	_ = c.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	if _, err := c.Write(payload); err != nil {
		s.drop(addr, c)
		return transport.ClassifyNetErr("send", addr, err)
	}
	return nil
}

func (s *Sender[M]) conn(addr string) (*net.UDPConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, transport.Errf(transport.ClassClosed, "send", addr, transport.ErrClosed)
	}
	if c := s.conns[addr]; c != nil {
		return c, nil
	}
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, transport.Errf(transport.ClassAddress, "dial", addr, err)
	}
	c, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, transport.ClassifyNetErr("dial", addr, err)
	}
	s.conns[addr] = c
	return c, nil
}

func (s *Sender[M]) drop(addr string, c *net.UDPConn) {
	s.mu.Lock()
	if s.conns[addr] == c {
		delete(s.conns, addr)
	}
	s.mu.Unlock()
	_ = c.Close()
}

func (s *Sender[M]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for addr, c := range s.conns {
		_ = c.Close()
		delete(s.conns, addr)
	}
	return nil
}

// Receiver reads datagrams off a bound UDP socket and decodes each into one
// message.
type Receiver[M any] struct {
	opts  Options
	conn  *net.UDPConn
	msgCh chan M

	closeOnce sync.Once
	closeCh   chan struct{}
}

func NewReceiver[M any](addr string, opts Options) (*Receiver[M], error) {
	if err := opts.defaults(); err != nil {
		return nil, err
	}
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, transport.Errf(transport.ClassAddress, "listen", addr, err)
	}
	c, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, transport.ClassifyNetErr("listen", addr, err)
	}
	r := &Receiver[M]{
		opts:    opts,
		conn:    c,
		msgCh:   make(chan M, 64),
		closeCh: make(chan struct{}),
	}
	go r.readLoop()
	return r, nil
}

func (r *Receiver[M]) Addr() net.Addr { return r.conn.LocalAddr() }

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

func (r *Receiver[M]) Close() error {
	r.closeOnce.Do(func() {
		close(r.closeCh)
		_ = r.conn.Close()
	})
	return nil
}

func (r *Receiver[M]) readLoop() {
	buf := make([]byte, maxDatagramSize)
	for {
		n, raddr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		var m M
		if err := r.opts.Codec.Unmarshal(buf[:n], &m); err != nil {
			zap.L().Warn("udp: dropping malformed payload",
				zap.String("remote", raddr.String()),
				zap.Int("bytes", n), zap.Error(err))
			continue
		}
		select {
		case r.msgCh <- m:
		case <-r.closeCh:
			return
		}
	}
}
