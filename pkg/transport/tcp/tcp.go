// Package tcp implements the transport contracts over plain TCP with
// length-prefixed frames (u32 LE), one frame per message.
package tcp

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Fantom-foundation/libtransport/pkg/codec"
	"github.com/Fantom-foundation/libtransport/pkg/transport"
)

const maxFrameSize = 1 << 24

// Options configures both the sender and the receiver side of the backend.
type Options struct {
	// Codec marshals outbound and unmarshals inbound messages. Required.
	Codec codec.Codec
	// DialTimeout bounds connection establishment per address. Default 5s.
	DialTimeout time.Duration
	// WriteTimeout bounds one framed write. Default 10s.
	WriteTimeout time.Duration
}

func (o *Options) defaults() error {
	if o.Codec == nil {
		return transport.Errf(transport.ClassConfig, "options", "", errors.New("tcp: codec is required"))
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	return nil
}

// Sender keeps one pooled outbound connection per address. Sends to
// different addresses proceed independently; sends sharing a connection are
// serialized by a per-connection mutex so frames never interleave.
type Sender[M any] struct {
	opts Options

	mu     sync.Mutex
	conns  map[string]*outConn
	closed bool
}

type outConn struct {
	mu sync.Mutex
	c  net.Conn
	bw *bufio.Writer
}

// NewSender constructs a TCP sender. Connections are dialed lazily on first
// send to each address.
func NewSender[M any](opts Options) (*Sender[M], error) {
	if err := opts.defaults(); err != nil {
		return nil, err
	}
	return &Sender[M]{opts: opts, conns: make(map[string]*outConn)}, nil
}

func (s *Sender[M]) Send(ctx context.Context, addr string, msg M) error {
	payload, err := s.opts.Codec.Marshal(msg)
	if err != nil {
		return transport.Errf(transport.ClassCodec, "send", addr, err)
	}
	if len(payload) > maxFrameSize {
		return transport.Errf(transport.ClassCodec, "send", addr, errors.New("tcp: message exceeds frame limit"))
	}
	cn, err := s.conn(ctx, addr)
	if err != nil {
		return err
	}
	if err := cn.writeFrame(payload, s.opts.WriteTimeout); err != nil {
		s.drop(addr, cn)
		return transport.ClassifyNetErr("send", addr, err)
	}
	return nil
}

func (s *Sender[M]) conn(ctx context.Context, addr string) (*outConn, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, transport.Errf(transport.ClassClosed, "send", addr, transport.ErrClosed)
	}
	if cn := s.conns[addr]; cn != nil {
		s.mu.Unlock()
		return cn, nil
	}
	s.mu.Unlock()

	dctx, cancel := context.WithTimeout(ctx, s.opts.DialTimeout)
	defer cancel()
	d := &net.Dialer{}
	c, err := d.DialContext(dctx, "tcp", addr)
	if err != nil {
		return nil, transport.ClassifyNetErr("dial", addr, err)
	}
	cn := &outConn{c: c, bw: bufio.NewWriter(c)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = c.Close()
		return nil, transport.Errf(transport.ClassClosed, "send", addr, transport.ErrClosed)
	}
	if prev := s.conns[addr]; prev != nil {
		// lost the dial race; reuse the established one
		_ = c.Close()
		return prev, nil
	}
	s.conns[addr] = cn
	return cn, nil
}

// drop removes a connection from the pool after a failed write so the next
// send re-dials instead of reusing a dead socket.
func (s *Sender[M]) drop(addr string, cn *outConn) {
	s.mu.Lock()
	if s.conns[addr] == cn {
		delete(s.conns, addr)
	}
	s.mu.Unlock()
	_ = cn.c.Close()
}

func (s *Sender[M]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for addr, cn := range s.conns {
		_ = cn.c.Close()
		delete(s.conns, addr)
	}
	return nil
}

func (cn *outConn) writeFrame(payload []byte, timeout time.Duration) error {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	_ = cn.c.SetWriteDeadline(time.Now().Add(timeout))
	var lenbuf [4]byte
	binary.LittleEndian.PutUint32(lenbuf[:], uint32(len(payload)))
	if _, err := cn.bw.Write(lenbuf[:]); err != nil {
		return err
	}
	if _, err := cn.bw.Write(payload); err != nil {
		return err
	}
	if err := cn.bw.Flush(); err != nil {
		return err
	}
	_ = cn.c.SetWriteDeadline(time.Time{})
	return nil
}

// Receiver listens on a bind address and surfaces decoded messages in the
// order frames complete. A malformed frame payload is logged and dropped;
// the stream keeps going.
type Receiver[M any] struct {
	opts  Options
	l     net.Listener
	msgCh chan M

	closeOnce sync.Once
	closeCh   chan struct{}

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewReceiver binds to addr and starts accepting. Construction fails if the
// address is unparsable or already in use.
func NewReceiver[M any](addr string, opts Options) (*Receiver[M], error) {
	if err := opts.defaults(); err != nil {
		return nil, err
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, transport.ClassifyNetErr("listen", addr, err)
	}
	r := &Receiver[M]{
		opts:    opts,
		l:       l,
		msgCh:   make(chan M, 64),
		closeCh: make(chan struct{}),
		conns:   make(map[net.Conn]struct{}),
	}
	go r.acceptLoop()
	return r, nil
}

func (r *Receiver[M]) Addr() net.Addr { return r.l.Addr() }

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

// Close stops the listener, drops all inbound connections and ends the
// stream. Any blocked Recv unblocks with a ClassClosed error.
func (r *Receiver[M]) Close() error {
	r.closeOnce.Do(func() {
		close(r.closeCh)
		_ = r.l.Close()
		r.mu.Lock()
		for c := range r.conns {
			_ = c.Close()
		}
		r.mu.Unlock()
	})
	return nil
}

func (r *Receiver[M]) acceptLoop() {
	for {
		c, err := r.l.Accept()
		if err != nil {
			return
		}
		r.mu.Lock()
		r.conns[c] = struct{}{}
		r.mu.Unlock()
		go r.readLoop(c)
	}
}

func (r *Receiver[M]) readLoop(c net.Conn) {
	defer func() {
		r.mu.Lock()
		delete(r.conns, c)
		r.mu.Unlock()
		_ = c.Close()
	}()
	br := bufio.NewReader(c)
	for {
		payload, err := readFrame(br)
		if err != nil {
			if !errors.Is(err, io.EOF) && !isClosing(r.closeCh) {
				zap.L().Debug("tcp: connection read failed",
					zap.String("remote", c.RemoteAddr().String()), zap.Error(err))
			}
			return
		}
		var m M
		if err := r.opts.Codec.Unmarshal(payload, &m); err != nil {
			zap.L().Warn("tcp: dropping malformed payload",
				zap.String("remote", c.RemoteAddr().String()),
				zap.Int("bytes", len(payload)), zap.Error(err))
			continue
		}
		select {
		case r.msgCh <- m:
		case <-r.closeCh:
			return
		}
	}
}

func readFrame(br *bufio.Reader) ([]byte, error) {
	var lenbuf [4]byte
	if _, err := io.ReadFull(br, lenbuf[:]); err != nil {
		return nil, err
	}
	n := int(binary.LittleEndian.Uint32(lenbuf[:]))
	if n < 0 || n > maxFrameSize {
		return nil, errors.New("invalid frame size")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(br, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func isClosing(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
