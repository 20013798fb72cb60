// Package quic implements the transport contracts over QUIC. Each
// sender-side connection carries one persistent bidirectional stream with
// length-prefixed frames (u32 LE), mirroring the TCP backend's framing.
package quic

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"errors"
	"io"
	"math/big"
	"net"
	"sync"
	"time"

	quicgo "github.com/quic-go/quic-go"
	"go.uber.org/zap"

	"github.com/Fantom-foundation/libtransport/pkg/codec"
	"github.com/Fantom-foundation/libtransport/pkg/transport"
)

const alpnProto = "libtransport"

const maxFrameSize = 1 << 24

// Options configures both sides of the backend.
type Options struct {
	// Codec marshals outbound and unmarshals inbound messages. Required.
	Codec codec.Codec
	// DialTimeout bounds connection + stream establishment. Default 5s.
	DialTimeout time.Duration
	// WriteTimeout bounds one framed write. Default 10s.
	WriteTimeout time.Duration
}

func (o *Options) defaults() error {
	if o.Codec == nil {
		return transport.Errf(transport.ClassConfig, "options", "", errors.New("quic: codec is required"))
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	return nil
}

// Sender pools one QUIC connection and one control stream per address.
type Sender[M any] struct {
	opts    Options
	tlsConf *tls.Config

	mu     sync.Mutex
	conns  map[string]*outConn
	closed bool
}

type outConn struct {
	mu sync.Mutex
	c  quicgo.Connection
	st quicgo.Stream
	bw *bufio.Writer
}

func NewSender[M any](opts Options) (*Sender[M], error) {
	if err := opts.defaults(); err != nil {
		return nil, err
	}
	return &Sender[M]{
		opts: opts,
		// Peer identity is not established at this layer; the consensus
		// engine authenticates message senders itself.
		tlsConf: &tls.Config{
			InsecureSkipVerify: true,
			NextProtos:         []string{alpnProto},
			MinVersion:         tls.VersionTLS13,
		},
		conns: make(map[string]*outConn),
	}, nil
}

func (s *Sender[M]) Send(ctx context.Context, addr string, msg M) error {
	payload, err := s.opts.Codec.Marshal(msg)
	if err != nil {
		return transport.Errf(transport.ClassCodec, "send", addr, err)
	}
	if len(payload) > maxFrameSize {
		return transport.Errf(transport.ClassCodec, "send", addr, errors.New("quic: message exceeds frame limit"))
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
	c, err := quicgo.DialAddr(dctx, addr, s.tlsConf, &quicgo.Config{})
	if err != nil {
		return nil, transport.ClassifyNetErr("dial", addr, err)
	}
	st, err := c.OpenStreamSync(dctx)
	if err != nil {
		_ = c.CloseWithError(0, "open stream failed")
		return nil, transport.ClassifyNetErr("dial", addr, err)
	}
	cn := &outConn{c: c, st: st, bw: bufio.NewWriter(st)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = c.CloseWithError(0, "sender closed")
		return nil, transport.Errf(transport.ClassClosed, "send", addr, transport.ErrClosed)
	}
	if prev := s.conns[addr]; prev != nil {
		_ = c.CloseWithError(0, "duplicate connection")
		return prev, nil
	}
	s.conns[addr] = cn
	return cn, nil
}

func (s *Sender[M]) drop(addr string, cn *outConn) {
	s.mu.Lock()
	if s.conns[addr] == cn {
		delete(s.conns, addr)
	}
	s.mu.Unlock()
	_ = cn.c.CloseWithError(0, "write failed")
}

func (s *Sender[M]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for addr, cn := range s.conns {
		_ = cn.c.CloseWithError(0, "sender closed")
		delete(s.conns, addr)
	}
	return nil
}

func (cn *outConn) writeFrame(payload []byte, timeout time.Duration) error {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	_ = cn.st.SetWriteDeadline(time.Now().Add(timeout))
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
	_ = cn.st.SetWriteDeadline(time.Time{})
	return nil
}

// Receiver accepts QUIC connections on the bind address and drains every
// inbound stream into the message channel.
type Receiver[M any] struct {
	opts  Options
	l     *quicgo.Listener
	msgCh chan M

	closeOnce sync.Once
	closeCh   chan struct{}
	cancel    context.CancelFunc
}

// NewReceiver binds a QUIC listener with an ephemeral self-signed
// certificate. Peer verification is an application-layer concern, not this
// backend's.
func NewReceiver[M any](addr string, opts Options) (*Receiver[M], error) {
	if err := opts.defaults(); err != nil {
		return nil, err
	}
	cert, err := selfSignedCert()
	if err != nil {
		return nil, transport.Errf(transport.ClassIO, "listen", addr, err)
	}
	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{alpnProto},
		MinVersion:   tls.VersionTLS13,
	}
	l, err := quicgo.ListenAddr(addr, tlsConf, &quicgo.Config{})
	if err != nil {
		return nil, transport.ClassifyNetErr("listen", addr, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Receiver[M]{
		opts:    opts,
		l:       l,
		msgCh:   make(chan M, 64),
		closeCh: make(chan struct{}),
		cancel:  cancel,
	}
	go r.acceptLoop(ctx)
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

func (r *Receiver[M]) Close() error {
	r.closeOnce.Do(func() {
		close(r.closeCh)
		r.cancel()
		_ = r.l.Close()
	})
	return nil
}

func (r *Receiver[M]) acceptLoop(ctx context.Context) {
	for {
		c, err := r.l.Accept(ctx)
		if err != nil {
			return
		}
		go r.connLoop(ctx, c)
	}
}

func (r *Receiver[M]) connLoop(ctx context.Context, c quicgo.Connection) {
	defer func() { _ = c.CloseWithError(0, "receiver done") }()
	for {
		st, err := c.AcceptStream(ctx)
		if err != nil {
			return
		}
		go r.readLoop(c, st)
	}
}

func (r *Receiver[M]) readLoop(c quicgo.Connection, st quicgo.Stream) {
	br := bufio.NewReader(st)
	for {
		payload, err := readFrame(br)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				zap.L().Debug("quic: stream read failed",
					zap.String("remote", c.RemoteAddr().String()), zap.Error(err))
			}
			return
		}
		var m M
		if err := r.opts.Codec.Unmarshal(payload, &m); err != nil {
			zap.L().Warn("quic: dropping malformed payload",
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

// selfSignedCert generates a short-lived self-signed TLS certificate for the
// listener side.
func selfSignedCert() (tls.Certificate, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}
