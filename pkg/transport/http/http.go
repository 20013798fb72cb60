// Package http implements the transport contracts over HTTP/1.1: the sender
// POSTs one request per message, the receiver is a minimal HTTP server that
// decodes request bodies into the message stream. A reply body is never
// used; delivery acknowledgment stays out of the contract.
package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	nhttp "net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Fantom-foundation/libtransport/pkg/codec"
	"github.com/Fantom-foundation/libtransport/pkg/transport"
)

// messagePath is the single endpoint messages are exchanged on.
const messagePath = "/v0/message"

const maxBodySize = 1 << 24

// Options configures both sides of the backend.
type Options struct {
	// Codec marshals outbound and unmarshals inbound messages. Required.
	Codec codec.Codec
	// RequestTimeout bounds one POST end to end. Default 10s.
	RequestTimeout time.Duration
}

func (o *Options) defaults() error {
	if o.Codec == nil {
		return transport.Errf(transport.ClassConfig, "options", "", errors.New("http: codec is required"))
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
	return nil
}

// Sender posts each message to http://<addr>/v0/message. The underlying
// http.Client pools connections per host, so concurrent sends to different
// addresses are independent.
type Sender[M any] struct {
	opts   Options
	client *nhttp.Client

	mu     sync.Mutex
	closed bool
}

func NewSender[M any](opts Options) (*Sender[M], error) {
	if err := opts.defaults(); err != nil {
		return nil, err
	}
	return &Sender[M]{
		opts:   opts,
		client: &nhttp.Client{Timeout: opts.RequestTimeout},
	}, nil
}

func (s *Sender[M]) Send(ctx context.Context, addr string, msg M) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return transport.Errf(transport.ClassClosed, "send", addr, transport.ErrClosed)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return transport.Errf(transport.ClassAddress, "send", addr, err)
	}
	payload, err := s.opts.Codec.Marshal(msg)
	if err != nil {
		return transport.Errf(transport.ClassCodec, "send", addr, err)
	}
	req, err := nhttp.NewRequestWithContext(ctx, nhttp.MethodPost, "http://"+addr+messagePath, bytes.NewReader(payload))
	if err != nil {
		return transport.Errf(transport.ClassAddress, "send", addr, err)
	}
	req.Header.Set("Content-Type", s.opts.Codec.ContentType())
	resp, err := s.client.Do(req)
	if err != nil {
		return transport.ClassifyNetErr("send", addr, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return transport.Errf(transport.ClassIO, "send", addr, fmt.Errorf("unexpected status %s", resp.Status))
	}
	return nil
}

func (s *Sender[M]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.client.CloseIdleConnections()
	return nil
}

// Receiver runs an HTTP server on the bind address and feeds decoded POST
// bodies into the message stream.
type Receiver[M any] struct {
	opts  Options
	l     net.Listener
	srv   *nhttp.Server
	msgCh chan M

	closeOnce sync.Once
	closeCh   chan struct{}
}

// NewReceiver binds to addr and starts serving. Binding the listener
// explicitly (instead of Server.ListenAndServe) makes an in-use or
// unparsable address fail construction, not a background goroutine.
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
	}
	mux := nhttp.NewServeMux()
	mux.HandleFunc(messagePath, r.handleMessage)
	r.srv = &nhttp.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = r.srv.Serve(l) }()
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

// Close shuts the server down immediately, releasing the bind address and
// unblocking any pending Recv.
func (r *Receiver[M]) Close() error {
	r.closeOnce.Do(func() {
		close(r.closeCh)
		_ = r.srv.Close()
	})
	return nil
}

func (r *Receiver[M]) handleMessage(w nhttp.ResponseWriter, req *nhttp.Request) {
	if req.Method != nhttp.MethodPost {
		nhttp.Error(w, "method not allowed", nhttp.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(nhttp.MaxBytesReader(w, req.Body, maxBodySize))
	if err != nil {
		zap.L().Warn("http: dropping unreadable payload",
			zap.String("remote", req.RemoteAddr), zap.Error(err))
		nhttp.Error(w, "bad request", nhttp.StatusBadRequest)
		return
	}
	var m M
	if err := r.opts.Codec.Unmarshal(body, &m); err != nil {
		zap.L().Warn("http: dropping malformed payload",
			zap.String("remote", req.RemoteAddr),
			zap.Int("bytes", len(body)), zap.Error(err))
		nhttp.Error(w, "bad request", nhttp.StatusBadRequest)
		return
	}
	select {
	case r.msgCh <- m:
		w.WriteHeader(nhttp.StatusNoContent)
	case <-r.closeCh:
		nhttp.Error(w, "receiver closed", nhttp.StatusServiceUnavailable)
	case <-req.Context().Done():
	}
}
