package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("connection refused")
	err := Errf(ClassIO, "dial", "10.0.0.1:9000", cause)
	assert.Contains(t, err.Error(), "dial")
	assert.Contains(t, err.Error(), "10.0.0.1:9000")
	assert.Contains(t, err.Error(), "io")
	assert.ErrorIs(t, err, cause)

	noAddr := Errf(ClassClosed, "recv", "", ErrClosed)
	assert.Contains(t, noAddr.Error(), "recv")
	assert.Contains(t, noAddr.Error(), "closed")
}

func TestClassOf(t *testing.T) {
	err := Errf(ClassCodec, "send", "", errors.New("bad payload"))
	assert.Equal(t, ClassCodec, ClassOf(err))
	assert.Equal(t, ClassCodec, ClassOf(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, Class(0), ClassOf(errors.New("plain")))
	assert.Equal(t, Class(0), ClassOf(nil))
}

func TestTimeoutShape(t *testing.T) {
	te := Errf(ClassTimeout, "send", "x:1", errors.New("deadline"))
	assert.True(t, te.Timeout())
	assert.False(t, Errf(ClassIO, "send", "x:1", errors.New("eof")).Timeout())
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyNetErr(t *testing.T) {
	assert.Equal(t, ClassTimeout, ClassOf(ClassifyNetErr("send", "a:1", timeoutErr{})))
	assert.Equal(t, ClassTimeout, ClassOf(ClassifyNetErr("send", "a:1", context.DeadlineExceeded)))
	assert.Equal(t, ClassAddress, ClassOf(ClassifyNetErr("dial", "a:1", &net.AddrError{Err: "missing port", Addr: "a"})))
	assert.Equal(t, ClassAddress, ClassOf(ClassifyNetErr("dial", "a:1", &net.DNSError{Err: "no such host", Name: "a"})))
	assert.Equal(t, ClassIO, ClassOf(ClassifyNetErr("send", "a:1", errors.New("broken pipe"))))
}

func TestRecvErr(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RecvErr(ctx)
	assert.Equal(t, ClassClosed, ClassOf(err))
	assert.True(t, IsClosed(err))

	dctx, dcancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer dcancel()
	<-dctx.Done()
	derr := RecvErr(dctx)
	require.Equal(t, ClassTimeout, ClassOf(derr))
	assert.False(t, IsClosed(derr))
}
