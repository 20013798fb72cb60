package udp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fantom-foundation/libtransport/pkg/codec"
	"github.com/Fantom-foundation/libtransport/pkg/transport"
)

type syncMsg struct {
	Kind string `json:"kind"`
	From string `json:"from"`
}

func opts() Options { return Options{Codec: codec.JSON()} }

func TestRoundTrip(t *testing.T) {
	r, err := NewReceiver[syncMsg]("127.0.0.1:0", opts())
	require.NoError(t, err)
	defer r.Close()

	s, err := NewSender[syncMsg](opts())
	require.NoError(t, err)
	defer s.Close()

	want := syncMsg{Kind: "SyncRequest", From: "peerA"}
	require.NoError(t, s.Send(context.Background(), r.Addr().String(), want))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	got, err := r.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestOversizeMessageRejected(t *testing.T) {
	r, err := NewReceiver[syncMsg]("127.0.0.1:0", opts())
	require.NoError(t, err)
	defer r.Close()

	type blob struct {
		Data []byte `json:"data"`
	}
	s, err := NewSender[blob](opts())
	require.NoError(t, err)
	defer s.Close()

	err = s.Send(context.Background(), r.Addr().String(), blob{Data: make([]byte, maxDatagramSize)})
	require.Error(t, err)
	assert.Equal(t, transport.ClassCodec, transport.ClassOf(err))
}

func TestCloseUnblocksRecv(t *testing.T) {
	r, err := NewReceiver[syncMsg]("127.0.0.1:0", opts())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := r.Recv(context.Background())
		errCh <- err
	}()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, r.Close())

	select {
	case err := <-errCh:
		assert.True(t, transport.IsClosed(err))
	case <-time.After(2 * time.Second):
		t.Fatal("Recv did not unblock after Close")
	}
}

func TestBadListenAddress(t *testing.T) {
	_, err := NewReceiver[syncMsg]("not-an-address", opts())
	require.Error(t, err)
	assert.Equal(t, transport.ClassAddress, transport.ClassOf(err))
}
