package quic

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
	To   string `json:"to"`
}

func opts() Options { return Options{Codec: codec.JSON()} }

func TestRoundTrip(t *testing.T) {
	r, err := NewReceiver[syncMsg]("127.0.0.1:0", opts())
	require.NoError(t, err)
	defer r.Close()

	s, err := NewSender[syncMsg](opts())
	require.NoError(t, err)
	defer s.Close()

	want := syncMsg{Kind: "SyncRequest", From: "peerA", To: "peerB"}
	require.NoError(t, s.Send(context.Background(), r.Addr().String(), want))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := r.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestMultipleMessagesInOrderPerSender(t *testing.T) {
	r, err := NewReceiver[syncMsg]("127.0.0.1:0", opts())
	require.NoError(t, err)
	defer r.Close()

	s, err := NewSender[syncMsg](opts())
	require.NoError(t, err)
	defer s.Close()

	froms := []string{"a", "b", "c", "d"}
	for _, f := range froms {
		require.NoError(t, s.Send(context.Background(), r.Addr().String(), syncMsg{From: f}))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, f := range froms {
		got, err := r.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, f, got.From)
	}
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

func TestDialTimeoutSurfacesAsError(t *testing.T) {
	s, err := NewSender[syncMsg](Options{Codec: codec.JSON(), DialTimeout: 300 * time.Millisecond})
	require.NoError(t, err)
	defer s.Close()

	// nothing listening; QUIC handshake can only time out
	err = s.Send(context.Background(), "127.0.0.1:9", syncMsg{})
	require.Error(t, err)
	assert.NotEqual(t, transport.Class(0), transport.ClassOf(err))
}
