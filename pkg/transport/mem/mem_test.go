package mem

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
	r, err := NewReceiver[syncMsg]("inproc://roundtrip", opts())
	require.NoError(t, err)
	defer r.Close()

	s, err := NewSender[syncMsg](opts())
	require.NoError(t, err)
	defer s.Close()

	want := syncMsg{Kind: "SyncRequest", From: "peerA"}
	require.NoError(t, s.Send(context.Background(), "inproc://roundtrip", want))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := r.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSendWithoutListener(t *testing.T) {
	s, err := NewSender[syncMsg](opts())
	require.NoError(t, err)
	defer s.Close()

	err = s.Send(context.Background(), "inproc://nobody-home", syncMsg{})
	require.Error(t, err)
	assert.Equal(t, transport.ClassAddress, transport.ClassOf(err))
}

func TestDuplicateNameRejected(t *testing.T) {
	r, err := NewReceiver[syncMsg]("inproc://dup", opts())
	require.NoError(t, err)
	defer r.Close()

	_, err = NewReceiver[syncMsg]("inproc://dup", opts())
	require.Error(t, err)
	assert.Equal(t, transport.ClassIO, transport.ClassOf(err))
}

func TestCloseReleasesName(t *testing.T) {
	r, err := NewReceiver[syncMsg]("inproc://rebind", opts())
	require.NoError(t, err)
	require.NoError(t, r.Close())

	r2, err := NewReceiver[syncMsg]("inproc://rebind", opts())
	require.NoError(t, err)
	require.NoError(t, r2.Close())
}

func TestCloseUnblocksRecv(t *testing.T) {
	r, err := NewReceiver[syncMsg]("inproc://unblock", opts())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := r.Recv(context.Background())
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, r.Close())

	select {
	case err := <-errCh:
		assert.True(t, transport.IsClosed(err))
	case <-time.After(time.Second):
		t.Fatal("Recv did not unblock after Close")
	}
}

func TestValueSemanticsThroughCodec(t *testing.T) {
	// messages cross the registry as marshaled bytes, so the receiver gets
	// an independent value, not a shared pointer
	type withSlice struct {
		Items []string `json:"items"`
	}
	r, err := NewReceiver[withSlice]("inproc://values", opts())
	require.NoError(t, err)
	defer r.Close()

	s, err := NewSender[withSlice](opts())
	require.NoError(t, err)
	defer s.Close()

	sent := withSlice{Items: []string{"a", "b"}}
	require.NoError(t, s.Send(context.Background(), "inproc://values", sent))
	sent.Items[0] = "mutated"

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := r.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.Items)
}
