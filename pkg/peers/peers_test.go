package peers

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddResolveRemove(t *testing.T) {
	l := New[string](Options{})

	_, ok := l.Resolve("peerA")
	assert.False(t, ok)

	l.Add("peerA", "10.0.0.1:9000")
	addr, ok := l.Resolve("peerA")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1:9000", addr)

	// overwrite
	l.Add("peerA", "10.0.0.1:9001")
	addr, _ = l.Resolve("peerA")
	assert.Equal(t, "10.0.0.1:9001", addr)

	l.Remove("peerA")
	_, ok = l.Resolve("peerA")
	assert.False(t, ok)
}

func TestPeersSnapshot(t *testing.T) {
	l := New[string](Options{})
	l.Add("a", "x:1")
	l.Add("b", "x:2")
	l.Add("c", "x:3")

	assert.ElementsMatch(t, []string{"a", "b", "c"}, l.Peers())
	assert.Equal(t, 3, l.Len())
}

func TestMaxAgeStaleness(t *testing.T) {
	l := New[string](Options{MaxAge: 30 * time.Millisecond})
	l.Add("a", "x:1")

	_, ok := l.Resolve("a")
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)
	_, ok = l.Resolve("a")
	assert.False(t, ok, "stale entry must not resolve")
	assert.Empty(t, l.Peers())

	// the entry is still held; Touch refreshes it back into resolvability
	l.Touch("a")
	_, ok = l.Resolve("a")
	assert.True(t, ok, "touched entry resolves again")
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peers.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"peerA":"10.0.0.1:9000","peerB":"10.0.0.2:9000"}`), 0o644))

	l := New[string](Options{})
	parse := func(s string) (string, error) { return s, nil }
	require.NoError(t, l.LoadFile(path, parse))

	addr, ok := l.Resolve("peerB")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.2:9000", addr)
	assert.Equal(t, 2, l.Len())
}

func TestLoadFileErrors(t *testing.T) {
	l := New[string](Options{})
	parse := func(s string) (string, error) { return s, nil }

	assert.Error(t, l.LoadFile("/does/not/exist.json", parse))

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("not json"), 0o644))
	assert.Error(t, l.LoadFile(bad, parse))
}
