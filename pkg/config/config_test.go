package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "libtransport-node", cfg.AppName)
	assert.Equal(t, "tcp", cfg.Transport.Kind)
	assert.Equal(t, "cbor", cfg.Transport.Codec)
	assert.NotEmpty(t, cfg.Transport.Bind)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Transport.Kind, cfg.Transport.Kind)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	yaml := `
app_name: test-node
node_id: node-42
log:
  level: debug
transport:
  kind: http
  bind: "127.0.0.1:8080"
  codec: json
sync:
  interval_ms: 250
peers:
  - id: peerA
    address: "10.0.0.1:8080"
  - id: peerB
    address: "10.0.0.2:8080"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test-node", cfg.AppName)
	assert.Equal(t, "node-42", cfg.NodeID)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "http", cfg.Transport.Kind)
	assert.Equal(t, "127.0.0.1:8080", cfg.Transport.Bind)
	assert.Equal(t, "json", cfg.Transport.Codec)
	assert.Equal(t, 250, cfg.Sync.IntervalMS)
	require.Len(t, cfg.Peers, 2)
	assert.Equal(t, "peerA", cfg.Peers[0].ID)
}

func TestValidateRejectsBadLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
}

func TestValidateRejectsEmptyBind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transport:\n  bind: \"\"\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport.bind")
}

func TestValidateRejectsIncompletePeer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("peers:\n  - id: peerA\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "peers[0]")
}

func TestKindIsNormalized(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transport:\n  kind: \" TCP \"\n  bind: \"127.0.0.1:9000\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tcp", cfg.Transport.Kind)
}
