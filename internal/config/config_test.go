package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nmsu-cs/bbfs/internal/bytesize"
)

func TestLoadNodeDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadNode(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, "INFO", cfg.Logging.Level)
	require.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadNodeFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 9001
storage_dir: /tmp/bbfs-node
logging:
  level: debug
`), 0o644))

	cfg, err := LoadNode(path)
	require.NoError(t, err)
	require.Equal(t, 9001, cfg.Port)
	require.Equal(t, "/tmp/bbfs-node", cfg.StorageDir)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadNodeMissingRequiredFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: INFO\n"), 0o644))

	_, err := LoadNode(path)
	require.Error(t, err)
}

func TestLoadClientByteSizeDecodeHook(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
root_dir: /tmp/bbfs-root
mount_point: /tmp/bbfs-mnt
buffer_capacity: 4Mi
window_size: 32MiB
window_ttl: 10s
`), 0o644))

	cfg, err := LoadClient(path)
	require.NoError(t, err)
	require.Equal(t, bytesize.ByteSize(4*bytesize.MiB), cfg.BufferCapacity)
	require.Equal(t, bytesize.ByteSize(32*bytesize.MiB), cfg.WindowSize)
	require.Equal(t, 10*time.Second, cfg.WindowTTL)
}

func TestLoadClientTooManyEndpointsFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.yaml")
	endpoints := ""
	for i := 0; i < 11; i++ {
		endpoints += "  - \"127.0.0.1:900" + string(rune('0'+i%10)) + "\"\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(`
root_dir: /tmp/bbfs-root
mount_point: /tmp/bbfs-mnt
endpoints:
`+endpoints), 0o644))

	_, err := LoadClient(path)
	require.Error(t, err)
}

func TestSaveClientRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "client.yaml")
	cfg := &ClientConfig{RootDir: "/r", MountPoint: "/m"}
	require.NoError(t, SaveClient(cfg, path))

	loaded, err := LoadClient(path)
	require.NoError(t, err)
	require.Equal(t, "/r", loaded.RootDir)
	require.Equal(t, "/m", loaded.MountPoint)
}
