package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg := LoadFromEnv()
	assert.Equal(t, "./data", cfg.DataDir)
	assert.False(t, cfg.InMemory)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.RetryBaseBackoff)
	assert.Equal(t, "pychunkedgraph", cfg.EditsExchange)
	assert.ElementsMatch(t, []string{"fly_v26", "fly_v31"}, cfg.UndoRedoDenyList)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("CHUNKEDGRAPH_DATA_DIR", "/tmp/cg")
	t.Setenv("CHUNKEDGRAPH_IN_MEMORY", "true")
	t.Setenv("CHUNKEDGRAPH_LOCK_TTL", "5s")
	t.Setenv("CHUNKEDGRAPH_RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("CHUNKEDGRAPH_DENY_LIST", "tableA, tableB")
	t.Setenv("PYCHUNKEDGRAPH_EDITS_EXCHANGE", "custom-exchange")

	cfg := LoadFromEnv()
	assert.Equal(t, "/tmp/cg", cfg.DataDir)
	assert.True(t, cfg.InMemory)
	assert.Equal(t, 5*time.Second, cfg.LockTTL)
	assert.Equal(t, 5, cfg.RetryMaxAttempts)
	assert.Equal(t, "custom-exchange", cfg.EditsExchange)
	assert.ElementsMatch(t, []string{"tableA", "tableB"}, cfg.UndoRedoDenyList)
}

func TestDenies(t *testing.T) {
	cfg := LoadFromEnv()
	assert.True(t, cfg.Denies("fly_v26"))
	assert.False(t, cfg.Denies("some_other_table"))
}

func TestLoadFromFileAppliesYAMLOverFromEnvDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunkedgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: /var/lib/chunkedgraph\nretry_max_attempts: 7\ndeny_list: [\"tableX\"]\n"), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/chunkedgraph", cfg.DataDir)
	assert.Equal(t, 7, cfg.RetryMaxAttempts)
	assert.ElementsMatch(t, []string{"tableX"}, cfg.UndoRedoDenyList)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
}

func TestLoadFromEnvOrFileEnvTakesPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunkedgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: /from/file\n"), 0o644))
	t.Setenv("CHUNKEDGRAPH_DATA_DIR", "/from/env")

	cfg := LoadFromEnvOrFile(path)
	assert.Equal(t, "/from/env", cfg.DataDir)
}

func TestLoadFromEnvOrFileFallsBackToEnvWhenFileMissing(t *testing.T) {
	cfg := LoadFromEnvOrFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Equal(t, "./data", cfg.DataDir)
}
