package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("QUICKHUB_ISOLATION", "process")
	t.Setenv("QUICKHUB_RETRY_INTERVAL", "50ms")
	t.Setenv("QUICKHUB_MAX_RETRIES", "3")
	t.Setenv("QUICKHUB_STORAGE", "memory")
	t.Setenv("QUICKHUB_SEARCH_URL", "https://duckduckgo.com/")
	t.Setenv("QUICKHUB_LOG_DEV", "true")
	t.Setenv("QUICKHUB_MAX_CALL_STACK", "256")
	t.Setenv("QUICKHUB_SANDBOX_BUFFER", "8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, IsolationProcess, cfg.Isolation)
	assert.Equal(t, 50*time.Millisecond, cfg.RetryInterval)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, "https://duckduckgo.com/", cfg.SearchURL)
	assert.True(t, cfg.LogDev)
	assert.Equal(t, 256, cfg.MaxCallStack)
	assert.Equal(t, 8, cfg.SandboxBuffer)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"QUICKHUB_ISOLATION":      "vm",
		"QUICKHUB_STORAGE":        "redis",
		"QUICKHUB_RETRY_INTERVAL": "0s",
		"QUICKHUB_MAX_RETRIES":    "-1",
		"QUICKHUB_RUN_BURST":      "many",
		"QUICKHUB_MAX_CALL_STACK": "0",
		"QUICKHUB_SANDBOX_BUFFER": "-4",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestResolvedStoragePath(t *testing.T) {
	cfg := Default()
	cfg.StoragePath = "/tmp/x.json"
	p, err := cfg.ResolvedStoragePath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.json", p)

	t.Setenv("XDG_CONFIG_HOME", "/home/test/.config")
	t.Setenv("HOME", "/home/test")
	cfg.StoragePath = ""
	p, err = cfg.ResolvedStoragePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("quickhub", "store.json"), filepath.Join(filepath.Base(filepath.Dir(p)), filepath.Base(p)))
}
