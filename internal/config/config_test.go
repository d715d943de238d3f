package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, 1024, cfg.Chunking.ChunkSize)
	assert.Equal(t, 200, cfg.Chunking.ChunkOverlap)
	assert.Equal(t, "hnsw", cfg.VectorDB.Provider)
	assert.Equal(t, "local", cfg.DocumentStore.Provider)
	assert.Equal(t, 24*time.Hour, cfg.Knowledge.CacheTTL)
	assert.Greater(t, cfg.Jobs.Workers, 0)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9090

[chunking]
chunk_size = 512
chunk_overlap = 64

[vector_db]
provider = "qdrant"
qdrant_url = "qdrant:6334"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 512, cfg.Chunking.ChunkSize)
	assert.Equal(t, 64, cfg.Chunking.ChunkOverlap)
	assert.Equal(t, "qdrant", cfg.VectorDB.Provider)
	// Untouched sections keep their defaults.
	assert.Equal(t, "ollama", cfg.LLM.Provider)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := writeConfig(t, "[server\nport=")
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Chunking.ChunkOverlap = cfg.Chunking.ChunkSize
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Embeddings.Provider = "mystery"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.VectorDB.Provider = "hnsw"
	cfg.VectorDB.StoragePath = ""
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.ExternalParser.Enabled = true
	cfg.ExternalParser.Command = ""
	assert.Error(t, cfg.Validate())
}
