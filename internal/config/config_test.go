// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keepsake-dev/keepsake/internal/config"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8600", cfg.Server.Listen)
	assert.Equal(t, 10*time.Second, cfg.Server.EmbedTimeout)
	assert.Equal(t, 5*time.Second, cfg.Server.IndexTimeout)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Empty(t, cfg.Storage.VectorBackend)
	assert.Equal(t, 384, cfg.Storage.VectorDimensions)
	assert.Equal(t, "hash", cfg.Embedding.Provider)
	assert.True(t, cfg.Embedding.Cache.Enabled)
	assert.Equal(t, 100, cfg.Reconcile.BatchSize)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "keepsake.yaml")

	content := `
server:
  listen: "0.0.0.0:9999"
  embed_timeout: "30s"
storage:
  vector_backend: "chromem"
embedding:
  provider: "openai"
  model: "text-embedding-3-small"
  api_key: "test-key"
`
	err := os.WriteFile(cfgPath, []byte(content), 0o644)
	require.NoError(t, err)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9999", cfg.Server.Listen)
	assert.Equal(t, 30*time.Second, cfg.Server.EmbedTimeout)
	assert.Equal(t, "chromem", cfg.Storage.VectorBackend)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("KEEPSAKE_SERVER_LISTEN", "10.0.0.1:8080")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:8080", cfg.Server.Listen)
}

func TestLoad_ValidationCalledAtLoadTime(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "keepsake.yaml")

	content := `
storage:
  backend: "postgres"
`
	err := os.WriteFile(cfgPath, []byte(content), 0o644)
	require.NoError(t, err)

	_, err = config.Load(cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.backend")
}

// validConfig returns a minimal config that passes all validation.
func validConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Listen:       "127.0.0.1:8600",
			EmbedTimeout: 10 * time.Second,
			IndexTimeout: 5 * time.Second,
		},
		Storage: config.StorageConfig{
			Backend:          "sqlite",
			VectorDimensions: 384,
		},
		Embedding: config.EmbeddingConfig{
			Provider:   "hash",
			Dimensions: 384,
			Cache: config.CacheConfig{
				Enabled:    true,
				MaxEntries: 4096,
			},
		},
		Reconcile: config.ReconcileConfig{
			BatchSize: 100,
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	errs := cfg.Validate()
	assert.Empty(t, errs, "valid config should produce no validation errors")
}

func TestValidate_ServerListen(t *testing.T) {
	tests := []struct {
		name    string
		listen  string
		wantErr bool
	}{
		{"valid address", "127.0.0.1:8080", false},
		{"valid all interfaces", "0.0.0.0:9999", false},
		{"valid ipv6", "[::1]:8080", false},
		{"empty listen", "", true},
		{"missing port", "127.0.0.1", true},
		{"invalid port zero", "127.0.0.1:0", true},
		{"port too high", "127.0.0.1:70000", true},
		{"not a number", "127.0.0.1:abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Server.Listen = tt.listen
			errs := cfg.Validate()
			if tt.wantErr {
				require.NotEmpty(t, errs)
				assert.Contains(t, errs[0].Error(), "server.listen")
			} else {
				for _, err := range errs {
					assert.NotContains(t, err.Error(), "server.listen")
				}
			}
		})
	}
}

func TestValidate_Timeouts(t *testing.T) {
	cfg := validConfig()
	cfg.Server.EmbedTimeout = 0
	cfg.Server.IndexTimeout = -time.Second

	errs := cfg.Validate()
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "server.embed_timeout")
	assert.Contains(t, errs[1].Error(), "server.index_timeout")
}

func TestValidate_StorageBackend(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		wantErr bool
	}{
		{"valid sqlite", "sqlite", false},
		{"invalid backend", "postgres", true},
		{"empty backend", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Storage.Backend = tt.backend
			errs := cfg.Validate()
			if tt.wantErr {
				require.NotEmpty(t, errs)
				assert.Contains(t, errs[0].Error(), "storage.backend")
			} else {
				for _, err := range errs {
					assert.NotContains(t, err.Error(), "storage.backend")
				}
			}
		})
	}
}

func TestValidate_VectorBackend(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		wantErr bool
	}{
		{"empty falls back to relational", "", false},
		{"valid sqlite", "sqlite", false},
		{"valid chromem", "chromem", false},
		{"invalid backend", "pinecone", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Storage.VectorBackend = tt.backend
			errs := cfg.Validate()
			if tt.wantErr {
				require.NotEmpty(t, errs)
				assert.Contains(t, errs[0].Error(), "storage.vector_backend")
			} else {
				assert.Empty(t, errs)
			}
		})
	}
}

func TestValidate_EmbeddingProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		wantErr  bool
	}{
		{"empty defaults to hash", "", false},
		{"valid hash", "hash", false},
		{"valid openai", "openai", false},
		{"invalid provider", "cohere", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Embedding.Provider = tt.provider
			errs := cfg.Validate()
			if tt.wantErr {
				require.NotEmpty(t, errs)
				assert.Contains(t, errs[0].Error(), "embedding.provider")
			} else {
				assert.Empty(t, errs)
			}
		})
	}
}

func TestValidate_OnnxRequiresPaths(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Provider = "onnx"

	errs := cfg.Validate()
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "embedding.model_path")
	assert.Contains(t, errs[1].Error(), "embedding.tokenizer_path")

	cfg.Embedding.ModelPath = "/opt/models/encoder.onnx"
	cfg.Embedding.TokenizerPath = "/opt/models/tokenizer.json"
	assert.Empty(t, cfg.Validate())
}

func TestValidate_DimensionMismatch(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Dimensions = 768

	errs := cfg.Validate()
	require.NotEmpty(t, errs)
	found := false
	for _, err := range errs {
		if strings.Contains(err.Error(), "must match storage.vector_dimensions") {
			found = true
		}
	}
	assert.True(t, found, "expected dimension mismatch error, got: %v", errs)
}

func TestValidate_CacheMaxEntries(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Cache.MaxEntries = 0

	errs := cfg.Validate()
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), "embedding.cache.max_entries")

	// A disabled cache does not need a size.
	cfg.Embedding.Cache.Enabled = false
	assert.Empty(t, cfg.Validate())
}

func TestValidate_ReconcileBatchSize(t *testing.T) {
	tests := []struct {
		name      string
		batchSize int
		wantErr   bool
	}{
		{"valid batch size", 100, false},
		{"minimum batch size", 1, false},
		{"zero batch size", 0, true},
		{"negative batch size", -10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Reconcile.BatchSize = tt.batchSize
			errs := cfg.Validate()
			if tt.wantErr {
				require.NotEmpty(t, errs)
				assert.Contains(t, errs[0].Error(), "reconcile.batch_size")
			} else {
				for _, err := range errs {
					assert.NotContains(t, err.Error(), "reconcile.batch_size")
				}
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Listen: "not-valid",
		},
		Storage: config.StorageConfig{
			Backend:          "postgres",
			VectorDimensions: 0,
		},
		Embedding: config.EmbeddingConfig{
			Provider: "cohere",
		},
		Reconcile: config.ReconcileConfig{
			BatchSize: 0,
		},
	}

	errs := cfg.Validate()
	// Collect every error, not just the first.
	assert.GreaterOrEqual(t, len(errs), 5, "expected at least 5 validation errors, got %d: %v", len(errs), errs)
}

func TestLoad_InvalidConfigFailsFast(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "keepsake.yaml")

	content := `
server:
  listen: "not-valid"
storage:
  backend: "mysql"
`
	err := os.WriteFile(cfgPath, []byte(content), 0o644)
	require.NoError(t, err)

	_, err = config.Load(cfgPath)
	require.Error(t, err, "Load should fail with invalid config")
	assert.Contains(t, err.Error(), "validating config")
}
