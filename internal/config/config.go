// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	kerr "github.com/keepsake-dev/keepsake/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the top-level Keepsake configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
}

// ServerConfig controls how Keepsake listens for connections.
type ServerConfig struct {
	Listen       string        `mapstructure:"listen"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	EmbedTimeout time.Duration `mapstructure:"embed_timeout"`
	IndexTimeout time.Duration `mapstructure:"index_timeout"`
}

// StorageConfig selects the storage backends and their data location.
type StorageConfig struct {
	Backend          string `mapstructure:"backend"`
	VectorBackend    string `mapstructure:"vector_backend"`
	DataDir          string `mapstructure:"data_dir"`
	VectorDimensions int    `mapstructure:"vector_dimensions"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	APIKey     string `mapstructure:"api_key"`

	// Local model paths, used by the onnx provider.
	ModelPath     string `mapstructure:"model_path"`
	TokenizerPath string `mapstructure:"tokenizer_path"`
	LibraryPath   string `mapstructure:"library_path"`

	Cache CacheConfig `mapstructure:"cache"`
}

// CacheConfig controls the in-process embedding cache.
type CacheConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	MaxEntries int  `mapstructure:"max_entries"`
}

// ReconcileConfig tunes the index reconciliation sweep.
type ReconcileConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix KEEPSAKE_).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.listen", "127.0.0.1:8600")
	v.SetDefault("server.embed_timeout", "10s")
	v.SetDefault("server.index_timeout", "5s")
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.vector_backend", "")
	v.SetDefault("storage.data_dir", "")
	v.SetDefault("storage.vector_dimensions", 384)
	v.SetDefault("embedding.provider", "hash")
	v.SetDefault("embedding.dimensions", 384)
	v.SetDefault("embedding.cache.enabled", true)
	v.SetDefault("embedding.cache.max_entries", 4096)
	v.SetDefault("reconcile.batch_size", 100)

	// Environment
	v.SetEnvPrefix("KEEPSAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, kerr.Errorf(kerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, kerr.Errorf(kerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, kerr.Errorf(kerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateReconcile()...)

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, kerr.Errorf(kerr.CodeConfigValidateInvalidValue, "config: server.listen must not be empty"))
	} else {
		host, portStr, err := net.SplitHostPort(c.Server.Listen)
		if err != nil {
			errs = append(errs, kerr.Errorf(kerr.CodeConfigValidateInvalidValue,
				"config: server.listen must be a valid host:port address, got %q: %w",
				c.Server.Listen, err,
			))
		} else {
			_ = host // host can be empty (e.g., ":8600"), which is valid
			port, err := strconv.Atoi(portStr)
			if err != nil {
				errs = append(errs, kerr.Errorf(kerr.CodeConfigValidateInvalidValue,
					"config: server.listen port must be a number, got %q",
					portStr,
				))
			} else if port < 1 || port > 65535 {
				errs = append(errs, kerr.Errorf(kerr.CodeConfigValidateInvalidValue,
					"config: server.listen port must be between 1 and 65535, got %d",
					port,
				))
			}
		}
	}

	if c.Server.EmbedTimeout <= 0 {
		errs = append(errs, kerr.Errorf(kerr.CodeConfigValidateInvalidValue,
			"config: server.embed_timeout must be greater than 0, got %s",
			c.Server.EmbedTimeout,
		))
	}
	if c.Server.IndexTimeout <= 0 {
		errs = append(errs, kerr.Errorf(kerr.CodeConfigValidateInvalidValue,
			"config: server.index_timeout must be greater than 0, got %s",
			c.Server.IndexTimeout,
		))
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	validBackends := map[string]bool{"sqlite": true}
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, kerr.Errorf(kerr.CodeConfigValidateInvalidValue,
			"config: storage.backend must be one of [sqlite], got %q",
			c.Storage.Backend,
		))
	}

	// Empty means "same as backend".
	validVectorBackends := map[string]bool{"": true, "sqlite": true, "chromem": true}
	if !validVectorBackends[c.Storage.VectorBackend] {
		errs = append(errs, kerr.Errorf(kerr.CodeConfigValidateInvalidValue,
			"config: storage.vector_backend must be one of [sqlite, chromem], got %q",
			c.Storage.VectorBackend,
		))
	}

	if c.Storage.VectorDimensions <= 0 {
		errs = append(errs, kerr.Errorf(kerr.CodeConfigValidateInvalidValue,
			"config: storage.vector_dimensions must be greater than 0, got %d",
			c.Storage.VectorDimensions,
		))
	}

	return errs
}

func (c *Config) validateEmbedding() []error {
	var errs []error

	validProviders := map[string]bool{"": true, "hash": true, "openai": true, "onnx": true}
	if !validProviders[c.Embedding.Provider] {
		errs = append(errs, kerr.Errorf(kerr.CodeConfigValidateInvalidValue,
			"config: embedding.provider must be one of [hash, openai, onnx], got %q",
			c.Embedding.Provider,
		))
	}

	if c.Embedding.Dimensions < 0 {
		errs = append(errs, kerr.Errorf(kerr.CodeConfigValidateInvalidValue,
			"config: embedding.dimensions must not be negative, got %d",
			c.Embedding.Dimensions,
		))
	}

	// Local provider vectors must land in an index of the same width.
	if c.Embedding.Dimensions > 0 && c.Storage.VectorDimensions > 0 &&
		c.Embedding.Dimensions != c.Storage.VectorDimensions {
		errs = append(errs, kerr.Errorf(kerr.CodeConfigValidateInvalidValue,
			"config: embedding.dimensions (%d) must match storage.vector_dimensions (%d)",
			c.Embedding.Dimensions, c.Storage.VectorDimensions,
		))
	}

	if c.Embedding.Provider == "onnx" {
		if c.Embedding.ModelPath == "" {
			errs = append(errs, kerr.Errorf(kerr.CodeConfigValidateInvalidValue,
				"config: embedding.model_path must be set for the onnx provider"))
		}
		if c.Embedding.TokenizerPath == "" {
			errs = append(errs, kerr.Errorf(kerr.CodeConfigValidateInvalidValue,
				"config: embedding.tokenizer_path must be set for the onnx provider"))
		}
	}

	if c.Embedding.Cache.Enabled && c.Embedding.Cache.MaxEntries <= 0 {
		errs = append(errs, kerr.Errorf(kerr.CodeConfigValidateInvalidValue,
			"config: embedding.cache.max_entries must be greater than 0 when the cache is enabled, got %d",
			c.Embedding.Cache.MaxEntries,
		))
	}

	return errs
}

func (c *Config) validateReconcile() []error {
	var errs []error

	if c.Reconcile.BatchSize <= 0 {
		errs = append(errs, kerr.Errorf(kerr.CodeConfigValidateInvalidValue,
			"config: reconcile.batch_size must be greater than 0, got %d",
			c.Reconcile.BatchSize,
		))
	}

	return errs
}
