// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

package main

import (
	"os"

	"github.com/keepsake-dev/keepsake/internal/config"
	"github.com/keepsake-dev/keepsake/internal/embedding"
	"github.com/keepsake-dev/keepsake/internal/memory"
	"github.com/keepsake-dev/keepsake/internal/server"
	"github.com/keepsake-dev/keepsake/internal/store"
	_ "github.com/keepsake-dev/keepsake/internal/store/chromem" // register chromem vector backend
	_ "github.com/keepsake-dev/keepsake/internal/store/sqlite"  // register sqlite backends
	kerr "github.com/keepsake-dev/keepsake/pkg/errors"
)

// App holds all wired subsystems and manages their lifecycle.
type App struct {
	Server     *server.Server
	Service    *memory.Service
	Reconciler *memory.Reconciler

	memories store.MemoryStore
	sessions store.SessionStore
	index    store.VectorIndex
	embedder embedding.Embedder
}

// wireApp creates all subsystems and wires them together.
func wireApp(cfg *config.Config) (*App, error) {
	core, err := wireCore(cfg)
	if err != nil {
		return nil, err
	}

	srv, err := server.New(server.Config{
		ListenAddr:  cfg.Server.Listen,
		CORSOrigins: cfg.Server.CORSOrigins,
	})
	if err != nil {
		_ = core.Close()
		return nil, kerr.Errorf(kerr.CodeCLISetupFailure, "creating server: %w", err)
	}
	srv.RegisterServices(&server.Services{
		Memories: core.Service,
		Sessions: core.Service,
		Sweeper:  core.Reconciler,
	})
	core.Server = srv

	return core, nil
}

// wireCore builds the stores, embedder, service, and reconciler without the
// HTTP server. The reconcile subcommand uses this directly.
func wireCore(cfg *config.Config) (*App, error) {
	dataDir := cfg.Storage.DataDir
	if dataDir == "" {
		var err error
		dataDir, err = config.DefaultDataDir()
		if err != nil {
			return nil, kerr.Wrap(err, kerr.CodeCLISetupFailure, "resolving data directory")
		}
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, kerr.Errorf(kerr.CodeCLISetupFailure, "creating data directory: %w", err)
	}

	storeCfg := &store.StorageConfig{
		Backend:          cfg.Storage.Backend,
		VectorBackend:    cfg.Storage.VectorBackend,
		VectorDimensions: cfg.Storage.VectorDimensions,
	}

	memories, sessions, err := store.NewStores(storeCfg, dataDir)
	if err != nil {
		return nil, kerr.Errorf(kerr.CodeCLISetupFailure, "creating relational stores: %w", err)
	}

	index, err := store.NewVectorIndex(storeCfg, dataDir)
	if err != nil {
		_ = memories.Close()
		_ = sessions.Close()
		return nil, kerr.Errorf(kerr.CodeCLISetupFailure, "creating vector index: %w", err)
	}

	embedder, err := embedding.New(embedding.Config{
		Provider:        cfg.Embedding.Provider,
		Model:           cfg.Embedding.Model,
		Dimensions:      cfg.Embedding.Dimensions,
		APIKey:          cfg.Embedding.APIKey,
		ModelPath:       cfg.Embedding.ModelPath,
		TokenizerPath:   cfg.Embedding.TokenizerPath,
		LibraryPath:     cfg.Embedding.LibraryPath,
		CacheEnabled:    cfg.Embedding.Cache.Enabled,
		CacheMaxEntries: int64(cfg.Embedding.Cache.MaxEntries),
	})
	if err != nil {
		_ = index.Close()
		_ = memories.Close()
		_ = sessions.Close()
		return nil, kerr.Errorf(kerr.CodeCLISetupFailure, "creating embedder: %w", err)
	}

	svc := memory.NewService(memories, sessions, index, embedder, memory.Options{
		EmbedTimeout: cfg.Server.EmbedTimeout,
		IndexTimeout: cfg.Server.IndexTimeout,
	})
	rec := memory.NewReconciler(memories, index, embedder, memory.ReconcilerOptions{
		BatchSize: cfg.Reconcile.BatchSize,
	})

	return &App{
		Service:    svc,
		Reconciler: rec,
		memories:   memories,
		sessions:   sessions,
		index:      index,
		embedder:   embedder,
	}, nil
}

// Close releases all resources in reverse wiring order.
func (a *App) Close() error {
	var firstErr error
	for _, c := range []interface{ Close() error }{a.embedder, a.index, a.sessions, a.memories} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
