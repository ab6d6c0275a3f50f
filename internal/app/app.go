// Package app wires storage, embedder, cipher, indexer and searcher from
// configuration. Both the MCP server and the CLI commands build on it.
package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dshills/chatsearch-mcp/internal/cipher"
	"github.com/dshills/chatsearch-mcp/internal/config"
	"github.com/dshills/chatsearch-mcp/internal/embedder"
	"github.com/dshills/chatsearch-mcp/internal/indexer"
	"github.com/dshills/chatsearch-mcp/internal/searcher"
	"github.com/dshills/chatsearch-mcp/internal/storage"
)

// App holds the long-lived components. The embedder instance is shared by
// the indexer and the searcher so both use one cache.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Storage  storage.Storage
	Embedder embedder.Embedder
	Indexer  *indexer.Indexer
	Searcher *searcher.Searcher
}

// New opens the database and builds every component
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	decrypter, err := cipher.New(cfg.EncryptionKey)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}

	emb, err := embedder.New(cfg.EmbedderConfig())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	idx := indexer.New(store,
		indexer.WithEmbedder(emb),
		indexer.WithDecrypter(decrypter),
		indexer.WithLogger(logger.With("component", "indexer")),
	)
	srch := searcher.NewSearcher(store, emb, decrypter, cfg.SearcherConfig(logger.With("component", "searcher")))

	logger.Debug("components initialized",
		"db_path", cfg.DBPath,
		"driver", storage.DriverName,
		"embedding_provider", emb.Provider(),
		"embedding_model", emb.Model(),
		"encryption", cfg.EncryptionKey != "",
	)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Storage:  store,
		Embedder: emb,
		Indexer:  idx,
		Searcher: srch,
	}, nil
}

// Close releases the embedder and the database
func (a *App) Close() error {
	embErr := a.Embedder.Close()
	if err := a.Storage.Close(); err != nil {
		return err
	}
	return embErr
}
