package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gennadis/virtualparent/internal/auth"
	"github.com/gennadis/virtualparent/internal/client"
	"github.com/gennadis/virtualparent/internal/config"
	"github.com/gennadis/virtualparent/internal/history"
	"github.com/gennadis/virtualparent/internal/kv"
	"github.com/gennadis/virtualparent/internal/session"
	"github.com/gennadis/virtualparent/storage"
)

// openRegistry opens the configured local store and returns the session
// registry over it.
func openRegistry(cfg *config.Config) (*session.Registry, func(), error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	var (
		store   kv.Store
		closeFn = func() {}
	)
	switch cfg.LocalStore {
	case config.LocalStoreSQLite:
		db, err := storage.NewSqliteDB(cfg.LocalStorePath())
		if err != nil {
			return nil, nil, err
		}
		kvStore, err := storage.NewKV(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		store, closeFn = kvStore, func() { db.Close() }
	default:
		fileStore, err := kv.NewFile(cfg.LocalStorePath())
		if err != nil {
			return nil, nil, err
		}
		store = fileStore
	}

	return session.NewRegistry(store), closeFn, nil
}

// providerTokens returns the static API key, or a rotating OAuth token when
// client credentials are configured. Rotation stops with ctx.
func providerTokens(ctx context.Context, cfg *config.Config) (auth.TokenSource, error) {
	if !cfg.UsesOAuth() {
		return auth.Static(cfg.APIKey), nil
	}

	handler, err := auth.NewAuthenticationHandler(ctx, cfg.AuthURL, cfg.AuthScope, cfg.ClientID, cfg.ClientSecret, nil)
	if err != nil {
		return nil, err
	}
	handler.Run(ctx)
	return handler, nil
}

func newProvider(ctx context.Context, cfg *config.Config) (*client.Client, error) {
	tokens, err := providerTokens(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return client.NewClient(cfg, tokens), nil
}

func newHistory(cfg *config.Config) *history.Client {
	return history.NewClient(cfg.HistoryURL, cfg.HistoryToken, cfg.UserID)
}
