package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gennadis/virtualparent/internal/server"
	"github.com/gennadis/virtualparent/storage"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:         "serve",
	Short:       "Run the chat persistence service",
	Long:        `Serve POST and GET /api/chats backed by a SQLite database.`,
	Annotations: map[string]string{"log": logFormatJSON},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o700); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
		db, err := storage.NewSqliteDB(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer db.Close()

		messages, err := storage.NewMessages(db)
		if err != nil {
			return err
		}

		slog.Info("chat storage ready",
			slog.String("database", cfg.DatabasePath),
			slog.Bool("require_token", cfg.RequireToken),
		)

		handler := server.NewServer(messages, cfg.RequireToken)
		if err := server.ListenAndServe(cmd.Context(), cfg.ListenAddr, handler); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve: %w", err)
		}
		slog.Info("persistence service stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
