package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gennadis/virtualparent/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const logFormatJSON = "json"

var (
	verbose bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "virtualparent",
	Short: "Chat with a caring virtual parent",
	Long: `virtualparent is a parenting-advice chat assistant.

Conversations are kept as sessions; replies stream in as they are generated
and every message is saved to the chat persistence service.

Quick Start:
  virtualparent serve               # run the persistence service
  virtualparent chat                # start chatting
  virtualparent sessions list       # browse past conversations`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(viper.New())
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if verbose {
			loaded.LogLevel = slog.LevelDebug
		}
		cfg = loaded
		setupLogger(cmd.Annotations["log"], cfg.LogLevel)
		return nil
	},
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogger(format string, level slog.Level) {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if format == logFormatJSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}
