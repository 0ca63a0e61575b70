package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nextlevelbuilder/chatvault/internal/config"
	"github.com/nextlevelbuilder/chatvault/internal/ingest"
	"github.com/nextlevelbuilder/chatvault/internal/kv"
	"github.com/nextlevelbuilder/chatvault/internal/supervisor"
	"github.com/nextlevelbuilder/chatvault/internal/telegram"
	"github.com/nextlevelbuilder/chatvault/internal/web"
)

func runArchiver() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	store, err := kv.Open(cfg.DBPath, slog.Default())
	if err != nil {
		slog.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	pollWindow := time.Duration(cfg.PollTimeoutSeconds) * time.Second
	bot, err := telegram.New(cfg.Token, pollWindow, slog.Default())
	if err != nil {
		slog.Error("failed to connect to telegram", "error", err)
		os.Exit(1)
	}

	worker := ingest.New(store, bot, cfg.MaxFileSizeBytes, cfg.PollTimeoutSeconds, slog.Default())
	server := web.New(store, slog.Default())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sup := supervisor.New(time.Duration(cfg.RestartIntervalMS)*time.Millisecond, slog.Default())
	sup.Add("ingest", worker.Run)
	sup.Add("http", func(ctx context.Context) error {
		return server.Run(ctx, cfg.Listen)
	})

	slog.Info("chatvault starting", "version", Version, "db", cfg.DBPath, "listen", cfg.Listen)
	sup.Run(ctx)
	slog.Info("chatvault stopped")
}
