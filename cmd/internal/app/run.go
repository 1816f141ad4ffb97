package app

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

// Run is the CLI entrypoint used by cmd/clubhouse.
// It returns an error instead of calling os.Exit to keep defers effective and lint clean.
func Run() error {
	// A missing .env is normal outside local development.
	envErr := godotenv.Load()

	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogColor)

	switch {
	case envErr == nil:
		log.Debug("config.dotenv.loaded")
	case errors.Is(envErr, fs.ErrNotExist):
		log.Debug("config.dotenv.absent")
	default:
		log.Warn("config.dotenv.fail", slog.Any("err", envErr))
	}

	a, err := New(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.Run(ctx)
}
