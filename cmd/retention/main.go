package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alvares777-IA/cameras-arcos/internal/config"
	"github.com/alvares777-IA/cameras-arcos/internal/observability"
	"github.com/alvares777-IA/cameras-arcos/internal/retention"
	"github.com/alvares777-IA/cameras-arcos/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	days := flag.Int("days", 0, "override retention days")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *days > 0 {
		cfg.Retention.Days = *days
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rep, err := retention.New(db, cfg.Recording.Root, cfg.Retention.Days).RunOnce(ctx)
	if err != nil {
		slog.Error("retention failed", "error", err)
		os.Exit(1)
	}
	if rep.Errors > 0 {
		slog.Warn("retention finished with errors", "errors", rep.Errors)
	}
}
