package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alvares777-IA/cameras-arcos/internal/analysis"
	"github.com/alvares777-IA/cameras-arcos/internal/api"
	"github.com/alvares777-IA/cameras-arcos/internal/api/handlers"
	"github.com/alvares777-IA/cameras-arcos/internal/api/ws"
	"github.com/alvares777-IA/cameras-arcos/internal/config"
	"github.com/alvares777-IA/cameras-arcos/internal/control"
	"github.com/alvares777-IA/cameras-arcos/internal/facecache"
	"github.com/alvares777-IA/cameras-arcos/internal/ingest"
	"github.com/alvares777-IA/cameras-arcos/internal/models"
	"github.com/alvares777-IA/cameras-arcos/internal/observability"
	"github.com/alvares777-IA/cameras-arcos/internal/queue"
	"github.com/alvares777-IA/cameras-arcos/internal/recorder"
	"github.com/alvares777-IA/cameras-arcos/internal/retention"
	"github.com/alvares777-IA/cameras-arcos/internal/storage"
	"github.com/alvares777-IA/cameras-arcos/internal/vision"
)

type eventPublisher interface {
	PublishEvent(ctx context.Context, ev models.DomainEvent) error
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	mode, err := control.ParseContinuousMode(cfg.Recording.ContinuousMode)
	if err != nil {
		slog.Error("invalid continuous recording mode", "error", err)
		os.Exit(1)
	}

	slog.Info("starting recorder",
		"port", cfg.Server.Port,
		"root", cfg.Recording.Root,
		"segment_duration", cfg.Recording.SegmentDuration,
		"continuous_mode", mode.String(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		slog.Error("migrate database", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.Recording.Root, 0o755); err != nil {
		slog.Error("create recordings root", "root", cfg.Recording.Root, "error", err)
		os.Exit(1)
	}

	checks := []handlers.Check{{Name: "postgres", Ping: db.Ping}}

	// Optional MinIO archive for reference faces
	var archive storage.ObjectArchive
	if cfg.MinIO.Endpoint != "" {
		minioStore, err := storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		archive = minioStore
		checks = append(checks, handlers.Check{Name: "minio", Ping: minioStore.Ping})
	}
	faceStore := storage.NewFaceStore(cfg.Recording.Root, archive)
	if n, err := faceStore.Restore(ctx); err != nil {
		slog.Warn("restore archived faces", "error", err)
	} else if n > 0 {
		slog.Info("restored archived faces", "count", n)
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	// Events go straight to the hub unless NATS is configured, in which
	// case they round-trip through the EVENTS stream.
	var events eventPublisher = hub
	if cfg.NATS.URL != "" {
		producer, err := queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}

		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Error("create event consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		if err := consumer.ConsumeEvents(ctx, "recorder-ws", hub.PublishEvent); err != nil {
			slog.Warn("start event consumer", "error", err)
		}

		events = producer
		checks = append(checks, handlers.Check{Name: "nats", Ping: func(context.Context) error { return producer.Ping() }})
	}

	settings := control.NewSettings(cfg.Recording.IsEnabled(), mode, cfg.FaceRecognition.Enabled)
	ffmpeg := ingest.NewFFmpeg()

	// Face capability is optional: without models the pipeline only marks
	// segments analyzed.
	var analyzer vision.Analyzer
	onnx, err := vision.NewONNXAnalyzer(cfg.Vision)
	switch {
	case err == nil:
		defer onnx.Close()
		analyzer = onnx
		slog.Info("face analysis ready", "models_dir", cfg.Vision.ModelsDir, "gpu", onnx.Accelerated())
	case errors.Is(err, vision.ErrUnavailable):
		slog.Warn("face analysis unavailable", "error", err)
	default:
		slog.Error("init face analysis", "error", err)
		os.Exit(1)
	}

	cache := facecache.New(faceStore, analyzer, cfg.FaceRecognition.CacheTTL)
	pipeline := analysis.New(cfg.FaceRecognition, analysis.Deps{
		Analyzer: analyzer,
		Store:    db,
		Faces:    faceStore,
		Known:    cache,
		Frames:   ffmpeg,
		Events:   events,
	})

	supervisor := recorder.NewSupervisor(ctx, recorder.NewConfig(cfg.Recording), recorder.Deps{
		Adapter:  ffmpeg,
		Store:    db,
		Policy:   settings,
		Events:   events,
		Analysis: pipeline,
	}, db)

	if n, err := supervisor.StartAll(ctx); err != nil {
		slog.Error("start recorders", "error", err)
	} else {
		slog.Info("recorders started", "count", n)
	}

	cleaner := retention.New(db, cfg.Recording.Root, cfg.Retention.Days)
	sched, err := cleaner.Schedule(cfg.Retention.Schedule)
	if err != nil {
		slog.Error("schedule retention", "error", err)
		os.Exit(1)
	}

	router := api.NewRouter(api.RouterConfig{
		APIKey:        cfg.Server.APIKey,
		RetentionDays: cfg.Retention.Days,
		Settings:      settings,
		Store:         db,
		Supervisor:    supervisor,
		Analysis:      pipeline,
		Cache:         cache,
		Faces:         faceStore,
		Prober:        ffmpeg,
		Hub:           hub,
		Checks:        checks,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down recorder...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// Finalizes in-progress segments, which may still enqueue analysis.
	supervisor.StopAll()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer drainCancel()
	if err := pipeline.Close(drainCtx); err != nil {
		slog.Warn("analysis drain incomplete", "error", err)
	}

	<-sched.Stop().Done()
	cancel()

	slog.Info("recorder stopped")
}
