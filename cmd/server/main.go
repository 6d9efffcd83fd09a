// Command server runs the ecoscan HTTP API.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/YumeNoTenshi/ecoscan/internal/api"
	"github.com/YumeNoTenshi/ecoscan/internal/config"
	"github.com/YumeNoTenshi/ecoscan/internal/ecotags"
	"github.com/YumeNoTenshi/ecoscan/internal/events"
	"github.com/YumeNoTenshi/ecoscan/internal/history"
	"github.com/YumeNoTenshi/ecoscan/internal/importer"
	"github.com/YumeNoTenshi/ecoscan/internal/metrics"
	"github.com/YumeNoTenshi/ecoscan/internal/planner"
	"github.com/YumeNoTenshi/ecoscan/internal/report"
	"github.com/YumeNoTenshi/ecoscan/internal/session"
	"github.com/YumeNoTenshi/ecoscan/pkg/cloud"
	"github.com/YumeNoTenshi/ecoscan/pkg/ml"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openHistory(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open history store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	publisher := openPublisher(cfg, logger)
	defer publisher.Close()

	sessions := session.NewManager(session.ManagerConfig{
		IdleTimeout:     cfg.SessionIdleTTL,
		CleanupInterval: time.Minute,
	}, logger)
	go func() {
		if err := sessions.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("session cleanup stopped", "error", err)
		}
	}()

	tags := ecotags.NewTagManager()
	server := api.NewServer(api.Deps{
		Sessions:  sessions,
		History:   store,
		Importer:  importer.New(importer.StructuredExtractor{}, tags, logger),
		Tags:      tags,
		Planner:   planner.NewPlanner(planner.PlannerConfig{MinCo2Saving: 1}),
		Reports:   report.NewBuilder(),
		Collector: metrics.NewCollector(),
		Analyzer:  metrics.NewAnalyzer(metrics.AnalyzerConfig{MinDataPoints: 3}),
		Predictor: ml.NewPredictor(ml.PredictorConfig{MinDataPoints: 2, Horizon: 30 * 24 * time.Hour}),
		Publisher: publisher,
		Provider:  openProvider(ctx, cfg, logger),
		Auth: api.AuthConfig{
			APIKey:           cfg.APIKey,
			JWTSecret:        cfg.JWTSecret,
			DefaultRequester: cfg.DefaultRequester,
		},
		Logger: logger,
	})
	if !cfg.AuthEnabled() {
		logger.Warn("API_KEY and JWT_SECRET are empty, authentication disabled")
	}

	serve(ctx, cfg, server.Handler(), logger)
}

// openHistory returns the PostgreSQL store when DATABASE_URL is set and the
// in-memory store otherwise.
func openHistory(ctx context.Context, cfg config.Config, logger *slog.Logger) (history.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Info("DATABASE_URL is empty, history kept in memory")
		return history.NewMemoryStore(), func() {}, nil
	}

	if cfg.AutoMigrate {
		if err := history.Migrate(cfg.DatabaseURL); err != nil {
			return nil, nil, err
		}
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, err := history.Connect(connCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return history.NewPostgresStore(db), func() { closeDB(db, logger) }, nil
}

func closeDB(db *sql.DB, logger *slog.Logger) {
	if err := db.Close(); err != nil {
		logger.Error("close database", "error", err)
	}
}

func openPublisher(cfg config.Config, logger *slog.Logger) events.Publisher {
	if cfg.KafkaBrokers == "" {
		return events.NoopPublisher{}
	}
	p, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	if err != nil {
		logger.Error("kafka publisher unavailable, events disabled", "error", err)
		return events.NoopPublisher{}
	}
	logger.Info("publishing history events", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	return p
}

// openProvider returns nil when discovery is not configured or the provider
// cannot be created; the discover endpoint then answers 503.
func openProvider(ctx context.Context, cfg config.Config, logger *slog.Logger) cloud.CloudProvider {
	if cfg.CloudProvider == "" {
		return nil
	}
	p, err := cloud.NewProvider(ctx, cloud.ProviderConfig{
		Kind:       cfg.CloudProvider,
		AWSRegion:  cfg.AWSRegion,
		GCPProject: cfg.GCPProject,
		GCPZone:    cfg.GCPZone,
	})
	if err != nil {
		logger.Error("cloud discovery disabled", "provider", cfg.CloudProvider, "error", err)
		return nil
	}
	return p
}

func serve(ctx context.Context, cfg config.Config, handler http.Handler, logger *slog.Logger) {
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ecoscan listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
