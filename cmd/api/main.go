package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/api/calculate"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/commit"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/config"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/events"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/metrics"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/outbox"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/pipeline"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/prepare"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/store"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/webhook"
)

// Exit codes: 0 clean shutdown, 1 startup failure, 2 shutdown timeout.
func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		return 1
	}
	if err := store.Migrate(cfg.DatabaseURL); err != nil {
		logger.Error("migrations failed", zap.Error(err))
		return 1
	}
	if err := store.InitDBWithURL(ctx, cfg.DatabaseURL); err != nil {
		logger.Error("database init failed", zap.Error(err))
		return 1
	}
	defer store.Close()

	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("bad REDIS_URL", zap.Error(err))
			return 1
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
	}

	var nats *events.NATSPublisher
	var publisher *outbox.Publisher
	if cfg.NATSURL != "" {
		nats, err = events.Connect(cfg.NATSURL)
		if err != nil {
			logger.Error("NATS connect failed", zap.Error(err))
			return 1
		}
		defer nats.Close()

		publisher = outbox.NewPublisher(store.NewOutboxRepo(cfg.OutboxBatchSize), nats, recorder, logger, cfg.OutboxMaxRetries)
		if err := publisher.Start(cfg.OutboxInterval); err != nil {
			logger.Error("outbox publisher failed to start", zap.Error(err))
			return 1
		}
		defer publisher.Stop()
	} else {
		logger.Warn("NATS_URL not set, outbox events will accumulate unpublished")
	}

	notifier := webhook.NewNotifier(recorder, logger)
	defer notifier.Close()

	preparer := prepare.NewStage(store.NewSnapshotRepo(), recorder, logger, prepare.Config{
		CacheTTL:  cfg.PrepareCacheTTL,
		CacheSize: cfg.PrepareCacheSize,
		RuleTTL:   cfg.RuleCacheTTL,
	})
	committer := commit.NewCommitter(store.NewResultRepo(), commit.StoreLocker{}, rdb, notifier, recorder, logger, commit.Config{
		EngineVersion:    pipeline.EngineVersion,
		ResultCacheTTL:   cfg.ResultCacheTTL,
		WebhookEndpoints: cfg.WebhookEndpoints(),
	})
	orchestrator := pipeline.NewOrchestrator(preparer, committer, recorder, logger, cfg.CalcBudget)

	calculate.InitHandler(orchestrator)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/calculate", calculate.HandleCalculate)
	mux.HandleFunc("/v1/results", calculate.HandleResult)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("pricing engine listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("server failed", zap.Error(err))
		return 1
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	orchestrator.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown timed out", zap.Error(err))
		return 2
	}
	return 0
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("bad log level %q: %w", level, err)
	}
	return cfg.Build()
}
