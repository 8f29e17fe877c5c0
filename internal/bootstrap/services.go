package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/gradebench/gradebench/config"
	"github.com/gradebench/gradebench/internal/core"
	"github.com/gradebench/gradebench/internal/data"
	"github.com/gradebench/gradebench/internal/domain/queue"
	"github.com/gradebench/gradebench/internal/evaluator"
	httpx "github.com/gradebench/gradebench/internal/http"
	"github.com/gradebench/gradebench/internal/service"
)

// ServiceDeps holds shared infrastructure for building the service container.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// ServiceContainer holds the constructed services and the repositories the
// HTTP layer needs directly.
type ServiceContainer struct {
	Batches *service.BatchService
	Worker  *service.WorkerService
	Secrets *service.SecretService

	QueueRepo core.QueueRepository
	JobRepo   core.JobRepository
}

// NewServices constructs repositories and services from shared infrastructure.
func NewServices(deps *ServiceDeps) (*ServiceContainer, error) {
	if deps == nil || deps.Config == nil || deps.DB == nil {
		return nil, errors.New("config and database are required")
	}
	cfg := deps.Config
	logger := deps.Logger

	queueRepo := data.NewQueueRepo(deps.DB, data.QueueRepoConfig{Logger: logger})
	jobRepo := data.NewJobRepo(deps.DB, data.JobRepoConfig{Logger: logger})
	resultRepo := data.NewResultRepo(deps.DB)
	batchRepo := data.NewBatchRepo(deps.DB, data.BatchRepoConfig{Logger: logger})
	secretRepo := data.NewSecretRepo(deps.DB, CreateEncryptor(cfg.SecretsEncryptionKey, logger))

	var cache core.BatchSummaryCache
	if deps.RedisClient != nil {
		cache = data.NewRedisBatchCache(deps.RedisClient, data.BatchSummaryCacheConfig{
			TTL: cfg.Redis.SummaryTTL,
		})
	}

	engine, err := evaluator.NewClient(evaluator.Options{
		BaseURL:       cfg.Evaluator.BaseURL,
		Logger:        logger,
		Timeout:       cfg.Evaluator.Timeout,
		MaxTurns:      cfg.Evaluator.MaxTurns,
		ExpectedItems: cfg.Evaluator.ExpectedItems,
	})
	if err != nil {
		return nil, fmt.Errorf("build evaluator client: %w", err)
	}

	policy, err := queue.NewVisibilityPolicy(cfg.Worker.VisibilityTimeout)
	if err != nil {
		return nil, fmt.Errorf("build visibility policy: %w", err)
	}
	if !policy.Covers(engine.Timeout()) {
		return nil, fmt.Errorf("visibility timeout %s must exceed evaluator timeout %s",
			cfg.Worker.VisibilityTimeout, engine.Timeout())
	}

	worker, err := service.NewWorkerService(service.WorkerServiceOptions{
		QueueRepo:         queueRepo,
		JobRepo:           jobRepo,
		ResultRepo:        resultRepo,
		BatchRepo:         batchRepo,
		SecretRepo:        secretRepo,
		Evaluator:         engine,
		Policy:            policy,
		Cache:             cache,
		Logger:            logger,
		InterMessageDelay: cfg.Worker.InterMessageDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("build worker service: %w", err)
	}

	batches, err := service.NewBatchService(service.BatchServiceOptions{
		BatchRepo:  batchRepo,
		JobRepo:    jobRepo,
		QueueRepo:  queueRepo,
		ResultRepo: resultRepo,
		Cache:      cache,
		Logger:     logger,
		DrainTrigger: func(ctx context.Context) {
			if _, derr := worker.DrainQueue(ctx); derr != nil && logger != nil {
				logger.WarnContext(ctx, "triggered drain failed", "error", derr)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build batch service: %w", err)
	}

	secrets, err := service.NewSecretService(service.SecretServiceOptions{
		Repo:   secretRepo,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build secret service: %w", err)
	}

	return &ServiceContainer{
		Batches:   batches,
		Worker:    worker,
		Secrets:   secrets,
		QueueRepo: queueRepo,
		JobRepo:   jobRepo,
	}, nil
}

const httpShutdownTimeout = 10 * time.Second

// RunServicesWithShutdown starts the enabled services and blocks until a
// shutdown signal arrives or a service fails.
func RunServicesWithShutdown(cfg *config.AppConfig, services *ServiceContainer, logger *slog.Logger) error {
	if cfg == nil || services == nil {
		return errors.New("config and services are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := cfg.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if enabled[config.ServiceModeHTTP] {
		server := &http.Server{
			Addr:              cfg.HTTP.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			Handler: httpx.NewRouter(httpx.RouterServices{
				Batches:   services.Batches,
				Worker:    services.Worker,
				Secrets:   services.Secrets,
				QueueRepo: services.QueueRepo,
				JobRepo:   services.JobRepo,
				Logger:    logger,
			}),
		}

		g.Go(func() error {
			logger.Info("http server listening", "addr", cfg.HTTP.Addr)
			if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", serveErr)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if enabled[config.ServiceModePoller] {
		g.Go(func() error {
			return runPoller(gctx, cfg.Worker.PollInterval, services.Worker, logger)
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// runPoller drives a drain cycle on a fixed interval. A failed cycle is logged
// and retried on the next tick; only context cancellation stops the poller.
func runPoller(ctx context.Context, interval time.Duration, worker *service.WorkerService, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("queue poller started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			summary, err := worker.DrainQueue(ctx)
			if err != nil {
				logger.WarnContext(ctx, "drain cycle failed", "error", err)
				continue
			}
			if summary.Processed > 0 {
				logger.InfoContext(ctx, "drain cycle finished",
					"processed", summary.Processed,
					"errored", summary.Errored,
					"last_error", summary.LastError)
			}
		}
	}
}
