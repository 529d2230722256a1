package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatflow_backend/internal/channel"
	"chatflow_backend/internal/events"
	"chatflow_backend/internal/followup"
	"chatflow_backend/internal/ingest"
	"chatflow_backend/internal/leads"
	"chatflow_backend/internal/responder"
	"chatflow_backend/internal/scheduler"
	"chatflow_backend/internal/takeover"
	"chatflow_backend/internal/tenant"
	"chatflow_backend/internal/workflow"
	"chatflow_backend/platform/config"
	"chatflow_backend/platform/db"
	"chatflow_backend/platform/logger"
	"chatflow_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	tenantService := tenant.NewService(tenant.New(pool), cfg.GetSettingsCacheTTL(), cfg.GetTakeoverDefaultDuration())

	credentials := channel.NewSettingsCredentials(tenantService, cfg.GetChannelCredentialsTTL())
	channelClient := channel.NewClient(cfg, credentials, log)
	sender := responder.NewSender(channelClient)

	takeoverModule := takeover.NewModule(pool, tenantService, eventBus, val, log)
	leadsModule := leads.NewModule(pool, eventBus, val, log)

	workflowModule := workflow.NewModule(
		pool,
		leadsModule.Service().Repository(),
		sender,
		takeoverModule.Service(),
		eventBus,
		val,
		cfg.GetPollerBatchSize(),
		log,
	)

	followupModule := followup.NewModule(pool, sender, takeoverModule.Service(), eventBus, cfg.GetPollerBatchSize(), log)

	// The worker prunes dedup records directly off the repository; the
	// webhook handlers themselves only run in the api process.
	pruner := newDeliveryPruner(pool)

	worker, err := scheduler.NewWorker(cfg, cfg, workflowModule.Service(), followupModule.Service(), pruner, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
	eventBus.Wait()
}

type deliveryPruner struct {
	repo *ingest.Repository
}

func newDeliveryPruner(pool *pgxpool.Pool) *deliveryPruner {
	return &deliveryPruner{repo: ingest.NewRepository(pool)}
}

func (p *deliveryPruner) PruneDeliveries(ctx context.Context, retention time.Duration) (int64, error) {
	return p.repo.DeleteOlderThan(ctx, retention)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
