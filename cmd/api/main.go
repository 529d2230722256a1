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
	apphttp "chatflow_backend/internal/http"
	"chatflow_backend/internal/http/router"
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
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	resumeHinter, closeHinter := initResumeHinter(cfg, log)
	if closeHinter != nil {
		defer closeHinter()
	}

	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

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
	if resumeHinter != nil {
		workflowModule.Runner().SetResumeHinter(resumeHinter)
	}

	followupModule := followup.NewModule(pool, sender, takeoverModule.Service(), eventBus, cfg.GetPollerBatchSize(), log)

	ingestModule := ingest.NewModule(pool, cfg, tenantService, leadsModule.Service().Repository(), takeoverModule.Service(), eventBus, log)
	ingestModule.Service().SetProfileFetcher(channelClient)

	// The reply gate subscribes to inbound messages and speaks only
	// when no human holds the conversation and the lead's bot is on.
	gate := responder.NewGate(&responder.StaticResponder{}, leadsModule.Service().Repository(), takeoverModule.Service(), channelClient, log)
	gate.Register(eventBus)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			takeoverModule,
			leadsModule,
			workflowModule,
			followupModule,
			ingestModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		// Let in-flight event handlers drain before the process exits.
		eventBus.Wait()
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initResumeHinter(cfg config.SchedulerConfig, log *logger.Logger) (*scheduler.Client, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; run resume hints disabled, ticker sweep only")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
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
