package scheduler

import (
	"context"
	"fmt"
	"time"

	"chatflow_backend/internal/delay"
	"chatflow_backend/platform/config"
	"chatflow_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// sweepInterval is the ticker fallback cadence. It bounds how late a
// due item can fire when its asynq hint was lost.
const sweepInterval = 30 * time.Second

// pruneInterval is how often old dedup records are deleted.
const pruneInterval = time.Hour

// RunResumer advances workflow runs whose resume time passed.
type RunResumer interface {
	ResumeDue(ctx context.Context) (delay.Result, error)
}

// FollowUpSender sends follow-ups whose eligibility time passed.
type FollowUpSender interface {
	SendDue(ctx context.Context) (delay.Result, error)
}

// DeliveryPruner removes dedup records past retention.
type DeliveryPruner interface {
	PruneDeliveries(ctx context.Context, retention time.Duration) (int64, error)
}

type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	runs      RunResumer
	followups FollowUpSender
	pruner    DeliveryPruner
	retention time.Duration
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, engineCfg config.EngineConfig, runs RunResumer, followups FollowUpSender, pruner DeliveryPruner, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		runs:      runs,
		followups: followups,
		pruner:    pruner,
		retention: engineCfg.GetDedupRetention(),
		log:       log,
	}

	mux.HandleFunc(TaskWorkflowRunDue, w.handleWorkflowRunDue)

	return w, nil
}

// handleWorkflowRunDue reacts to a wake-up hint by polling for due
// runs. The hint names one run, but claiming the whole due set is
// cheaper than a targeted lookup and makes duplicate hints free.
func (w *Worker) handleWorkflowRunDue(ctx context.Context, task *asynq.Task) error {
	if _, err := ParseWorkflowRunDuePayload(task); err != nil {
		return err
	}

	result, err := w.runs.ResumeDue(ctx)
	if err != nil {
		return err
	}
	if result.Processed > 0 {
		w.log.Info("resumed due runs", "processed", result.Processed, "failed", result.Failed)
	}
	return nil
}

// Run serves asynq tasks and drives the ticker fallbacks until the
// context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go w.runSweeps(ctx)

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

// runSweeps is the no-redis safety net: even if every hint is lost,
// due runs and follow-ups fire within one sweep interval.
func (w *Worker) runSweeps(ctx context.Context) {
	sweep := time.NewTicker(sweepInterval)
	defer sweep.Stop()
	prune := time.NewTicker(pruneInterval)
	defer prune.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			if result, err := w.runs.ResumeDue(ctx); err != nil {
				w.log.Warn("run sweep failed", "error", err)
			} else if result.Processed > 0 {
				w.log.Info("run sweep", "processed", result.Processed, "failed", result.Failed)
			}

			if result, err := w.followups.SendDue(ctx); err != nil {
				w.log.Warn("follow-up sweep failed", "error", err)
			} else if result.Processed > 0 {
				w.log.Info("follow-up sweep", "processed", result.Processed, "failed", result.Failed)
			}
		case <-prune.C:
			if deleted, err := w.pruner.PruneDeliveries(ctx, w.retention); err != nil {
				w.log.Warn("delivery prune failed", "error", err)
			} else if deleted > 0 {
				w.log.Info("pruned delivery records", "deleted", deleted)
			}
		}
	}
}
