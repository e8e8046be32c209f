package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aboerstra/fraud-adjudicator/pkg/config"
	"github.com/aboerstra/fraud-adjudicator/pkg/masking"
)

// failedRecentWindow bounds the "failed" count the health handler reports
// (spec §6 "failed < 10"): a rolling window keeps the signal meaningful
// as the service runs for a long time, instead of an ever-growing total.
const failedRecentWindow = time.Hour

// HealthStore is the subset of *store.Client the pool needs for health
// aggregation (spec §6 "services.queue").
type HealthStore interface {
	QueueDepth(ctx context.Context, now time.Time) (int, error)
	FailedRecentCount(ctx context.Context, now time.Time, window time.Duration) (int, error)
}

// WorkerPool manages a fixed set of Dispatcher workers sharing one
// Pipeline and Job Store (spec §4.4, §5 "suggested pool size 2-4 workers
// per host").
type WorkerPool struct {
	id       string
	store    Reserver
	health   HealthStore
	pipeline *Pipeline
	cfg      config.QueueConfig
	masker   *masking.Service
	logger   *slog.Logger

	workers []*Worker
}

// NewWorkerPool constructs a WorkerPool with cfg.WorkerCount workers, not
// yet started.
func NewWorkerPool(id string, store Reserver, health HealthStore, pipeline *Pipeline, cfg config.QueueConfig, masker *masking.Service, logger *slog.Logger) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &WorkerPool{
		id:       id,
		store:    store,
		health:   health,
		pipeline: pipeline,
		cfg:      cfg,
		masker:   masker,
		logger:   logger,
	}
	count := cfg.WorkerCount
	if count < 1 {
		count = 1
	}
	p.workers = make([]*Worker, count)
	for i := range p.workers {
		p.workers[i] = NewWorker(fmt.Sprintf("%s-worker-%d", id, i), store, pipeline, cfg, masker, logger)
	}
	return p
}

// Start spawns every worker's poll loop.
func (p *WorkerPool) Start(ctx context.Context) {
	p.logger.Info("starting dispatcher pool", "pool_id", p.id, "worker_count", len(p.workers))
	for _, w := range p.workers {
		w.Start(ctx)
	}
}

// Stop signals every worker to finish its current attempt and exit, and
// waits for all of them.
func (p *WorkerPool) Stop() {
	p.logger.Info("stopping dispatcher pool", "pool_id", p.id)
	for _, w := range p.workers {
		w.Stop()
	}
}

// Health aggregates queue depth, recent failures, and per-worker status
// into the thresholds the HTTP health handler reports (spec §6: "healthy
// when queued < 100 and failed < 10, overloaded / degraded otherwise").
func (p *WorkerPool) Health(ctx context.Context) PoolHealth {
	now := time.Now()

	depth, err := p.health.QueueDepth(ctx, now)
	if err != nil {
		p.logger.Error("health: queue depth query failed", "error", p.masker.Redact(err.Error()))
	}
	failed, err := p.health.FailedRecentCount(ctx, now, failedRecentWindow)
	if err != nil {
		p.logger.Error("health: failed count query failed", "error", p.masker.Redact(err.Error()))
	}

	maxQueued := p.cfg.HealthMaxQueued
	maxFailed := p.cfg.HealthMaxFailed

	status := "healthy"
	switch {
	case depth >= maxQueued:
		status = "overloaded"
	case failed >= maxFailed:
		status = "degraded"
	}

	workerStats := make([]WorkerHealth, len(p.workers))
	for i, w := range p.workers {
		workerStats[i] = w.Health()
	}

	return PoolHealth{
		Status:       status,
		QueueDepth:   depth,
		FailedRecent: failed,
		Workers:      workerStats,
	}
}
