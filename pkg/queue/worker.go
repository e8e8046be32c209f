package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/aboerstra/fraud-adjudicator/pkg/config"
	"github.com/aboerstra/fraud-adjudicator/pkg/errs"
	"github.com/aboerstra/fraud-adjudicator/pkg/masking"
	"github.com/aboerstra/fraud-adjudicator/pkg/models"
	"github.com/aboerstra/fraud-adjudicator/pkg/store"
)

// WorkerStatus is the current state of a Worker for health reporting.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// pollInterval is how long an idle worker sleeps between reservation
// attempts when the queue is empty.
const pollInterval = 500 * time.Millisecond

// Reserver is the subset of *store.Client the Worker needs to claim and
// requeue Queue Entries (spec §4.3, §4.4).
type Reserver interface {
	ReserveNext(ctx context.Context, workerID string, now time.Time) (*models.QueueEntry, error)
	Requeue(ctx context.Context, jobID string, backoff time.Duration, now time.Time) error
	Finalize(ctx context.Context, requestID string, decision *models.Decision, failureReason string, now time.Time) error
}

// Worker is a single Dispatcher worker: it loops reserving queue entries
// and running them through the Pipeline (spec §4.4).
type Worker struct {
	id       string
	store    Reserver
	pipeline *Pipeline
	cfg      config.QueueConfig
	masker   *masking.Service
	logger   *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu                sync.RWMutex
	status            WorkerStatus
	currentRequestID  string
	requestsProcessed int
	lastActivity      time.Time
}

// NewWorker constructs a Worker. store, pipeline, and masker must not be
// nil.
func NewWorker(id string, store Reserver, pipeline *Pipeline, cfg config.QueueConfig, masker *masking.Service, logger *slog.Logger) *Worker {
	if store == nil || pipeline == nil || masker == nil {
		panic("queue.NewWorker: store, pipeline, and masker must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		id:           id,
		store:        store,
		pipeline:     pipeline,
		cfg:          cfg,
		masker:       masker,
		logger:       logger,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker's poll loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop after its current attempt and waits
// for it to exit.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health reports the worker's current status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:                w.id,
		Status:            string(w.status),
		CurrentRequestID:  w.currentRequestID,
		RequestsProcessed: w.requestsProcessed,
		LastActivity:      w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	log := w.logger.With("worker_id", w.id)
	log.Info("dispatcher worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("dispatcher worker stopping")
			return
		case <-ctx.Done():
			log.Info("dispatcher worker stopping: context cancelled")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, store.ErrNoEntriesAvailable) {
					w.sleep(pollInterval)
					continue
				}
				log.Error("dispatcher: error reserving entry", "error", w.masker.Redact(err.Error()))
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess reserves the next claimable entry and runs it through
// one pipeline attempt, handling the retry/dead-letter decision on
// failure (spec §4.4 steps 1-5).
func (w *Worker) pollAndProcess(ctx context.Context) error {
	now := time.Now()
	entry, err := w.store.ReserveNext(ctx, w.id, now)
	if err != nil {
		return err
	}

	log := w.logger.With("request_id", entry.JobID, "worker_id", w.id, "attempt", entry.Attempts)
	log.Info("dispatcher: entry reserved")

	w.setStatus(WorkerStatusWorking, entry.JobID)
	defer w.setStatus(WorkerStatusIdle, "")

	attemptCtx := ctx
	var cancel context.CancelFunc
	if w.cfg.PipelineTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, w.cfg.PipelineTimeout)
		defer cancel()
	}

	decisionOut, runErr := w.pipeline.Run(attemptCtx, entry.JobID, now)

	w.mu.Lock()
	w.requestsProcessed++
	w.mu.Unlock()

	if runErr == nil {
		if err := w.store.Finalize(context.Background(), entry.JobID, &decisionOut, "", time.Now()); err != nil {
			log.Error("dispatcher: failed to finalize decision", "error", w.masker.Redact(err.Error()))
			return fmt.Errorf("finalize: %w", err)
		}
		log.Info("dispatcher: request decided", "final_decision", decisionOut.FinalDecision)
		return nil
	}

	return w.handleFailure(context.Background(), entry, runErr, log)
}

// handleFailure classifies a pipeline attempt's error and either
// requeues with backoff or finalizes the request as failed (spec §4.4
// steps 4-5, §7).
func (w *Worker) handleFailure(ctx context.Context, entry *models.QueueEntry, runErr error, log *slog.Logger) error {
	if errors.Is(runErr, context.DeadlineExceeded) {
		runErr = errs.Wrap(errs.KindTimeout, "pipeline attempt timed out", runErr)
	}

	retryable := errs.IsRetryable(runErr)
	exhausted := entry.Attempts >= w.cfg.MaxTries

	if retryable && !exhausted {
		backoff := backoffFor(w.cfg.BackoffSeconds, entry.Attempts)
		log.Warn("dispatcher: attempt failed, requeueing",
			"error", w.masker.Redact(runErr.Error()), "backoff", backoff)
		if err := w.store.Requeue(ctx, entry.JobID, backoff, time.Now()); err != nil {
			return fmt.Errorf("requeue: %w", err)
		}
		return nil
	}

	reason := w.masker.Redact(runErr.Error())
	log.Error("dispatcher: attempt failed terminally, finalizing as failed",
		"error", reason, "retryable", retryable, "exhausted", exhausted)
	if err := w.store.Finalize(ctx, entry.JobID, nil, reason, time.Now()); err != nil {
		return fmt.Errorf("finalize failure: %w", err)
	}
	return nil
}

// backoffFor returns the Dispatcher's configured backoff for the given
// 1-indexed attempt number, plus jitter, clamping to the last configured
// value if attempts exceeds the schedule's length (spec §4.4, §6
// BACKOFF_SECONDS default [30,60,120]).
func backoffFor(schedule []int, attempt int) time.Duration {
	if len(schedule) == 0 {
		return 30 * time.Second
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	base := time.Duration(schedule[idx]) * time.Second
	jitter := time.Duration(rand.Intn(1000)) * time.Millisecond
	return base + jitter
}

func (w *Worker) setStatus(status WorkerStatus, requestID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentRequestID = requestID
	w.lastActivity = time.Now()
}
