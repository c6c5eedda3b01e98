// ABOUTME: Worker pool claiming jobs from the store and handing them to the pipeline
// ABOUTME: Wakes on Notify or a poll tick and retries only errors marked retryable

package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/deckbot/internal/metrics"
	"github.com/2389/deckbot/internal/store"
)

const persistTimeout = 5 * time.Second

// JobStore is the part of the store the queue uses.
type JobStore interface {
	EnqueueJob(ctx context.Context, job *store.Job) error
	ClaimJob(ctx context.Context, now time.Time) (*store.Job, error)
	CompleteJob(ctx context.Context, id string) error
	RetryJob(ctx context.Context, id, lastError string, availableAt time.Time) error
	FailJob(ctx context.Context, id, lastError string) error
	RequeueRunningJobs(ctx context.Context) (int64, error)
}

// Runner executes one generation request.
type Runner interface {
	Run(ctx context.Context, requestID string) error
}

// Options configure a Queue.
type Options struct {
	Workers      int
	MaxAttempts  int
	RetryBackoff time.Duration
	PollInterval time.Duration
	// Retryable reports whether a failed run may be attempted again.
	// Nil means nothing is retried.
	Retryable func(error) bool
	Metrics   metrics.Recorder
}

// Queue dispatches generation requests to background workers.
type Queue struct {
	store  JobStore
	runner Runner
	opts   Options
	wake   chan struct{}
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Queue.
func New(s JobStore, runner Runner, opts Options, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 30 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.Retryable == nil {
		opts.Retryable = func(error) bool { return false }
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	return &Queue{
		store:  s,
		runner: runner,
		opts:   opts,
		wake:   make(chan struct{}, 1),
		now:    time.Now,
		logger: logger.With("component", "queue"),
	}
}

// Enqueue stores a job for requestID and wakes a worker. It does not wait for the job.
func (q *Queue) Enqueue(ctx context.Context, requestID string) error {
	job := &store.Job{
		ID:          uuid.New().String(),
		RequestID:   requestID,
		MaxAttempts: q.opts.MaxAttempts,
	}
	if err := q.store.EnqueueJob(ctx, job); err != nil {
		return fmt.Errorf("enqueueing request %s: %w", requestID, err)
	}
	q.logger.Info("job enqueued", "job_id", job.ID, "request_id", requestID)
	q.Notify()
	return nil
}

// Notify wakes one idle worker without blocking.
func (q *Queue) Notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Run requeues interrupted jobs and runs the workers until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	n, err := q.store.RequeueRunningJobs(ctx)
	if err != nil {
		return fmt.Errorf("requeueing interrupted jobs: %w", err)
	}
	if n > 0 {
		q.logger.Info("requeued interrupted jobs", "count", n)
	}

	var wg sync.WaitGroup
	for i := 0; i < q.opts.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			q.work(ctx, worker)
		}(i)
	}
	q.logger.Info("queue workers started", "workers", q.opts.Workers)

	wg.Wait()
	q.logger.Info("queue workers stopped")
	return nil
}

func (q *Queue) work(ctx context.Context, worker int) {
	logger := q.logger.With("worker", worker)
	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := q.store.ClaimJob(ctx, q.now())
		switch {
		case err == nil:
			q.process(ctx, logger, job)
			// Keep draining before sleeping.
			continue
		case errors.Is(err, store.ErrNotFound):
		case ctx.Err() != nil:
			return
		default:
			logger.Error("claiming job", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		case <-ticker.C:
		}
	}
}

func (q *Queue) process(ctx context.Context, logger *slog.Logger, job *store.Job) {
	logger = logger.With("job_id", job.ID, "request_id", job.RequestID, "attempt", job.Attempts)
	logger.Info("running job")

	runErr := q.runner.Run(ctx, job.RequestID)
	if runErr != nil && ctx.Err() != nil {
		logger.Info("job interrupted by shutdown, left for requeue")
		return
	}

	// The outcome is recorded even if ctx is cancelled from here on.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	var err error
	switch {
	case runErr == nil:
		err = q.store.CompleteJob(persistCtx, job.ID)
		q.opts.Metrics.JobAttempt("succeeded")
		logger.Info("job succeeded")
	case q.opts.Retryable(runErr) && job.Attempts < job.MaxAttempts:
		next := q.now().Add(q.opts.RetryBackoff * time.Duration(job.Attempts))
		err = q.store.RetryJob(persistCtx, job.ID, runErr.Error(), next)
		q.opts.Metrics.JobAttempt("retried")
		logger.Warn("job failed, will retry", "error", runErr, "retry_at", next)
	default:
		err = q.store.FailJob(persistCtx, job.ID, runErr.Error())
		q.opts.Metrics.JobAttempt("failed")
		logger.Error("job failed", "error", runErr)
	}
	if err != nil {
		logger.Error("recording job outcome", "error", err)
	}
}
