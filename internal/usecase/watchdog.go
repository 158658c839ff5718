package usecase

import (
	"context"
	"time"

	"github.com/prasetyowira/sportsync/internal/domain/syncjob"
	"github.com/prasetyowira/sportsync/internal/observability"
	"github.com/prasetyowira/sportsync/internal/platform/logging"
)

const staleJobMessage = "job reclaimed: processing past liveness threshold"

// Watchdog reclaims jobs a crashed worker left in processing. It runs
// on its own ticker and shares no locks with the dispatch workers.
type Watchdog struct {
	jobs       syncjob.Repository
	dispatcher *Dispatcher
	interval   time.Duration
	threshold  time.Duration
	metrics    *observability.Metrics
	logger     *logging.Logger
	now        func() time.Time
}

func NewWatchdog(jobs syncjob.Repository, dispatcher *Dispatcher, interval, threshold time.Duration, metrics *observability.Metrics, logger *logging.Logger) *Watchdog {
	if logger == nil {
		logger = logging.Default()
	}
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	if threshold <= 0 {
		threshold = 10 * time.Minute
	}

	return &Watchdog{
		jobs:       jobs,
		dispatcher: dispatcher,
		interval:   interval,
		threshold:  threshold,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Start sweeps until ctx is cancelled.
func (w *Watchdog) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.Sweep(ctx)
			}
		}
	}()
}

// Sweep reclaims every processing job older than the liveness
// threshold: jobs with attempts remaining go straight back to pending
// and re-enter the queue, the rest are force-failed. Terminal records
// are immutable, so the requeue path never passes through failed.
func (w *Watchdog) Sweep(ctx context.Context) {
	cutoff := w.now().Add(-w.threshold)
	stale, err := w.jobs.ListStaleProcessing(ctx, cutoff)
	if err != nil {
		w.logger.ErrorContext(ctx, "list stale jobs failed", "error", err)
		return
	}

	for _, job := range stale {
		w.reclaim(ctx, job)
	}
}

func (w *Watchdog) reclaim(ctx context.Context, job syncjob.Job) {
	message := staleJobMessage
	policy := syncjob.PolicyFor(job.Type)
	requeue := job.Attempts < policy.Attempts && w.dispatcher != nil

	update := syncjob.Update{ErrorMessage: &message}
	status := syncjob.StatusPending
	if !requeue {
		status = syncjob.StatusFailed
		completedAt := w.now().UTC()
		update.CompletedAt = &completedAt
	}
	update.Status = &status

	if err := w.jobs.Update(ctx, job.ID, update); err != nil {
		w.logger.ErrorContext(ctx, "reclaim stale job failed", "job_id", job.ID, "error", err)
		return
	}

	if w.metrics != nil {
		w.metrics.StaleReclaimed.Inc()
	}
	w.logger.WarnContext(ctx, "stale job reclaimed",
		"job_id", job.ID,
		"job_type", job.Type,
		"started_at", job.StartedAt,
		"requeued", requeue,
	)

	if !requeue {
		return
	}

	job.Status = syncjob.StatusPending
	if err := w.dispatcher.Enqueue(job); err != nil {
		w.logger.ErrorContext(ctx, "re-enqueue stale job failed", "job_id", job.ID, "error", err)
		return
	}
	w.logger.InfoContext(ctx, "stale job re-enqueued", "job_id", job.ID, "attempt", job.Attempts+1)
}
