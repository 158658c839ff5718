package usecase

import (
	"container/heap"
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"

	"github.com/prasetyowira/sportsync/external/apisports"
	"github.com/prasetyowira/sportsync/internal/domain/syncjob"
	"github.com/prasetyowira/sportsync/internal/observability"
	"github.com/prasetyowira/sportsync/internal/platform/logging"
	"github.com/prasetyowira/sportsync/internal/platform/quota"
)

// ErrRunCancelled is returned by handlers that stopped early at a
// cancellation checkpoint. The partial result accompanies it.
var ErrRunCancelled = stderrors.New("job run cancelled")

// Run is the execution context handed to a sync handler.
type Run struct {
	Job syncjob.Job

	cancelled *atomic.Bool
	progress  func(processed, total int)
}

// Cancelled reports whether an external cancel request arrived.
// Handlers check this at every upsert iteration.
func (r *Run) Cancelled() bool {
	return r.cancelled != nil && r.cancelled.Load()
}

// ReportProgress persists item counters on the job record.
func (r *Run) ReportProgress(processed, total int) {
	if r.progress != nil {
		r.progress(processed, total)
	}
}

// HandlerFunc executes one delivery attempt of a job and returns the
// type-specific result.
type HandlerFunc func(ctx context.Context, run *Run) (any, error)

type queueItem struct {
	job     syncjob.Job
	attempt int
	readyAt time.Time
	seq     uint64
}

// readyQueue orders runnable items by priority rank, FIFO within a
// rank.
type readyQueue []*queueItem

func (q readyQueue) Len() int { return len(q) }
func (q readyQueue) Less(i, j int) bool {
	ri, rj := q[i].job.Priority.Rank(), q[j].job.Priority.Rank()
	if ri != rj {
		return ri < rj
	}
	return q[i].seq < q[j].seq
}
func (q readyQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *readyQueue) Push(x any)        { *q = append(*q, x.(*queueItem)) }
func (q *readyQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// delayedQueue orders not-yet-runnable items by their ready time.
type delayedQueue []*queueItem

func (q delayedQueue) Len() int { return len(q) }
func (q delayedQueue) Less(i, j int) bool {
	if !q[i].readyAt.Equal(q[j].readyAt) {
		return q[i].readyAt.Before(q[j].readyAt)
	}
	return q[i].seq < q[j].seq
}
func (q delayedQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *delayedQueue) Push(x any)        { *q = append(*q, x.(*queueItem)) }
func (q *delayedQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

type DispatcherConfig struct {
	Workers          int
	RetrySuppression time.Duration
}

// Dispatcher owns the job queue: it applies the per-type dispatch
// policy, runs handlers on a bounded worker pool, persists lifecycle
// transitions, and prunes terminal records per retention policy.
type Dispatcher struct {
	jobs     syncjob.Repository
	handlers map[syncjob.Type]HandlerFunc
	pool     *ants.Pool
	tracker  *quota.Tracker
	metrics  *observability.Metrics
	logger   *logging.Logger
	now      func() time.Time

	suppression time.Duration

	mu       sync.Mutex
	ready    readyQueue
	delayed  delayedQueue
	seq      uint64
	blocked  map[syncjob.Type]time.Time
	inflight map[string]*atomic.Bool
	waiters  map[string]chan syncjob.Job

	wake chan struct{}
	done chan struct{}
}

func NewDispatcher(jobs syncjob.Repository, cfg DispatcherConfig, tracker *quota.Tracker, metrics *observability.Metrics, logger *logging.Logger) (*Dispatcher, error) {
	if jobs == nil {
		return nil, fmt.Errorf("job repository is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	suppression := cfg.RetrySuppression
	if suppression <= 0 {
		suppression = 30 * time.Second
	}

	return &Dispatcher{
		jobs:        jobs,
		handlers:    make(map[syncjob.Type]HandlerFunc),
		pool:        pool,
		tracker:     tracker,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
		suppression: suppression,
		blocked:     make(map[syncjob.Type]time.Time),
		inflight:    make(map[string]*atomic.Bool),
		waiters:     make(map[string]chan syncjob.Job),
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}, nil
}

func (d *Dispatcher) RegisterHandler(jobType syncjob.Type, handler HandlerFunc) {
	if handler == nil {
		return
	}
	d.handlers[jobType] = handler
}

// Enqueue queues an already-persisted pending job for delivery. The
// attempt number continues from the job's delivered attempts, so a
// watchdog re-enqueue resumes where the lost worker stopped.
func (d *Dispatcher) Enqueue(job syncjob.Job) error {
	if job.ID == "" {
		return fmt.Errorf("%w: job id is required", ErrInvalidInput)
	}
	if _, ok := d.handlers[job.Type]; !ok {
		return fmt.Errorf("%w: no handler registered for %s", ErrInvalidInput, job.Type)
	}

	readyAt := d.now()
	if job.ScheduledAt != nil && job.ScheduledAt.After(readyAt) {
		readyAt = *job.ScheduledAt
	}

	d.push(&queueItem{job: job, attempt: job.Attempts + 1, readyAt: readyAt})
	return nil
}

// EnqueueAndWait queues a job and blocks until it reaches a terminal
// state, returning the terminal record. Used by the full-sync
// orchestrator to sequence stages.
func (d *Dispatcher) EnqueueAndWait(ctx context.Context, job syncjob.Job) (syncjob.Job, error) {
	ch := make(chan syncjob.Job, 1)
	d.mu.Lock()
	d.waiters[job.ID] = ch
	d.mu.Unlock()

	if err := d.Enqueue(job); err != nil {
		d.mu.Lock()
		delete(d.waiters, job.ID)
		d.mu.Unlock()
		return syncjob.Job{}, err
	}

	select {
	case terminal := <-ch:
		return terminal, nil
	case <-ctx.Done():
		d.mu.Lock()
		delete(d.waiters, job.ID)
		d.mu.Unlock()
		return syncjob.Job{}, ctx.Err()
	}
}

// SignalCancel flips the cooperative cancel flag of an in-flight job.
func (d *Dispatcher) SignalCancel(jobID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if flag, ok := d.inflight[jobID]; ok {
		flag.Store(true)
		return true
	}

	// Pending items are removed from contention outright.
	for i, item := range d.ready {
		if item.job.ID == jobID {
			heap.Remove(&d.ready, i)
			return true
		}
	}
	for i, item := range d.delayed {
		if item.job.ID == jobID {
			heap.Remove(&d.delayed, i)
			return true
		}
	}
	return false
}

// Depth reports queued (not in-flight) jobs.
func (d *Dispatcher) Depth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ready) + len(d.delayed)
}

// Start runs the dispatch loop until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	go d.loop(ctx)
}

// Stop releases the worker pool after the loop exits.
func (d *Dispatcher) Stop() {
	<-d.done
	d.pool.Release()
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.done)

	for {
		item, wait := d.next()
		if item != nil {
			run := item
			if err := d.pool.Submit(func() { d.execute(ctx, run) }); err != nil {
				d.logger.Error("submit job to worker pool failed", "job_id", run.job.ID, "error", err)
				d.push(run)
			}
			continue
		}

		if wait <= 0 || wait > time.Minute {
			wait = time.Minute
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-d.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// next pops the highest-priority ready item, promoting delayed items
// whose time has come and holding back suppressed types. The duration
// result is how long the loop may sleep when nothing is runnable.
func (d *Dispatcher) next() (*queueItem, time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for d.delayed.Len() > 0 && !d.delayed[0].readyAt.After(now) {
		heap.Push(&d.ready, heap.Pop(&d.delayed))
	}

	var deferred []*queueItem
	defer func() {
		for _, item := range deferred {
			heap.Push(&d.delayed, item)
		}
	}()

	for d.ready.Len() > 0 {
		item := heap.Pop(&d.ready).(*queueItem)
		if until, ok := d.blocked[item.job.Type]; ok {
			if now.Before(until) {
				item.readyAt = until
				deferred = append(deferred, item)
				continue
			}
			delete(d.blocked, item.job.Type)
		}
		d.setQueueDepth(len(d.ready) + len(d.delayed) + len(deferred))
		return item, 0
	}

	wait := time.Minute
	if d.delayed.Len() > 0 {
		wait = d.delayed[0].readyAt.Sub(now)
	}
	for _, item := range deferred {
		if w := item.readyAt.Sub(now); w < wait {
			wait = w
		}
	}
	return nil, wait
}

func (d *Dispatcher) push(item *queueItem) {
	d.mu.Lock()
	d.seq++
	item.seq = d.seq
	if item.readyAt.After(d.now()) {
		heap.Push(&d.delayed, item)
	} else {
		heap.Push(&d.ready, item)
	}
	d.setQueueDepth(len(d.ready) + len(d.delayed))
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) execute(ctx context.Context, item *queueItem) {
	job := item.job
	handler := d.handlers[job.Type]
	policy := syncjob.PolicyFor(job.Type)

	flag := &atomic.Bool{}
	d.mu.Lock()
	d.inflight[job.ID] = flag
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.inflight, job.ID)
		d.mu.Unlock()
	}()

	startedAt := d.now().UTC()
	processing := syncjob.StatusProcessing
	if err := d.jobs.Update(ctx, job.ID, syncjob.Update{
		Status:    &processing,
		Attempts:  &item.attempt,
		StartedAt: &startedAt,
	}); err != nil {
		if stderrors.Is(err, syncjob.ErrTerminal) {
			// Cancelled between dequeue and claim. The record is
			// immutable now, so the delivery is dropped.
			d.logger.InfoContext(ctx, "job went terminal before delivery, dropping", "job_id", job.ID)
			if stored, getErr := d.jobs.GetByID(ctx, job.ID); getErr == nil {
				d.notifyWaiter(stored)
			}
			return
		}
		d.logger.ErrorContext(ctx, "mark job processing failed", "job_id", job.ID, "error", err)
	}
	job.Status = syncjob.StatusProcessing
	job.Attempts = item.attempt
	job.StartedAt = &startedAt

	if item.attempt > 1 {
		d.countRetry(job.Type)
	}
	d.logger.InfoContext(ctx, "job attempt started",
		"job_id", job.ID,
		"job_type", job.Type,
		"attempt", item.attempt,
		"max_attempts", policy.Attempts,
	)

	run := &Run{
		Job:       job,
		cancelled: flag,
		progress:  d.progressUpdater(ctx, job.ID),
	}

	result, err := handler(ctx, run)
	d.observeDuration(job.Type, d.now().Sub(startedAt))
	d.updateQuotaGauge()

	switch {
	case err == nil:
		d.complete(ctx, job, result)
	case stderrors.Is(err, ErrRunCancelled):
		d.cancel(ctx, job, result)
	default:
		d.handleFailure(ctx, item, policy, result, err)
	}
}

func (d *Dispatcher) complete(ctx context.Context, job syncjob.Job, result any) {
	completedAt := d.now().UTC()
	status := syncjob.StatusCompleted
	progress := 100
	if err := d.jobs.Update(ctx, job.ID, syncjob.Update{
		Status:      &status,
		Progress:    &progress,
		Result:      result,
		CompletedAt: &completedAt,
	}); err != nil {
		d.logger.ErrorContext(ctx, "mark job completed failed", "job_id", job.ID, "error", err)
	}

	d.countTerminal(job.Type, status)
	d.logger.InfoContext(ctx, "job completed", "job_id", job.ID, "job_type", job.Type)

	job.Status = status
	job.Result = result
	job.CompletedAt = &completedAt
	d.notifyWaiter(job)
	d.prune(ctx, job.Type, status)
}

func (d *Dispatcher) cancel(ctx context.Context, job syncjob.Job, result any) {
	completedAt := d.now().UTC()
	status := syncjob.StatusCancelled
	if err := d.jobs.Update(ctx, job.ID, syncjob.Update{
		Status:      &status,
		Result:      result,
		CompletedAt: &completedAt,
	}); err != nil {
		d.logger.ErrorContext(ctx, "mark job cancelled failed", "job_id", job.ID, "error", err)
	}

	d.countTerminal(job.Type, status)
	d.logger.InfoContext(ctx, "job cancelled mid-run", "job_id", job.ID, "job_type", job.Type)

	job.Status = status
	job.Result = result
	job.CompletedAt = &completedAt
	d.notifyWaiter(job)
}

func (d *Dispatcher) handleFailure(ctx context.Context, item *queueItem, policy syncjob.Policy, result any, runErr error) {
	job := item.job

	var apiErr *apisports.APIError
	limited := stderrors.As(runErr, &apiErr) &&
		(apiErr.Type == apisports.ErrorTypeRateLimit || apiErr.Type == apisports.ErrorTypeAuth)
	if limited {
		until := d.now().Add(d.suppression)
		d.mu.Lock()
		if existing, ok := d.blocked[job.Type]; !ok || until.After(existing) {
			d.blocked[job.Type] = until
		}
		d.mu.Unlock()
		d.logger.WarnContext(ctx, "suppressing retries for job type",
			"job_type", job.Type,
			"until", until.UTC().Format(time.RFC3339),
			"reason", apiErr.Code,
		)
	}

	if item.attempt < policy.Attempts {
		delay := policy.NextDelay(item.attempt + 1)
		if limited {
			// A fixed short delay will not outlive the limit window.
			delay = maxDuration(delay*2, d.suppression)
		}

		status := syncjob.StatusPending
		if err := d.jobs.Update(ctx, job.ID, syncjob.Update{Status: &status}); err != nil {
			d.logger.ErrorContext(ctx, "mark job pending for retry failed", "job_id", job.ID, "error", err)
		}

		d.logger.WarnContext(ctx, "job attempt failed, retrying",
			"job_id", job.ID,
			"job_type", job.Type,
			"attempt", item.attempt,
			"retry_in", delay.String(),
			"error", runErr,
		)

		item.job.Attempts = item.attempt
		item.attempt++
		item.readyAt = d.now().Add(delay)
		d.push(item)
		return
	}

	completedAt := d.now().UTC()
	status := syncjob.StatusFailed
	message := runErr.Error()
	stack := fmt.Sprintf("%+v", crerr.WithStack(runErr))
	if err := d.jobs.Update(ctx, job.ID, syncjob.Update{
		Status:       &status,
		Result:       result,
		ErrorMessage: &message,
		ErrorStack:   &stack,
		CompletedAt:  &completedAt,
	}); err != nil {
		d.logger.ErrorContext(ctx, "mark job failed failed", "job_id", job.ID, "error", err)
	}

	d.countTerminal(job.Type, status)
	d.logger.ErrorContext(ctx, "job failed after exhausting attempts",
		"job_id", job.ID,
		"job_type", job.Type,
		"attempts", item.attempt,
		"error", runErr,
	)

	job.Status = status
	job.Result = result
	job.ErrorMessage = message
	job.CompletedAt = &completedAt
	d.notifyWaiter(job)
	d.prune(ctx, job.Type, status)
}

func (d *Dispatcher) progressUpdater(ctx context.Context, jobID string) func(processed, total int) {
	return func(processed, total int) {
		progress := 0
		if total > 0 {
			progress = processed * 100 / total
		}
		if err := d.jobs.Update(ctx, jobID, syncjob.Update{
			Progress:       &progress,
			TotalItems:     &total,
			ProcessedItems: &processed,
		}); err != nil {
			d.logger.WarnContext(ctx, "persist job progress failed", "job_id", jobID, "error", err)
		}
	}
}

func (d *Dispatcher) notifyWaiter(job syncjob.Job) {
	d.mu.Lock()
	ch, ok := d.waiters[job.ID]
	if ok {
		delete(d.waiters, job.ID)
	}
	d.mu.Unlock()

	if ok {
		ch <- job
	}
}

func (d *Dispatcher) prune(ctx context.Context, jobType syncjob.Type, status syncjob.Status) {
	policy := syncjob.PolicyFor(jobType)
	keep := policy.RemoveOnComplete
	if status == syncjob.StatusFailed {
		keep = policy.RemoveOnFail
	}
	if keep <= 0 {
		return
	}

	if err := d.jobs.PruneTerminal(ctx, jobType, status, keep); err != nil {
		d.logger.WarnContext(ctx, "prune terminal jobs failed", "job_type", jobType, "error", err)
	}
}

func (d *Dispatcher) setQueueDepth(depth int) {
	if d.metrics != nil {
		d.metrics.QueueDepth.Set(float64(depth))
	}
}

func (d *Dispatcher) countTerminal(jobType syncjob.Type, status syncjob.Status) {
	if d.metrics != nil {
		d.metrics.JobsTotal.WithLabelValues(string(jobType), string(status)).Inc()
	}
}

func (d *Dispatcher) countRetry(jobType syncjob.Type) {
	if d.metrics != nil {
		d.metrics.JobRetries.WithLabelValues(string(jobType)).Inc()
	}
}

func (d *Dispatcher) observeDuration(jobType syncjob.Type, elapsed time.Duration) {
	if d.metrics != nil {
		d.metrics.JobDuration.WithLabelValues(string(jobType)).Observe(elapsed.Seconds())
	}
}

func (d *Dispatcher) updateQuotaGauge() {
	if d.metrics != nil && d.tracker != nil {
		d.metrics.QuotaUsedToday.Set(float64(d.tracker.Used()))
	}
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
