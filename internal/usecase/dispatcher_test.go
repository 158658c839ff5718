package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prasetyowira/sportsync/external/apisports"
	"github.com/prasetyowira/sportsync/internal/domain/syncjob"
	"github.com/prasetyowira/sportsync/internal/infrastructure/repository/memory"
)

func newTestDispatcher(t *testing.T, repo syncjob.Repository) *Dispatcher {
	t.Helper()

	d, err := NewDispatcher(repo, DispatcherConfig{Workers: 2}, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	return d
}

func noopHandler(result any) HandlerFunc {
	return func(context.Context, *Run) (any, error) { return result, nil }
}

func pendingJob(t *testing.T, repo syncjob.Repository, id string, jobType syncjob.Type) syncjob.Job {
	t.Helper()

	policy := syncjob.PolicyFor(jobType)
	now := time.Now().UTC()
	job := syncjob.Job{
		ID:          id,
		Type:        jobType,
		Status:      syncjob.StatusPending,
		Priority:    policy.Priority,
		MaxAttempts: policy.Attempts,
		TriggeredBy: syncjob.TriggerManual,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.Create(context.Background(), job); err != nil {
		t.Fatalf("create job %s: %v", id, err)
	}
	return job
}

func TestDispatcherEnqueue_RequiresRegisteredHandler(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, memory.NewJobRepository())
	defer d.pool.Release()

	err := d.Enqueue(syncjob.Job{ID: "job-1", Type: syncjob.TypeLeague})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput for unregistered type", err)
	}

	d.RegisterHandler(syncjob.TypeLeague, noopHandler(nil))
	if err := d.Enqueue(syncjob.Job{Type: syncjob.TypeLeague}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput for missing id", err)
	}
}

func TestDispatcherNext_ServesByPriorityThenFIFO(t *testing.T) {
	t.Parallel()

	repo := memory.NewJobRepository()
	d := newTestDispatcher(t, repo)
	defer d.pool.Release()
	for _, jobType := range syncjob.AllTypes() {
		d.RegisterHandler(jobType, noopHandler(nil))
	}

	// Enqueued lowest priority first; service order must not follow
	// insertion order across ranks.
	low := pendingJob(t, repo, "low-1", syncjob.TypeOddsFar)
	low.Priority = syncjob.PriorityLow
	if err := d.Enqueue(low); err != nil {
		t.Fatalf("enqueue low-1: %v", err)
	}
	if err := d.Enqueue(pendingJob(t, repo, "normal-1", syncjob.TypeOddsUpcoming)); err != nil {
		t.Fatalf("enqueue normal-1: %v", err)
	}
	if err := d.Enqueue(pendingJob(t, repo, "live-1", syncjob.TypeOddsLive)); err != nil {
		t.Fatalf("enqueue live-1: %v", err)
	}
	if err := d.Enqueue(pendingJob(t, repo, "live-2", syncjob.TypeOddsLive)); err != nil {
		t.Fatalf("enqueue live-2: %v", err)
	}

	var order []string
	for {
		item, _ := d.next()
		if item == nil {
			break
		}
		order = append(order, item.job.ID)
	}

	want := []string{"live-1", "live-2", "normal-1", "low-1"}
	if len(order) != len(want) {
		t.Fatalf("served %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("served %v, want %v", order, want)
		}
	}
}

func TestDispatcherEnqueue_HonoursScheduledAt(t *testing.T) {
	t.Parallel()

	repo := memory.NewJobRepository()
	d := newTestDispatcher(t, repo)
	defer d.pool.Release()
	d.RegisterHandler(syncjob.TypeLeague, noopHandler(nil))

	job := pendingJob(t, repo, "job-1", syncjob.TypeLeague)
	scheduledAt := time.Now().Add(time.Hour)
	job.ScheduledAt = &scheduledAt
	if err := d.Enqueue(job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	item, wait := d.next()
	if item != nil {
		t.Fatalf("job served %v before its scheduled time", item.job.ID)
	}
	if wait <= 0 || wait > time.Hour {
		t.Fatalf("wait = %v, want the remaining delay", wait)
	}
	if d.Depth() != 1 {
		t.Fatalf("depth = %d, want the job still queued", d.Depth())
	}
}

func TestDispatcherExecute_CompletesAndPersists(t *testing.T) {
	t.Parallel()

	repo := memory.NewJobRepository()
	d := newTestDispatcher(t, repo)
	defer d.pool.Release()

	result := &syncjob.EntityResult{Success: true, Created: 3}
	d.RegisterHandler(syncjob.TypeLeague, noopHandler(result))

	job := pendingJob(t, repo, "job-1", syncjob.TypeLeague)
	d.execute(context.Background(), &queueItem{job: job, attempt: 1})

	stored, err := repo.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != syncjob.StatusCompleted {
		t.Fatalf("status = %s, want completed", stored.Status)
	}
	if stored.Progress != 100 {
		t.Fatalf("progress = %d, want 100", stored.Progress)
	}
	if stored.Attempts != 1 || stored.StartedAt == nil || stored.CompletedAt == nil {
		t.Fatalf("lifecycle fields not stamped: %+v", stored)
	}
	if got, ok := stored.Result.(*syncjob.EntityResult); !ok || got.Created != 3 {
		t.Fatalf("result = %+v, want handler output persisted", stored.Result)
	}
}

func TestDispatcherExecute_FailureRequeuesWithBackoff(t *testing.T) {
	t.Parallel()

	repo := memory.NewJobRepository()
	d := newTestDispatcher(t, repo)
	defer d.pool.Release()
	d.RegisterHandler(syncjob.TypeLeague, func(context.Context, *Run) (any, error) {
		return nil, errors.New("boom")
	})

	job := pendingJob(t, repo, "job-1", syncjob.TypeLeague)
	d.execute(context.Background(), &queueItem{job: job, attempt: 1})

	stored, err := repo.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != syncjob.StatusPending {
		t.Fatalf("status = %s, want pending for retry", stored.Status)
	}
	if d.Depth() != 1 {
		t.Fatalf("depth = %d, want the retry queued", d.Depth())
	}

	// The retry waits out the backoff before becoming runnable.
	if item, _ := d.next(); item != nil {
		t.Fatalf("retry served immediately, want it delayed")
	}
}

func TestDispatcherExecute_ExhaustedAttemptsFailTerminally(t *testing.T) {
	t.Parallel()

	repo := memory.NewJobRepository()
	d := newTestDispatcher(t, repo)
	defer d.pool.Release()
	d.RegisterHandler(syncjob.TypeLeague, func(context.Context, *Run) (any, error) {
		return nil, errors.New("boom")
	})

	job := pendingJob(t, repo, "job-1", syncjob.TypeLeague)
	policy := syncjob.PolicyFor(syncjob.TypeLeague)
	d.execute(context.Background(), &queueItem{job: job, attempt: policy.Attempts})

	stored, err := repo.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != syncjob.StatusFailed {
		t.Fatalf("status = %s, want failed after final attempt", stored.Status)
	}
	if stored.ErrorMessage != "boom" {
		t.Fatalf("error message = %q", stored.ErrorMessage)
	}
	if stored.ErrorStack == "" {
		t.Fatalf("error stack not captured")
	}
	if d.Depth() != 0 {
		t.Fatalf("depth = %d, want nothing requeued", d.Depth())
	}
}

func TestDispatcherExecute_RateLimitSuppressesJobType(t *testing.T) {
	t.Parallel()

	repo := memory.NewJobRepository()
	d := newTestDispatcher(t, repo)
	defer d.pool.Release()
	d.RegisterHandler(syncjob.TypeOddsUpcoming, func(context.Context, *Run) (any, error) {
		return nil, &apisports.APIError{Type: apisports.ErrorTypeRateLimit, Code: "rateLimit", Message: "slow down"}
	})

	job := pendingJob(t, repo, "job-1", syncjob.TypeOddsUpcoming)
	d.execute(context.Background(), &queueItem{job: job, attempt: 1})

	d.mu.Lock()
	until, blocked := d.blocked[syncjob.TypeOddsUpcoming]
	d.mu.Unlock()
	if !blocked {
		t.Fatalf("job type not suppressed after rate limit")
	}
	if remaining := time.Until(until); remaining < 20*time.Second || remaining > time.Minute {
		t.Fatalf("suppression window = %v, want about 30s", remaining)
	}

	// A sibling job of the suppressed type is held back too.
	if err := d.Enqueue(pendingJob(t, repo, "job-2", syncjob.TypeOddsUpcoming)); err != nil {
		t.Fatalf("enqueue sibling: %v", err)
	}
	if item, _ := d.next(); item != nil {
		t.Fatalf("suppressed type served %v, want deferral", item.job.ID)
	}
	if d.Depth() != 2 {
		t.Fatalf("depth = %d, want retry and sibling both held", d.Depth())
	}
}

func TestDispatcherExecute_CancelledRunGoesCancelled(t *testing.T) {
	t.Parallel()

	repo := memory.NewJobRepository()
	d := newTestDispatcher(t, repo)
	defer d.pool.Release()
	d.RegisterHandler(syncjob.TypeLeague, func(_ context.Context, run *Run) (any, error) {
		return &syncjob.EntityResult{Created: 1}, ErrRunCancelled
	})

	job := pendingJob(t, repo, "job-1", syncjob.TypeLeague)
	d.execute(context.Background(), &queueItem{job: job, attempt: 1})

	stored, err := repo.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != syncjob.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", stored.Status)
	}
	if got, ok := stored.Result.(*syncjob.EntityResult); !ok || got.Created != 1 {
		t.Fatalf("partial result = %+v, want it persisted", stored.Result)
	}
}

func TestDispatcherExecute_DropsDeliveryForTerminalRecord(t *testing.T) {
	t.Parallel()

	repo := memory.NewJobRepository()
	d := newTestDispatcher(t, repo)
	defer d.pool.Release()

	handlerRan := false
	d.RegisterHandler(syncjob.TypeLeague, func(context.Context, *Run) (any, error) {
		handlerRan = true
		return nil, nil
	})

	job := pendingJob(t, repo, "gone-1", syncjob.TypeLeague)
	cancelled := syncjob.StatusCancelled
	if err := repo.Update(context.Background(), job.ID, syncjob.Update{Status: &cancelled}); err != nil {
		t.Fatalf("mark cancelled: %v", err)
	}

	// The record went terminal between dequeue and claim; the attempt
	// must be dropped without touching handler or record.
	d.execute(context.Background(), &queueItem{job: job, attempt: 1})

	if handlerRan {
		t.Fatalf("handler ran against a terminal record")
	}
	stored, err := repo.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != syncjob.StatusCancelled {
		t.Fatalf("status = %s, want cancelled untouched", stored.Status)
	}
	if stored.StartedAt != nil {
		t.Fatalf("startedAt stamped on a terminal record")
	}
}

func TestDispatcherSignalCancel_RemovesPendingFromContention(t *testing.T) {
	t.Parallel()

	repo := memory.NewJobRepository()
	d := newTestDispatcher(t, repo)
	defer d.pool.Release()
	d.RegisterHandler(syncjob.TypeLeague, noopHandler(nil))

	if err := d.Enqueue(pendingJob(t, repo, "job-1", syncjob.TypeLeague)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !d.SignalCancel("job-1") {
		t.Fatalf("SignalCancel did not find the queued job")
	}
	if d.Depth() != 0 {
		t.Fatalf("depth = %d, want the job removed", d.Depth())
	}
	if d.SignalCancel("job-1") {
		t.Fatalf("second SignalCancel found a removed job")
	}
}

func TestDispatcher_EnqueueAndWaitReturnsTerminal(t *testing.T) {
	t.Parallel()

	repo := memory.NewJobRepository()
	d := newTestDispatcher(t, repo)
	d.RegisterHandler(syncjob.TypeLeague, noopHandler(&syncjob.EntityResult{Success: true, Created: 2}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.Start(ctx)
	defer func() {
		cancel()
		d.Stop()
	}()

	job := pendingJob(t, repo, "job-1", syncjob.TypeLeague)
	terminal, err := d.EnqueueAndWait(ctx, job)
	if err != nil {
		t.Fatalf("EnqueueAndWait: %v", err)
	}
	if terminal.Status != syncjob.StatusCompleted {
		t.Fatalf("terminal status = %s, want completed", terminal.Status)
	}
	if got, ok := terminal.Result.(*syncjob.EntityResult); !ok || got.Created != 2 {
		t.Fatalf("terminal result = %+v", terminal.Result)
	}
}

func TestDispatcher_ReEnqueueResumesAttemptNumber(t *testing.T) {
	t.Parallel()

	repo := memory.NewJobRepository()
	d := newTestDispatcher(t, repo)
	defer d.pool.Release()
	d.RegisterHandler(syncjob.TypeLeague, noopHandler(nil))

	job := pendingJob(t, repo, "job-1", syncjob.TypeLeague)
	job.Attempts = 1
	if err := d.Enqueue(job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	item, _ := d.next()
	if item == nil {
		t.Fatalf("job not runnable")
	}
	if item.attempt != 2 {
		t.Fatalf("attempt = %d, want delivery to resume at 2", item.attempt)
	}
}

func TestDispatcherExecute_StampsProgressThroughRun(t *testing.T) {
	t.Parallel()

	repo := memory.NewJobRepository()
	d := newTestDispatcher(t, repo)
	defer d.pool.Release()
	d.RegisterHandler(syncjob.TypeLeague, func(_ context.Context, run *Run) (any, error) {
		run.ReportProgress(5, 10)
		return nil, errors.New("stop here")
	})

	job := pendingJob(t, repo, "job-1", syncjob.TypeLeague)
	d.execute(context.Background(), &queueItem{job: job, attempt: syncjob.PolicyFor(syncjob.TypeLeague).Attempts})

	stored, err := repo.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Progress != 50 || stored.TotalItems != 10 || stored.ProcessedItems != 5 {
		t.Fatalf("progress fields = %d/%d/%d, want 50/10/5", stored.Progress, stored.TotalItems, stored.ProcessedItems)
	}
	if !strings.Contains(stored.ErrorMessage, "stop here") {
		t.Fatalf("error message = %q", stored.ErrorMessage)
	}
}
