package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/prasetyowira/sportsync/internal/domain/syncjob"
	"github.com/prasetyowira/sportsync/internal/infrastructure/repository/memory"
)

func seedProcessingJob(t *testing.T, repo *memory.JobRepository, id string, startedAgo time.Duration, attempts int) syncjob.Job {
	t.Helper()

	now := time.Now().UTC()
	startedAt := now.Add(-startedAgo)
	job := syncjob.Job{
		ID:          id,
		Type:        syncjob.TypeLeague,
		Status:      syncjob.StatusProcessing,
		Priority:    syncjob.PriorityNormal,
		Attempts:    attempts,
		MaxAttempts: syncjob.PolicyFor(syncjob.TypeLeague).Attempts,
		TriggeredBy: syncjob.TriggerScheduler,
		StartedAt:   &startedAt,
		CreatedAt:   now.Add(-startedAgo),
		UpdatedAt:   now.Add(-startedAgo),
	}
	if err := repo.Create(context.Background(), job); err != nil {
		t.Fatalf("seed job %s: %v", id, err)
	}
	return job
}

func TestWatchdogSweep_ReclaimsAndRequeuesStaleJob(t *testing.T) {
	t.Parallel()

	repo := memory.NewJobRepository()
	d := newTestDispatcher(t, repo)
	defer d.pool.Release()
	d.RegisterHandler(syncjob.TypeLeague, noopHandler(nil))

	w := NewWatchdog(repo, d, time.Minute, 10*time.Minute, nil, nil)
	seedProcessingJob(t, repo, "stale-1", 20*time.Minute, 1)

	w.Sweep(context.Background())

	stored, err := repo.GetByID(context.Background(), "stale-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != syncjob.StatusPending {
		t.Fatalf("status = %s, want pending after requeue", stored.Status)
	}
	if stored.ErrorMessage != staleJobMessage {
		t.Fatalf("error message = %q, want reclaim reason", stored.ErrorMessage)
	}
	if d.Depth() != 1 {
		t.Fatalf("depth = %d, want the reclaimed job back in contention", d.Depth())
	}

	// Delivery resumes after the lost attempt rather than restarting.
	item, _ := d.next()
	if item == nil {
		t.Fatalf("reclaimed job not runnable")
	}
	if item.attempt != 2 {
		t.Fatalf("attempt = %d, want 2", item.attempt)
	}
}

func TestWatchdogSweep_ExhaustedAttemptsStayFailed(t *testing.T) {
	t.Parallel()

	repo := memory.NewJobRepository()
	d := newTestDispatcher(t, repo)
	defer d.pool.Release()
	d.RegisterHandler(syncjob.TypeLeague, noopHandler(nil))

	w := NewWatchdog(repo, d, time.Minute, 10*time.Minute, nil, nil)
	policy := syncjob.PolicyFor(syncjob.TypeLeague)
	seedProcessingJob(t, repo, "stale-1", 30*time.Minute, policy.Attempts)

	w.Sweep(context.Background())

	stored, err := repo.GetByID(context.Background(), "stale-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != syncjob.StatusFailed {
		t.Fatalf("status = %s, want failed with no attempts left", stored.Status)
	}
	if stored.CompletedAt == nil {
		t.Fatalf("completed_at not stamped on reclaim")
	}
	if d.Depth() != 0 {
		t.Fatalf("depth = %d, want nothing requeued", d.Depth())
	}
}

func TestWatchdogSweep_LeavesFreshProcessingAlone(t *testing.T) {
	t.Parallel()

	repo := memory.NewJobRepository()
	d := newTestDispatcher(t, repo)
	defer d.pool.Release()
	d.RegisterHandler(syncjob.TypeLeague, noopHandler(nil))

	w := NewWatchdog(repo, d, time.Minute, 10*time.Minute, nil, nil)
	seedProcessingJob(t, repo, "fresh-1", time.Minute, 1)

	w.Sweep(context.Background())

	stored, err := repo.GetByID(context.Background(), "fresh-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != syncjob.StatusProcessing {
		t.Fatalf("status = %s, want processing untouched", stored.Status)
	}
	if d.Depth() != 0 {
		t.Fatalf("depth = %d, want queue untouched", d.Depth())
	}
}
