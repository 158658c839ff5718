package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prasetyowira/sportsync/internal/domain/syncjob"
)

func seedJob(id string, jobType syncjob.Type, status syncjob.Status, createdAt time.Time) syncjob.Job {
	return syncjob.Job{
		ID:          id,
		Type:        jobType,
		Status:      status,
		Priority:    syncjob.PriorityNormal,
		TriggeredBy: syncjob.TriggerManual,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestJobRepository_CreateGetUpdate(t *testing.T) {
	t.Parallel()

	repo := NewJobRepository()
	ctx := context.Background()
	createdAt := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	job := seedJob("job_1", syncjob.TypeLeague, syncjob.StatusPending, createdAt)
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(ctx, job); err == nil {
		t.Fatalf("expected duplicate create rejected")
	}

	status := syncjob.StatusProcessing
	attempts := 1
	startedAt := createdAt.Add(time.Second)
	if err := repo.Update(ctx, "job_1", syncjob.Update{
		Status:    &status,
		Attempts:  &attempts,
		StartedAt: &startedAt,
	}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := repo.GetByID(ctx, "job_1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != syncjob.StatusProcessing || got.Attempts != 1 {
		t.Fatalf("unexpected job after update: %+v", got)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(startedAt) {
		t.Fatalf("expected startedAt persisted")
	}
}

func TestJobRepository_NotFound(t *testing.T) {
	t.Parallel()

	repo := NewJobRepository()
	ctx := context.Background()

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, syncjob.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got=%v", err)
	}
	status := syncjob.StatusFailed
	if err := repo.Update(ctx, "missing", syncjob.Update{Status: &status}); !errors.Is(err, syncjob.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got=%v", err)
	}
}

func TestJobRepository_TerminalRecordsAreImmutable(t *testing.T) {
	t.Parallel()

	repo := NewJobRepository()
	ctx := context.Background()
	createdAt := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	for _, terminal := range []syncjob.Status{
		syncjob.StatusCompleted,
		syncjob.StatusFailed,
		syncjob.StatusCancelled,
	} {
		id := "job_" + string(terminal)
		if err := repo.Create(ctx, seedJob(id, syncjob.TypeLeague, terminal, createdAt)); err != nil {
			t.Fatalf("create %s failed: %v", terminal, err)
		}

		status := syncjob.StatusProcessing
		if err := repo.Update(ctx, id, syncjob.Update{Status: &status}); !errors.Is(err, syncjob.ErrTerminal) {
			t.Fatalf("expected ErrTerminal updating %s job, got=%v", terminal, err)
		}

		got, err := repo.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("get %s failed: %v", terminal, err)
		}
		if got.Status != terminal {
			t.Fatalf("terminal record mutated: %s -> %s", terminal, got.Status)
		}
	}
}

func TestJobRepository_ListFilterAndPaging(t *testing.T) {
	t.Parallel()

	repo := NewJobRepository()
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		job := seedJob(fmt.Sprintf("league_%d", i), syncjob.TypeLeague, syncjob.StatusCompleted, base.Add(time.Duration(i)*time.Minute))
		if err := repo.Create(ctx, job); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}
	odds := seedJob("odds_1", syncjob.TypeOddsLive, syncjob.StatusFailed, base.Add(10*time.Minute))
	if err := repo.Create(ctx, odds); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	jobs, total, err := repo.List(ctx, syncjob.Filter{
		Types:  []syncjob.Type{syncjob.TypeLeague},
		Limit:  2,
		Offset: 1,
	})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 5 {
		t.Fatalf("expected total=5, got=%d", total)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected page of 2, got=%d", len(jobs))
	}
	// Newest first, so offset 1 starts at league_3.
	if jobs[0].ID != "league_3" || jobs[1].ID != "league_2" {
		t.Fatalf("unexpected page order: %s, %s", jobs[0].ID, jobs[1].ID)
	}

	jobs, total, err = repo.List(ctx, syncjob.Filter{Statuses: []syncjob.Status{syncjob.StatusFailed}})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 1 || jobs[0].ID != "odds_1" {
		t.Fatalf("unexpected failed listing: total=%d", total)
	}
}

func TestJobRepository_ListByParent(t *testing.T) {
	t.Parallel()

	repo := NewJobRepository()
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	parent := seedJob("full_1", syncjob.TypeFullSync, syncjob.StatusProcessing, base)
	child := seedJob("league_1", syncjob.TypeLeague, syncjob.StatusPending, base.Add(time.Second))
	child.ParentJobID = "full_1"
	if err := repo.Create(ctx, parent); err != nil {
		t.Fatalf("create parent failed: %v", err)
	}
	if err := repo.Create(ctx, child); err != nil {
		t.Fatalf("create child failed: %v", err)
	}

	jobs, total, err := repo.List(ctx, syncjob.Filter{ParentJobID: "full_1"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 1 || jobs[0].ID != "league_1" {
		t.Fatalf("unexpected child listing: total=%d", total)
	}
}

func TestJobRepository_ListStaleProcessing(t *testing.T) {
	t.Parallel()

	repo := NewJobRepository()
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	stale := seedJob("stale_1", syncjob.TypeFixture, syncjob.StatusProcessing, base)
	staleStart := base.Add(time.Minute)
	stale.StartedAt = &staleStart

	fresh := seedJob("fresh_1", syncjob.TypeFixture, syncjob.StatusProcessing, base)
	freshStart := base.Add(30 * time.Minute)
	fresh.StartedAt = &freshStart

	pending := seedJob("pending_1", syncjob.TypeFixture, syncjob.StatusPending, base)

	for _, job := range []syncjob.Job{stale, fresh, pending} {
		if err := repo.Create(ctx, job); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	got, err := repo.ListStaleProcessing(ctx, base.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("list stale failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "stale_1" {
		t.Fatalf("expected only the stale job, got=%d", len(got))
	}
}

func TestJobRepository_PruneTerminalKeepsNewest(t *testing.T) {
	t.Parallel()

	repo := NewJobRepository()
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		job := seedJob(fmt.Sprintf("done_%d", i), syncjob.TypeLeague, syncjob.StatusCompleted, base.Add(time.Duration(i)*time.Minute))
		completedAt := job.CreatedAt.Add(time.Second)
		job.CompletedAt = &completedAt
		if err := repo.Create(ctx, job); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}
	running := seedJob("running_1", syncjob.TypeLeague, syncjob.StatusProcessing, base)
	if err := repo.Create(ctx, running); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := repo.PruneTerminal(ctx, syncjob.TypeLeague, syncjob.StatusCompleted, 2); err != nil {
		t.Fatalf("prune failed: %v", err)
	}

	jobs, total, err := repo.List(ctx, syncjob.Filter{
		Types:    []syncjob.Type{syncjob.TypeLeague},
		Statuses: []syncjob.Status{syncjob.StatusCompleted},
	})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 kept, got=%d", total)
	}
	if jobs[0].ID != "done_4" || jobs[1].ID != "done_3" {
		t.Fatalf("expected newest kept, got=%s, %s", jobs[0].ID, jobs[1].ID)
	}

	// Non-terminal records are never pruned.
	if _, err := repo.GetByID(ctx, "running_1"); err != nil {
		t.Fatalf("processing job should survive prune: %v", err)
	}
}
