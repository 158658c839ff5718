package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prasetyowira/sportsync/internal/domain/syncjob"
	"github.com/prasetyowira/sportsync/internal/infrastructure/repository/memory"
)

type recordingCanceler struct {
	signalled []string
	accept    bool
}

func (c *recordingCanceler) SignalCancel(jobID string) bool {
	c.signalled = append(c.signalled, jobID)
	return c.accept
}

func TestJobServiceCreate_DefaultsFromPolicy(t *testing.T) {
	t.Parallel()

	repo := memory.NewJobRepository()
	svc := NewJobService(repo, nil, nil)

	job, err := svc.Create(context.Background(), CreateJobInput{Type: syncjob.TypeOddsLive})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	policy := syncjob.PolicyFor(syncjob.TypeOddsLive)
	if job.Priority != policy.Priority {
		t.Fatalf("priority = %s, want policy default %s", job.Priority, policy.Priority)
	}
	if job.MaxAttempts != policy.Attempts {
		t.Fatalf("max attempts = %d, want %d", job.MaxAttempts, policy.Attempts)
	}
	if job.Status != syncjob.StatusPending {
		t.Fatalf("status = %s, want pending", job.Status)
	}
	if job.TriggeredBy != syncjob.TriggerManual {
		t.Fatalf("triggered by = %s, want manual default", job.TriggeredBy)
	}
	if job.ID == "" {
		t.Fatalf("job id not assigned")
	}

	stored, err := repo.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("job not persisted: %v", err)
	}
	if stored.Type != syncjob.TypeOddsLive {
		t.Fatalf("stored type = %s", stored.Type)
	}
}

func TestJobServiceCreate_PriorityOverride(t *testing.T) {
	t.Parallel()

	svc := NewJobService(memory.NewJobRepository(), nil, nil)
	priority := syncjob.PriorityCritical

	job, err := svc.Create(context.Background(), CreateJobInput{
		Type:     syncjob.TypeLeague,
		Priority: &priority,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.Priority != syncjob.PriorityCritical {
		t.Fatalf("priority = %s, want critical override", job.Priority)
	}
}

func TestJobServiceCreate_RejectsUnknownType(t *testing.T) {
	t.Parallel()

	svc := NewJobService(memory.NewJobRepository(), nil, nil)

	if _, err := svc.Create(context.Background(), CreateJobInput{Type: "mystery"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestJobServiceCreate_LiveOddsTakeNoParams(t *testing.T) {
	t.Parallel()

	svc := NewJobService(memory.NewJobRepository(), nil, nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateJobInput{
		Type:   syncjob.TypeOddsLive,
		Params: syncjob.OddsParams{HoursAhead: 2},
	}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput for live odds with params", err)
	}

	job, err := svc.Create(ctx, CreateJobInput{Type: syncjob.TypeOddsLive})
	if err != nil {
		t.Fatalf("Create without params: %v", err)
	}
	if job.Params != nil {
		t.Fatalf("params = %+v, want nil", job.Params)
	}
}

func TestJobServiceCreate_FixtureParamsRequired(t *testing.T) {
	t.Parallel()

	svc := NewJobService(memory.NewJobRepository(), nil, nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateJobInput{Type: syncjob.TypeFixture}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput without params", err)
	}

	from := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	if _, err := svc.Create(ctx, CreateJobInput{
		Type:   syncjob.TypeFixture,
		Params: syncjob.FixtureParams{DateFrom: from, DateTo: from.Add(-time.Hour)},
	}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput for inverted window", err)
	}

	job, err := svc.Create(ctx, CreateJobInput{
		Type:   syncjob.TypeFixture,
		Params: syncjob.FixtureParams{DateFrom: from, DateTo: from.Add(48 * time.Hour)},
	})
	if err != nil {
		t.Fatalf("Create with valid window: %v", err)
	}
	if _, ok := job.Params.(syncjob.FixtureParams); !ok {
		t.Fatalf("params coerced to %T, want FixtureParams", job.Params)
	}
}

func TestJobServiceCreate_PointerParamsCoerced(t *testing.T) {
	t.Parallel()

	svc := NewJobService(memory.NewJobRepository(), nil, nil)

	job, err := svc.Create(context.Background(), CreateJobInput{
		Type:   syncjob.TypeTeam,
		Params: &syncjob.TeamParams{SyncAllActive: true},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	params, ok := job.Params.(syncjob.TeamParams)
	if !ok || !params.SyncAllActive {
		t.Fatalf("params = %+v (%T), want dereferenced TeamParams", job.Params, job.Params)
	}
}

func TestJobServiceCancel_PendingGoesCancelled(t *testing.T) {
	t.Parallel()

	repo := memory.NewJobRepository()
	svc := NewJobService(repo, nil, nil)
	ctx := context.Background()

	job, err := svc.Create(ctx, CreateJobInput{Type: syncjob.TypeLeague})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Cancel(ctx, job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	stored, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != syncjob.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", stored.Status)
	}
	if stored.CompletedAt == nil {
		t.Fatalf("completed_at not stamped")
	}
}

func TestJobServiceCancel_PendingRemovedFromQueue(t *testing.T) {
	t.Parallel()

	repo := memory.NewJobRepository()
	d := newTestDispatcher(t, repo)
	defer d.pool.Release()
	d.RegisterHandler(syncjob.TypeLeague, noopHandler(nil))

	svc := NewJobService(repo, d, nil)
	ctx := context.Background()

	job, err := svc.Create(ctx, CreateJobInput{Type: syncjob.TypeLeague})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := d.Enqueue(job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if d.Depth() != 1 {
		t.Fatalf("depth = %d, want 1 before cancel", d.Depth())
	}

	if err := svc.Cancel(ctx, job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	stored, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != syncjob.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", stored.Status)
	}

	// The queued item must leave contention with the record, or a
	// worker would later run it and overwrite the terminal status.
	if d.Depth() != 0 {
		t.Fatalf("depth = %d, want the cancelled job dequeued", d.Depth())
	}
	if item, _ := d.next(); item != nil {
		t.Fatalf("cancelled job still runnable: %s", item.job.ID)
	}
}

func TestJobServiceCancel_ProcessingOnlySignals(t *testing.T) {
	t.Parallel()

	repo := memory.NewJobRepository()
	canceler := &recordingCanceler{accept: true}
	svc := NewJobService(repo, canceler, nil)
	ctx := context.Background()

	job, err := svc.Create(ctx, CreateJobInput{Type: syncjob.TypeLeague})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	processing := syncjob.StatusProcessing
	if err := repo.Update(ctx, job.ID, syncjob.Update{Status: &processing}); err != nil {
		t.Fatalf("mark processing: %v", err)
	}

	if err := svc.Cancel(ctx, job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if len(canceler.signalled) != 1 || canceler.signalled[0] != job.ID {
		t.Fatalf("signalled = %v, want the processing job", canceler.signalled)
	}

	// The record stays processing until the handler observes the flag.
	stored, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != syncjob.StatusProcessing {
		t.Fatalf("status = %s, want processing until the checkpoint", stored.Status)
	}
}

func TestJobServiceCancel_TerminalRejected(t *testing.T) {
	t.Parallel()

	repo := memory.NewJobRepository()
	svc := NewJobService(repo, nil, nil)
	ctx := context.Background()

	job, err := svc.Create(ctx, CreateJobInput{Type: syncjob.TypeLeague})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	completed := syncjob.StatusCompleted
	if err := repo.Update(ctx, job.ID, syncjob.Update{Status: &completed}); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	if err := svc.Cancel(ctx, job.ID); !errors.Is(err, ErrJobTerminal) {
		t.Fatalf("err = %v, want ErrJobTerminal", err)
	}
}

func TestJobServiceGet_RequiresID(t *testing.T) {
	t.Parallel()

	svc := NewJobService(memory.NewJobRepository(), nil, nil)

	if _, err := svc.Get(context.Background(), ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}
