package usecase

import (
	"context"
	"testing"

	"github.com/prasetyowira/sportsync/internal/domain/league"
	"github.com/prasetyowira/sportsync/internal/domain/syncjob"
	"github.com/prasetyowira/sportsync/internal/infrastructure/repository/memory"
)

func TestSchedulerEnqueue_CreatesScheduledJob(t *testing.T) {
	t.Parallel()

	repo := memory.NewJobRepository()
	d := newTestDispatcher(t, repo)
	defer d.pool.Release()
	d.RegisterHandler(syncjob.TypeLeague, noopHandler(nil))

	jobSvc := NewJobService(repo, d, nil)
	s := NewScheduler(jobSvc, d, nil, ScheduleConfig{}, nil)
	ctx := context.Background()

	s.enqueue(ctx, syncjob.TypeLeague, syncjob.LeagueParams{OnlyCurrentSeason: true})

	jobs, total, err := repo.List(ctx, syncjob.Filter{Types: []syncjob.Type{syncjob.TypeLeague}})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 {
		t.Fatalf("jobs = %d, want 1", total)
	}
	if jobs[0].TriggeredBy != syncjob.TriggerScheduler {
		t.Fatalf("triggered by = %s, want scheduler", jobs[0].TriggeredBy)
	}
	if d.Depth() != 1 {
		t.Fatalf("depth = %d, want the job queued", d.Depth())
	}
}

func TestSchedulerEnqueue_InvalidParamsNeverQueued(t *testing.T) {
	t.Parallel()

	repo := memory.NewJobRepository()
	d := newTestDispatcher(t, repo)
	defer d.pool.Release()
	d.RegisterHandler(syncjob.TypeStandings, noopHandler(nil))

	jobSvc := NewJobService(repo, d, nil)
	s := NewScheduler(jobSvc, d, nil, ScheduleConfig{}, nil)

	// A standings job without a league fails validation and must not
	// reach the queue.
	s.enqueue(context.Background(), syncjob.TypeStandings, syncjob.StandingsParams{})

	if _, total, err := repo.List(context.Background(), syncjob.Filter{}); err != nil || total != 0 {
		t.Fatalf("jobs = %d (err %v), want none stored", total, err)
	}
	if d.Depth() != 0 {
		t.Fatalf("depth = %d, want empty queue", d.Depth())
	}
}

func TestSchedulerStandings_FansOutPerActiveLeague(t *testing.T) {
	t.Parallel()

	repo := memory.NewJobRepository()
	d := newTestDispatcher(t, repo)
	defer d.pool.Release()
	d.RegisterHandler(syncjob.TypeStandings, noopHandler(nil))

	leagues := memory.NewLeagueRepository(nil)
	ctx := context.Background()
	seed := []league.League{
		{ExternalID: 39, Name: "Premier League", Season: 2025, IsActive: true},
		{ExternalID: 140, Name: "La Liga", Season: 2025, IsActive: true},
		{ExternalID: 61, Name: "Ligue 1", Season: 2024, IsActive: false},
	}
	for _, l := range seed {
		if _, err := leagues.Upsert(ctx, l); err != nil {
			t.Fatalf("seed league %d: %v", l.ExternalID, err)
		}
	}

	jobSvc := NewJobService(repo, d, nil)
	s := NewScheduler(jobSvc, d, leagues, ScheduleConfig{}, nil)

	s.enqueueStandings(ctx)

	jobs, total, err := repo.List(ctx, syncjob.Filter{Types: []syncjob.Type{syncjob.TypeStandings}})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 {
		t.Fatalf("jobs = %d, want one per active league", total)
	}
	for _, job := range jobs {
		params, ok := job.Params.(syncjob.StandingsParams)
		if !ok || params.LeagueExternalID == 61 {
			t.Fatalf("job params = %+v, want active league scope", job.Params)
		}
	}
	if d.Depth() != 2 {
		t.Fatalf("depth = %d, want both queued", d.Depth())
	}
}
