package usecase

import (
	"context"
	"time"

	"github.com/prasetyowira/sportsync/internal/domain/league"
	"github.com/prasetyowira/sportsync/internal/domain/syncjob"
	"github.com/prasetyowira/sportsync/internal/platform/logging"
)

// ScheduleConfig is the recurring-sync policy for the scheduler.
type ScheduleConfig struct {
	Leagues      ResourceTimer
	Teams        ResourceTimer
	Fixtures     ResourceTimer
	OddsUpcoming ResourceTimer
	OddsFar      ResourceTimer
	OddsLive     ResourceTimer
	Standings    ResourceTimer

	FixtureLookback  time.Duration
	FixtureLookahead time.Duration
	OddsHoursAhead   int
	OddsMaxDaysAhead int
}

type ResourceTimer struct {
	Enabled  bool
	Interval time.Duration
}

// Scheduler creates recurring jobs per resource interval. It only
// enqueues; the dispatcher's policy governs everything after that.
type Scheduler struct {
	jobSvc     *JobService
	dispatcher *Dispatcher
	leagues    league.Repository
	cfg        ScheduleConfig
	logger     *logging.Logger
	now        func() time.Time
}

func NewScheduler(jobSvc *JobService, dispatcher *Dispatcher, leagues league.Repository, cfg ScheduleConfig, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}

	return &Scheduler{
		jobSvc:     jobSvc,
		dispatcher: dispatcher,
		leagues:    leagues,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Start launches one ticker per enabled resource.
func (s *Scheduler) Start(ctx context.Context) {
	s.startTimer(ctx, s.cfg.Leagues, func(ctx context.Context) {
		s.enqueue(ctx, syncjob.TypeLeague, syncjob.LeagueParams{OnlyCurrentSeason: true})
	})
	s.startTimer(ctx, s.cfg.Teams, func(ctx context.Context) {
		s.enqueue(ctx, syncjob.TypeTeam, syncjob.TeamParams{SyncAllActive: true})
	})
	s.startTimer(ctx, s.cfg.Fixtures, func(ctx context.Context) {
		now := s.now().UTC()
		s.enqueue(ctx, syncjob.TypeFixture, syncjob.FixtureParams{
			DateFrom: now.Add(-s.cfg.FixtureLookback),
			DateTo:   now.Add(s.cfg.FixtureLookahead),
		})
	})
	s.startTimer(ctx, s.cfg.OddsUpcoming, func(ctx context.Context) {
		s.enqueue(ctx, syncjob.TypeOddsUpcoming, syncjob.OddsParams{HoursAhead: s.cfg.OddsHoursAhead})
	})
	s.startTimer(ctx, s.cfg.OddsFar, func(ctx context.Context) {
		s.enqueue(ctx, syncjob.TypeOddsFar, syncjob.OddsParams{MaxDaysAhead: s.cfg.OddsMaxDaysAhead})
	})
	s.startTimer(ctx, s.cfg.OddsLive, func(ctx context.Context) {
		s.enqueue(ctx, syncjob.TypeOddsLive, nil)
	})
	s.startTimer(ctx, s.cfg.Standings, s.enqueueStandings)
}

func (s *Scheduler) startTimer(ctx context.Context, timer ResourceTimer, tick func(context.Context)) {
	if !timer.Enabled || timer.Interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(timer.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tick(ctx)
			}
		}
	}()
}

func (s *Scheduler) enqueue(ctx context.Context, jobType syncjob.Type, params any) {
	job, err := s.jobSvc.Create(ctx, CreateJobInput{
		Type:        jobType,
		Params:      params,
		TriggeredBy: syncjob.TriggerScheduler,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "create scheduled job failed", "job_type", jobType, "error", err)
		return
	}

	if err := s.dispatcher.Enqueue(job); err != nil {
		s.logger.ErrorContext(ctx, "enqueue scheduled job failed", "job_id", job.ID, "error", err)
	}
}

// enqueueStandings fans one job out per active league, since a
// standings sync is league-scoped.
func (s *Scheduler) enqueueStandings(ctx context.Context) {
	if s.leagues == nil {
		return
	}

	active, err := s.leagues.ListActive(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "list active leagues for standings schedule failed", "error", err)
		return
	}

	for _, l := range active {
		s.enqueue(ctx, syncjob.TypeStandings, syncjob.StandingsParams{
			LeagueExternalID: l.ExternalID,
			Season:           l.Season,
		})
	}
}
