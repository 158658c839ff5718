package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/prasetyowira/sportsync/internal/domain/syncjob"
	"github.com/prasetyowira/sportsync/internal/platform/logging"
)

// FullSyncService coordinates a full refresh as a tree of sub-jobs:
// leagues, then teams, then fixtures, then odds. Each sub-job is a
// normal job with its own retry policy; only the stage ordering lives
// here. The parent occupies one worker while it waits, so the pool
// must be sized above one.
type FullSyncService struct {
	jobSvc     *JobService
	dispatcher *Dispatcher
	logger     *logging.Logger
	now        func() time.Time

	defaultLookahead time.Duration
}

func NewFullSyncService(jobSvc *JobService, dispatcher *Dispatcher, logger *logging.Logger) *FullSyncService {
	if logger == nil {
		logger = logging.Default()
	}

	return &FullSyncService{
		jobSvc:           jobSvc,
		dispatcher:       dispatcher,
		logger:           logger,
		now:              time.Now,
		defaultLookahead: 7 * 24 * time.Hour,
	}
}

type fullSyncStage struct {
	name    string
	jobType syncjob.Type
	enabled bool
	params  any
}

// Run executes the full_sync job. An enabled stage that fails outright
// causes every later enabled stage to be skipped, and the skip is
// recorded on the parent result.
func (s *FullSyncService) Run(ctx context.Context, run *Run) (any, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.FullSyncService.Run")
	defer span.End()

	params, _ := run.Job.Params.(syncjob.FullSyncParams)
	start := s.now()
	result := &syncjob.FullSyncResult{}

	dateFrom := s.now().UTC()
	dateTo := dateFrom.Add(s.defaultLookahead)
	if params.DateFrom != nil {
		dateFrom = params.DateFrom.UTC()
	}
	if params.DateTo != nil {
		dateTo = params.DateTo.UTC()
	}

	stages := []fullSyncStage{
		{name: "leagues", jobType: syncjob.TypeLeague, enabled: params.SyncLeagues, params: syncjob.LeagueParams{}},
		{name: "teams", jobType: syncjob.TypeTeam, enabled: params.SyncTeams, params: syncjob.TeamParams{SyncAllActive: true}},
		{name: "fixtures", jobType: syncjob.TypeFixture, enabled: params.SyncFixtures, params: syncjob.FixtureParams{DateFrom: dateFrom, DateTo: dateTo}},
		{name: "odds", jobType: syncjob.TypeOddsUpcoming, enabled: params.SyncOdds, params: syncjob.OddsParams{}},
	}

	failed := false
	failedStage := ""
	total := 0
	for _, stage := range stages {
		if stage.enabled {
			total++
		}
	}
	done := 0

	for _, stage := range stages {
		if !stage.enabled {
			continue
		}
		if run.Cancelled() {
			return s.finishFullSync(start, result, failed), ErrRunCancelled
		}
		if failed {
			result.Errors = append(result.Errors, fmt.Sprintf("skipped %s: earlier stage %s failed", stage.name, failedStage))
			continue
		}

		terminal, err := s.runStage(ctx, run.Job, stage)
		done++
		run.ReportProgress(done, total)

		if err != nil {
			failed = true
			failedStage = stage.name
			result.Errors = append(result.Errors, fmt.Sprintf("%s stage failed: %v", stage.name, err))
			continue
		}

		s.mergeStageResult(result, stage, terminal)
		if terminal.Status == syncjob.StatusFailed {
			failed = true
			failedStage = stage.name
			reason := terminal.ErrorMessage
			if reason == "" {
				reason = "sub-job failed"
			}
			result.Errors = append(result.Errors, fmt.Sprintf("%s stage failed: %s", stage.name, reason))
		}
	}

	return s.finishFullSync(start, result, failed), nil
}

func (s *FullSyncService) runStage(ctx context.Context, parent syncjob.Job, stage fullSyncStage) (syncjob.Job, error) {
	sub, err := s.jobSvc.Create(ctx, CreateJobInput{
		Type:        stage.jobType,
		Params:      stage.params,
		ParentJobID: parent.ID,
		TriggeredBy: parent.TriggeredBy,
	})
	if err != nil {
		return syncjob.Job{}, fmt.Errorf("create sub-job: %w", err)
	}

	s.logger.InfoContext(ctx, "full sync stage started",
		"parent_job_id", parent.ID,
		"stage", stage.name,
		"sub_job_id", sub.ID,
	)

	terminal, err := s.dispatcher.EnqueueAndWait(ctx, sub)
	if err != nil {
		return syncjob.Job{}, fmt.Errorf("wait for sub-job: %w", err)
	}
	return terminal, nil
}

func (s *FullSyncService) mergeStageResult(result *syncjob.FullSyncResult, stage fullSyncStage, terminal syncjob.Job) {
	switch stage.jobType {
	case syncjob.TypeLeague:
		result.Leagues, _ = terminal.Result.(*syncjob.EntityResult)
	case syncjob.TypeTeam:
		result.Teams, _ = terminal.Result.(*syncjob.EntityResult)
	case syncjob.TypeFixture:
		result.Fixtures, _ = terminal.Result.(*syncjob.EntityResult)
	case syncjob.TypeOddsUpcoming:
		result.Odds, _ = terminal.Result.(*syncjob.OddsResult)
	}
}

func (s *FullSyncService) finishFullSync(start time.Time, result *syncjob.FullSyncResult, failed bool) *syncjob.FullSyncResult {
	result.Success = !failed
	result.SyncedAt = s.now().UTC()
	result.DurationMs = s.now().Sub(start).Milliseconds()
	return result
}
