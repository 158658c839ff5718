package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/prasetyowira/sportsync/internal/domain/syncjob"
	"github.com/prasetyowira/sportsync/internal/platform/logging"
)

// CancelSignaler lets the job service reach into the dispatcher's
// in-flight work to request cooperative cancellation.
type CancelSignaler interface {
	SignalCancel(jobID string) bool
}

type noopCancelSignaler struct{}

func (noopCancelSignaler) SignalCancel(string) bool { return false }

type CreateJobInput struct {
	Type        syncjob.Type
	Params      any
	Priority    *syncjob.Priority
	ScheduledAt *time.Time
	ParentJobID string
	TriggeredBy syncjob.TriggerSource
}

// JobService owns the job record lifecycle outside of dispatch:
// creation, queries and cancellation.
type JobService struct {
	jobs     syncjob.Repository
	canceler CancelSignaler
	validate *validator.Validate
	logger   *logging.Logger
	now      func() time.Time
}

func NewJobService(jobs syncjob.Repository, canceler CancelSignaler, logger *logging.Logger) *JobService {
	if logger == nil {
		logger = logging.Default()
	}
	if canceler == nil {
		canceler = noopCancelSignaler{}
	}

	return &JobService{
		jobs:     jobs,
		canceler: canceler,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// SetCancelSignaler is called once during wiring, after the
// dispatcher exists.
func (s *JobService) SetCancelSignaler(canceler CancelSignaler) {
	if canceler != nil {
		s.canceler = canceler
	}
}

func (s *JobService) Create(ctx context.Context, input CreateJobInput) (syncjob.Job, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.JobService.Create")
	defer span.End()

	if _, ok := syncjob.ParseType(string(input.Type)); !ok {
		return syncjob.Job{}, fmt.Errorf("%w: unknown job type %q", ErrInvalidInput, input.Type)
	}

	params, err := s.normalizeParams(input.Type, input.Params)
	if err != nil {
		return syncjob.Job{}, err
	}

	policy := syncjob.PolicyFor(input.Type)
	priority := policy.Priority
	if input.Priority != nil {
		priority = *input.Priority
	}

	triggeredBy := input.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = syncjob.TriggerManual
	}

	now := s.now().UTC()
	job := syncjob.Job{
		ID:          uuid.NewString(),
		Type:        input.Type,
		Status:      syncjob.StatusPending,
		Priority:    priority,
		Params:      params,
		MaxAttempts: policy.Attempts,
		ParentJobID: input.ParentJobID,
		TriggeredBy: triggeredBy,
		ScheduledAt: input.ScheduledAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return syncjob.Job{}, fmt.Errorf("create job: %w", err)
	}

	s.logger.InfoContext(ctx, "job created",
		"job_id", job.ID,
		"job_type", job.Type,
		"priority", job.Priority,
		"triggered_by", job.TriggeredBy,
	)
	return job, nil
}

func (s *JobService) Get(ctx context.Context, id string) (syncjob.Job, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.JobService.Get")
	defer span.End()

	if id == "" {
		return syncjob.Job{}, fmt.Errorf("%w: job id is required", ErrInvalidInput)
	}

	return s.jobs.GetByID(ctx, id)
}

func (s *JobService) List(ctx context.Context, filter syncjob.Filter) ([]syncjob.Job, int, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.JobService.List")
	defer span.End()

	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 500 {
		filter.Limit = 500
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	return s.jobs.List(ctx, filter)
}

// Cancel removes a pending job from contention or flags a processing
// job to stop at its next checkpoint. Terminal jobs cannot be
// cancelled.
func (s *JobService) Cancel(ctx context.Context, id string) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.JobService.Cancel")
	defer span.End()

	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: job %s is %s", ErrJobTerminal, id, job.Status)
	}

	if job.Status == syncjob.StatusProcessing {
		// The handler observes the flag at its next upsert iteration
		// and finishes with partial results.
		s.canceler.SignalCancel(id)
		s.logger.InfoContext(ctx, "cancellation requested for processing job", "job_id", id)
		return nil
	}

	// Pull the queued item out of contention first so no worker claims
	// it between the store update and the dequeue.
	s.canceler.SignalCancel(id)

	status := syncjob.StatusCancelled
	completedAt := s.now().UTC()
	update := syncjob.Update{
		Status:      &status,
		CompletedAt: &completedAt,
	}
	if err := s.jobs.Update(ctx, id, update); err != nil {
		return fmt.Errorf("cancel job %s: %w", id, err)
	}

	s.logger.InfoContext(ctx, "job cancelled", "job_id", id)
	return nil
}

// normalizeParams coerces the caller-supplied payload into the typed
// parameter struct for the job type and validates it.
func (s *JobService) normalizeParams(jobType syncjob.Type, params any) (any, error) {
	switch jobType {
	case syncjob.TypeLeague:
		return coerceParams[syncjob.LeagueParams](s.validate, jobType, params, true)
	case syncjob.TypeTeam:
		return coerceParams[syncjob.TeamParams](s.validate, jobType, params, false)
	case syncjob.TypeFixture:
		return coerceParams[syncjob.FixtureParams](s.validate, jobType, params, false)
	case syncjob.TypeOddsUpcoming, syncjob.TypeOddsFar:
		return coerceParams[syncjob.OddsParams](s.validate, jobType, params, true)
	case syncjob.TypeOddsLive:
		if params != nil {
			return nil, fmt.Errorf("%w: %s jobs take no parameters", ErrInvalidInput, jobType)
		}
		return nil, nil
	case syncjob.TypeStandings:
		return coerceParams[syncjob.StandingsParams](s.validate, jobType, params, false)
	case syncjob.TypeFullSync:
		return coerceParams[syncjob.FullSyncParams](s.validate, jobType, params, true)
	default:
		return nil, fmt.Errorf("%w: unknown job type %q", ErrInvalidInput, jobType)
	}
}

func coerceParams[T any](validate *validator.Validate, jobType syncjob.Type, params any, optional bool) (T, error) {
	var zero T
	if params == nil {
		if optional {
			return zero, nil
		}
		return zero, fmt.Errorf("%w: %s jobs require parameters", ErrInvalidInput, jobType)
	}

	typed, ok := params.(T)
	if !ok {
		if ptr, ok := params.(*T); ok && ptr != nil {
			typed = *ptr
		} else {
			return zero, fmt.Errorf("%w: invalid parameters for %s job", ErrInvalidInput, jobType)
		}
	}

	if err := validate.Struct(typed); err != nil {
		return zero, fmt.Errorf("%w: %s parameters: %v", ErrInvalidInput, jobType, err)
	}
	return typed, nil
}
