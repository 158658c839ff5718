package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prasetyowira/sportsync/internal/domain/syncjob"
	qb "github.com/prasetyowira/sportsync/internal/platform/querybuilder"
)

type JobRepository struct {
	db *sqlx.DB
}

func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, job syncjob.Job) error {
	if strings.TrimSpace(job.ID) == "" {
		return fmt.Errorf("job id is required")
	}

	model, err := newSyncJobModel(job)
	if err != nil {
		return err
	}

	query, args, err := qb.InsertModel("sync_jobs", model, `ON CONFLICT (id)
DO UPDATE SET
    status = EXCLUDED.status,
    priority = EXCLUDED.priority,
    params = EXCLUDED.params,
    progress = EXCLUDED.progress,
    total_items = EXCLUDED.total_items,
    processed_items = EXCLUDED.processed_items,
    attempts = EXCLUDED.attempts,
    max_attempts = EXCLUDED.max_attempts,
    result = EXCLUDED.result,
    error_message = EXCLUDED.error_message,
    error_stack = EXCLUDED.error_stack,
    scheduled_at = EXCLUDED.scheduled_at,
    started_at = EXCLUDED.started_at,
    completed_at = EXCLUDED.completed_at,
    updated_at = EXCLUDED.updated_at`)
	if err != nil {
		return fmt.Errorf("build insert sync job query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert sync job id=%s type=%s: %w", job.ID, job.Type, err)
	}

	return nil
}

func (r *JobRepository) Update(ctx context.Context, id string, update syncjob.Update) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("job id is required")
	}

	builder := qb.Update("sync_jobs").
		SetExpr("updated_at", "NOW()")

	if update.Status != nil {
		builder.Set("status", string(*update.Status))
	}
	if update.Progress != nil {
		builder.Set("progress", *update.Progress)
	}
	if update.TotalItems != nil {
		builder.Set("total_items", *update.TotalItems)
	}
	if update.ProcessedItems != nil {
		builder.Set("processed_items", *update.ProcessedItems)
	}
	if update.Attempts != nil {
		builder.Set("attempts", *update.Attempts)
	}
	if update.Result != nil {
		resultJSON, err := marshalJobJSON(update.Result)
		if err != nil {
			return fmt.Errorf("marshal job result id=%s: %w", id, err)
		}
		builder.Set("result", resultJSON)
	}
	if update.ErrorMessage != nil {
		builder.Set("error_message", optionalString(*update.ErrorMessage))
	}
	if update.ErrorStack != nil {
		builder.Set("error_stack", optionalString(*update.ErrorStack))
	}
	if update.StartedAt != nil {
		builder.Set("started_at", update.StartedAt.UTC())
	}
	if update.CompletedAt != nil {
		builder.Set("completed_at", update.CompletedAt.UTC())
	}

	query, args, err := builder.Where(
		qb.Eq("id", id),
		qb.Expr("status NOT IN (?, ?, ?)",
			string(syncjob.StatusCompleted),
			string(syncjob.StatusFailed),
			string(syncjob.StatusCancelled),
		),
	).ToSQL()
	if err != nil {
		return fmt.Errorf("build update sync job query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update sync job id=%s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update sync job rows affected id=%s: %w", id, err)
	}
	if affected == 0 {
		// Zero rows means the record is missing or already terminal.
		stored, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return fmt.Errorf("update sync job id=%s: %w", id, syncjob.ErrNotFound)
		}
		if stored.Status.Terminal() {
			return fmt.Errorf("update sync job id=%s: %w", id, syncjob.ErrTerminal)
		}
		return fmt.Errorf("update sync job id=%s: %w", id, syncjob.ErrNotFound)
	}

	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (syncjob.Job, error) {
	query, args, err := qb.Select("*").
		From("sync_jobs").
		Where(qb.Eq("id", id)).
		Limit(1).
		ToSQL()
	if err != nil {
		return syncjob.Job{}, fmt.Errorf("build get sync job query: %w", err)
	}

	var model syncJobModel
	if err := r.db.GetContext(ctx, &model, query, args...); err != nil {
		if isNotFound(err) {
			return syncjob.Job{}, fmt.Errorf("get sync job id=%s: %w", id, syncjob.ErrNotFound)
		}
		return syncjob.Job{}, fmt.Errorf("get sync job id=%s: %w", id, err)
	}

	return model.toDomain()
}

func (r *JobRepository) List(ctx context.Context, filter syncjob.Filter) ([]syncjob.Job, int, error) {
	conditions := jobFilterConditions(filter)

	countQuery, countArgs, err := qb.Select("COUNT(*)").
		From("sync_jobs").
		Where(conditions...).
		ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build count sync jobs query: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count sync jobs: %w", err)
	}

	builder := qb.Select("*").
		From("sync_jobs").
		Where(conditions...).
		OrderBy("created_at DESC", "id DESC")
	if filter.Limit > 0 {
		builder.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		builder.Offset(filter.Offset)
	}

	query, args, err := builder.ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build list sync jobs query: %w", err)
	}

	var models []syncJobModel
	if err := r.db.SelectContext(ctx, &models, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sync jobs: %w", err)
	}

	jobs := make([]syncjob.Job, 0, len(models))
	for _, model := range models {
		job, err := model.toDomain()
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}

	return jobs, total, nil
}

func (r *JobRepository) ListStaleProcessing(ctx context.Context, cutoff time.Time) ([]syncjob.Job, error) {
	query, args, err := qb.Select("*").
		From("sync_jobs").
		Where(
			qb.Eq("status", string(syncjob.StatusProcessing)),
			qb.Expr("started_at IS NOT NULL"),
			qb.Expr("started_at < ?", cutoff.UTC()),
		).
		OrderBy("started_at ASC").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list stale sync jobs query: %w", err)
	}

	var models []syncJobModel
	if err := r.db.SelectContext(ctx, &models, query, args...); err != nil {
		return nil, fmt.Errorf("list stale sync jobs: %w", err)
	}

	jobs := make([]syncjob.Job, 0, len(models))
	for _, model := range models {
		job, err := model.toDomain()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

func (r *JobRepository) PruneTerminal(ctx context.Context, jobType syncjob.Type, status syncjob.Status, keep int) error {
	if keep < 0 {
		keep = 0
	}

	query := `DELETE FROM sync_jobs
WHERE job_type = $1
  AND status = $2
  AND id NOT IN (
      SELECT id FROM sync_jobs
      WHERE job_type = $1 AND status = $2
      ORDER BY COALESCE(completed_at, created_at) DESC, id DESC
      LIMIT $3
  )`

	if _, err := r.db.ExecContext(ctx, query, string(jobType), string(status), keep); err != nil {
		return fmt.Errorf("prune sync jobs type=%s status=%s: %w", jobType, status, err)
	}

	return nil
}

func jobFilterConditions(filter syncjob.Filter) []qb.Condition {
	var conditions []qb.Condition

	if len(filter.Types) > 0 {
		values := make([]any, 0, len(filter.Types))
		for _, t := range filter.Types {
			values = append(values, string(t))
		}
		conditions = append(conditions, qb.In("job_type", values))
	}
	if len(filter.Statuses) > 0 {
		values := make([]any, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			values = append(values, string(s))
		}
		conditions = append(conditions, qb.In("status", values))
	}
	if filter.Priority != "" {
		conditions = append(conditions, qb.Eq("priority", string(filter.Priority)))
	}
	if filter.TriggeredBy != "" {
		conditions = append(conditions, qb.Eq("triggered_by", string(filter.TriggeredBy)))
	}
	if filter.ParentJobID != "" {
		conditions = append(conditions, qb.Eq("parent_job_id", filter.ParentJobID))
	}
	if filter.CreatedFrom != nil {
		conditions = append(conditions, qb.Expr("created_at >= ?", filter.CreatedFrom.UTC()))
	}
	if filter.CreatedTo != nil {
		conditions = append(conditions, qb.Expr("created_at <= ?", filter.CreatedTo.UTC()))
	}

	return conditions
}
