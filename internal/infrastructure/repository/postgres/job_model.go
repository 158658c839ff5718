package postgres

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prasetyowira/sportsync/internal/domain/syncjob"
)

type syncJobModel struct {
	ID             string     `db:"id"`
	JobType        string     `db:"job_type"`
	Status         string     `db:"status"`
	Priority       string     `db:"priority"`
	Params         string     `db:"params"`
	Progress       int        `db:"progress"`
	TotalItems     int        `db:"total_items"`
	ProcessedItems int        `db:"processed_items"`
	Attempts       int        `db:"attempts"`
	MaxAttempts    int        `db:"max_attempts"`
	Result         *string    `db:"result"`
	ErrorMessage   *string    `db:"error_message"`
	ErrorStack     *string    `db:"error_stack"`
	ParentJobID    *string    `db:"parent_job_id"`
	TriggeredBy    string     `db:"triggered_by"`
	ScheduledAt    *time.Time `db:"scheduled_at"`
	StartedAt      *time.Time `db:"started_at"`
	CompletedAt    *time.Time `db:"completed_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

func newSyncJobModel(job syncjob.Job) (syncJobModel, error) {
	paramsJSON, err := marshalJobJSON(job.Params)
	if err != nil {
		return syncJobModel{}, fmt.Errorf("marshal job params: %w", err)
	}

	model := syncJobModel{
		ID:             job.ID,
		JobType:        string(job.Type),
		Status:         string(job.Status),
		Priority:       string(job.Priority),
		Params:         paramsJSON,
		Progress:       job.Progress,
		TotalItems:     job.TotalItems,
		ProcessedItems: job.ProcessedItems,
		Attempts:       job.Attempts,
		MaxAttempts:    job.MaxAttempts,
		ErrorMessage:   optionalString(job.ErrorMessage),
		ErrorStack:     optionalString(job.ErrorStack),
		ParentJobID:    optionalString(job.ParentJobID),
		TriggeredBy:    string(job.TriggeredBy),
		ScheduledAt:    normalizeOptionalTime(job.ScheduledAt),
		StartedAt:      normalizeOptionalTime(job.StartedAt),
		CompletedAt:    normalizeOptionalTime(job.CompletedAt),
		CreatedAt:      job.CreatedAt.UTC(),
		UpdatedAt:      job.UpdatedAt.UTC(),
	}

	if job.Result != nil {
		resultJSON, err := marshalJobJSON(job.Result)
		if err != nil {
			return syncJobModel{}, fmt.Errorf("marshal job result: %w", err)
		}
		model.Result = &resultJSON
	}

	return model, nil
}

func (m syncJobModel) toDomain() (syncjob.Job, error) {
	params, err := unmarshalJobJSON(m.Params)
	if err != nil {
		return syncjob.Job{}, fmt.Errorf("unmarshal job params id=%s: %w", m.ID, err)
	}

	job := syncjob.Job{
		ID:             m.ID,
		Type:           syncjob.Type(m.JobType),
		Status:         syncjob.Status(m.Status),
		Priority:       syncjob.Priority(m.Priority),
		Params:         params,
		Progress:       m.Progress,
		TotalItems:     m.TotalItems,
		ProcessedItems: m.ProcessedItems,
		Attempts:       m.Attempts,
		MaxAttempts:    m.MaxAttempts,
		TriggeredBy:    syncjob.TriggerSource(m.TriggeredBy),
		ScheduledAt:    m.ScheduledAt,
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}

	if m.Result != nil {
		result, err := unmarshalJobJSON(*m.Result)
		if err != nil {
			return syncjob.Job{}, fmt.Errorf("unmarshal job result id=%s: %w", m.ID, err)
		}
		job.Result = result
	}
	if m.ErrorMessage != nil {
		job.ErrorMessage = *m.ErrorMessage
	}
	if m.ErrorStack != nil {
		job.ErrorStack = *m.ErrorStack
	}
	if m.ParentJobID != nil {
		job.ParentJobID = *m.ParentJobID
	}

	return job, nil
}

func marshalJobJSON(value any) (string, error) {
	if value == nil {
		return "{}", nil
	}
	raw, err := sonic.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func unmarshalJobJSON(raw string) (any, error) {
	if raw == "" || raw == "{}" || raw == "null" {
		return nil, nil
	}
	var value any
	if err := sonic.Unmarshal([]byte(raw), &value); err != nil {
		return nil, err
	}
	return value, nil
}

func normalizeOptionalTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}
