package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prasetyowira/sportsync/internal/domain/syncjob"
)

// JobRepository is the in-process job store used in tests and when no
// database is configured.
type JobRepository struct {
	mu    sync.RWMutex
	items map[string]syncjob.Job
	now   func() time.Time
}

func NewJobRepository() *JobRepository {
	return &JobRepository{
		items: make(map[string]syncjob.Job),
		now:   time.Now,
	}
}

func (r *JobRepository) Create(_ context.Context, job syncjob.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}

	r.items[job.ID] = job
	return nil
}

func (r *JobRepository) Update(_ context.Context, id string, update syncjob.Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.items[id]
	if !ok {
		return fmt.Errorf("update job %s: %w", id, syncjob.ErrNotFound)
	}
	if job.Status.Terminal() {
		return fmt.Errorf("update job %s: %w", id, syncjob.ErrTerminal)
	}

	if update.Status != nil {
		job.Status = *update.Status
	}
	if update.Progress != nil {
		job.Progress = *update.Progress
	}
	if update.TotalItems != nil {
		job.TotalItems = *update.TotalItems
	}
	if update.ProcessedItems != nil {
		job.ProcessedItems = *update.ProcessedItems
	}
	if update.Attempts != nil {
		job.Attempts = *update.Attempts
	}
	if update.Result != nil {
		job.Result = update.Result
	}
	if update.ErrorMessage != nil {
		job.ErrorMessage = *update.ErrorMessage
	}
	if update.ErrorStack != nil {
		job.ErrorStack = *update.ErrorStack
	}
	if update.StartedAt != nil {
		job.StartedAt = update.StartedAt
	}
	if update.CompletedAt != nil {
		job.CompletedAt = update.CompletedAt
	}
	job.UpdatedAt = r.now().UTC()

	r.items[id] = job
	return nil
}

func (r *JobRepository) GetByID(_ context.Context, id string) (syncjob.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.items[id]
	if !ok {
		return syncjob.Job{}, fmt.Errorf("get job %s: %w", id, syncjob.ErrNotFound)
	}

	return job, nil
}

func (r *JobRepository) List(_ context.Context, filter syncjob.Filter) ([]syncjob.Job, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]syncjob.Job, 0, len(r.items))
	for _, job := range r.items {
		if !matchesFilter(job, filter) {
			continue
		}
		matched = append(matched, job)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= total {
			return nil, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	return matched, total, nil
}

func (r *JobRepository) ListStaleProcessing(_ context.Context, cutoff time.Time) ([]syncjob.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]syncjob.Job, 0, 4)
	for _, job := range r.items {
		if job.Status != syncjob.StatusProcessing {
			continue
		}
		if job.StartedAt == nil || job.StartedAt.After(cutoff) {
			continue
		}
		out = append(out, job)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(*out[j].StartedAt) })

	return out, nil
}

func (r *JobRepository) PruneTerminal(_ context.Context, jobType syncjob.Type, status syncjob.Status, keep int) error {
	if keep <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	terminal := make([]syncjob.Job, 0, keep)
	for _, job := range r.items {
		if job.Type == jobType && job.Status == status {
			terminal = append(terminal, job)
		}
	}
	if len(terminal) <= keep {
		return nil
	}

	sort.SliceStable(terminal, func(i, j int) bool {
		return completedOrCreated(terminal[i]).After(completedOrCreated(terminal[j]))
	})
	for _, job := range terminal[keep:] {
		delete(r.items, job.ID)
	}

	return nil
}

func matchesFilter(job syncjob.Job, filter syncjob.Filter) bool {
	if len(filter.Types) > 0 && !containsType(filter.Types, job.Type) {
		return false
	}
	if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, job.Status) {
		return false
	}
	if filter.Priority != "" && job.Priority != filter.Priority {
		return false
	}
	if filter.TriggeredBy != "" && job.TriggeredBy != filter.TriggeredBy {
		return false
	}
	if filter.ParentJobID != "" && job.ParentJobID != filter.ParentJobID {
		return false
	}
	if filter.CreatedFrom != nil && job.CreatedAt.Before(*filter.CreatedFrom) {
		return false
	}
	if filter.CreatedTo != nil && job.CreatedAt.After(*filter.CreatedTo) {
		return false
	}

	return true
}

func containsType(types []syncjob.Type, t syncjob.Type) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func containsStatus(statuses []syncjob.Status, s syncjob.Status) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func completedOrCreated(job syncjob.Job) time.Time {
	if job.CompletedAt != nil {
		return *job.CompletedAt
	}
	return job.CreatedAt
}
