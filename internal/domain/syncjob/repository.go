package syncjob

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports a job id with no stored record.
var ErrNotFound = errors.New("sync job not found")

// ErrTerminal reports an update against a record that already reached
// a terminal status. Terminal records are immutable.
var ErrTerminal = errors.New("sync job is terminal")

// Update carries the mutable fields of a job record. Nil pointers
// leave the stored value untouched.
type Update struct {
	Status         *Status
	Progress       *int
	TotalItems     *int
	ProcessedItems *int
	Attempts       *int
	Result         any
	ErrorMessage   *string
	ErrorStack     *string
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// Filter narrows job listings.
type Filter struct {
	Types       []Type
	Statuses    []Status
	Priority    Priority
	TriggeredBy TriggerSource
	ParentJobID string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// Repository is the persistent job store.
type Repository interface {
	Create(ctx context.Context, job Job) error
	Update(ctx context.Context, id string, update Update) error
	GetByID(ctx context.Context, id string) (Job, error)
	List(ctx context.Context, filter Filter) ([]Job, int, error)
	// ListStaleProcessing returns jobs still marked processing whose
	// startedAt is before the cutoff.
	ListStaleProcessing(ctx context.Context, cutoff time.Time) ([]Job, error)
	// PruneTerminal keeps the newest keep jobs of the given type and
	// status and deletes the rest.
	PruneTerminal(ctx context.Context, jobType Type, status Status, keep int) error
}
