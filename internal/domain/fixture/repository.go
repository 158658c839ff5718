package fixture

import (
	"context"
	"time"
)

// Repository describes fixture persistence needs from use cases.
type Repository interface {
	Upsert(ctx context.Context, f Fixture) (created bool, err error)
	GetByExternalID(ctx context.Context, externalID int64) (Fixture, bool, error)
	// ListLive returns fixtures currently in play. Callers read this
	// fresh at execution time, never from a prior snapshot.
	ListLive(ctx context.Context) ([]Fixture, error)
	ListByKickoffWindow(ctx context.Context, from, to time.Time) ([]Fixture, error)
}
