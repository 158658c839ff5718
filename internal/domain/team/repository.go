package team

import "context"

// Repository describes team persistence needs from use cases.
type Repository interface {
	Upsert(ctx context.Context, t Team) (created bool, err error)
	ListByLeague(ctx context.Context, leagueExternalID int64) ([]Team, error)
}
