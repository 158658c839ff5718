package standing

import "context"

// Repository describes standings persistence needs from use cases.
type Repository interface {
	Upsert(ctx context.Context, row Row) (created bool, err error)
	ListByLeagueSeason(ctx context.Context, leagueExternalID int64, season int) ([]Row, error)
}
