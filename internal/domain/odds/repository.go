package odds

import "context"

// Repository describes odds persistence needs from use cases.
type Repository interface {
	Upsert(ctx context.Context, line Line) (created bool, err error)
	ListByFixture(ctx context.Context, fixtureExternalID int64) ([]Line, error)
}
