package league

import "context"

// Repository describes league persistence needs from use cases.
// Upsert matches on the provider-assigned external id and reports
// whether a new row was created.
type Repository interface {
	Upsert(ctx context.Context, l League) (created bool, err error)
	ListActive(ctx context.Context) ([]League, error)
	GetByExternalID(ctx context.Context, externalID int64) (League, bool, error)
}
