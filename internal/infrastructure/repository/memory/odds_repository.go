package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/prasetyowira/sportsync/internal/domain/odds"
	"github.com/prasetyowira/sportsync/internal/platform/id"
)

type OddsRepository struct {
	mu    sync.RWMutex
	items map[string]odds.Line
	ids   id.Generator
}

func NewOddsRepository(ids id.Generator) *OddsRepository {
	if ids == nil {
		ids = id.NewRandomGenerator()
	}

	return &OddsRepository{
		items: make(map[string]odds.Line),
		ids:   ids,
	}
}

func (r *OddsRepository) Upsert(_ context.Context, line odds.Line) (bool, error) {
	if err := line.Validate(); err != nil {
		return false, err
	}

	key := line.ExternalKey()
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.items[key]
	if ok {
		line.ID = existing.ID
		r.items[key] = line
		return false, nil
	}

	ref, err := r.ids.NewRef("od")
	if err != nil {
		return false, err
	}
	line.ID = ref
	r.items[key] = line
	return true, nil
}

func (r *OddsRepository) ListByFixture(_ context.Context, fixtureExternalID int64) ([]odds.Line, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]odds.Line, 0, 16)
	for _, line := range r.items {
		if line.FixtureExternalID == fixtureExternalID {
			out = append(out, line)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExternalKey() < out[j].ExternalKey() })

	return out, nil
}
