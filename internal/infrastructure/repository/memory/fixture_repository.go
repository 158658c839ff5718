package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prasetyowira/sportsync/internal/domain/fixture"
	"github.com/prasetyowira/sportsync/internal/platform/id"
)

type FixtureRepository struct {
	mu    sync.RWMutex
	items map[int64]fixture.Fixture
	ids   id.Generator
}

func NewFixtureRepository(ids id.Generator) *FixtureRepository {
	if ids == nil {
		ids = id.NewRandomGenerator()
	}

	return &FixtureRepository{
		items: make(map[int64]fixture.Fixture),
		ids:   ids,
	}
}

func (r *FixtureRepository) Upsert(_ context.Context, f fixture.Fixture) (bool, error) {
	if err := f.Validate(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.items[f.ExternalID]
	if ok {
		f.ID = existing.ID
		r.items[f.ExternalID] = f
		return false, nil
	}

	ref, err := r.ids.NewRef("fx")
	if err != nil {
		return false, err
	}
	f.ID = ref
	r.items[f.ExternalID] = f
	return true, nil
}

func (r *FixtureRepository) GetByExternalID(_ context.Context, externalID int64) (fixture.Fixture, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.items[externalID]
	if !ok {
		return fixture.Fixture{}, false, nil
	}

	return f, true, nil
}

func (r *FixtureRepository) ListLive(_ context.Context) ([]fixture.Fixture, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]fixture.Fixture, 0, len(r.items))
	for _, f := range r.items {
		if fixture.IsLiveStatus(f.Status) {
			out = append(out, f)
		}
	}
	sortFixtures(out)

	return out, nil
}

func (r *FixtureRepository) ListByKickoffWindow(_ context.Context, from, to time.Time) ([]fixture.Fixture, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]fixture.Fixture, 0, len(r.items))
	for _, f := range r.items {
		if f.KickoffAt.Before(from) || f.KickoffAt.After(to) {
			continue
		}
		out = append(out, f)
	}
	sortFixtures(out)

	return out, nil
}

func sortFixtures(items []fixture.Fixture) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].KickoffAt.Equal(items[j].KickoffAt) {
			return items[i].KickoffAt.Before(items[j].KickoffAt)
		}
		return items[i].ExternalID < items[j].ExternalID
	})
}
