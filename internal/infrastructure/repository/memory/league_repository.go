package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/prasetyowira/sportsync/internal/domain/league"
	"github.com/prasetyowira/sportsync/internal/platform/id"
)

type LeagueRepository struct {
	mu    sync.RWMutex
	items map[int64]league.League
	ids   id.Generator
}

func NewLeagueRepository(ids id.Generator) *LeagueRepository {
	if ids == nil {
		ids = id.NewRandomGenerator()
	}

	return &LeagueRepository{
		items: make(map[int64]league.League),
		ids:   ids,
	}
}

func (r *LeagueRepository) Upsert(_ context.Context, l league.League) (bool, error) {
	if err := l.Validate(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.items[l.ExternalID]
	if ok {
		l.ID = existing.ID
		r.items[l.ExternalID] = l
		return false, nil
	}

	ref, err := r.ids.NewRef("lg")
	if err != nil {
		return false, err
	}
	l.ID = ref
	r.items[l.ExternalID] = l
	return true, nil
}

func (r *LeagueRepository) ListActive(_ context.Context) ([]league.League, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]league.League, 0, len(r.items))
	for _, l := range r.items {
		if l.IsActive {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })

	return out, nil
}

func (r *LeagueRepository) GetByExternalID(_ context.Context, externalID int64) (league.League, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.items[externalID]
	if !ok {
		return league.League{}, false, nil
	}

	return l, true, nil
}
