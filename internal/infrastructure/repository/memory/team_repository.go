package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/prasetyowira/sportsync/internal/domain/team"
	"github.com/prasetyowira/sportsync/internal/platform/id"
)

type TeamRepository struct {
	mu    sync.RWMutex
	items map[int64]team.Team
	ids   id.Generator
}

func NewTeamRepository(ids id.Generator) *TeamRepository {
	if ids == nil {
		ids = id.NewRandomGenerator()
	}

	return &TeamRepository{
		items: make(map[int64]team.Team),
		ids:   ids,
	}
}

func (r *TeamRepository) Upsert(_ context.Context, t team.Team) (bool, error) {
	if err := t.Validate(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.items[t.ExternalID]
	if ok {
		t.ID = existing.ID
		r.items[t.ExternalID] = t
		return false, nil
	}

	ref, err := r.ids.NewRef("tm")
	if err != nil {
		return false, err
	}
	t.ID = ref
	r.items[t.ExternalID] = t
	return true, nil
}

func (r *TeamRepository) ListByLeague(_ context.Context, leagueExternalID int64) ([]team.Team, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]team.Team, 0, len(r.items))
	for _, t := range r.items {
		if t.LeagueExternalID == leagueExternalID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })

	return out, nil
}
