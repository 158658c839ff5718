package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/prasetyowira/sportsync/internal/domain/standing"
	"github.com/prasetyowira/sportsync/internal/platform/id"
)

type StandingRepository struct {
	mu    sync.RWMutex
	items map[string]standing.Row
	ids   id.Generator
}

func NewStandingRepository(ids id.Generator) *StandingRepository {
	if ids == nil {
		ids = id.NewRandomGenerator()
	}

	return &StandingRepository{
		items: make(map[string]standing.Row),
		ids:   ids,
	}
}

func standingKey(row standing.Row) string {
	return fmt.Sprintf("%d:%d:%d", row.LeagueExternalID, row.Season, row.TeamExternalID)
}

func (r *StandingRepository) Upsert(_ context.Context, row standing.Row) (bool, error) {
	if err := row.Validate(); err != nil {
		return false, err
	}

	key := standingKey(row)
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.items[key]
	if ok {
		row.ID = existing.ID
		r.items[key] = row
		return false, nil
	}

	ref, err := r.ids.NewRef("st")
	if err != nil {
		return false, err
	}
	row.ID = ref
	r.items[key] = row
	return true, nil
}

func (r *StandingRepository) ListByLeagueSeason(_ context.Context, leagueExternalID int64, season int) ([]standing.Row, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]standing.Row, 0, 20)
	for _, row := range r.items {
		if row.LeagueExternalID == leagueExternalID && row.Season == season {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })

	return out, nil
}
