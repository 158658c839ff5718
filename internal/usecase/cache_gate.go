package usecase

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prasetyowira/sportsync/external/apisports"
	"github.com/prasetyowira/sportsync/internal/observability"
	"github.com/prasetyowira/sportsync/internal/platform/cache"
)

// SportsProvider is the upstream surface the sync handlers consume.
type SportsProvider interface {
	FetchLeagues(ctx context.Context, currentOnly bool) ([]apisports.LeagueEntry, error)
	FetchTeams(ctx context.Context, leagueID int64, season int) ([]apisports.TeamEntry, error)
	FetchFixtures(ctx context.Context, from, to time.Time, leagueID int64) ([]apisports.FixtureEntry, error)
	FetchOdds(ctx context.Context, fixtureID int64) ([]apisports.OddsEntry, error)
	FetchLiveOdds(ctx context.Context, fixtureID int64) ([]apisports.OddsEntry, error)
	FetchStandings(ctx context.Context, leagueID int64, season int) ([]apisports.StandingsEntry, error)
}

// CacheTTLs carries the per-resource freshness policy. The live
// fixture set is read from the entity store, not fetched upstream, so
// it carries no TTL here.
type CacheTTLs struct {
	Leagues      time.Duration
	Fixtures     time.Duration
	PreMatchOdds time.Duration
	LiveOdds     time.Duration
	Standings    time.Duration
}

// CacheGate fronts the provider with a per-resource TTL cache. A hit
// is served locally and consumes no provider quota.
type CacheGate struct {
	provider SportsProvider
	store    *cache.Store
	ttls     CacheTTLs
	metrics  *observability.Metrics
	enabled  bool
}

func NewCacheGate(provider SportsProvider, store *cache.Store, ttls CacheTTLs, metrics *observability.Metrics, enabled bool) *CacheGate {
	if store == nil {
		store = cache.NewStore()
	}

	return &CacheGate{
		provider: provider,
		store:    store,
		ttls:     ttls,
		metrics:  metrics,
		enabled:  enabled,
	}
}

func (g *CacheGate) Leagues(ctx context.Context, currentOnly, forceRefresh bool) ([]apisports.LeagueEntry, error) {
	key := "leagues:current=" + strconv.FormatBool(currentOnly)
	if forceRefresh {
		g.store.Delete(ctx, key)
	}

	return fetchCached(ctx, g, "leagues", key, g.ttls.Leagues, func(ctx context.Context) ([]apisports.LeagueEntry, error) {
		return g.provider.FetchLeagues(ctx, currentOnly)
	})
}

func (g *CacheGate) Teams(ctx context.Context, leagueID int64, season int) ([]apisports.TeamEntry, error) {
	key := fmt.Sprintf("teams:%d:%d", leagueID, season)
	return fetchCached(ctx, g, "teams", key, g.ttls.Leagues, func(ctx context.Context) ([]apisports.TeamEntry, error) {
		return g.provider.FetchTeams(ctx, leagueID, season)
	})
}

func (g *CacheGate) FixturesByDate(ctx context.Context, from, to time.Time, leagueID int64) ([]apisports.FixtureEntry, error) {
	key := fmt.Sprintf("fixtures:%s:%s:%d", from.UTC().Format("2006-01-02"), to.UTC().Format("2006-01-02"), leagueID)
	return fetchCached(ctx, g, "fixtures", key, g.ttls.Fixtures, func(ctx context.Context) ([]apisports.FixtureEntry, error) {
		return g.provider.FetchFixtures(ctx, from, to, leagueID)
	})
}

func (g *CacheGate) OddsByFixture(ctx context.Context, fixtureID int64) ([]apisports.OddsEntry, error) {
	key := "odds-by-fixture:" + strconv.FormatInt(fixtureID, 10)
	return fetchCached(ctx, g, "odds", key, g.ttls.PreMatchOdds, func(ctx context.Context) ([]apisports.OddsEntry, error) {
		return g.provider.FetchOdds(ctx, fixtureID)
	})
}

func (g *CacheGate) LiveOddsByFixture(ctx context.Context, fixtureID int64) ([]apisports.OddsEntry, error) {
	key := "live-odds-by-fixture:" + strconv.FormatInt(fixtureID, 10)
	return fetchCached(ctx, g, "live_odds", key, g.ttls.LiveOdds, func(ctx context.Context) ([]apisports.OddsEntry, error) {
		return g.provider.FetchLiveOdds(ctx, fixtureID)
	})
}

func (g *CacheGate) Standings(ctx context.Context, leagueID int64, season int) ([]apisports.StandingsEntry, error) {
	key := fmt.Sprintf("standings:%d:%d", leagueID, season)
	return fetchCached(ctx, g, "standings", key, g.ttls.Standings, func(ctx context.Context) ([]apisports.StandingsEntry, error) {
		return g.provider.FetchStandings(ctx, leagueID, season)
	})
}

func fetchCached[T any](ctx context.Context, g *CacheGate, resource, key string, ttl time.Duration, loader func(context.Context) ([]T, error)) ([]T, error) {
	// Every loader invocation is one real provider call; a cache hit
	// never reaches this closure.
	counted := func(ctx context.Context) ([]T, error) {
		items, err := loader(ctx)
		g.countUpstream(err)
		return items, err
	}

	if !g.enabled || ttl <= 0 {
		return counted(ctx)
	}

	if cached, ok := g.store.Get(ctx, key); ok {
		if items, ok := cached.([]T); ok {
			g.countCache(resource, true)
			return items, nil
		}
	}
	g.countCache(resource, false)

	out, err := g.store.Fetch(ctx, key, ttl, func(ctx context.Context) (any, error) {
		return counted(ctx)
	})
	if err != nil {
		return nil, err
	}

	items, ok := out.([]T)
	if !ok {
		return nil, fmt.Errorf("unexpected cached payload type %T for %s", out, key)
	}
	return items, nil
}

func (g *CacheGate) countUpstream(err error) {
	if g.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	g.metrics.UpstreamRequests.WithLabelValues(outcome).Inc()
}

func (g *CacheGate) countCache(resource string, hit bool) {
	if g.metrics == nil {
		return
	}
	if hit {
		g.metrics.CacheHits.WithLabelValues(resource).Inc()
		return
	}
	g.metrics.CacheMisses.WithLabelValues(resource).Inc()
}
