package usecase

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prasetyowira/sportsync/external/apisports"
	"github.com/prasetyowira/sportsync/internal/domain/fixture"
	"github.com/prasetyowira/sportsync/internal/domain/league"
	"github.com/prasetyowira/sportsync/internal/domain/odds"
	"github.com/prasetyowira/sportsync/internal/domain/standing"
	"github.com/prasetyowira/sportsync/internal/domain/syncjob"
	"github.com/prasetyowira/sportsync/internal/domain/team"
	"github.com/prasetyowira/sportsync/internal/platform/logging"
)

// SyncService implements one handler per job type. Every handler
// follows the same shape: fetch through the cache gate, then upsert
// item by item, never letting one bad item abort the batch.
type SyncService struct {
	gate      *CacheGate
	leagues   league.Repository
	teams     team.Repository
	fixtures  fixture.Repository
	odds      odds.Repository
	standings standing.Repository
	logger    *logging.Logger
	now       func() time.Time

	// liveOddsConcurrency bounds the per-fixture fan-out of a live
	// odds run.
	liveOddsConcurrency int
}

func NewSyncService(
	gate *CacheGate,
	leagues league.Repository,
	teams team.Repository,
	fixtures fixture.Repository,
	oddsRepo odds.Repository,
	standings standing.Repository,
	logger *logging.Logger,
) *SyncService {
	if logger == nil {
		logger = logging.Default()
	}

	return &SyncService{
		gate:                gate,
		leagues:             leagues,
		teams:               teams,
		fixtures:            fixtures,
		odds:                oddsRepo,
		standings:           standings,
		logger:              logger,
		now:                 time.Now,
		liveOddsConcurrency: 4,
	}
}

// SyncLeagues fetches the league catalogue and upserts each entry by
// its provider id.
func (s *SyncService) SyncLeagues(ctx context.Context, run *Run) (any, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.SyncService.SyncLeagues")
	defer span.End()

	params, _ := run.Job.Params.(syncjob.LeagueParams)
	start := s.now()

	entries, err := s.gate.Leagues(ctx, params.OnlyCurrentSeason, params.ForceRefresh)
	if err != nil {
		return s.entityResult(start, nil), err
	}

	result := &syncjob.EntityResult{TotalFetched: len(entries)}
	for i, entry := range entries {
		if run.Cancelled() {
			return s.entityResult(start, result), ErrRunCancelled
		}

		mapped, err := mapLeagueEntry(entry)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("league %d: %v", entry.League.ID, err))
			continue
		}

		created, err := s.leagues.Upsert(ctx, mapped)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("upsert league %d: %v", mapped.ExternalID, err))
			continue
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
		run.ReportProgress(i+1, len(entries))
	}

	return s.entityResult(start, result), nil
}

// SyncTeams upserts the squads of one league season, or of every
// active league when syncAllActive is set.
func (s *SyncService) SyncTeams(ctx context.Context, run *Run) (any, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.SyncService.SyncTeams")
	defer span.End()

	params, _ := run.Job.Params.(syncjob.TeamParams)
	start := s.now()
	result := &syncjob.EntityResult{}

	type scope struct {
		leagueID int64
		season   int
	}
	scopes := []scope{{leagueID: params.LeagueExternalID, season: params.Season}}
	if params.SyncAllActive {
		active, err := s.leagues.ListActive(ctx)
		if err != nil {
			return s.entityResult(start, result), fmt.Errorf("list active leagues: %w", err)
		}
		scopes = scopes[:0]
		for _, l := range active {
			scopes = append(scopes, scope{leagueID: l.ExternalID, season: l.Season})
		}
	}

	type fetched struct {
		entries []apisports.TeamEntry
		err     error
	}
	perScope := make([]fetched, len(scopes))

	var g errgroup.Group
	g.SetLimit(2)
	for i, sc := range scopes {
		g.Go(func() error {
			entries, err := s.gate.Teams(ctx, sc.leagueID, sc.season)
			perScope[i] = fetched{entries: entries, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i, sc := range scopes {
		if run.Cancelled() {
			return s.entityResult(start, result), ErrRunCancelled
		}

		entries, err := perScope[i].entries, perScope[i].err
		if err != nil {
			if len(scopes) == 1 {
				return s.entityResult(start, result), err
			}
			result.Errors = append(result.Errors, fmt.Sprintf("fetch teams league %d: %v", sc.leagueID, err))
			continue
		}
		result.TotalFetched += len(entries)

		for _, entry := range entries {
			if run.Cancelled() {
				return s.entityResult(start, result), ErrRunCancelled
			}

			mapped := mapTeamEntry(entry, sc.leagueID)
			if err := mapped.Validate(); err != nil {
				result.Skipped++
				result.Errors = append(result.Errors, fmt.Sprintf("team %d: %v", entry.Team.ID, err))
				continue
			}

			created, err := s.teams.Upsert(ctx, mapped)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("upsert team %d: %v", mapped.ExternalID, err))
				continue
			}
			if created {
				result.Created++
			} else {
				result.Updated++
			}
		}
		run.ReportProgress(result.Created+result.Updated+result.Skipped, result.TotalFetched)
	}

	return s.entityResult(start, result), nil
}

// SyncFixtures upserts every fixture inside the requested date
// window.
func (s *SyncService) SyncFixtures(ctx context.Context, run *Run) (any, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.SyncService.SyncFixtures")
	defer span.End()

	params, ok := run.Job.Params.(syncjob.FixtureParams)
	if !ok || params.DateFrom.IsZero() || params.DateTo.IsZero() {
		return nil, fmt.Errorf("%w: fixture sync requires a date window", ErrInvalidInput)
	}
	start := s.now()

	entries, err := s.gate.FixturesByDate(ctx, params.DateFrom, params.DateTo, params.LeagueExternalID)
	if err != nil {
		return s.entityResult(start, nil), err
	}

	result := &syncjob.EntityResult{TotalFetched: len(entries)}
	for i, entry := range entries {
		if run.Cancelled() {
			return s.entityResult(start, result), ErrRunCancelled
		}

		mapped, err := mapFixtureEntry(entry)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("fixture %d: %v", entry.Fixture.ID, err))
			continue
		}

		created, err := s.fixtures.Upsert(ctx, mapped)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("upsert fixture %d: %v", mapped.ExternalID, err))
			continue
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
		run.ReportProgress(i+1, len(entries))
	}

	return s.entityResult(start, result), nil
}

// SyncStandings upserts a league table for one season.
func (s *SyncService) SyncStandings(ctx context.Context, run *Run) (any, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.SyncService.SyncStandings")
	defer span.End()

	params, ok := run.Job.Params.(syncjob.StandingsParams)
	if !ok || params.LeagueExternalID <= 0 {
		return nil, fmt.Errorf("%w: standings sync requires a league", ErrInvalidInput)
	}
	start := s.now()

	entries, err := s.gate.Standings(ctx, params.LeagueExternalID, params.Season)
	if err != nil {
		return s.entityResult(start, nil), err
	}

	result := &syncjob.EntityResult{}
	for _, entry := range entries {
		for _, group := range entry.League.Standings {
			result.TotalFetched += len(group)
			for _, row := range group {
				if run.Cancelled() {
					return s.entityResult(start, result), ErrRunCancelled
				}

				mapped := mapStandingRow(row, entry.League.ID, entry.League.Season)
				if err := mapped.Validate(); err != nil {
					result.Skipped++
					result.Errors = append(result.Errors, fmt.Sprintf("standing rank %d: %v", row.Rank, err))
					continue
				}

				created, err := s.standings.Upsert(ctx, mapped)
				if err != nil {
					result.Errors = append(result.Errors, fmt.Sprintf("upsert standing team %d: %v", mapped.TeamExternalID, err))
					continue
				}
				if created {
					result.Created++
				} else {
					result.Updated++
				}
			}
		}
	}
	run.ReportProgress(result.Created+result.Updated+result.Skipped, result.TotalFetched)

	return s.entityResult(start, result), nil
}

// entityResult stamps timing fields. A non-empty error list does not
// mark the run unsuccessful; only a failed fetch does, and in that
// case the accompanying error carries the failure.
func (s *SyncService) entityResult(start time.Time, result *syncjob.EntityResult) *syncjob.EntityResult {
	if result == nil {
		result = &syncjob.EntityResult{Success: false}
	} else {
		result.Success = true
	}
	result.SyncedAt = s.now().UTC()
	result.DurationMs = s.now().Sub(start).Milliseconds()
	return result
}

func mapLeagueEntry(entry apisports.LeagueEntry) (league.League, error) {
	season, _ := entry.CurrentSeason()

	mapped := league.League{
		ExternalID:  entry.League.ID,
		Name:        entry.League.Name,
		Country:     entry.Country.Name,
		CountryCode: entry.Country.Code,
		LogoURL:     entry.League.Logo,
		Season:      season.Year,
		IsActive:    true,
		IsCurrent:   season.Current,
	}
	if err := mapped.Validate(); err != nil {
		return league.League{}, err
	}
	return mapped, nil
}

func mapTeamEntry(entry apisports.TeamEntry, leagueExternalID int64) team.Team {
	return team.Team{
		ExternalID:       entry.Team.ID,
		LeagueExternalID: leagueExternalID,
		Name:             entry.Team.Name,
		Short:            entry.Team.Code,
		Country:          entry.Team.Country,
		LogoURL:          entry.Team.Logo,
		Founded:          entry.Team.Founded,
	}
}

func mapFixtureEntry(entry apisports.FixtureEntry) (fixture.Fixture, error) {
	kickoff, err := time.Parse(time.RFC3339, entry.Fixture.Date)
	if err != nil {
		return fixture.Fixture{}, fmt.Errorf("parse kickoff %q: %w", entry.Fixture.Date, err)
	}

	mapped := fixture.Fixture{
		ExternalID:         entry.Fixture.ID,
		LeagueExternalID:   entry.League.ID,
		HomeTeamExternalID: entry.Teams.Home.ID,
		AwayTeamExternalID: entry.Teams.Away.ID,
		HomeTeamName:       entry.Teams.Home.Name,
		AwayTeamName:       entry.Teams.Away.Name,
		KickoffAt:          kickoff.UTC(),
		Venue:              entry.Fixture.Venue.Name,
		Status:             fixture.NormalizeStatus(entry.Fixture.Status.Short),
		Elapsed:            entry.Fixture.Status.Elapsed,
		HomeScore:          entry.Goals.Home,
		AwayScore:          entry.Goals.Away,
	}
	if err := mapped.Validate(); err != nil {
		return fixture.Fixture{}, err
	}
	return mapped, nil
}

func mapStandingRow(row apisports.StandingRow, leagueExternalID int64, season int) standing.Row {
	return standing.Row{
		LeagueExternalID: leagueExternalID,
		Season:           season,
		TeamExternalID:   row.Team.ID,
		TeamName:         row.Team.Name,
		Rank:             row.Rank,
		Points:           row.Points,
		Played:           row.All.Played,
		Won:              row.All.Win,
		Drawn:            row.All.Draw,
		Lost:             row.All.Lose,
		GoalsFor:         row.All.Goals.For,
		GoalsAgainst:     row.All.Goals.Against,
		Form:             row.Form,
	}
}
