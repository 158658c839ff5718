package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/prasetyowira/sportsync/external/apisports"
	"github.com/prasetyowira/sportsync/internal/domain/odds"
	"github.com/prasetyowira/sportsync/internal/domain/syncjob"
)

const (
	defaultOddsHoursAhead   = 48
	defaultOddsMaxDaysAhead = 14
)

// SyncUpcomingOdds refreshes pre-match odds for fixtures kicking off
// within the near horizon.
func (s *SyncService) SyncUpcomingOdds(ctx context.Context, run *Run) (any, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.SyncService.SyncUpcomingOdds")
	defer span.End()

	params, _ := run.Job.Params.(syncjob.OddsParams)
	hours := params.HoursAhead
	if hours <= 0 {
		hours = defaultOddsHoursAhead
	}

	return s.syncPreMatchOdds(ctx, run, params.MatchIDs, time.Duration(hours)*time.Hour)
}

// SyncFarOdds refreshes pre-match odds for the long horizon.
func (s *SyncService) SyncFarOdds(ctx context.Context, run *Run) (any, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.SyncService.SyncFarOdds")
	defer span.End()

	params, _ := run.Job.Params.(syncjob.OddsParams)
	days := params.MaxDaysAhead
	if days <= 0 {
		days = defaultOddsMaxDaysAhead
	}

	return s.syncPreMatchOdds(ctx, run, params.MatchIDs, time.Duration(days)*24*time.Hour)
}

func (s *SyncService) syncPreMatchOdds(ctx context.Context, run *Run, matchIDs []int64, horizon time.Duration) (any, error) {
	start := s.now()
	result := &syncjob.OddsResult{}

	targets, err := s.resolveOddsTargets(ctx, matchIDs, horizon, result)
	if err != nil {
		return s.oddsResult(start, nil), err
	}

	for i, target := range targets {
		if run.Cancelled() {
			return s.oddsResult(start, result), ErrRunCancelled
		}

		entries, err := s.gate.OddsByFixture(ctx, target)
		if err != nil {
			if isUpstreamFailure(err) {
				return s.oddsResult(start, result), err
			}
			result.Errors = append(result.Errors, fmt.Sprintf("fetch odds fixture %d: %v", target, err))
			continue
		}

		matched, upserted := s.upsertOddsEntries(ctx, entries, target, false, result)
		result.TotalMatches += matched
		result.TotalOdds += upserted
		run.ReportProgress(i+1, len(targets))
	}

	return s.oddsResult(start, result), nil
}

// SyncLiveOdds refreshes odds for every fixture currently in play.
// The live set is read from the entity store at execution time, never
// snapshotted at job creation.
func (s *SyncService) SyncLiveOdds(ctx context.Context, run *Run) (any, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.SyncService.SyncLiveOdds")
	defer span.End()

	start := s.now()
	result := &syncjob.OddsResult{}

	live, err := s.fixtures.ListLive(ctx)
	if err != nil {
		return s.oddsResult(start, nil), fmt.Errorf("list live fixtures: %w", err)
	}
	if len(live) == 0 {
		return s.oddsResult(start, result), nil
	}

	var mu sync.Mutex
	var fatal error
	processed := 0

	workers := pool.New().WithMaxGoroutines(s.liveOddsConcurrency)
	for _, fx := range live {
		fx := fx
		workers.Go(func() {
			if run.Cancelled() {
				return
			}

			entries, err := s.gate.LiveOddsByFixture(ctx, fx.ExternalID)

			// Progress is reported inside the critical section so
			// processed counts never go backwards across workers.
			mu.Lock()
			processed++
			if err != nil {
				if isUpstreamFailure(err) && fatal == nil {
					fatal = err
				} else {
					result.Errors = append(result.Errors, fmt.Sprintf("fetch live odds fixture %d: %v", fx.ExternalID, err))
				}
			} else {
				matched, upserted := s.upsertOddsEntries(ctx, entries, fx.ExternalID, true, result)
				result.TotalMatches += matched
				result.TotalOdds += upserted
			}
			run.ReportProgress(processed, len(live))
			mu.Unlock()
		})
	}
	workers.Wait()
	run.ReportProgress(len(live), len(live))

	if fatal != nil {
		return s.oddsResult(start, result), fatal
	}
	if run.Cancelled() {
		return s.oddsResult(start, result), ErrRunCancelled
	}
	return s.oddsResult(start, result), nil
}

// resolveOddsTargets picks the fixtures to price. Explicit match ids
// that the entity store has never seen are recorded as item errors,
// not silently dropped.
func (s *SyncService) resolveOddsTargets(ctx context.Context, matchIDs []int64, horizon time.Duration, result *syncjob.OddsResult) ([]int64, error) {
	if len(matchIDs) > 0 {
		targets := make([]int64, 0, len(matchIDs))
		for _, id := range matchIDs {
			_, found, err := s.fixtures.GetByExternalID(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("look up fixture %d: %w", id, err)
			}
			if !found {
				result.Errors = append(result.Errors, "fixture "+strconv.FormatInt(id, 10)+" is not known, skipping odds")
				continue
			}
			targets = append(targets, id)
		}
		return targets, nil
	}

	now := s.now().UTC()
	upcoming, err := s.fixtures.ListByKickoffWindow(ctx, now, now.Add(horizon))
	if err != nil {
		return nil, fmt.Errorf("list fixtures in window: %w", err)
	}

	targets := make([]int64, 0, len(upcoming))
	for _, fx := range upcoming {
		targets = append(targets, fx.ExternalID)
	}
	return targets, nil
}

// upsertOddsEntries flattens one provider odds payload into lines and
// upserts each. Returns matches seen and lines written.
func (s *SyncService) upsertOddsEntries(ctx context.Context, entries []apisports.OddsEntry, fallbackFixtureID int64, isLive bool, result *syncjob.OddsResult) (int, int) {
	matches := 0
	upserted := 0

	for _, entry := range entries {
		fixtureID := entry.Fixture.ID
		if fixtureID <= 0 {
			fixtureID = fallbackFixtureID
		}
		matches++

		recordedAt := s.now().UTC()
		if parsed, err := time.Parse(time.RFC3339, entry.Update); err == nil {
			recordedAt = parsed.UTC()
		}

		for _, bookmaker := range entry.Bookmakers {
			for _, bet := range bookmaker.Bets {
				for _, value := range bet.Values {
					line, err := mapOddsValue(fixtureID, bookmaker, bet, value, isLive, recordedAt)
					if err != nil {
						result.Errors = append(result.Errors, fmt.Sprintf("odds fixture %d %s/%s: %v", fixtureID, bet.Name, value.Value, err))
						continue
					}

					if _, err := s.odds.Upsert(ctx, line); err != nil {
						result.Errors = append(result.Errors, fmt.Sprintf("upsert odds fixture %d %s/%s: %v", fixtureID, bet.Name, value.Value, err))
						continue
					}
					upserted++
				}
			}
		}
	}

	return matches, upserted
}

func (s *SyncService) oddsResult(start time.Time, result *syncjob.OddsResult) *syncjob.OddsResult {
	if result == nil {
		result = &syncjob.OddsResult{Success: false}
	} else {
		result.Success = true
	}
	result.SyncedAt = s.now().UTC()
	result.DurationMs = s.now().Sub(start).Milliseconds()
	return result
}

func mapOddsValue(fixtureID int64, bookmaker apisports.BookmakerEntry, bet apisports.BetEntry, value apisports.BetValue, isLive bool, recordedAt time.Time) (odds.Line, error) {
	price, err := strconv.ParseFloat(value.Odd, 64)
	if err != nil {
		return odds.Line{}, fmt.Errorf("parse price %q: %w", value.Odd, err)
	}

	line := odds.Line{
		FixtureExternalID: fixtureID,
		BookmakerID:       bookmaker.ID,
		BookmakerName:     bookmaker.Name,
		Market:            bet.Name,
		Outcome:           value.Value,
		Price:             price,
		IsLive:            isLive,
		RecordedAt:        recordedAt,
	}
	if err := line.Validate(); err != nil {
		return odds.Line{}, err
	}
	return line, nil
}

// isUpstreamFailure separates a failed fetch, which fails the whole
// attempt, from per-item trouble that only lands in result.errors.
func isUpstreamFailure(err error) bool {
	var apiErr *apisports.APIError
	if errors.As(err, &apiErr) {
		return true
	}
	return errors.Is(err, apisports.ErrUnavailable)
}
