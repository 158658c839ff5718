package syncjob

import (
	"strings"
	"time"
)

type Type string

const (
	TypeLeague       Type = "league"
	TypeTeam         Type = "team"
	TypeFixture      Type = "fixture"
	TypeOddsUpcoming Type = "odds_upcoming"
	TypeOddsFar      Type = "odds_far"
	TypeOddsLive     Type = "odds_live"
	TypeStandings    Type = "standings"
	TypeFullSync     Type = "full_sync"
)

func AllTypes() []Type {
	return []Type{
		TypeLeague,
		TypeTeam,
		TypeFixture,
		TypeOddsUpcoming,
		TypeOddsFar,
		TypeOddsLive,
		TypeStandings,
		TypeFullSync,
	}
}

func ParseType(value string) (Type, bool) {
	t := Type(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range AllTypes() {
		if t == known {
			return t, true
		}
	}
	return "", false
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank orders priorities for queue service. Lower is served first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

func ParsePriority(value string) (Priority, bool) {
	switch Priority(strings.ToLower(strings.TrimSpace(value))) {
	case PriorityLow:
		return PriorityLow, true
	case PriorityNormal:
		return PriorityNormal, true
	case PriorityHigh:
		return PriorityHigh, true
	case PriorityCritical:
		return PriorityCritical, true
	default:
		return "", false
	}
}

type TriggerSource string

const (
	TriggerScheduler TriggerSource = "scheduler"
	TriggerManual    TriggerSource = "manual"
	TriggerAPI       TriggerSource = "api"
)

// Job is one unit of sync work moving through the dispatcher.
type Job struct {
	ID             string
	Type           Type
	Status         Status
	Priority       Priority
	Params         any
	Progress       int
	TotalItems     int
	ProcessedItems int
	Attempts       int
	MaxAttempts    int
	Result         any
	ErrorMessage   string
	ErrorStack     string
	ParentJobID    string
	TriggeredBy    TriggerSource
	ScheduledAt    *time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EntityResult is the outcome of a league, team, fixture or standings
// sync.
type EntityResult struct {
	Success      bool      `json:"success"`
	SyncedAt     time.Time `json:"syncedAt"`
	DurationMs   int64     `json:"durationMs"`
	Errors       []string  `json:"errors,omitempty"`
	TotalFetched int       `json:"totalFetched"`
	Created      int       `json:"created"`
	Updated      int       `json:"updated"`
	Skipped      int       `json:"skipped"`
}

// OddsResult is the outcome of any odds sync.
type OddsResult struct {
	Success      bool      `json:"success"`
	SyncedAt     time.Time `json:"syncedAt"`
	DurationMs   int64     `json:"durationMs"`
	Errors       []string  `json:"errors,omitempty"`
	TotalMatches int       `json:"totalMatches"`
	TotalOdds    int       `json:"totalOdds"`
}

// FullSyncResult aggregates the sub-job outcomes of a full_sync.
type FullSyncResult struct {
	Success    bool          `json:"success"`
	SyncedAt   time.Time     `json:"syncedAt"`
	DurationMs int64         `json:"durationMs"`
	Errors     []string      `json:"errors,omitempty"`
	Leagues    *EntityResult `json:"leagues,omitempty"`
	Teams      *EntityResult `json:"teams,omitempty"`
	Fixtures   *EntityResult `json:"fixtures,omitempty"`
	Odds       *OddsResult   `json:"odds,omitempty"`
}

// LeagueParams drive a league sync.
type LeagueParams struct {
	OnlyCurrentSeason bool `json:"onlyCurrentSeason,omitempty"`
	ForceRefresh      bool `json:"forceRefresh,omitempty"`
}

// TeamParams scope a team sync to one league season, or sweep every
// active league when SyncAllActive is set.
type TeamParams struct {
	LeagueExternalID int64 `json:"leagueExternalId,omitempty" validate:"required_without=SyncAllActive"`
	Season           int   `json:"season,omitempty"`
	SyncAllActive    bool  `json:"syncAllActive,omitempty"`
}

// FixtureParams bound a fixture sync to a date window.
type FixtureParams struct {
	DateFrom         time.Time `json:"dateFrom" validate:"required"`
	DateTo           time.Time `json:"dateTo" validate:"required,gtefield=DateFrom"`
	LeagueExternalID int64     `json:"leagueExternalId,omitempty"`
}

// OddsParams scope a pre-match odds sync by time horizon or explicit
// match ids.
type OddsParams struct {
	HoursAhead   int     `json:"hoursAhead,omitempty" validate:"min=0"`
	MaxDaysAhead int     `json:"maxDaysAhead,omitempty" validate:"min=0"`
	MatchIDs     []int64 `json:"matchIds,omitempty"`
}

// StandingsParams scope a standings sync.
type StandingsParams struct {
	LeagueExternalID int64 `json:"leagueExternalId" validate:"required"`
	Season           int   `json:"season,omitempty"`
}

// FullSyncParams select which stages a full_sync runs.
type FullSyncParams struct {
	SyncLeagues  bool       `json:"syncLeagues,omitempty"`
	SyncTeams    bool       `json:"syncTeams,omitempty"`
	SyncFixtures bool       `json:"syncFixtures,omitempty"`
	SyncOdds     bool       `json:"syncOdds,omitempty"`
	DateFrom     *time.Time `json:"dateFrom,omitempty"`
	DateTo       *time.Time `json:"dateTo,omitempty"`
}
