package fixture

import (
	"fmt"
	"strings"
	"time"
)

const (
	StatusScheduled = "SCHEDULED"
	StatusLive      = "LIVE"
	StatusFinished  = "FINISHED"
	StatusCancelled = "CANCELLED"
	StatusPostponed = "POSTPONED"
)

// Fixture is one scheduled match as reported by the upstream
// provider.
type Fixture struct {
	ID                 string
	ExternalID         int64
	LeagueExternalID   int64
	HomeTeamExternalID int64
	AwayTeamExternalID int64
	HomeTeamName       string
	AwayTeamName       string
	KickoffAt          time.Time
	Venue              string
	Status             string
	Elapsed            int
	HomeScore          *int
	AwayScore          *int
}

func (f Fixture) Validate() error {
	if f.ExternalID <= 0 {
		return fmt.Errorf("fixture external id is required")
	}
	if f.KickoffAt.IsZero() {
		return fmt.Errorf("fixture kickoff time is required")
	}

	return nil
}

func NormalizeStatus(value string) string {
	status := strings.ToUpper(strings.TrimSpace(value))
	if status == "" {
		return StatusScheduled
	}
	return status
}

func IsLiveStatus(status string) bool {
	switch NormalizeStatus(status) {
	case StatusLive, "IN_PLAY", "HT", "1H", "2H", "ET", "BT", "P":
		return true
	default:
		return false
	}
}

func IsFinishedStatus(status string) bool {
	switch NormalizeStatus(status) {
	case StatusFinished, "FT", "AET", "PEN":
		return true
	default:
		return false
	}
}
