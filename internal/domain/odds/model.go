package odds

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Line is one priced outcome for a fixture market. Identity upstream
// is the combination of fixture, bookmaker, market and outcome.
type Line struct {
	ID                 string
	FixtureExternalID  int64
	BookmakerID        int64
	BookmakerName      string
	Market             string
	Outcome            string
	Price              float64
	IsLive             bool
	RecordedAt         time.Time
}

// ExternalKey is the dedup identity for a line.
func (l Line) ExternalKey() string {
	parts := []string{
		strconv.FormatInt(l.FixtureExternalID, 10),
		strconv.FormatInt(l.BookmakerID, 10),
		strings.ToLower(strings.TrimSpace(l.Market)),
		strings.ToLower(strings.TrimSpace(l.Outcome)),
	}
	return strings.Join(parts, ":")
}

func (l Line) Validate() error {
	if l.FixtureExternalID <= 0 {
		return fmt.Errorf("odds fixture external id is required")
	}
	if strings.TrimSpace(l.Market) == "" {
		return fmt.Errorf("odds market is required")
	}
	if strings.TrimSpace(l.Outcome) == "" {
		return fmt.Errorf("odds outcome is required")
	}
	if l.Price <= 1.0 {
		return fmt.Errorf("odds price must be greater than 1.0")
	}

	return nil
}
