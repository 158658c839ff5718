package standing

import "fmt"

// Row is one team's position in a league table for a season.
type Row struct {
	ID               string
	LeagueExternalID int64
	Season           int
	TeamExternalID   int64
	TeamName         string
	Rank             int
	Points           int
	Played           int
	Won              int
	Drawn            int
	Lost             int
	GoalsFor         int
	GoalsAgainst     int
	Form             string
}

func (r Row) Validate() error {
	if r.LeagueExternalID <= 0 {
		return fmt.Errorf("standing league external id is required")
	}
	if r.TeamExternalID <= 0 {
		return fmt.Errorf("standing team external id is required")
	}
	if r.Rank <= 0 {
		return fmt.Errorf("standing rank is required")
	}

	return nil
}
