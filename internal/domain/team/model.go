package team

import "fmt"

// Team is a club as reported by the upstream provider.
type Team struct {
	ID               string
	ExternalID       int64
	LeagueExternalID int64
	Name             string
	Short            string
	Country          string
	LogoURL          string
	Founded          int
}

func (t Team) Validate() error {
	if t.ExternalID <= 0 {
		return fmt.Errorf("team external id is required")
	}
	if t.Name == "" {
		return fmt.Errorf("team name is required")
	}

	return nil
}
