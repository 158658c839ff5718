package league

import "fmt"

// League is a competition as reported by the upstream provider.
type League struct {
	ID          string
	ExternalID  int64
	Name        string
	Country     string
	CountryCode string
	LogoURL     string
	Season      int
	IsActive    bool
	IsCurrent   bool
}

func (l League) Validate() error {
	if l.ExternalID <= 0 {
		return fmt.Errorf("league external id is required")
	}
	if l.Name == "" {
		return fmt.Errorf("league name is required")
	}

	return nil
}
