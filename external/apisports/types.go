package apisports

import "encoding/json"

// envelope is the provider's common response wrapper. The errors
// field is kept raw because its shape varies by failure mode.
type envelope struct {
	Get      string          `json:"get"`
	Errors   json.RawMessage `json:"errors"`
	Results  int             `json:"results"`
	Paging   paging          `json:"paging"`
	Response json.RawMessage `json:"response"`
}

type paging struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

type LeagueEntry struct {
	League struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
		Type string `json:"type"`
		Logo string `json:"logo"`
	} `json:"league"`
	Country struct {
		Name string `json:"name"`
		Code string `json:"code"`
	} `json:"country"`
	Seasons []SeasonEntry `json:"seasons"`
}

type SeasonEntry struct {
	Year    int    `json:"year"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Current bool   `json:"current"`
}

// CurrentSeason returns the season flagged current, falling back to
// the latest year.
func (e LeagueEntry) CurrentSeason() (SeasonEntry, bool) {
	var latest SeasonEntry
	found := false
	for _, season := range e.Seasons {
		if season.Current {
			return season, true
		}
		if !found || season.Year > latest.Year {
			latest = season
			found = true
		}
	}
	return latest, found
}

type TeamEntry struct {
	Team struct {
		ID      int64  `json:"id"`
		Name    string `json:"name"`
		Code    string `json:"code"`
		Country string `json:"country"`
		Founded int    `json:"founded"`
		Logo    string `json:"logo"`
	} `json:"team"`
	Venue struct {
		Name string `json:"name"`
		City string `json:"city"`
	} `json:"venue"`
}

type FixtureEntry struct {
	Fixture struct {
		ID     int64  `json:"id"`
		Date   string `json:"date"`
		Status struct {
			Short   string `json:"short"`
			Elapsed int    `json:"elapsed"`
		} `json:"status"`
		Venue struct {
			Name string `json:"name"`
		} `json:"venue"`
	} `json:"fixture"`
	League struct {
		ID     int64 `json:"id"`
		Season int   `json:"season"`
	} `json:"league"`
	Teams struct {
		Home FixtureTeam `json:"home"`
		Away FixtureTeam `json:"away"`
	} `json:"teams"`
	Goals struct {
		Home *int `json:"home"`
		Away *int `json:"away"`
	} `json:"goals"`
}

type FixtureTeam struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type OddsEntry struct {
	Fixture struct {
		ID int64 `json:"id"`
	} `json:"fixture"`
	Update     string           `json:"update"`
	Bookmakers []BookmakerEntry `json:"bookmakers"`
}

type BookmakerEntry struct {
	ID   int64      `json:"id"`
	Name string     `json:"name"`
	Bets []BetEntry `json:"bets"`
}

type BetEntry struct {
	ID     int64      `json:"id"`
	Name   string     `json:"name"`
	Values []BetValue `json:"values"`
}

type BetValue struct {
	Value string `json:"value"`
	Odd   string `json:"odd"`
}

type StandingsEntry struct {
	League struct {
		ID        int64           `json:"id"`
		Season    int             `json:"season"`
		Standings [][]StandingRow `json:"standings"`
	} `json:"league"`
}

type StandingRow struct {
	Rank int `json:"rank"`
	Team struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"team"`
	Points    int    `json:"points"`
	GoalsDiff int    `json:"goalsDiff"`
	Form      string `json:"form"`
	All       struct {
		Played int `json:"played"`
		Win    int `json:"win"`
		Draw   int `json:"draw"`
		Lose   int `json:"lose"`
		Goals  struct {
			For     int `json:"for"`
			Against int `json:"against"`
		} `json:"goals"`
	} `json:"all"`
}
