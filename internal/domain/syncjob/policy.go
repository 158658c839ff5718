package syncjob

import "time"

type BackoffKind string

const (
	BackoffNone        BackoffKind = "none"
	BackoffFixed       BackoffKind = "fixed"
	BackoffExponential BackoffKind = "exponential"
)

// Policy is the static per-type dispatch policy consulted once at
// enqueue time.
type Policy struct {
	Attempts         int
	Backoff          BackoffKind
	Delay            time.Duration
	Priority         Priority
	RemoveOnComplete int
	RemoveOnFail     int
}

var policies = map[Type]Policy{
	TypeLeague: {
		Attempts:         3,
		Backoff:          BackoffExponential,
		Delay:            5 * time.Second,
		Priority:         PriorityNormal,
		RemoveOnComplete: 100,
		RemoveOnFail:     50,
	},
	TypeTeam: {
		Attempts:         3,
		Backoff:          BackoffExponential,
		Delay:            5 * time.Second,
		Priority:         PriorityNormal,
		RemoveOnComplete: 100,
		RemoveOnFail:     50,
	},
	TypeFixture: {
		Attempts:         3,
		Backoff:          BackoffExponential,
		Delay:            10 * time.Second,
		Priority:         PriorityNormal,
		RemoveOnComplete: 100,
		RemoveOnFail:     50,
	},
	TypeOddsUpcoming: {
		Attempts:         2,
		Backoff:          BackoffFixed,
		Delay:            30 * time.Second,
		Priority:         PriorityNormal,
		RemoveOnComplete: 50,
		RemoveOnFail:     30,
	},
	TypeOddsFar: {
		Attempts:         2,
		Backoff:          BackoffFixed,
		Delay:            30 * time.Second,
		Priority:         PriorityNormal,
		RemoveOnComplete: 50,
		RemoveOnFail:     30,
	},
	TypeOddsLive: {
		Attempts:         2,
		Backoff:          BackoffFixed,
		Delay:            10 * time.Second,
		Priority:         PriorityCritical,
		RemoveOnComplete: 20,
		RemoveOnFail:     20,
	},
	TypeStandings: {
		Attempts:         3,
		Backoff:          BackoffExponential,
		Delay:            5 * time.Second,
		Priority:         PriorityNormal,
		RemoveOnComplete: 50,
		RemoveOnFail:     30,
	},
	TypeFullSync: {
		Attempts:         1,
		Backoff:          BackoffNone,
		Priority:         PriorityNormal,
		RemoveOnComplete: 10,
		RemoveOnFail:     10,
	},
}

// PolicyFor returns the dispatch policy for a job type. Unknown types
// get a conservative single-attempt policy.
func PolicyFor(jobType Type) Policy {
	if p, ok := policies[jobType]; ok {
		return p
	}
	return Policy{
		Attempts:         1,
		Backoff:          BackoffNone,
		Priority:         PriorityNormal,
		RemoveOnComplete: 10,
		RemoveOnFail:     10,
	}
}

// NextDelay returns the wait before delivery attempt number attempt,
// where the first retry is attempt 2.
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt <= 1 || p.Backoff == BackoffNone || p.Delay <= 0 {
		return 0
	}

	switch p.Backoff {
	case BackoffFixed:
		return p.Delay
	case BackoffExponential:
		delay := p.Delay
		for i := 2; i < attempt; i++ {
			delay *= 2
			if delay > 10*time.Minute {
				return 10 * time.Minute
			}
		}
		return delay
	default:
		return 0
	}
}
