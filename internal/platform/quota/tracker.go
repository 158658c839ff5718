package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var ErrDailyBudgetExhausted = errors.New("daily request budget exhausted")

// ErrWaitDeadline reports that limiter capacity cannot free up before
// the context deadline. The limiter returns a plain error for this
// case rather than context.DeadlineExceeded, so Acquire wraps it in a
// sentinel callers can classify.
var ErrWaitDeadline = errors.New("quota wait would exceed deadline")

type Config struct {
	// RequestsPerMinute caps the steady upstream call rate. Zero
	// disables the per-minute cap.
	RequestsPerMinute int
	// RequestsPerDay caps upstream calls per UTC day. Zero disables
	// the daily budget.
	RequestsPerDay int
	// DelayBetweenRequests is the spacing enforced between
	// consecutive upstream calls even while quota remains.
	DelayBetweenRequests time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute:    30,
		RequestsPerDay:       7500,
		DelayBetweenRequests: 200 * time.Millisecond,
	}
}

// Tracker meters upstream provider calls. A per-minute token bucket
// and a fixed inter-request spacing smooth the call rate, and a
// UTC-day counter enforces the plan's daily budget.
type Tracker struct {
	minute  *rate.Limiter
	spacing *rate.Limiter

	mu      sync.Mutex
	perDay  int
	usedDay int
	day     time.Time
	now     func() time.Time
}

func NewTracker(cfg Config) *Tracker {
	minuteLimit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		minuteLimit = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	}

	spacingLimit := rate.Inf
	if cfg.DelayBetweenRequests > 0 {
		spacingLimit = rate.Every(cfg.DelayBetweenRequests)
	}

	return &Tracker{
		minute:  rate.NewLimiter(minuteLimit, maxInt(cfg.RequestsPerMinute/6, 1)),
		spacing: rate.NewLimiter(spacingLimit, 1),
		perDay:  cfg.RequestsPerDay,
		now:     time.Now,
	}
}

// Acquire reserves one upstream call. It blocks until both limiters
// admit the call or ctx is done, and fails fast with
// ErrDailyBudgetExhausted once the UTC-day budget is spent.
func (t *Tracker) Acquire(ctx context.Context) error {
	if t == nil {
		return nil
	}

	if err := t.reserveDaily(); err != nil {
		return err
	}

	if err := t.minute.Wait(ctx); err != nil {
		t.releaseDaily()
		return waitErr(ctx, err)
	}
	if err := t.spacing.Wait(ctx); err != nil {
		t.releaseDaily()
		return waitErr(ctx, err)
	}

	return nil
}

func waitErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	return fmt.Errorf("%w: %v", ErrWaitDeadline, err)
}

// Used reports calls consumed in the current UTC day.
func (t *Tracker) Used() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollDayLocked()
	return t.usedDay
}

// Remaining reports the calls left in the current UTC day, or -1 when
// no daily budget is configured.
func (t *Tracker) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollDayLocked()
	if t.perDay <= 0 {
		return -1
	}

	remaining := t.perDay - t.usedDay
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

func (t *Tracker) reserveDaily() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollDayLocked()
	if t.perDay > 0 && t.usedDay >= t.perDay {
		return ErrDailyBudgetExhausted
	}

	t.usedDay++
	return nil
}

func (t *Tracker) releaseDaily() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.usedDay > 0 {
		t.usedDay--
	}
}

func (t *Tracker) rollDayLocked() {
	day := t.now().UTC().Truncate(24 * time.Hour)
	if !day.Equal(t.day) {
		t.day = day
		t.usedDay = 0
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
