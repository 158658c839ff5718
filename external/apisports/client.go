package apisports

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"

	"github.com/prasetyowira/sportsync/internal/platform/logging"
	"github.com/prasetyowira/sportsync/internal/platform/quota"
	"github.com/prasetyowira/sportsync/internal/platform/resilience"
)

const (
	defaultBaseURL = "https://v3.football.api-sports.io"
	apiKeyHeader   = "x-apisports-key"
	maxBodyBytes   = 6 << 20
)

// ErrUnavailable reports that the provider is being shielded by the
// circuit breaker.
var ErrUnavailable = crerr.New("sports data provider is temporarily unavailable")

var errTransient = crerr.New("provider transient failure")

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	MaxRetries     int
	Logger         *logging.Logger
	Quota          *quota.Tracker
	CircuitBreaker resilience.BreakerConfig
}

// Client talks to the upstream sports-data provider. Every call is
// metered by the quota tracker, deduplicated per URL while in flight,
// and guarded by a circuit breaker.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	maxRetries     int
	logger         *logging.Logger
	tracker        *quota.Tracker
	breaker        *resilience.Breaker
	circuitEnabled bool
	flight         resilience.Group
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 20 * time.Second
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	breakerCfg := resilience.NormalizeBreakerConfig(cfg.CircuitBreaker)

	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		apiKey:         strings.TrimSpace(cfg.APIKey),
		maxRetries:     maxInt(cfg.MaxRetries, 0),
		logger:         logger,
		tracker:        cfg.Quota,
		breaker:        resilience.NewBreaker(breakerCfg),
		circuitEnabled: breakerCfg.Enabled,
	}
}

// FetchLeagues returns every league the plan can see. When
// currentOnly is set the provider filters to seasons in progress.
func (c *Client) FetchLeagues(ctx context.Context, currentOnly bool) ([]LeagueEntry, error) {
	query := map[string]string{}
	if currentOnly {
		query["current"] = "true"
	}

	var entries []LeagueEntry
	if err := c.doJSON(ctx, "/leagues", query, &entries); err != nil {
		return nil, fmt.Errorf("fetch leagues: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].League.ID < entries[j].League.ID })
	return entries, nil
}

func (c *Client) FetchTeams(ctx context.Context, leagueID int64, season int) ([]TeamEntry, error) {
	if leagueID <= 0 {
		return nil, fmt.Errorf("league id must be greater than zero")
	}

	query := map[string]string{
		"league": strconv.FormatInt(leagueID, 10),
	}
	if season > 0 {
		query["season"] = strconv.Itoa(season)
	}

	var entries []TeamEntry
	if err := c.doJSON(ctx, "/teams", query, &entries); err != nil {
		return nil, fmt.Errorf("fetch teams league_id=%d: %w", leagueID, err)
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Team.ID < entries[j].Team.ID })
	return entries, nil
}

// FetchFixtures returns fixtures inside a date window, optionally
// scoped to one league.
func (c *Client) FetchFixtures(ctx context.Context, from, to time.Time, leagueID int64) ([]FixtureEntry, error) {
	if from.IsZero() || to.IsZero() {
		return nil, fmt.Errorf("fixture date window is required")
	}

	query := map[string]string{
		"from": from.UTC().Format("2006-01-02"),
		"to":   to.UTC().Format("2006-01-02"),
	}
	if leagueID > 0 {
		query["league"] = strconv.FormatInt(leagueID, 10)
	}

	var entries []FixtureEntry
	if err := c.doJSON(ctx, "/fixtures", query, &entries); err != nil {
		return nil, fmt.Errorf("fetch fixtures %s..%s: %w", query["from"], query["to"], err)
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Fixture.ID < entries[j].Fixture.ID })
	return entries, nil
}

func (c *Client) FetchOdds(ctx context.Context, fixtureID int64) ([]OddsEntry, error) {
	if fixtureID <= 0 {
		return nil, fmt.Errorf("fixture id must be greater than zero")
	}

	query := map[string]string{
		"fixture": strconv.FormatInt(fixtureID, 10),
	}

	var entries []OddsEntry
	if err := c.doJSON(ctx, "/odds", query, &entries); err != nil {
		return nil, fmt.Errorf("fetch odds fixture_id=%d: %w", fixtureID, err)
	}
	return entries, nil
}

func (c *Client) FetchLiveOdds(ctx context.Context, fixtureID int64) ([]OddsEntry, error) {
	if fixtureID <= 0 {
		return nil, fmt.Errorf("fixture id must be greater than zero")
	}

	query := map[string]string{
		"fixture": strconv.FormatInt(fixtureID, 10),
	}

	var entries []OddsEntry
	if err := c.doJSON(ctx, "/odds/live", query, &entries); err != nil {
		return nil, fmt.Errorf("fetch live odds fixture_id=%d: %w", fixtureID, err)
	}
	return entries, nil
}

func (c *Client) FetchStandings(ctx context.Context, leagueID int64, season int) ([]StandingsEntry, error) {
	if leagueID <= 0 {
		return nil, fmt.Errorf("league id must be greater than zero")
	}

	query := map[string]string{
		"league": strconv.FormatInt(leagueID, 10),
	}
	if season > 0 {
		query["season"] = strconv.Itoa(season)
	}

	var entries []StandingsEntry
	if err := c.doJSON(ctx, "/standings", query, &entries); err != nil {
		return nil, fmt.Errorf("fetch standings league_id=%d: %w", leagueID, err)
	}
	return entries, nil
}

func (c *Client) doJSON(ctx context.Context, path string, query map[string]string, target any) error {
	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "provider circuit breaker rejected request", "state", c.breaker.State())
			return ErrUnavailable
		}
	}

	values := url.Values{}
	for key, value := range query {
		values.Set(key, value)
	}

	fullURL := c.baseURL + path
	if encoded := values.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	out, err, _ := c.flight.Do(fullURL, func() (any, error) {
		if err := c.acquireQuota(ctx); err != nil {
			return nil, err
		}

		raw, reqErr := c.executeRequest(ctx, fullURL)
		if c.circuitEnabled {
			if reqErr != nil && stderrors.Is(reqErr, errTransient) {
				c.breaker.RecordFailure()
			} else {
				c.breaker.RecordSuccess()
			}
		}
		return raw, reqErr
	})
	if err != nil {
		return err
	}

	raw, ok := out.([]byte)
	if !ok {
		return fmt.Errorf("unexpected response payload type %T", out)
	}

	var env envelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode provider envelope: %w", err)
	}

	apiErr, err := Classify(env.Errors)
	if err != nil {
		return err
	}
	if apiErr != nil {
		return apiErr
	}

	if target == nil || len(env.Response) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(env.Response, target); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}

	return nil
}

// acquireQuota blocks until the tracker admits the call. Exhaustion
// and wait timeouts surface as locally minted rate-limit errors so
// downstream handling matches provider-reported limits.
func (c *Client) acquireQuota(ctx context.Context) error {
	if c.tracker == nil {
		return nil
	}

	err := c.tracker.Acquire(ctx)
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, quota.ErrDailyBudgetExhausted):
		return &APIError{
			Type:    ErrorTypeRateLimit,
			Code:    "REQUEST_LIMIT",
			Message: "daily request budget exhausted",
		}
	case stderrors.Is(err, quota.ErrWaitDeadline), stderrors.Is(err, context.DeadlineExceeded):
		return &APIError{
			Type:    ErrorTypeRateLimit,
			Code:    "RATE_LIMIT_EXCEEDED",
			Message: "request rate capacity not available before deadline",
		}
	default:
		return err
	}
}

func (c *Client) executeRequest(ctx context.Context, fullURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("accept", "application/json")
		req.Header.Set(apiKeyHeader, c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: send request: %s", errTransient, sanitizeSensitiveText(err.Error(), c.apiKey))
		} else {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			_ = resp.Body.Close()
			if readErr != nil {
				lastErr = fmt.Errorf("%w: read response body: %v", errTransient, readErr)
			} else if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return raw, nil
			} else if isRetryableStatus(resp.StatusCode) {
				lastErr = fmt.Errorf("%w: provider status=%d body=%s", errTransient, resp.StatusCode, abbreviateBody(raw))
			} else {
				return nil, fmt.Errorf("provider status=%d body=%s", resp.StatusCode, abbreviateBody(raw))
			}
		}

		if attempt == c.maxRetries {
			break
		}
		backoff := time.Duration(attempt+1) * time.Second
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("provider request failed")
	}
	c.logger.WarnContext(ctx, "provider request failed", "url", fullURL, "error", lastErr)
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func sanitizeSensitiveText(value, secret string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	if secret != "" {
		value = strings.ReplaceAll(value, secret, "REDACTED")
	}
	return value
}

func abbreviateBody(raw []byte) string {
	const limit = 256
	body := strings.TrimSpace(string(raw))
	if len(body) > limit {
		return body[:limit] + "..."
	}
	return body
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
