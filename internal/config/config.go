package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prasetyowira/sportsync/internal/platform/logging"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

// ResourceSchedule is the recurring-sync policy for one resource kind.
type ResourceSchedule struct {
	Enabled  bool
	Interval time.Duration
}

// Config stores runtime configuration for the sync service.
type Config struct {
	AppEnv         string
	ServiceName    string
	ServiceVersion string
	LogLevel       logging.Level

	DBURL                         string
	DBDisablePreparedBinaryResult bool

	ProviderBaseURL               string
	ProviderAPIKey                string
	ProviderTimeout               time.Duration
	ProviderMaxRetries            int
	ProviderCircuitEnabled        bool
	ProviderCircuitFailureCount   int
	ProviderCircuitOpenTimeout    time.Duration
	ProviderCircuitHalfOpenMaxReq int

	RequestsPerMinute    int
	DailyRequestLimit    int
	DelayBetweenRequests time.Duration

	CacheEnabled       bool
	LeaguesCacheTTL    time.Duration
	FixturesCacheTTL   time.Duration
	PreMatchOddsTTL    time.Duration
	LiveOddsTTL        time.Duration
	StandingsCacheTTL  time.Duration

	WorkerCount        int
	RetrySuppression   time.Duration
	WatchdogInterval   time.Duration
	StaleThreshold     time.Duration
	RetentionInterval  time.Duration

	LeagueSchedule       ResourceSchedule
	TeamSchedule         ResourceSchedule
	FixtureSchedule      ResourceSchedule
	OddsUpcomingSchedule ResourceSchedule
	OddsFarSchedule      ResourceSchedule
	OddsLiveSchedule     ResourceSchedule
	StandingsSchedule    ResourceSchedule

	FixtureLookbackDays  int
	FixtureLookaheadDays int
	OddsHoursAhead       int
	OddsMaxDaysAhead     int

	MetricsEnabled bool
	MetricsAddr    string
	PprofEnabled   bool
	PprofAddr      string

	UptraceEnabled bool
	UptraceDSN     string

	PyroscopeEnabled           bool
	PyroscopeServerAddress     string
	PyroscopeAppName           string
	PyroscopeAuthToken         string
	PyroscopeBasicAuthUser     string
	PyroscopeBasicAuthPassword string
	PyroscopeUploadRate        time.Duration
}

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:         appEnv,
		ServiceName:    getEnv("SERVICE_NAME", "sportsync"),
		ServiceVersion: getEnv("SERVICE_VERSION", "dev"),
		LogLevel:       parseLogLevel(getEnv("LOG_LEVEL", "info")),
		DBURL:          strings.TrimSpace(getEnv("DB_URL", "")),
	}
	if cfg.DBDisablePreparedBinaryResult, err = getEnvAsBool("DB_DISABLE_PREPARED_BINARY_RESULT", false); err != nil {
		return Config{}, err
	}

	cfg.ProviderBaseURL = strings.TrimSpace(getEnv("APISPORTS_BASE_URL", ""))
	cfg.ProviderAPIKey = strings.TrimSpace(getEnv("APISPORTS_KEY", ""))
	if cfg.ProviderTimeout, err = getEnvAsDuration("APISPORTS_TIMEOUT", 20*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ProviderMaxRetries, err = getEnvAsInt("APISPORTS_MAX_RETRIES", 2); err != nil {
		return Config{}, err
	}
	if cfg.ProviderCircuitEnabled, err = getEnvAsBool("APISPORTS_CIRCUIT_ENABLED", true); err != nil {
		return Config{}, err
	}
	if cfg.ProviderCircuitFailureCount, err = getEnvAsInt("APISPORTS_CIRCUIT_FAILURE_COUNT", 5); err != nil {
		return Config{}, err
	}
	if cfg.ProviderCircuitOpenTimeout, err = getEnvAsDuration("APISPORTS_CIRCUIT_OPEN_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ProviderCircuitHalfOpenMaxReq, err = getEnvAsInt("APISPORTS_CIRCUIT_HALF_OPEN_MAX_REQ", 2); err != nil {
		return Config{}, err
	}

	if cfg.RequestsPerMinute, err = getEnvAsInt("SYNC_REQUESTS_PER_MINUTE", 30); err != nil {
		return Config{}, err
	}
	if cfg.DailyRequestLimit, err = getEnvAsInt("SYNC_DAILY_REQUEST_LIMIT", 7500); err != nil {
		return Config{}, err
	}
	if cfg.DelayBetweenRequests, err = getEnvAsDuration("SYNC_DELAY_BETWEEN_REQUESTS", 200*time.Millisecond); err != nil {
		return Config{}, err
	}

	if cfg.CacheEnabled, err = getEnvAsBool("CACHE_ENABLED", true); err != nil {
		return Config{}, err
	}
	if cfg.LeaguesCacheTTL, err = getEnvAsDuration("CACHE_TTL_LEAGUES", time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.FixturesCacheTTL, err = getEnvAsDuration("CACHE_TTL_FIXTURES", 300*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.PreMatchOddsTTL, err = getEnvAsDuration("CACHE_TTL_PREMATCH_ODDS", 180*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.LiveOddsTTL, err = getEnvAsDuration("CACHE_TTL_LIVE_ODDS", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.StandingsCacheTTL, err = getEnvAsDuration("CACHE_TTL_STANDINGS", 600*time.Second); err != nil {
		return Config{}, err
	}

	if cfg.WorkerCount, err = getEnvAsInt("SYNC_WORKER_COUNT", 4); err != nil {
		return Config{}, err
	}
	if cfg.WorkerCount <= 0 {
		return Config{}, fmt.Errorf("SYNC_WORKER_COUNT must be > 0")
	}
	if cfg.RetrySuppression, err = getEnvAsDuration("SYNC_RETRY_SUPPRESSION", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.WatchdogInterval, err = getEnvAsDuration("WATCHDOG_INTERVAL", 2*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.StaleThreshold, err = getEnvAsDuration("WATCHDOG_STALE_THRESHOLD", 10*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.StaleThreshold <= 0 {
		return Config{}, fmt.Errorf("WATCHDOG_STALE_THRESHOLD must be > 0")
	}
	if cfg.RetentionInterval, err = getEnvAsDuration("RETENTION_INTERVAL", 15*time.Minute); err != nil {
		return Config{}, err
	}

	if cfg.LeagueSchedule, err = getSchedule("SYNC_LEAGUES", false, 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.TeamSchedule, err = getSchedule("SYNC_TEAMS", false, 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.FixtureSchedule, err = getSchedule("SYNC_FIXTURES", true, 30*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.OddsUpcomingSchedule, err = getSchedule("SYNC_ODDS_UPCOMING", true, 30*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.OddsFarSchedule, err = getSchedule("SYNC_ODDS_FAR", false, 6*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.OddsLiveSchedule, err = getSchedule("SYNC_ODDS_LIVE", true, time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.StandingsSchedule, err = getSchedule("SYNC_STANDINGS", false, 6*time.Hour); err != nil {
		return Config{}, err
	}

	if cfg.FixtureLookbackDays, err = getEnvAsInt("SYNC_FIXTURE_LOOKBACK_DAYS", 1); err != nil {
		return Config{}, err
	}
	if cfg.FixtureLookaheadDays, err = getEnvAsInt("SYNC_FIXTURE_LOOKAHEAD_DAYS", 7); err != nil {
		return Config{}, err
	}
	if cfg.OddsHoursAhead, err = getEnvAsInt("SYNC_ODDS_HOURS_AHEAD", 48); err != nil {
		return Config{}, err
	}
	if cfg.OddsMaxDaysAhead, err = getEnvAsInt("SYNC_ODDS_MAX_DAYS_AHEAD", 14); err != nil {
		return Config{}, err
	}

	if cfg.MetricsEnabled, err = getEnvAsBool("METRICS_ENABLED", true); err != nil {
		return Config{}, err
	}
	cfg.MetricsAddr = getEnv("METRICS_ADDR", ":9090")
	if cfg.PprofEnabled, err = getEnvAsBool("PPROF_ENABLED", false); err != nil {
		return Config{}, err
	}
	cfg.PprofAddr = getEnv("PPROF_ADDR", "localhost:6060")

	if cfg.UptraceEnabled, err = getEnvAsBool("UPTRACE_ENABLED", false); err != nil {
		return Config{}, err
	}
	cfg.UptraceDSN = strings.TrimSpace(getEnv("UPTRACE_DSN", ""))
	if cfg.UptraceEnabled && cfg.UptraceDSN == "" {
		return Config{}, fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}

	if cfg.PyroscopeEnabled, err = getEnvAsBool("PYROSCOPE_ENABLED", false); err != nil {
		return Config{}, err
	}
	cfg.PyroscopeServerAddress = strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", ""))
	if cfg.PyroscopeEnabled && cfg.PyroscopeServerAddress == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_SERVER_ADDRESS is required when PYROSCOPE_ENABLED=true")
	}
	cfg.PyroscopeAppName = getEnv("PYROSCOPE_APP_NAME", cfg.ServiceName)
	cfg.PyroscopeAuthToken = strings.TrimSpace(getEnv("PYROSCOPE_AUTH_TOKEN", ""))
	cfg.PyroscopeBasicAuthUser = strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_USER", ""))
	cfg.PyroscopeBasicAuthPassword = strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_PASSWORD", ""))
	if cfg.PyroscopeUploadRate, err = getEnvAsDuration("PYROSCOPE_UPLOAD_RATE", 15*time.Second); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func getSchedule(prefix string, enabledDefault bool, intervalDefault time.Duration) (ResourceSchedule, error) {
	enabled, err := getEnvAsBool(prefix+"_ENABLED", enabledDefault)
	if err != nil {
		return ResourceSchedule{}, err
	}
	interval, err := getEnvAsDuration(prefix+"_INTERVAL", intervalDefault)
	if err != nil {
		return ResourceSchedule{}, err
	}
	if interval <= 0 {
		return ResourceSchedule{}, fmt.Errorf("%s_INTERVAL must be > 0", prefix)
	}

	return ResourceSchedule{Enabled: enabled, Interval: interval}, nil
}

func parseLogLevel(v string) logging.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}

	return out, nil
}

func getEnvAsBool(key string, fallback bool) (bool, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}

	return out, nil
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}

	return out, nil
}
