package app

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/prasetyowira/sportsync/external/apisports"
	"github.com/prasetyowira/sportsync/internal/config"
	"github.com/prasetyowira/sportsync/internal/domain/syncjob"
	"github.com/prasetyowira/sportsync/internal/infrastructure/repository/memory"
	"github.com/prasetyowira/sportsync/internal/infrastructure/repository/postgres"
	"github.com/prasetyowira/sportsync/internal/observability"
	"github.com/prasetyowira/sportsync/internal/platform/cache"
	idgen "github.com/prasetyowira/sportsync/internal/platform/id"
	"github.com/prasetyowira/sportsync/internal/platform/logging"
	"github.com/prasetyowira/sportsync/internal/platform/quota"
	"github.com/prasetyowira/sportsync/internal/platform/resilience"
	"github.com/prasetyowira/sportsync/internal/usecase"
)

// App owns the sync engine's object graph and its background loops.
type App struct {
	cfg    config.Config
	logger *logging.Logger

	db         *sqlx.DB
	jobs       syncjob.Repository
	tracker    *quota.Tracker
	metrics    *observability.Metrics
	jobSvc     *usecase.JobService
	dispatcher *usecase.Dispatcher
	scheduler  *usecase.Scheduler
	watchdog   *usecase.Watchdog

	metricsSrv *http.Server
	pprofSrv   *http.Server

	shutdownTracing func(context.Context) error
	stopProfiler    func() error
}

func New(ctx context.Context, cfg config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}

	shutdownTracing, err := observability.InitUptrace(cfg, logger)
	if err != nil {
		return nil, err
	}
	stopProfiler, err := observability.InitPyroscope(cfg, logger)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewMetrics()

	db, err := OpenDB(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var jobs syncjob.Repository
	if db != nil {
		jobs = postgres.NewJobRepository(db)
	} else {
		jobs = memory.NewJobRepository()
	}

	tracker := quota.NewTracker(quota.Config{
		RequestsPerMinute:    cfg.RequestsPerMinute,
		RequestsPerDay:       cfg.DailyRequestLimit,
		DelayBetweenRequests: cfg.DelayBetweenRequests,
	})

	client := apisports.NewClient(apisports.ClientConfig{
		BaseURL:    cfg.ProviderBaseURL,
		APIKey:     cfg.ProviderAPIKey,
		Timeout:    cfg.ProviderTimeout,
		MaxRetries: cfg.ProviderMaxRetries,
		Logger:     logger,
		Quota:      tracker,
		CircuitBreaker: resilience.BreakerConfig{
			Enabled:          cfg.ProviderCircuitEnabled,
			FailureThreshold: cfg.ProviderCircuitFailureCount,
			OpenTimeout:      cfg.ProviderCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.ProviderCircuitHalfOpenMaxReq,
		},
	})

	gate := usecase.NewCacheGate(client, cache.NewStore(), usecase.CacheTTLs{
		Leagues:      cfg.LeaguesCacheTTL,
		Fixtures:     cfg.FixturesCacheTTL,
		PreMatchOdds: cfg.PreMatchOddsTTL,
		LiveOdds:     cfg.LiveOddsTTL,
		Standings:    cfg.StandingsCacheTTL,
	}, metrics, cfg.CacheEnabled)

	ids := idgen.NewRandomGenerator()
	leagueRepo := memory.NewLeagueRepository(ids)
	teamRepo := memory.NewTeamRepository(ids)
	fixtureRepo := memory.NewFixtureRepository(ids)
	oddsRepo := memory.NewOddsRepository(ids)
	standingRepo := memory.NewStandingRepository(ids)

	syncSvc := usecase.NewSyncService(gate, leagueRepo, teamRepo, fixtureRepo, oddsRepo, standingRepo, logger)
	jobSvc := usecase.NewJobService(jobs, nil, logger)

	dispatcher, err := usecase.NewDispatcher(jobs, usecase.DispatcherConfig{
		Workers:          cfg.WorkerCount,
		RetrySuppression: cfg.RetrySuppression,
	}, tracker, metrics, logger)
	if err != nil {
		return nil, err
	}
	jobSvc.SetCancelSignaler(dispatcher)

	fullSvc := usecase.NewFullSyncService(jobSvc, dispatcher, logger)

	dispatcher.RegisterHandler(syncjob.TypeLeague, syncSvc.SyncLeagues)
	dispatcher.RegisterHandler(syncjob.TypeTeam, syncSvc.SyncTeams)
	dispatcher.RegisterHandler(syncjob.TypeFixture, syncSvc.SyncFixtures)
	dispatcher.RegisterHandler(syncjob.TypeOddsUpcoming, syncSvc.SyncUpcomingOdds)
	dispatcher.RegisterHandler(syncjob.TypeOddsFar, syncSvc.SyncFarOdds)
	dispatcher.RegisterHandler(syncjob.TypeOddsLive, syncSvc.SyncLiveOdds)
	dispatcher.RegisterHandler(syncjob.TypeStandings, syncSvc.SyncStandings)
	dispatcher.RegisterHandler(syncjob.TypeFullSync, fullSvc.Run)

	scheduler := usecase.NewScheduler(jobSvc, dispatcher, leagueRepo, scheduleConfig(cfg), logger)
	watchdog := usecase.NewWatchdog(jobs, dispatcher, cfg.WatchdogInterval, cfg.StaleThreshold, metrics, logger)

	return &App{
		cfg:             cfg,
		logger:          logger,
		db:              db,
		jobs:            jobs,
		tracker:         tracker,
		metrics:         metrics,
		jobSvc:          jobSvc,
		dispatcher:      dispatcher,
		scheduler:       scheduler,
		watchdog:        watchdog,
		shutdownTracing: shutdownTracing,
		stopProfiler:    stopProfiler,
	}, nil
}

// JobService exposes the job API for callers embedding the app.
func (a *App) JobService() *usecase.JobService {
	return a.jobSvc
}

// Run starts every background loop and blocks until ctx is cancelled,
// then shuts the graph down in reverse dependency order.
func (a *App) Run(ctx context.Context) error {
	var err error
	a.metricsSrv, err = observability.StartMetricsServer(a.cfg, a.metrics, a.logger)
	if err != nil {
		return err
	}
	a.pprofSrv, err = observability.StartPprofServer(a.cfg, a.logger)
	if err != nil {
		return err
	}

	a.dispatcher.Start(ctx)
	a.watchdog.Start(ctx)
	a.scheduler.Start(ctx)
	go a.retentionLoop(ctx)

	a.logger.Info("sync engine started",
		"workers", a.cfg.WorkerCount,
		"db_enabled", a.db != nil,
		"cache_enabled", a.cfg.CacheEnabled,
	)

	<-ctx.Done()
	return a.shutdown()
}

func (a *App) shutdown() error {
	a.logger.Info("sync engine stopping")

	a.dispatcher.Stop()

	if err := observability.StopServer(a.metricsSrv, a.logger, 5*time.Second); err != nil {
		a.logger.Error("stop metrics server", "error", err)
	}
	if err := observability.StopServer(a.pprofSrv, a.logger, 5*time.Second); err != nil {
		a.logger.Error("stop pprof server", "error", err)
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("close db", "error", err)
		}
	}

	if a.stopProfiler != nil {
		if err := a.stopProfiler(); err != nil {
			a.logger.Error("stop profiler", "error", err)
		}
	}
	if a.shutdownTracing != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.shutdownTracing(flushCtx); err != nil {
			a.logger.Error("flush traces", "error", err)
		}
	}

	a.logger.Info("sync engine stopped")
	return nil
}

// retentionLoop prunes terminal records past each type's retention cap
// on a fixed interval, catching records the per-transition prune
// missed across restarts.
func (a *App) retentionLoop(ctx context.Context) {
	if a.cfg.RetentionInterval <= 0 {
		return
	}

	ticker := time.NewTicker(a.cfg.RetentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.pruneTerminalJobs(ctx)
		}
	}
}

func (a *App) pruneTerminalJobs(ctx context.Context) {
	for _, jobType := range syncjob.AllTypes() {
		policy := syncjob.PolicyFor(jobType)
		if err := a.jobs.PruneTerminal(ctx, jobType, syncjob.StatusCompleted, policy.RemoveOnComplete); err != nil {
			a.logger.WarnContext(ctx, "prune completed jobs", "job_type", jobType, "error", err)
		}
		if err := a.jobs.PruneTerminal(ctx, jobType, syncjob.StatusFailed, policy.RemoveOnFail); err != nil {
			a.logger.WarnContext(ctx, "prune failed jobs", "job_type", jobType, "error", err)
		}
	}
}

func scheduleConfig(cfg config.Config) usecase.ScheduleConfig {
	return usecase.ScheduleConfig{
		Leagues:      resourceTimer(cfg.LeagueSchedule),
		Teams:        resourceTimer(cfg.TeamSchedule),
		Fixtures:     resourceTimer(cfg.FixtureSchedule),
		OddsUpcoming: resourceTimer(cfg.OddsUpcomingSchedule),
		OddsFar:      resourceTimer(cfg.OddsFarSchedule),
		OddsLive:     resourceTimer(cfg.OddsLiveSchedule),
		Standings:    resourceTimer(cfg.StandingsSchedule),

		FixtureLookback:  time.Duration(cfg.FixtureLookbackDays) * 24 * time.Hour,
		FixtureLookahead: time.Duration(cfg.FixtureLookaheadDays) * 24 * time.Hour,
		OddsHoursAhead:   cfg.OddsHoursAhead,
		OddsMaxDaysAhead: cfg.OddsMaxDaysAhead,
	}
}

func resourceTimer(schedule config.ResourceSchedule) usecase.ResourceTimer {
	return usecase.ResourceTimer{
		Enabled:  schedule.Enabled,
		Interval: schedule.Interval,
	}
}
