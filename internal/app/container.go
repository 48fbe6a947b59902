// Package app assembles the arena components from configuration. Both
// binaries build one Container and differ only in what they run.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/alem-hub/arena-engine/config"
	"github.com/alem-hub/arena-engine/internal/application/command"
	"github.com/alem-hub/arena-engine/internal/application/eventhandler"
	"github.com/alem-hub/arena-engine/internal/application/jobs"
	"github.com/alem-hub/arena-engine/internal/application/query"
	"github.com/alem-hub/arena-engine/internal/domain/arena"
	"github.com/alem-hub/arena-engine/internal/domain/leaderboard"
	"github.com/alem-hub/arena-engine/internal/domain/season"
	"github.com/alem-hub/arena-engine/internal/infrastructure/messaging"
	"github.com/alem-hub/arena-engine/internal/infrastructure/metrics"
	"github.com/alem-hub/arena-engine/internal/infrastructure/persistence/memory"
	mongocatalog "github.com/alem-hub/arena-engine/internal/infrastructure/persistence/mongo"
	"github.com/alem-hub/arena-engine/internal/infrastructure/persistence/postgres"
	rediscache "github.com/alem-hub/arena-engine/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/arena-engine/internal/infrastructure/queue"
	"github.com/alem-hub/arena-engine/internal/infrastructure/scheduler"
	"github.com/alem-hub/arena-engine/internal/infrastructure/service"
	"github.com/alem-hub/arena-engine/internal/interface/http/handlers"
	"github.com/alem-hub/arena-engine/pkg/logger"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONTAINER
// ══════════════════════════════════════════════════════════════════════════════

// BoostStore grants and reads XP boosts.
type BoostStore interface {
	arena.BoostProvider
	eventhandler.BoostGranter
}

// Container holds every wired component.
type Container struct {
	Config  *config.Config
	Logger  *logger.Logger
	Metrics *metrics.Metrics
	Clock   timeutil.Clock

	// ─────────────────────────────────────────────────────────────────────────
	// Stores
	// ─────────────────────────────────────────────────────────────────────────
	Profiles  arena.ProfileStore
	Sessions  arena.SessionStore
	Seasons   season.Repository
	Locations arena.LocationDirectory
	Catalog   arena.ChallengeCatalog
	Boosts    BoostStore
	Limiter   command.RateLimiter
	Cache     leaderboard.Cache
	Queue     queue.Queue
	Notifier  eventhandler.AchievementNotifier

	// Redis is nil in memory mode.
	Redis *rediscache.Cache

	Health *handlers.CompositeHealthChecker

	// ─────────────────────────────────────────────────────────────────────────
	// Application
	// ─────────────────────────────────────────────────────────────────────────
	Board    *service.LeaderboardService
	Bus      *messaging.InMemoryEventBus
	Producer *queue.Producer

	SubmitSession  *command.SubmitSessionHandler
	PropagateScore *command.PropagateScoreHandler
	WeeklyReset    *command.WeeklyResetHandler
	Rebuild        *command.RebuildLeaderboardHandler
	ShadowBan      *command.SetShadowBanHandler
	GetRanking     *query.GetRankingHandler
	GetStatus      *query.GetArenaStatusHandler

	closers []func()
}

// Options override process defaults, used by tests.
type Options struct {
	Clock   timeutil.Clock
	Metrics *metrics.Metrics
	Logger  *logger.Logger
}

// New connects the configured backends and wires the application layer.
// On error every resource opened so far is closed.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	c := &Container{
		Config:  cfg,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
		Clock:   opts.Clock,
		Health:  handlers.NewCompositeHealthChecker(cfg.App.Version),
	}
	if c.Logger == nil {
		c.Logger = NewLogger(cfg.Observability)
	}
	if c.Metrics == nil {
		c.Metrics = metrics.New()
	}
	if c.Clock == nil {
		c.Clock = timeutil.SystemClock{}
	}

	if err := c.open(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) open(ctx context.Context) error {
	if c.Config.Storage == config.StoragePostgres {
		if err := c.openDurable(ctx); err != nil {
			return err
		}
	} else {
		c.openMemory()
	}

	if c.Config.Mongo.URI != "" {
		if err := c.openCatalog(ctx); err != nil {
			return err
		}
	}
	return c.wire()
}

// Close releases connections in reverse order of opening.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func (c *Container) onClose(fn func()) {
	c.closers = append(c.closers, fn)
}

// ══════════════════════════════════════════════════════════════════════════════
// BACKENDS
// ══════════════════════════════════════════════════════════════════════════════

func (c *Container) openMemory() {
	c.Logger.Warn("using in-memory stores; state is lost on restart")

	c.Profiles = memory.NewProfileStore(c.Clock)
	c.Sessions = memory.NewSessionStore()
	c.Seasons = memory.NewSeasonRepository()
	c.Locations = memory.NewLocationDirectory()
	c.Boosts = memory.NewBoostStore(c.Clock)
	c.Limiter = memory.NewRateLimiter(c.Clock)
	c.Cache = memory.NewLeaderboardCache()
	c.Notifier = service.NewLogNotifier(c.Logger)

	q := queue.NewMemoryQueue()
	c.Queue = q
	c.onClose(q.Close)
}

func (c *Container) openDurable(ctx context.Context) error {
	cfg := c.Config

	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.Postgres.URL
	pgCfg.MaxConns = cfg.Postgres.MaxConns
	pgCfg.MinConns = cfg.Postgres.MinConns
	pgCfg.MaxConnLifetime = cfg.Postgres.MaxConnLifetime
	pgCfg.MaxConnIdleTime = cfg.Postgres.MaxConnIdleTime
	pgCfg.ConnectTimeout = cfg.Postgres.ConnectTimeout
	pgCfg.QueryTimeout = cfg.Postgres.QueryTimeout

	c.Logger.Info("connecting to postgres...")
	conn, err := postgres.NewConnection(ctx, pgCfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	c.onClose(conn.Close)
	c.Health.AddCheck("postgres", handlers.PingCheck(conn))

	if cfg.Postgres.Migrate {
		if err := postgres.Migrate(ctx, conn); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		c.Logger.Info("database schema is up to date")
	}

	redisCfg := rediscache.DefaultConfig()
	redisCfg.Host = cfg.Redis.Host
	redisCfg.Port = cfg.Redis.Port
	redisCfg.Password = cfg.Redis.Password
	redisCfg.DB = cfg.Redis.DB
	redisCfg.PoolSize = cfg.Redis.PoolSize
	redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
	redisCfg.DialTimeout = cfg.Redis.DialTimeout
	redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
	redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

	c.Logger.Info("connecting to redis...")
	cache, err := rediscache.NewCache(redisCfg)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	c.onClose(func() { _ = cache.Close() })
	c.Health.AddDegradableCheck("redis", handlers.PingCheck(cache))
	c.Redis = cache

	c.Profiles = postgres.NewProfileRepository(conn)
	c.Sessions = postgres.NewSessionRepository(conn)
	c.Seasons = postgres.NewSeasonRepository(conn)
	c.Locations = postgres.NewLocationRepository(conn)
	c.Boosts = rediscache.NewBoostStore(cache)
	c.Limiter = rediscache.NewRateLimiter(cache,
		rediscache.WithRateLimitRecorder(c.Metrics),
		rediscache.WithRateLimitLogger(c.Logger),
		rediscache.WithRateLimitClock(c.Clock),
	)
	c.Cache = rediscache.NewLeaderboardCache(cache)
	c.Queue = queue.NewRedisQueue(cache,
		queue.WithConsumer(cfg.ConsumerID()),
		queue.WithLease(cfg.Queue.Lease),
	)
	c.Notifier = rediscache.NewNotificationSink(cache)
	return nil
}

func (c *Container) openCatalog(ctx context.Context) error {
	mcfg := mongocatalog.Config{
		URI:            c.Config.Mongo.URI,
		Database:       c.Config.Mongo.Database,
		ConnectTimeout: c.Config.Mongo.ConnectTimeout,
		QueryTimeout:   c.Config.Mongo.QueryTimeout,
	}
	c.Logger.Info("connecting to mongo challenge catalog...")
	client, err := mongocatalog.Connect(ctx, mcfg)
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	c.onClose(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(ctx)
	})
	c.Health.AddDegradableCheck("mongo", func(ctx context.Context) error { return client.Ping(ctx, nil) })
	c.Catalog = mongocatalog.NewChallengeCatalogFromClient(client, mcfg)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION WIRING
// ══════════════════════════════════════════════════════════════════════════════

func (c *Container) wire() error {
	cfg := c.Config
	loc := cfg.App.Location()

	c.Board = service.NewLeaderboardService(service.LeaderboardServiceConfig{
		Cache:        c.Cache,
		Profiles:     c.Profiles,
		Recorder:     c.Metrics,
		Logger:       c.Logger,
		Clock:        c.Clock,
		WeekLocation: loc,
	})

	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = c.Logger
	busCfg.Recorder = c.Metrics
	c.Bus = messaging.NewInMemoryEventBus(busCfg)
	c.Bus.Use(messaging.LoggingMiddleware(c.Logger))
	c.onClose(func() { _ = c.Bus.Close() })

	c.Producer = queue.NewProducer(c.Queue, c.Clock)

	guard := command.NewAntiCheatGuard(c.Profiles, c.Boosts, command.GuardConfig{
		MinSecondsPerQuestion: cfg.AntiCheat.MinSecondsPerQuestion,
		MaxXPPerQuestion:      cfg.AntiCheat.MaxXPPerQuestion,
		LockoutThreshold:      cfg.AntiCheat.LockoutThreshold,
		LockoutDuration:       cfg.AntiCheat.LockoutDuration,
		Recorder:              c.Metrics,
		Logger:                c.Logger,
		Clock:                 c.Clock,
	})

	c.SubmitSession = command.NewSubmitSessionHandler(
		c.Profiles, c.Sessions, c.Catalog, c.Locations, c.Limiter, guard, c.Bus,
		command.SubmitSessionConfig{
			SubmitLimit:  cfg.RateLimit.SubmitLimit,
			SubmitWindow: cfg.RateLimit.SubmitWindow,
			Recorder:     c.Metrics,
			Logger:       c.Logger,
			Clock:        c.Clock,
		},
	)
	c.PropagateScore = command.NewPropagateScoreHandler(c.Profiles, c.Board, command.PropagateScoreConfig{Logger: c.Logger})
	c.WeeklyReset = command.NewWeeklyResetHandler(c.Cache, c.Profiles, c.Seasons, c.Bus, command.WeeklyResetConfig{
		BandShare:    cfg.Season.BandShare,
		SeasonLength: cfg.Season.Length,
		WeekLocation: loc,
		Logger:       c.Logger,
		Clock:        c.Clock,
	})
	c.Rebuild = command.NewRebuildLeaderboardHandler(c.Cache, c.Profiles, command.RebuildLeaderboardConfig{
		BatchSize:    cfg.Leaderboard.RebuildBatch,
		WeekLocation: loc,
		Logger:       c.Logger,
		Clock:        c.Clock,
	})
	c.ShadowBan = command.NewSetShadowBanHandler(c.Profiles, c.Board, c.Logger)
	c.GetRanking = query.NewGetRankingHandler(c.Board)
	c.GetStatus = query.NewGetArenaStatusHandler(c.Profiles, c.Board, c.Clock)

	subscribers := eventhandler.Handlers{
		GameCompleted:       eventhandler.NewOnGameCompletedHandler(c.Producer, c.Logger),
		ItemPurchased:       eventhandler.NewOnItemPurchasedHandler(c.Boosts, c.Logger),
		UserShadowBanned:    eventhandler.NewOnUserShadowBannedHandler(c.ShadowBan),
		AchievementUnlocked: eventhandler.NewOnAchievementUnlockedHandler(c.Notifier),
	}
	if err := subscribers.Register(c.Bus); err != nil {
		return fmt.Errorf("register event handlers: %w", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RUNNABLES
// ══════════════════════════════════════════════════════════════════════════════

// NewWorker returns a job worker with every arena job registered.
func (c *Container) NewWorker() *queue.Worker {
	qc := c.Config.Queue
	w := queue.NewWorker(c.Queue, queue.WorkerConfig{
		Concurrency:       qc.Concurrency,
		PollTimeout:       qc.PollTimeout,
		HeartbeatInterval: qc.Lease / 3,
		BaseBackoff:       qc.BaseBackoff,
		MaxBackoff:        qc.MaxBackoff,
		HandlerTimeout:    qc.HandlerTimeout,
		Logger:            c.Logger,
		Recorder:          c.Metrics,
		Clock:             c.Clock,
	})

	runner := jobs.NewRunner(c.PropagateScore, c.WeeklyReset, c.Rebuild)
	w.Register(jobs.NameProcessGameResult, queue.HandlerFunc(func(ctx context.Context, j *queue.Job) error {
		return runner.ProcessGameResult(ctx, j.Payload)
	}))
	w.Register(jobs.NameWeeklyReset, queue.HandlerFunc(func(ctx context.Context, j *queue.Job) error {
		return runner.WeeklyReset(ctx, j.Payload)
	}))
	w.Register(jobs.NameRebuildLeaderboard, queue.HandlerFunc(func(ctx context.Context, j *queue.Job) error {
		return runner.RebuildLeaderboard(ctx, j.Payload)
	}))
	return w
}

// RequestRebuild enqueues a leaderboard rebuild when LEADERBOARD_REBUILD_ON_START
// is set. Worker replicas starting in the same hour enqueue one job.
func (c *Container) RequestRebuild(ctx context.Context) error {
	if !c.Config.Leaderboard.RebuildOnStart {
		return nil
	}
	return scheduler.NewRebuildTrigger(c.Producer, "startup", c.Clock, c.Logger).Run(ctx)
}

// OpsHandler serves the worker's operational listener: Prometheus metrics,
// health and the dead letter admin routes.
func (c *Container) OpsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if !c.Health.Check(r.Context()).Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	if insp, ok := c.Queue.(queue.Inspector); ok {
		mux.Handle(handlers.QueueAdminPrefix+"/", handlers.NewQueueAdmin(insp, c.Logger))
	}
	return mux
}

// NewScheduler returns the cron scheduler that enqueues weekly resets and
// periodic leaderboard rebuilds.
func (c *Container) NewScheduler() (*scheduler.CronScheduler, error) {
	loc := c.Config.App.Location()
	cs := scheduler.NewCronScheduler(
		scheduler.WithLocation(loc),
		scheduler.WithCronLogger(c.Logger),
		scheduler.WithCronClock(c.Clock),
	)
	trigger := scheduler.NewWeeklyResetTrigger(c.Producer, loc, c.Clock, c.Logger)
	if err := cs.AddJob(c.Config.Season.ResetCron, trigger); err != nil {
		return nil, fmt.Errorf("schedule weekly reset: %w", err)
	}
	if expr := c.Config.Leaderboard.RebuildCron; expr != "" {
		rebuild := scheduler.NewRebuildTrigger(c.Producer, "cron", c.Clock, c.Logger)
		if err := cs.AddJob(expr, rebuild); err != nil {
			return nil, fmt.Errorf("schedule leaderboard rebuild: %w", err)
		}
	}
	return cs, nil
}

// NewBridge returns the Redis event bridge, or nil in memory mode.
func (c *Container) NewBridge() (*messaging.RedisBridge, error) {
	if c.Redis == nil {
		return nil, nil
	}
	return messaging.NewRedisBridge(messaging.RedisBridgeConfig{
		Cache:  c.Redis,
		Local:  c.Bus,
		Source: c.Config.Hostname(),
		Logger: c.Logger,
	})
}

// NewLogger builds the process logger from observability settings.
func NewLogger(cfg config.ObservabilityConfig) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Output = os.Stdout
	opts.Level = logger.ParseLevel(cfg.LogLevel)
	opts.Console = cfg.LogFormat == "console"
	return logger.New(opts)
}
