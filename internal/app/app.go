// Package app wires the configured components together once at startup.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/shelfsync/internal/cache"
	"github.com/parsascontentcorner/shelfsync/internal/config"
	"github.com/parsascontentcorner/shelfsync/internal/database"
	grpcserver "github.com/parsascontentcorner/shelfsync/internal/grpc"
	httpserver "github.com/parsascontentcorner/shelfsync/internal/http"
	"github.com/parsascontentcorner/shelfsync/internal/imagecache"
	"github.com/parsascontentcorner/shelfsync/internal/models"
	"github.com/parsascontentcorner/shelfsync/internal/sources/bgg"
	"github.com/parsascontentcorner/shelfsync/internal/sources/discogs"
	"github.com/parsascontentcorner/shelfsync/internal/sources/hardcover"
	"github.com/parsascontentcorner/shelfsync/internal/sources/itunes"
	"github.com/parsascontentcorner/shelfsync/internal/store"
	"github.com/parsascontentcorner/shelfsync/internal/store/memstore"
	"github.com/parsascontentcorner/shelfsync/internal/syncer"
	"github.com/parsascontentcorner/shelfsync/pkg/logger"
)

// DriverMemory selects the in-memory store
const DriverMemory = "memory"

type options struct {
	baseURLs    map[models.Service]string
	itunesURL   string
	bggQueued   time.Duration
	retryPause  time.Duration
	imageHTTP   *http.Client
	skipMigrate bool
	existingDB  *database.DB
}

// Option customizes New
type Option func(*options)

// WithSourceURL points a source fetcher at baseURL
func WithSourceURL(service models.Service, baseURL string) Option {
	return func(o *options) { o.baseURLs[service] = baseURL }
}

// WithITunesURL points the artwork lookup at baseURL
func WithITunesURL(baseURL string) Option {
	return func(o *options) { o.itunesURL = baseURL }
}

// WithBGGQueuedDelay overrides the wait between queued collection polls
func WithBGGQueuedDelay(d time.Duration) Option {
	return func(o *options) { o.bggQueued = d }
}

// WithRetryInterval overrides the first retry pause of failed upserts
func WithRetryInterval(d time.Duration) Option {
	return func(o *options) { o.retryPause = d }
}

// WithImageClient sets the HTTP client used to download images
func WithImageClient(c *http.Client) Option {
	return func(o *options) { o.imageHTTP = c }
}

// WithDB reuses an open, migrated connection instead of dialing one
func WithDB(db *database.DB) Option {
	return func(o *options) {
		o.existingDB = db
		o.skipMigrate = true
	}
}

// App holds every long-lived component
type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB     *database.DB
	Cache  *cache.Cache
	Images *imagecache.Cache

	Records store.Repository[models.Record]
	Games   store.Repository[models.BoardGame]
	Books   store.Repository[models.Book]
	Status  *syncer.StatusTracker

	Health    *grpcserver.HealthReporter
	Scheduler *syncer.Scheduler

	ownsDB bool
}

// New builds the application from cfg. Sources without credentials are
// left out of the scheduler.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ...Option) (*App, error) {
	o := &options{
		baseURLs:   make(map[models.Service]string),
		retryPause: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(o)
	}
	if log == nil {
		log = zap.NewNop()
	}

	a := &App{
		Config: cfg,
		Logger: log,
		Cache: cache.New(cache.Options{
			DefaultTTL:    cfg.Cache.DefaultTTL,
			MaxEntries:    cfg.Cache.MaxEntries,
			SweepInterval: cfg.Cache.SweepInterval,
			Logger:        logger.Named(log, "cache"),
		}),
		Images: imagecache.New(imagecache.Options{
			Dir:          cfg.ImageCache.Dir,
			URLPrefix:    cfg.ImageCache.URLPrefix,
			MaxDimension: cfg.ImageCache.MaxDimension,
			Quality:      cfg.ImageCache.Quality,
			FetchTimeout: cfg.ImageCache.FetchTimeout,
			HTTPClient:   o.imageHTTP,
			Logger:       logger.Named(log, "imagecache"),
		}),
	}

	if err := a.openStore(o); err != nil {
		return nil, err
	}

	policy := store.DefaultTTLPolicy()
	policy.Default = cfg.Cache.DefaultTTL
	a.Records = store.NewCached(repository[models.Record](a.DB), a.Cache, policy, log)
	a.Games = store.NewCached(repository[models.BoardGame](a.DB), a.Cache, policy, log)
	a.Books = store.NewCached(repository[models.Book](a.DB), a.Cache, policy, log)
	a.Status = syncer.NewStatusTracker(
		store.NewCached(repository[models.SyncStatus](a.DB), a.Cache, policy, log),
		logger.Named(log, "status"),
	)

	runners := a.buildRunners(o)
	services := make([]models.Service, 0, len(runners))
	for _, service := range models.AllServices() {
		if _, ok := runners[service]; ok {
			services = append(services, service)
		}
	}

	if err := a.Status.Init(ctx, services); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to initialize sync status: %w", err), a.closeDB())
	}

	a.Health = grpcserver.NewHealthReporter(services, logger.Named(log, "health"))

	orchestrators := make([]*syncer.Orchestrator, 0, len(services))
	for _, service := range services {
		orchestrators = append(orchestrators, syncer.NewOrchestrator(
			service, runners[service], a.Status, logger.Named(log, "syncer"), a.Health,
		))
	}
	a.Scheduler = syncer.NewScheduler(cfg.Sync.Interval, cfg.Sync.OnStartup, logger.Named(log, "scheduler"), orchestrators...)

	log.Info("application wired",
		zap.String("store", cfg.Database.Driver),
		zap.Int("sources", len(services)),
		zap.Bool("itunes", cfg.ITunes.Enabled),
	)
	return a, nil
}

func (a *App) openStore(o *options) error {
	switch {
	case o.existingDB != nil:
		a.DB = o.existingDB
	case a.Config.Database.Driver == DriverMemory:
		return nil
	default:
		db, err := database.NewDB(&a.Config.Database, logger.Named(a.Logger, "database"))
		if err != nil {
			return err
		}
		a.DB = db
		a.ownsDB = true
	}

	if o.skipMigrate {
		return nil
	}
	if err := a.DB.RunMigrations(); err != nil {
		return errors.Join(fmt.Errorf("migration failed: %w", err), a.closeDB())
	}
	return nil
}

// repository returns the PostgreSQL table of E, or an in-memory one when
// no database is configured
func repository[E store.Entity](db *database.DB) store.Repository[E] {
	if db == nil {
		return memstore.New[E]()
	}
	return database.NewTable[E](db)
}

func (a *App) buildRunners(o *options) map[models.Service]syncer.Runner {
	cfg := a.Config
	runners := make(map[models.Service]syncer.Runner)

	if cfg.Discogs.Enabled() {
		f := discogs.New(cfg.Discogs, logger.Named(a.Logger, "discogs"))
		if u := o.baseURLs[models.ServiceDiscogs]; u != "" {
			f.SetBaseURL(u)
		}

		var finder syncer.ArtworkFinder
		if cfg.ITunes.Enabled {
			c := itunes.New(cfg.ITunes, logger.Named(a.Logger, "itunes"))
			if o.itunesURL != "" {
				c.SetBaseURL(o.itunesURL)
			}
			finder = c
		}

		runners[models.ServiceDiscogs] = &syncer.Pipeline[discogs.Release, models.Record]{
			Service:       models.ServiceDiscogs,
			Lister:        f,
			Transform:     discogs.ToRecord,
			Enrich:        syncer.RecordImages(a.Images, finder, a.Records, f.ImageHeader(), logger.Named(a.Logger, "enrich")),
			Store:         a.Records,
			BatchSize:     cfg.Sync.BatchSize,
			BatchPause:    cfg.Sync.BatchPause,
			Retries:       2,
			RetryInterval: o.retryPause,
			Logger:        logger.Named(a.Logger, "discogs"),
		}
	}

	if cfg.BGG.Enabled() {
		f := bgg.New(cfg.BGG, logger.Named(a.Logger, "bgg"))
		if u := o.baseURLs[models.ServiceBGG]; u != "" {
			f.SetBaseURL(u)
		}
		if o.bggQueued > 0 {
			f.SetQueuedDelay(o.bggQueued)
		}

		runners[models.ServiceBGG] = &syncer.Pipeline[bgg.Item, models.BoardGame]{
			Service:       models.ServiceBGG,
			Lister:        f,
			Transform:     bgg.ToBoardGame,
			Enrich:        syncer.BoardGameImages(a.Images),
			Store:         a.Games,
			BatchSize:     cfg.Sync.BatchSize,
			BatchPause:    cfg.Sync.BatchPause,
			Retries:       2,
			RetryInterval: o.retryPause,
			Logger:        logger.Named(a.Logger, "bgg"),
		}
	}

	if cfg.Hardcover.Enabled() {
		f := hardcover.New(cfg.Hardcover, logger.Named(a.Logger, "hardcover"))
		if u := o.baseURLs[models.ServiceHardcover]; u != "" {
			f.SetBaseURL(u)
		}

		runners[models.ServiceHardcover] = &syncer.Pipeline[hardcover.UserBook, models.Book]{
			Service:       models.ServiceHardcover,
			Lister:        f,
			Transform:     hardcover.ToBook,
			Enrich:        syncer.BookImages(a.Images),
			Store:         a.Books,
			BatchSize:     cfg.Sync.BatchSize,
			BatchPause:    cfg.Sync.BatchPause,
			Retries:       2,
			RetryInterval: o.retryPause,
			Logger:        logger.Named(a.Logger, "hardcover"),
		}
	}

	return runners
}

// Handlers returns the HTTP handlers over the app's components
func (a *App) Handlers() *httpserver.Handlers {
	return httpserver.NewHandlers(httpserver.Deps{
		Records:     a.Records,
		Games:       a.Games,
		Books:       a.Books,
		Sync:        a.Scheduler,
		Status:      a.Status,
		Cache:       a.Cache,
		ImageDir:    a.Config.ImageCache.Dir,
		ImagePrefix: a.Config.ImageCache.URLPrefix,
	}, logger.Named(a.Logger, "http"))
}

// Start launches the cache sweep and the sync scheduler
func (a *App) Start(ctx context.Context) {
	a.Cache.Start(ctx)
	a.Scheduler.Start(ctx)
}

// Shutdown waits for running passes and closes the database
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.Scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop scheduler: %w", err))
	}
	a.Health.Shutdown()
	if err := a.closeDB(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeDB() error {
	if a.DB == nil || !a.ownsDB {
		return nil
	}
	if err := a.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
