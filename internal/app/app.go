package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/obsoleta/internal/common"
	"github.com/ternarybob/obsoleta/internal/handlers"
	"github.com/ternarybob/obsoleta/internal/interfaces"
	"github.com/ternarybob/obsoleta/internal/services/auth"
	"github.com/ternarybob/obsoleta/internal/services/eolcheck"
	"github.com/ternarybob/obsoleta/internal/services/events"
	"github.com/ternarybob/obsoleta/internal/services/llm"
	"github.com/ternarybob/obsoleta/internal/services/quota"
	"github.com/ternarybob/obsoleta/internal/services/scheduler"
	"github.com/ternarybob/obsoleta/internal/services/search"
	"github.com/ternarybob/obsoleta/internal/services/strategy"
	badgerstorage "github.com/ternarybob/obsoleta/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Domain services
	SearchService    interfaces.SearchProvider
	ClassifierService interfaces.Classifier
	EOLService       *eolcheck.Service
	QuotaGuard       *quota.Guard
	SchedulerService interfaces.SchedulerService
	EventService     *events.Service
	AuthService      *auth.Service

	// HTTP handlers
	JobHandler       *handlers.JobHandler
	AutoCheckHandler *handlers.AutoCheckHandler
	KVHandler        *handlers.KVHandler
	AuthHandler      *handlers.AuthHandler
	EventsHandler    *handlers.EventsHandler
	StatusHandler    *handlers.StatusHandler

	maintenanceStop chan struct{}
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	storageManager, err := badgerstorage.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = storageManager

	app.EventService = events.NewService(storageManager.EventStorage(), logger)
	app.AuthService = auth.NewService(storageManager.KeyValueStorage(), logger)
	app.SearchService = search.NewService(&cfg.Search, logger)

	classifier, err := llm.NewClaudeService(&cfg.Claude, logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize classifier: %w", err)
	}
	app.ClassifierService = classifier

	resolver := strategy.NewResolver(
		cfg.Fetch.UserAgent,
		cfg.Search.RequestTimeout,
		cfg.Fetch.MaxBodySize,
		logger,
	)
	fetcher := eolcheck.NewFetcher(&cfg.Fetch, logger)
	triggers := eolcheck.NewTriggerClient(cfg.BaseURL(), cfg.Fetch.TriggerTimeout, logger)

	app.EOLService = eolcheck.NewService(
		cfg,
		storageManager.JobStorage(),
		resolver,
		app.SearchService,
		fetcher,
		classifier,
		triggers,
		app.EventService,
		logger,
	)

	guard, err := quota.NewGuard(storageManager.KeyValueStorage(), &cfg.AutoCheck, &cfg.Search, logger)
	if err != nil {
		storageManager.Close()
		return nil, err
	}
	app.QuotaGuard = guard
	app.EOLService.SetUsageObserver(guard.ObserveLLMUsage)

	schedulerService, err := scheduler.NewService(
		&cfg.AutoCheck,
		guard,
		app.EOLService,
		app.SearchService,
		storageManager.KeyValueStorage(),
		app.EventService,
		logger,
	)
	if err != nil {
		storageManager.Close()
		return nil, err
	}
	app.SchedulerService = schedulerService

	app.JobHandler = handlers.NewJobHandler(app.EOLService, logger)
	app.AutoCheckHandler = handlers.NewAutoCheckHandler(guard, schedulerService, logger)
	app.KVHandler = handlers.NewKVHandler(storageManager.KeyValueStorage(), logger)
	app.AuthHandler = handlers.NewAuthHandler(app.AuthService, logger)
	app.EventsHandler = handlers.NewEventsHandler(app.EventService, logger)
	app.StatusHandler = handlers.NewStatusHandler(cfg, app.EOLService, schedulerService, logger)

	logger.Info().
		Str("environment", cfg.Environment).
		Str("storage", cfg.Storage.Badger.Path).
		Msg("Application initialized")

	return app, nil
}

// StartScheduler registers the daily driver when auto-check is enabled in
// config. The guard's persisted state still gates every cycle.
func (a *App) StartScheduler() error {
	if !a.Config.AutoCheck.Enabled {
		a.Logger.Info().Msg("Auto-check scheduler not started (disabled in config)")
		return nil
	}
	return a.SchedulerService.Start()
}

// StartMaintenance runs periodic storage upkeep in the background. Badger's
// value log only shrinks when GC is invoked explicitly.
func (a *App) StartMaintenance() {
	a.maintenanceStop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := a.StorageManager.RunGC(); err != nil {
					a.Logger.Warn().Err(err).Msg("Storage GC pass failed")
				}
			case <-a.maintenanceStop:
				return
			}
		}
	}()
	a.Logger.Debug().Msg("Storage maintenance started")
}

// Shutdown stops background work and closes storage
func (a *App) Shutdown(ctx context.Context) error {
	if a.maintenanceStop != nil {
		close(a.maintenanceStop)
		a.maintenanceStop = nil
	}
	if a.SchedulerService != nil && a.SchedulerService.IsRunning() {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Error().Err(err).Msg("Failed to stop scheduler")
		}
	}

	// Give in-flight stage goroutines a moment to commit their writes
	select {
	case <-ctx.Done():
	case <-time.After(250 * time.Millisecond):
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
	}

	a.Logger.Info().Msg("Application shut down")
	return nil
}
