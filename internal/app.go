// Package internal contains core application functionality
package internal

import (
	"fmt"
	"time"

	"github.com/karloscodes/cartridge"

	"pulsetrack/internal/config"
	"pulsetrack/internal/database"
	"pulsetrack/internal/events"
	pulsehttp "pulsetrack/internal/http"
	"pulsetrack/internal/jobs"
	"pulsetrack/internal/pkg/geoip"
	"pulsetrack/internal/queue"
	"pulsetrack/internal/quota"
	"pulsetrack/internal/sessions"
	"pulsetrack/internal/settings"
)

// Application wraps cartridge.Application with pulsetrack-specific components
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager
	Gate      *quota.Gate
	Queue     *queue.Memory
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	cfg := config.GetConfig()
	return NewAppWithRoutes(cfg, MountAppRoutes)
}

// NewAppWithRoutes creates a new application with custom route mounting function
func NewAppWithRoutes(cfg *config.Config, routeMount func(*cartridge.Server)) (*Application, error) {
	// Create logger
	logger := cartridge.NewLogger(cfg, nil)

	// Initialize database manager (pulsetrack-specific with migration methods)
	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Country enrichment degrades to unknown when no GeoIP database is present
	geoip.InitLogger(logger)
	geoip.InitGeoDB()

	gate := quota.NewGate(logger)
	memoryQueue := queue.NewMemory(cfg.QueueCapacity, logger)
	pulsehttp.SetIngestionStatus(gate, memoryQueue)

	store := sessions.NewStore(dbManager.GetConnection(), logger)
	normalizer := events.NewNormalizer(cfg.PrivateKey)
	excludedIP := func(ip string) bool {
		excluded, err := settings.IsIPExcluded(ip)
		if err != nil {
			logger.Warn("Excluded IP lookup failed", "error", err)
			return false
		}
		return excluded
	}
	collector := events.NewCollector(dbManager, logger, gate, memoryQueue, normalizer, store, excludedIP)
	events.SetDefaultCollector(collector)

	// Initialize jobs system
	scheduler, err := jobs.NewScheduler(dbManager, gate, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize jobs: %w", err)
	}

	consumer := queue.NewConsumer(
		memoryQueue,
		dbManager,
		logger,
		cfg.QueueBatchSize,
		time.Duration(cfg.QueueFlushMillis)*time.Millisecond,
	)

	// Create the cartridge application with custom route mount
	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:            cfg,
		Logger:            logger,
		DBManager:         dbManager,
		RouteMountFunc:    routeMount,
		BackgroundWorkers: []cartridge.BackgroundWorker{scheduler, consumer},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
		Gate:        gate,
		Queue:       memoryQueue,
	}, nil
}
