package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pulsetrack/internal/config"
	"pulsetrack/internal/database"
	"pulsetrack/internal/quota"
)

// Scheduler runs the recurring maintenance jobs: usage gate refresh, session
// sweep, and event retention cleanup. Jobs never overlap; a tick that fires
// while another job is still running is skipped.
type Scheduler struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	enabled   bool
	isRunning bool
	cfg       *config.Config

	processingMutex sync.Mutex
	isProcessing    bool

	gateRefreshJob  *GateRefreshJob
	sessionSweepJob *SessionSweepJob
	cleanupJob      *CleanupJob

	tickers []*time.Ticker
}

func NewScheduler(dbManager *database.DBManager, gate *quota.Gate, logger *slog.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := config.GetConfig()

	s := &Scheduler{
		dbManager: dbManager,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		enabled:   true,
		cfg:       cfg,
	}

	s.gateRefreshJob = NewGateRefreshJob(dbManager, gate, logger, cfg)
	s.sessionSweepJob = NewSessionSweepJob(dbManager, logger, cfg)
	s.cleanupJob = NewCleanupJob(dbManager, logger, cfg)

	return s, nil
}

// Start begins all background jobs.
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}
	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.logger.Info("Starting background jobs...")
	s.isRunning = true

	// The gate refresh runs once immediately so quota enforcement activates
	// as soon after boot as possible; cleanup likewise so a long-stopped
	// instance catches up on retention right away.
	s.schedule("gate_refresh", time.Duration(s.cfg.GateRefreshSeconds)*time.Second, true, s.gateRefreshJob.Run)
	s.schedule("session_sweep", time.Duration(s.cfg.SessionSweepSeconds)*time.Second, false, s.sessionSweepJob.Run)
	s.schedule("cleanup", 24*time.Hour, true, s.cleanupJob.Run)

	s.logger.Info("Background jobs started")
	return nil
}

// schedule runs jobFunc on every tick of a new ticker until the scheduler
// context is cancelled.
func (s *Scheduler) schedule(name string, interval time.Duration, runAtStart bool, jobFunc func() error) {
	s.logger.Info("Scheduling background job",
		slog.String("job", name),
		slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	s.tickers = append(s.tickers, ticker)

	go func() {
		if runAtStart {
			s.executeJobSafely(name, jobFunc)
		}
		for {
			select {
			case <-ticker.C:
				s.executeJobSafely(name, jobFunc)
			case <-s.ctx.Done():
				s.logger.Info("Background job stopped", slog.String("job", name))
				return
			}
		}
	}()
}

// executeJobSafely runs a job only if no other job is currently executing
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func() error) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Stop halts all background jobs.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.enabled = false

	for _, ticker := range s.tickers {
		ticker.Stop()
	}

	s.cancel()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}

// RefreshGate allows manual triggering of a usage gate refresh
func (s *Scheduler) RefreshGate() error {
	if !s.enabled {
		return nil
	}
	return s.gateRefreshJob.Run()
}

// SweepSessions allows manual triggering of a session sweep
func (s *Scheduler) SweepSessions() error {
	if !s.enabled {
		return nil
	}
	return s.sessionSweepJob.Run()
}
