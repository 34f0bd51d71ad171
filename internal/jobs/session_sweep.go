package jobs

import (
	"log/slog"
	"time"

	"pulsetrack/internal/config"
	"pulsetrack/internal/database"
	"pulsetrack/internal/sessions"
)

const sweepBatchSize = 1000

// SessionSweepJob deletes active sessions whose last activity is older than
// the configured timeout. A later event from the same visitor then starts a
// fresh session with a new id.
type SessionSweepJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	cfg       *config.Config
}

func NewSessionSweepJob(dbManager *database.DBManager, logger *slog.Logger, cfg *config.Config) *SessionSweepJob {
	return &SessionSweepJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
	}
}

func (j *SessionSweepJob) Run() error {
	timeout := time.Duration(j.cfg.SessionTimeoutSeconds) * time.Second
	store := sessions.NewStore(j.dbManager.GetConnection(), j.logger)

	deleted, err := store.DeleteStale(timeout, sweepBatchSize)
	if err != nil {
		return err
	}

	if deleted > 0 {
		j.logger.Info("Swept expired sessions",
			slog.Int64("deleted_count", deleted),
			slog.Duration("timeout", timeout))
	}
	return nil
}
