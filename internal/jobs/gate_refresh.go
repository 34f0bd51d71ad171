package jobs

import (
	"log/slog"

	"pulsetrack/internal/config"
	"pulsetrack/internal/database"
	"pulsetrack/internal/quota"
)

// GateRefreshJob recomputes monthly usage against website limits and reloads
// the in-memory usage gate from the result.
type GateRefreshJob struct {
	dbManager *database.DBManager
	gate      *quota.Gate
	logger    *slog.Logger
	cfg       *config.Config
}

func NewGateRefreshJob(dbManager *database.DBManager, gate *quota.Gate, logger *slog.Logger, cfg *config.Config) *GateRefreshJob {
	return &GateRefreshJob{
		dbManager: dbManager,
		gate:      gate,
		logger:    logger,
		cfg:       cfg,
	}
}

func (j *GateRefreshJob) Run() error {
	db := j.dbManager.GetConnection()

	if err := quota.SyncOverLimitSites(db, j.logger); err != nil {
		return err
	}
	return j.gate.Refresh(db)
}
