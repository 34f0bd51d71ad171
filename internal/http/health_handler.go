package http

import (
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge"
)

// HealthStatus is the public health check response. It reports enough for a
// load balancer to act on without exposing internal pipeline detail.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	DBStatus  string    `json:"db_status"`
	Ingestion string    `json:"ingestion"`
}

// HealthIndexAction handles the public health check endpoint.
func HealthIndexAction(ctx *cartridge.Context) error {
	dbStatus := "ok"

	db := ctx.DBManager.GetConnection()
	if db == nil {
		dbStatus = "error"
		ctx.Logger.Error("Database connection unavailable")
	} else {
		sqlDB, err := db.DB()
		if err != nil {
			dbStatus = "error"
			ctx.Logger.Error("Database connection error", slog.Any("error", err))
		} else if err := sqlDB.Ping(); err != nil {
			dbStatus = "error"
			ctx.Logger.Error("Database ping failed", slog.Any("error", err))
		}
	}

	// A saturated queue means new events are bouncing even though the
	// process itself is up
	ingestion := "ok"
	if systemQueue != nil {
		if capacity := systemQueue.Capacity(); capacity > 0 && systemQueue.Len() == capacity {
			ingestion = "saturated"
		}
	}

	health := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		DBStatus:  dbStatus,
		Ingestion: ingestion,
	}

	if dbStatus != "ok" || ingestion != "ok" {
		health.Status = "degraded"
	}

	return ctx.JSON(health)
}
