package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"pulsetrack/internal/pkg/geoip"
	"pulsetrack/internal/queue"
	"pulsetrack/internal/quota"
	"pulsetrack/internal/sessions"
)

var (
	systemGate  *quota.Gate
	systemQueue *queue.Memory
)

// SetIngestionStatus wires the live gate and queue into the system health
// endpoint. Called once during application startup.
func SetIngestionStatus(gate *quota.Gate, q *queue.Memory) {
	systemGate = gate
	systemQueue = q
}

// SystemHealthAction reports the internal state of the ingestion pipeline for
// operators: queue pressure, usage gate state, and enrichment availability.
func SystemHealthAction(ctx *cartridge.Context) error {
	db := ctx.DB()

	var warning string

	queueLen, queueCap := 0, 0
	if systemQueue != nil {
		queueLen = systemQueue.Len()
		queueCap = systemQueue.Capacity()
		if queueCap > 0 && queueLen == queueCap {
			warning = "Ingestion queue is full; events are being rejected"
		}
	}

	gateLoaded := false
	gateSize := 0
	if systemGate != nil {
		gateLoaded = systemGate.Loaded()
		gateSize = systemGate.Size()
		if !gateLoaded && warning == "" {
			warning = "Usage gate not yet loaded; quota enforcement inactive"
		}
	}

	activeSessions := int64(0)
	if db != nil {
		store := sessions.NewStore(db, ctx.Logger)
		if count, err := store.CountActive(); err == nil {
			activeSessions = count
		}
	}

	return ctx.JSON(fiber.Map{
		"healthy":         warning == "",
		"warning":         warning,
		"queue_depth":     queueLen,
		"queue_capacity":  queueCap,
		"gate_loaded":     gateLoaded,
		"over_limit":      gateSize,
		"active_sessions": activeSessions,
		"geoip_loaded":    geoip.GetGeoDB() != nil,
	})
}
