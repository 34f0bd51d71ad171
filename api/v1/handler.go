package v1

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"pulsetrack/internal/events"
	"pulsetrack/internal/sessions"
	"pulsetrack/internal/websites"
)

const (
	msgEventAdded     = "Event added successfully"
	errInvalidRequest = "Invalid request"
	errInvalidOrigin  = "Invalid origin"
)

// CreateEventPublicAPIHandler ingests one tracking event submitted by the SDK
// via fetch. The response status reports exactly what happened to the event.
func CreateEventPublicAPIHandler(ctx *cartridge.Context) error {
	ctx.Logger.Debug("Received event request", slog.String("method", ctx.Method()), slog.String("path", ctx.Path()))

	var raw events.RawTrackingInput
	if err := ctx.BodyParser(&raw); err != nil {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": errInvalidRequest,
			"code":  "MALFORMED_BODY",
		})
	}

	// Validate Origin header against registered websites
	// The Origin header is set by the browser and cannot be spoofed by JavaScript
	if err := validateOrigin(ctx.Ctx, ctx.DBManager, ctx.Logger); err != nil {
		return handleError(ctx.Ctx, err)
	}

	input := collectInput(ctx, raw)

	if err := events.Collect(input); err != nil {
		return respondCollectError(ctx, err)
	}

	return ctx.Status(http.StatusAccepted).JSON(fiber.Map{
		"message": msgEventAdded,
		"status":  http.StatusAccepted,
	})
}

// CreateEventBeaconHandler handles event tracking requests sent via
// navigator.sendBeacon. Beacons fire during page unload and the browser
// ignores the response, so every outcome is acknowledged with 202.
func CreateEventBeaconHandler(ctx *cartridge.Context) error {
	ctx.Logger.Debug("Received beacon event request",
		slog.String("method", ctx.Method()),
		slog.String("path", ctx.Path()))

	// Beacon payloads arrive as text/plain
	var raw events.RawTrackingInput
	if err := json.Unmarshal(ctx.Body(), &raw); err != nil {
		ctx.Logger.Debug("Failed to parse beacon request", slog.Any("error", err))
		return ctx.SendStatus(http.StatusAccepted)
	}

	if err := validateOrigin(ctx.Ctx, ctx.DBManager, ctx.Logger); err != nil {
		ctx.Logger.Debug("Invalid origin in beacon request")
		return ctx.SendStatus(http.StatusAccepted)
	}

	input := collectInput(ctx, raw)

	if err := events.Collect(input); err != nil {
		logCollectError(ctx, err)
		return ctx.SendStatus(http.StatusAccepted)
	}

	return ctx.SendStatus(http.StatusAccepted)
}

// collectInput derives the pipeline input from the request. IP address and
// user agent always come from the connection, never from the payload.
func collectInput(ctx *cartridge.Context, raw events.RawTrackingInput) *events.CollectEventInput {
	userAgentHeader := ctx.Get("User-Agent")
	if forwardedUA := ctx.Get("X-Forwarded-User-Agent"); forwardedUA != "" {
		userAgentHeader = forwardedUA
	}

	if raw.Language == "" {
		raw.Language = ctx.Get("Accept-Language")
	}

	return &events.CollectEventInput{
		IPAddress: getClientIP(ctx.Ctx),
		UserAgent: userAgentHeader,
		Raw:       raw,
	}
}

// respondCollectError maps pipeline rejections onto HTTP statuses.
func respondCollectError(ctx *cartridge.Context, err error) error {
	logCollectError(ctx, err)

	var validationErr *events.ValidationError
	if errors.As(err, &validationErr) {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": validationErr.Error(),
			"code":  "VALIDATION_ERROR",
		})
	}

	var websiteNotFoundErr *websites.WebsiteNotFoundError
	if errors.As(err, &websiteNotFoundErr) {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": "Website not found - please register your domain first",
			"code":  "WEBSITE_NOT_FOUND",
		})
	}

	var overLimitErr *events.OverLimitError
	if errors.As(err, &overLimitErr) {
		return ctx.Status(http.StatusTooManyRequests).JSON(fiber.Map{
			"error": "Monthly event limit reached",
			"code":  "OVER_LIMIT",
		})
	}

	if errors.Is(err, events.ErrBotTraffic) {
		// Bots get a friendly 202 and nothing is recorded
		return ctx.Status(http.StatusAccepted).JSON(fiber.Map{
			"message": msgEventAdded,
			"status":  http.StatusAccepted,
		})
	}

	if errors.Is(err, events.ErrQueueRejected) {
		return ctx.Status(http.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Ingestion queue is full, retry later",
			"code":  "QUEUE_REJECTED",
		})
	}

	var storeErr *sessions.StoreUnavailableError
	if errors.As(err, &storeErr) {
		return ctx.Status(http.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Session store unavailable, retry later",
			"code":  "SESSION_STORE_UNAVAILABLE",
		})
	}

	if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "busy") {
		return ctx.Status(599).JSON(fiber.Map{}) // custom status code
	}

	return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to collect event",
		"code":  "COLLECTION_ERROR",
	})
}

func logCollectError(ctx *cartridge.Context, err error) {
	// Bot rejections are routine, everything else is worth a look
	if errors.Is(err, events.ErrBotTraffic) {
		ctx.Logger.Debug("Ignored bot traffic")
		return
	}
	ctx.Logger.Error("Failed to collect event", slog.Any("error", err))
}

// validateOrigin checks if the request comes from a registered website domain
// using the Origin header (set automatically by browsers for cross-origin requests)
// or falls back to Referer header for same-origin requests
func validateOrigin(c *fiber.Ctx, dbManager cartridge.DBManager, logger *slog.Logger) error {
	origin := c.Get("Origin")
	if origin == "" {
		origin = c.Get("Referer")
	}

	if origin == "" {
		logger.Debug("No Origin or Referer header present")
		return fiber.NewError(http.StatusForbidden, errInvalidOrigin)
	}

	parsedURL, err := url.Parse(origin)
	if err != nil {
		logger.Debug("Failed to parse origin URL", slog.String("origin", origin), slog.Any("error", err))
		return fiber.NewError(http.StatusForbidden, errInvalidOrigin)
	}

	hostname := parsedURL.Hostname()

	db := dbManager.GetConnection()
	if _, err := websites.ResolveWebsite(db, hostname); err != nil {
		logger.Debug("Origin domain not registered",
			slog.String("origin", origin),
			slog.String("hostname", hostname))
		return fiber.NewError(http.StatusForbidden, errInvalidOrigin)
	}

	return nil
}

func handleError(c *fiber.Ctx, err error) error {
	if fiberErr, ok := err.(*fiber.Error); ok {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"error": fiberErr.Message,
		})
	}

	return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{
		"error": errInvalidRequest,
	})
}
