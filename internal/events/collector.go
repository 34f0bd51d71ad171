package events

import (
	"fmt"
	"log/slog"

	"github.com/karloscodes/cartridge"

	"pulsetrack/internal/pkg/keylock"
	"pulsetrack/internal/sessions"
	"pulsetrack/internal/websites"
)

// UsageGate answers whether a website has exhausted its monthly event limit.
type UsageGate interface {
	IsOverLimit(websiteID uint) bool
}

// Queue accepts canonical records for asynchronous persistence.
type Queue interface {
	Enqueue(record *CanonicalEventRecord) error
}

// Collector runs the ingestion pipeline for one event: gate, normalize,
// session reconcile, enqueue, session apply. Per (website, visitor) key the
// reconcile-enqueue-apply section is serialized so concurrent events from
// one visitor converge on a single active session.
type Collector struct {
	dbManager  cartridge.DBManager
	logger     *slog.Logger
	gate       UsageGate
	queue      Queue
	normalizer *Normalizer
	store      *sessions.Store
	reconciler *sessions.Reconciler
	locks      *keylock.KeyedMutex
	excludedIP func(ipAddress string) bool
}

// NewCollector wires the pipeline. excludedIP may be nil when no IP
// exclusion list is configured.
func NewCollector(
	dbManager cartridge.DBManager,
	logger *slog.Logger,
	gate UsageGate,
	queue Queue,
	normalizer *Normalizer,
	store *sessions.Store,
	excludedIP func(ipAddress string) bool,
) *Collector {
	return &Collector{
		dbManager:  dbManager,
		logger:     logger,
		gate:       gate,
		queue:      queue,
		normalizer: normalizer,
		store:      store,
		reconciler: sessions.NewReconciler(store),
		locks:      keylock.New(keylock.DefaultStripes),
		excludedIP: excludedIP,
	}
}

// Collect processes one tracking request end to end. The error it returns
// carries the rejection reason for the HTTP layer to map: ValidationError,
// WebsiteNotFoundError, OverLimitError, ErrBotTraffic, ErrQueueRejected, or
// a sessions.StoreUnavailableError.
func (c *Collector) Collect(input *CollectEventInput) error {
	pageURL, err := ParsePageURL(input.Raw.URL)
	if err != nil {
		return err
	}

	db := c.dbManager.GetConnection()
	website, err := websites.ResolveWebsite(db, pageURL.Hostname)
	if err != nil {
		return err
	}

	if c.excludedIP != nil && c.excludedIP(input.IPAddress) {
		c.logger.Debug("Skipping event from excluded IP", "website_id", website.ID)
		return nil
	}

	if c.gate.IsOverLimit(website.ID) {
		return &OverLimitError{WebsiteID: website.ID}
	}

	record, err := c.normalizer.Normalize(website, input)
	if err != nil {
		return err
	}

	key := sessionKey(website.ID, record.VisitorID)
	c.locks.Lock(key)
	defer c.locks.Unlock(key)

	sessionID, existing, err := c.reconciler.Reconcile(website.ID, record.VisitorID, record.SessionID)
	if err != nil {
		return err
	}
	record = record.WithSessionID(sessionID)

	if err := c.queue.Enqueue(record); err != nil {
		return err
	}

	if err := c.store.Apply(sessionUpdate(record)); err != nil {
		return err
	}

	c.logger.Debug("Collected event",
		"website_id", website.ID,
		"session_id", sessionID,
		"continuing", existing,
		"event_type", record.EventType,
	)
	return nil
}

// sessionUpdate derives the session mutation from a canonical record. Custom
// events refresh activity without counting as a page view.
func sessionUpdate(record *CanonicalEventRecord) sessions.Update {
	pageviews := 0
	if record.IsPageView() {
		pageviews = 1
	}
	return sessions.Update{
		SessionID:       record.SessionID,
		WebsiteID:       record.WebsiteID,
		VisitorID:       record.VisitorID,
		Hostname:        record.Hostname,
		Timestamp:       record.Timestamp,
		Pageviews:       pageviews,
		Pathname:        record.Pathname,
		DeviceType:      record.DeviceType,
		ScreenWidth:     record.ScreenWidth,
		ScreenHeight:    record.ScreenHeight,
		Browser:         record.Browser,
		OperatingSystem: record.OperatingSystem,
		Language:        record.Language,
		Referrer:        record.ReferrerHostname,
	}
}

func sessionKey(websiteID uint, visitorID string) string {
	return fmt.Sprintf("%d:%s", websiteID, visitorID)
}
