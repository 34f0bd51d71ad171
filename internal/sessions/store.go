package sessions

import (
	"errors"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Update carries everything the store needs to create or continue an active
// session from one event. Pageviews is the increment (1 for a page view, 0
// for a custom event) - the store adds it atomically in SQL.
type Update struct {
	SessionID       string
	WebsiteID       uint
	VisitorID       string
	Hostname        string
	Timestamp       time.Time
	Pageviews       int
	Pathname        string
	DeviceType      string
	ScreenWidth     int
	ScreenHeight    int
	Browser         string
	OperatingSystem string
	Language        string
	Referrer        string
}

// Store is the only component permitted to mutate active_sessions.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewStore creates a session store bound to a database connection.
func NewStore(db *gorm.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Active returns the active session for a (website, visitor) pair, or nil
// when none exists. Storage failures are reported as StoreUnavailableError,
// never as an absent session.
func (s *Store) Active(websiteID uint, visitorID string) (*ActiveSession, error) {
	var session ActiveSession
	err := s.db.Where("website_id = ? AND visitor_id = ?", websiteID, visitorID).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, &StoreUnavailableError{Op: "lookup", Err: err}
	}
	return &session, nil
}

// Apply creates or continues the active session for the update's (website,
// visitor) pair in one atomic statement. On conflict the existing row keeps
// its session id and entry page, last_activity is refreshed, the pageview
// increment is added in SQL (so concurrent events never lose counts), and
// the exit page advances only for page views.
func (s *Store) Apply(u Update) error {
	err := sqlite.PerformWrite(s.logger, s.db, func(tx *gorm.DB) error {
		now := time.Now().UTC()
		return tx.Exec(`
            INSERT INTO active_sessions
                (session_id, website_id, visitor_id, hostname, started_at, last_activity,
                 pageviews, entry_page, exit_page, device_type, screen_width, screen_height,
                 browser, operating_system, language, referrer, created_at, updated_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(website_id, visitor_id) DO UPDATE SET
                last_activity = excluded.last_activity,
                pageviews = active_sessions.pageviews + excluded.pageviews,
                exit_page = CASE WHEN excluded.pageviews > 0
                    THEN excluded.exit_page ELSE active_sessions.exit_page END,
                updated_at = excluded.updated_at
        `,
			u.SessionID, u.WebsiteID, u.VisitorID, u.Hostname, u.Timestamp, u.Timestamp,
			u.Pageviews, u.Pathname, u.Pathname, u.DeviceType, u.ScreenWidth, u.ScreenHeight,
			u.Browser, u.OperatingSystem, u.Language, u.Referrer, now, now,
		).Error
	})
	if err != nil {
		return &StoreUnavailableError{Op: "upsert", Err: err}
	}
	return nil
}

// DeleteStale retires active sessions whose last activity is older than the
// timeout, in batches to keep write transactions short. Returns the number of
// rows removed. Historical truth lives in the events table, so retiring a
// session is a plain delete.
func (s *Store) DeleteStale(timeout time.Duration, batchSize int) (int64, error) {
	cutoff := time.Now().UTC().Add(-timeout)
	totalDeleted := int64(0)

	for {
		var affected int64
		err := sqlite.PerformWrite(s.logger, s.db, func(tx *gorm.DB) error {
			result := tx.Where("last_activity < ?", cutoff).
				Limit(batchSize).
				Delete(&ActiveSession{})
			affected = result.RowsAffected
			return result.Error
		})
		if err != nil {
			return totalDeleted, &StoreUnavailableError{Op: "sweep", Err: err}
		}

		totalDeleted += affected
		if affected < int64(batchSize) {
			break
		}
	}

	return totalDeleted, nil
}

// CountActive returns the number of live sessions, used by health reporting.
func (s *Store) CountActive() (int64, error) {
	var count int64
	if err := s.db.Model(&ActiveSession{}).Count(&count).Error; err != nil {
		return 0, &StoreUnavailableError{Op: "count", Err: err}
	}
	return count, nil
}
