// Package sessions maintains the live visit state of the ingestion pipeline:
// one ActiveSession row per (visitor, website) pair, mutated only through the
// Store so concurrent events cannot lose updates.
package sessions

import "time"

// ActiveSession is the mutable record of an in-progress visit for one visitor
// on one website. At most one row exists per (website_id, visitor_id) pair,
// enforced by a unique index and an atomic upsert.
type ActiveSession struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"`
	SessionID       string    `gorm:"index;size:36;not null"`
	WebsiteID       uint      `gorm:"uniqueIndex:idx_website_visitor;not null"`
	VisitorID       string    `gorm:"uniqueIndex:idx_website_visitor;size:64;not null"`
	Hostname        string    `gorm:"not null"`
	StartedAt       time.Time `gorm:"not null"`
	LastActivity    time.Time `gorm:"index;not null"`
	Pageviews       int       `gorm:"not null;default:0"`
	EntryPage       string
	ExitPage        string
	DeviceType      string
	ScreenWidth     int
	ScreenHeight    int
	Browser         string
	OperatingSystem string
	Language        string
	Referrer        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StoreUnavailableError wraps a storage failure during a session lookup or
// upsert. It must never be treated as "no session" - doing so would fork the
// continuity of an ongoing visit.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return "session store unavailable during " + e.Op + ": " + e.Err.Error()
}

func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}
