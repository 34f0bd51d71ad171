package events

import "time"

// EventType represents the type of event.
type EventType int

const (
	EventTypePageView    EventType = 1
	EventTypeCustomEvent EventType = 2
)

// Event is one durably stored page view or custom event. Rows are written by
// the ingestion queue consumer, never directly from request handlers.
type Event struct {
	ID               uint   `gorm:"primaryKey;autoIncrement"`
	RecordID         string `gorm:"uniqueIndex;size:26;not null"`
	WebsiteID        uint   `gorm:"index:idx_website_timestamp;not null"`
	VisitorID        string `gorm:"index;size:64;not null"`
	SessionID        string `gorm:"index;size:36;not null"`
	Hostname         string `gorm:"index;not null"`
	Pathname         string `gorm:"index;not null"`
	RawURL           string
	ReferrerHostname string `gorm:"index"`
	ReferrerPathname string
	ReferrerName     string
	EventType        EventType `gorm:"not null;default:1"`
	CustomEventName  string    `gorm:"index"`
	CustomEventMeta  string    `gorm:"type:text"`
	Browser          string
	BrowserVersion   string
	OperatingSystem  string
	OSVersion        string
	DeviceType       string
	ScreenWidth      int
	ScreenHeight     int
	Language         string
	Country          string
	CountryName      string
	Timestamp        time.Time `gorm:"index:idx_website_timestamp;not null"`
	CreatedAt        time.Time
}

// CanonicalEventRecord is the fully enriched, immutable representation of one
// event, ready for the ingestion queue. Construct it through the Normalizer;
// the only post-construction change is session-id resolution via
// WithSessionID, which copies.
type CanonicalEventRecord struct {
	RecordID         string
	WebsiteID        uint
	VisitorID        string
	SessionID        string
	EventType        EventType
	Hostname         string
	Pathname         string
	RawURL           string
	ReferrerHostname string
	ReferrerPathname string
	ReferrerName     string
	CustomEventName  string
	CustomEventMeta  string
	Browser          string
	BrowserVersion   string
	OperatingSystem  string
	OSVersion        string
	DeviceType       string
	ScreenWidth      int
	ScreenHeight     int
	Language         string
	Country          string
	CountryName      string
	Timestamp        time.Time
}

// WithSessionID returns a copy of the record carrying the given session id.
func (r *CanonicalEventRecord) WithSessionID(sessionID string) *CanonicalEventRecord {
	copied := *r
	copied.SessionID = sessionID
	return &copied
}

// IsPageView reports whether the record represents a page view.
func (r *CanonicalEventRecord) IsPageView() bool {
	return r.EventType == EventTypePageView
}

// StoredEvent converts the record into its durable row form.
func (r *CanonicalEventRecord) StoredEvent() *Event {
	return &Event{
		RecordID:         r.RecordID,
		WebsiteID:        r.WebsiteID,
		VisitorID:        r.VisitorID,
		SessionID:        r.SessionID,
		Hostname:         r.Hostname,
		Pathname:         r.Pathname,
		RawURL:           r.RawURL,
		ReferrerHostname: r.ReferrerHostname,
		ReferrerPathname: r.ReferrerPathname,
		ReferrerName:     r.ReferrerName,
		EventType:        r.EventType,
		CustomEventName:  r.CustomEventName,
		CustomEventMeta:  r.CustomEventMeta,
		Browser:          r.Browser,
		BrowserVersion:   r.BrowserVersion,
		OperatingSystem:  r.OperatingSystem,
		OSVersion:        r.OSVersion,
		DeviceType:       r.DeviceType,
		ScreenWidth:      r.ScreenWidth,
		ScreenHeight:     r.ScreenHeight,
		Language:         r.Language,
		Country:          r.Country,
		CountryName:      r.CountryName,
		Timestamp:        r.Timestamp,
		CreatedAt:        time.Now().UTC(),
	}
}
