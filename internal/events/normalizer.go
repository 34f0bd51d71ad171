package events

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"pulsetrack/internal/pkg/geoip"
	"pulsetrack/internal/pkg/referrers"
	"pulsetrack/internal/pkg/useragent"
	"pulsetrack/internal/visitors"
	"pulsetrack/internal/websites"
)

// Sentinel values stored when a dimension cannot be determined. Distinct
// markers rather than empty strings, so reports can group them.
const (
	DirectOrUnknownReferrer = "(direct)"
	UnknownDevice           = "(unknown)"
	UnknownBrowser          = "(unknown)"
	UnknownOS               = "(unknown)"
	UnknownCountry          = "(unknown)"
)

// CollectEventInput bundles the raw client payload with the request metadata
// the pipeline derives server-side. IP address and user agent come from the
// HTTP layer, never from the payload itself.
type CollectEventInput struct {
	IPAddress string
	UserAgent string
	Raw       RawTrackingInput
}

// Normalizer converts raw tracking input into a CanonicalEventRecord. All
// collaborators are injectable so tests can pin clocks, ids, and lookups;
// NewNormalizer wires the production defaults.
type Normalizer struct {
	Resolve        visitors.Resolver
	ParseUserAgent func(rawUA string) useragent.UserAgent
	ClassifyDevice func(screenWidth, screenHeight int, ua useragent.UserAgent) string
	CountryCode    func(ipAddress string) string
	CountryName    func(isoCode string) string
	Now            func() time.Time
	NewSessionID   func() string
	NewRecordID    func() string
}

// NewNormalizer creates a normalizer with production defaults, deriving
// visitor ids from the given private key.
func NewNormalizer(privateKey string) *Normalizer {
	return &Normalizer{
		Resolve:        visitors.NewResolver(privateKey),
		ParseUserAgent: useragent.Parse,
		ClassifyDevice: useragent.ClassifyDevice,
		CountryCode:    geoip.CountryCode,
		CountryName:    geoip.CountryName,
		Now:            time.Now,
		NewSessionID:   uuid.NewString,
		NewRecordID:    func() string { return ulid.Make().String() },
	}
}

// Normalize validates the raw input and produces the canonical record for the
// given website. It returns a ValidationError for malformed input and
// ErrBotTraffic for automated clients. Client-supplied timestamps are never
// trusted; the record carries the server clock.
func (n *Normalizer) Normalize(website *websites.Website, input *CollectEventInput) (*CanonicalEventRecord, error) {
	if err := input.Raw.Validate(); err != nil {
		return nil, err
	}

	ua := n.ParseUserAgent(input.UserAgent)
	if ua.Bot {
		return nil, ErrBotTraffic
	}

	pageURL, err := ParsePageURL(input.Raw.URL)
	if err != nil {
		return nil, err
	}

	referrerHostname, referrerPathname := n.normalizeReferrer(input.Raw.Referrer, website.Domain)
	referrerName := ""
	if referrerHostname != DirectOrUnknownReferrer {
		referrerName = referrers.FriendlyName(referrerHostname)
	}

	browser := ua.Browser
	if browser == "" {
		browser = UnknownBrowser
	}
	operatingSystem := ua.OS
	if operatingSystem == "" {
		operatingSystem = UnknownOS
	}

	deviceType := n.ClassifyDevice(input.Raw.ScreenWidth, input.Raw.ScreenHeight, ua)
	if deviceType == "" {
		deviceType = UnknownDevice
	}

	country := n.CountryCode(input.IPAddress)
	countryName := ""
	if country == "" {
		country = UnknownCountry
	} else {
		countryName = n.CountryName(country)
	}

	record := &CanonicalEventRecord{
		RecordID:         n.NewRecordID(),
		WebsiteID:        website.ID,
		VisitorID:        n.Resolve(website.Domain, input.IPAddress, input.UserAgent),
		SessionID:        n.NewSessionID(),
		EventType:        input.Raw.EventType(),
		Hostname:         pageURL.Hostname,
		Pathname:         pageURL.Pathname,
		RawURL:           pageURL.Raw,
		ReferrerHostname: referrerHostname,
		ReferrerPathname: referrerPathname,
		ReferrerName:     referrerName,
		Browser:          browser,
		BrowserVersion:   ua.BrowserVersion,
		OperatingSystem:  operatingSystem,
		OSVersion:        ua.OSVersion,
		DeviceType:       deviceType,
		ScreenWidth:      input.Raw.ScreenWidth,
		ScreenHeight:     input.Raw.ScreenHeight,
		Language:         normalizeLanguage(input.Raw.Language),
		Country:          country,
		CountryName:      countryName,
		Timestamp:        n.Now().UTC(),
	}

	if record.EventType == EventTypeCustomEvent {
		record.CustomEventName = strings.TrimSpace(input.Raw.EventName)
		record.CustomEventMeta = input.Raw.MetadataJSON()
	}

	return record, nil
}

// normalizeReferrer extracts hostname and path from the raw referrer.
// Self-referrals (internal navigation) collapse to direct traffic so entry
// attribution stays on the session's first external referrer.
func (n *Normalizer) normalizeReferrer(rawReferrer, websiteDomain string) (hostname, pathname string) {
	if rawReferrer == "" {
		return DirectOrUnknownReferrer, ""
	}

	parsed, err := url.Parse(rawReferrer)
	if err != nil || parsed.Hostname() == "" {
		return DirectOrUnknownReferrer, ""
	}

	if IsSelfReferral(parsed.Hostname(), websiteDomain) {
		return DirectOrUnknownReferrer, ""
	}

	return parsed.Hostname(), parsed.Path
}

func normalizeLanguage(language string) string {
	language = strings.TrimSpace(language)
	if language == "" {
		return ""
	}
	// Keep only the primary tag of an Accept-Language style list
	if idx := strings.IndexAny(language, ",;"); idx >= 0 {
		language = language[:idx]
	}
	return strings.ToLower(language)
}
