package events

import (
	"encoding/json"
	"net/url"
	"strings"
)

const (
	maxEventNameLength = 120
	maxMetadataBytes   = 4096
	maxLanguageLength  = 35
	maxScreenDimension = 16384
)

// RawTrackingInput is the client-submitted, partially trusted payload of a
// tracking beacon. Every field is validated explicitly before any of it is
// used; unknown or malformed shapes are rejected rather than propagated.
type RawTrackingInput struct {
	URL           string                 `json:"url"`
	Referrer      string                 `json:"referrer"`
	EventName     string                 `json:"eventName"`
	EventMetadata map[string]interface{} `json:"eventMetadata"`
	ScreenWidth   int                    `json:"screenWidth"`
	ScreenHeight  int                    `json:"screenHeight"`
	Language      string                 `json:"language"`
}

// EventType derives the event kind: a payload carrying an event name is a
// custom event, anything else is a page view.
func (in *RawTrackingInput) EventType() EventType {
	if strings.TrimSpace(in.EventName) != "" {
		return EventTypeCustomEvent
	}
	return EventTypePageView
}

// Validate checks every field of the raw input and returns a ValidationError
// describing the first offending field.
func (in *RawTrackingInput) Validate() error {
	if _, err := ParsePageURL(in.URL); err != nil {
		return err
	}

	if in.Referrer != "" {
		if _, err := url.Parse(in.Referrer); err != nil {
			return NewValidationError("referrer", "is not a valid URL")
		}
	}

	if len(in.EventName) > maxEventNameLength {
		return NewValidationError("eventName", "exceeds the maximum length")
	}

	if in.EventMetadata != nil {
		data, err := json.Marshal(in.EventMetadata)
		if err != nil {
			return NewValidationError("eventMetadata", "is not serializable")
		}
		if len(data) > maxMetadataBytes {
			return NewValidationError("eventMetadata", "exceeds the maximum size")
		}
	}

	if in.ScreenWidth < 0 || in.ScreenWidth > maxScreenDimension {
		return NewValidationError("screenWidth", "is out of range")
	}
	if in.ScreenHeight < 0 || in.ScreenHeight > maxScreenDimension {
		return NewValidationError("screenHeight", "is out of range")
	}

	if len(in.Language) > maxLanguageLength {
		return NewValidationError("language", "exceeds the maximum length")
	}

	return nil
}

// MetadataJSON returns the property bag serialized for storage, or the empty
// string when no metadata was submitted.
func (in *RawTrackingInput) MetadataJSON() string {
	if in.EventMetadata == nil {
		return ""
	}
	data, err := json.Marshal(in.EventMetadata)
	if err != nil {
		return ""
	}
	return string(data)
}

// PageURL holds the parsed components of a tracked page URL.
type PageURL struct {
	Hostname string
	Pathname string
	Raw      string
}

// ParsePageURL parses and validates a page URL submitted by the client.
func ParsePageURL(urlStr string) (*PageURL, error) {
	if urlStr == "" {
		return nil, NewValidationError("url", "is required")
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, NewValidationError("url", "is not a valid URL")
	}

	hostname := parsedURL.Hostname()
	if hostname == "" {
		return nil, NewValidationError("url", "is missing a hostname")
	}

	pathname := parsedURL.Path
	if pathname == "" {
		pathname = "/"
	}

	return &PageURL{
		Hostname: hostname,
		Pathname: pathname,
		Raw:      urlStr,
	}, nil
}

// IsSelfReferral checks if a referrer hostname matches the website domain.
// Only exact domain matches are considered self-referrals.
func IsSelfReferral(hostname, websiteDomain string) bool {
	if hostname == "" || websiteDomain == "" {
		return false
	}
	return strings.EqualFold(hostname, websiteDomain)
}
