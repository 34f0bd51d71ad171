package events

import (
	"errors"
	"fmt"
)

// ErrQueueRejected is returned when the ingestion queue cannot take another
// record. The request fails explicitly; events are never dropped silently.
var ErrQueueRejected = errors.New("ingestion queue rejected event")

// ErrBotTraffic is returned when the user agent identifies as an automated
// client. Bot requests are acknowledged but never recorded.
var ErrBotTraffic = errors.New("bot traffic is not tracked")

// ValidationError reports a malformed or missing field in the raw tracking
// input. Requests failing validation are rejected before any state mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid tracking input: %s %s", e.Field, e.Reason)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// OverLimitError reports that the usage gate rejected a website's event
// before any normalization work was done.
type OverLimitError struct {
	WebsiteID uint
}

func (e *OverLimitError) Error() string {
	return fmt.Sprintf("website %d is over its monthly event limit", e.WebsiteID)
}
