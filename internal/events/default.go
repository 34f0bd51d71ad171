package events

import (
	"errors"
	"sync"
)

var (
	defaultMu        sync.RWMutex
	defaultCollector *Collector
)

// ErrPipelineNotReady is returned when Collect is called before the
// application wired the default collector.
var ErrPipelineNotReady = errors.New("ingestion pipeline not initialized")

// SetDefaultCollector installs the process-wide collector used by the HTTP
// handlers. Called once during application startup.
func SetDefaultCollector(c *Collector) {
	defaultMu.Lock()
	defaultCollector = c
	defaultMu.Unlock()
}

// Collect runs the default pipeline for one tracking request.
func Collect(input *CollectEventInput) error {
	defaultMu.RLock()
	c := defaultCollector
	defaultMu.RUnlock()

	if c == nil {
		return ErrPipelineNotReady
	}
	return c.Collect(input)
}
