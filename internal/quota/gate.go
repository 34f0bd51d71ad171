// Package quota implements the usage gate: a cheap membership check over the
// set of websites currently past their monthly event limit.
package quota

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"
)

// OverLimitSite is one website flagged as past its monthly quota. Rows are
// written by the scheduled usage accounting job; this package only reads them.
type OverLimitSite struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	WebsiteID uint      `gorm:"uniqueIndex:idx_website_month;not null"`
	Month     string    `gorm:"uniqueIndex:idx_website_month;size:7;not null"` // "2006-01"
	CreatedAt time.Time
}

// CurrentMonth returns the UTC month key rows are scoped by.
func CurrentMonth() string {
	return time.Now().UTC().Format("2006-01")
}

// Gate answers IsOverLimit in O(1) for concurrent request handlers. It fails
// open: until the first successful refresh every website is allowed, because
// rejecting all traffic on a stale set is worse than briefly over-serving.
type Gate struct {
	mu        sync.RWMutex
	overLimit map[uint]struct{}
	loaded    bool
	logger    *slog.Logger
}

// NewGate creates an empty, not yet loaded gate.
func NewGate(logger *slog.Logger) *Gate {
	return &Gate{
		overLimit: make(map[uint]struct{}),
		logger:    logger,
	}
}

// IsOverLimit reports whether the website has exceeded its monthly quota.
// Safe for concurrent use from many request handlers.
func (g *Gate) IsOverLimit(websiteID uint) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.loaded {
		return false
	}
	_, over := g.overLimit[websiteID]
	return over
}

// Refresh reloads the backing set for the current month and swaps it in
// atomically. Readers keep the previous set until the swap.
func (g *Gate) Refresh(db *gorm.DB) error {
	var rows []OverLimitSite
	if err := db.Where("month = ?", CurrentMonth()).Find(&rows).Error; err != nil {
		return fmt.Errorf("failed to load over-limit sites: %w", err)
	}

	fresh := make(map[uint]struct{}, len(rows))
	for _, row := range rows {
		fresh[row.WebsiteID] = struct{}{}
	}

	g.mu.Lock()
	g.overLimit = fresh
	g.loaded = true
	g.mu.Unlock()

	g.logger.Debug("Usage gate refreshed", slog.Int("over_limit_sites", len(fresh)))
	return nil
}

// Loaded reports whether at least one refresh has succeeded.
func (g *Gate) Loaded() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.loaded
}

// Size returns the number of currently flagged websites, for health reporting.
func (g *Gate) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.overLimit)
}
