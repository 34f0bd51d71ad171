package quota

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"pulsetrack/internal/pkg/async"
	"pulsetrack/internal/websites"
)

const countWorkers = 4

// monthStart returns the UTC instant the current month began.
func monthStart() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// SyncOverLimitSites recomputes which websites are past their monthly event
// limit and reconciles the over_limit_sites table for the current month.
// Websites with a zero limit are unlimited and never flagged. Rows from past
// months are pruned so the table stays one month deep.
func SyncOverLimitSites(db *gorm.DB, logger *slog.Logger) error {
	month := CurrentMonth()

	var sites []websites.Website
	if err := db.Where("monthly_event_limit > 0").Find(&sites).Error; err != nil {
		return fmt.Errorf("failed to load websites with limits: %w", err)
	}

	// Per-site counts are independent reads, fan them out over a small pool
	since := monthStart()
	tasks := make([]async.Task[int64], 0, len(sites))
	for _, site := range sites {
		site := site
		tasks = append(tasks, async.Task[int64]{
			Name: strconv.FormatUint(uint64(site.ID), 10),
			Execute: func(ctx context.Context) (int64, error) {
				var count int64
				err := db.WithContext(ctx).Table("events").
					Where("website_id = ? AND timestamp >= ?", site.ID, since).
					Count(&count).Error
				return count, err
			},
		})
	}
	results := async.NewPool[int64](countWorkers).Execute(context.Background(), tasks)

	over := make([]uint, 0)
	under := make([]uint, 0)
	for _, site := range sites {
		result, ok := results[strconv.FormatUint(uint64(site.ID), 10)]
		if !ok {
			return fmt.Errorf("missing event count for website %d", site.ID)
		}
		if result.Err != nil {
			return fmt.Errorf("failed to count events for website %d: %w", site.ID, result.Err)
		}
		if result.Value >= site.MonthlyEventLimit {
			over = append(over, site.ID)
		} else {
			under = append(under, site.ID)
		}
	}

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		for _, websiteID := range over {
			err := tx.Exec(`
                INSERT INTO over_limit_sites (website_id, month, created_at)
                VALUES (?, ?, ?)
                ON CONFLICT(website_id, month) DO NOTHING
            `, websiteID, month, time.Now().UTC()).Error
			if err != nil {
				return fmt.Errorf("failed to flag website %d: %w", websiteID, err)
			}
		}

		// Unflag sites whose limit was raised mid-month
		if len(under) > 0 {
			if err := tx.Where("month = ? AND website_id IN ?", month, under).
				Delete(&OverLimitSite{}).Error; err != nil {
				return fmt.Errorf("failed to unflag websites: %w", err)
			}
		}

		if err := tx.Where("month <> ?", month).Delete(&OverLimitSite{}).Error; err != nil {
			return fmt.Errorf("failed to prune stale over-limit rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Debug("Usage accounting synced",
		slog.String("month", month),
		slog.Int("over_limit", len(over)))
	return nil
}
