package quota_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"pulsetrack/internal/events"
	"pulsetrack/internal/quota"
	"pulsetrack/internal/testsupport"
	"pulsetrack/internal/websites"
)

func TestGateFailsOpenBeforeFirstRefresh(t *testing.T) {
	gate := quota.NewGate(testsupport.GetLogger())

	assert.False(t, gate.Loaded())
	assert.False(t, gate.IsOverLimit(1), "an unloaded gate must allow everything")
}

func TestGateRefreshLoadsCurrentMonth(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	gate := quota.NewGate(testsupport.GetLogger())

	require.NoError(t, db.Create(&quota.OverLimitSite{WebsiteID: 7, Month: quota.CurrentMonth()}).Error)
	require.NoError(t, db.Create(&quota.OverLimitSite{WebsiteID: 8, Month: "2020-01"}).Error)

	require.NoError(t, gate.Refresh(db))

	assert.True(t, gate.Loaded())
	assert.True(t, gate.IsOverLimit(7))
	assert.False(t, gate.IsOverLimit(8), "past-month rows do not gate current traffic")
	assert.Equal(t, 1, gate.Size())
}

func TestGateRefreshDropsRecoveredSites(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	gate := quota.NewGate(testsupport.GetLogger())

	row := quota.OverLimitSite{WebsiteID: 7, Month: quota.CurrentMonth()}
	require.NoError(t, db.Create(&row).Error)
	require.NoError(t, gate.Refresh(db))
	require.True(t, gate.IsOverLimit(7))

	require.NoError(t, db.Delete(&row).Error)
	require.NoError(t, gate.Refresh(db))

	assert.False(t, gate.IsOverLimit(7))
	assert.Equal(t, 0, gate.Size())
}

func seedEvents(t *testing.T, db *gorm.DB, websiteID uint, count int, timestamp time.Time) {
	t.Helper()
	for i := 0; i < count; i++ {
		err := db.Create(&events.Event{
			RecordID:  ulid.Make().String(),
			WebsiteID: websiteID,
			VisitorID: fmt.Sprintf("visitor-%d", i),
			SessionID: "session-1",
			Hostname:  "example.com",
			Pathname:  "/",
			EventType: events.EventTypePageView,
			Timestamp: timestamp,
		}).Error
		require.NoError(t, err)
	}
}

func TestSyncOverLimitSitesFlagsAndUnflags(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()
	now := time.Now().UTC()

	capped := websites.Website{Domain: "capped.example", MonthlyEventLimit: 3, CreatedAt: now}
	roomy := websites.Website{Domain: "roomy.example", MonthlyEventLimit: 100, CreatedAt: now}
	unlimited := websites.Website{Domain: "unlimited.example", CreatedAt: now}
	require.NoError(t, db.Create(&capped).Error)
	require.NoError(t, db.Create(&roomy).Error)
	require.NoError(t, db.Create(&unlimited).Error)

	seedEvents(t, db, capped.ID, 3, now)
	seedEvents(t, db, roomy.ID, 2, now)
	seedEvents(t, db, unlimited.ID, 50, now)

	require.NoError(t, quota.SyncOverLimitSites(db, logger))

	var rows []quota.OverLimitSite
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, capped.ID, rows[0].WebsiteID)
	assert.Equal(t, quota.CurrentMonth(), rows[0].Month)

	// Raising the limit mid-month lifts the flag on the next sync
	require.NoError(t, db.Model(&capped).Update("monthly_event_limit", 1000).Error)
	require.NoError(t, quota.SyncOverLimitSites(db, logger))

	var count int64
	require.NoError(t, db.Model(&quota.OverLimitSite{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestSyncOverLimitSitesIgnoresPastMonths(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	now := time.Now().UTC()

	capped := websites.Website{Domain: "capped.example", MonthlyEventLimit: 3, CreatedAt: now}
	require.NoError(t, db.Create(&capped).Error)

	// Plenty of traffic, but all of it before the month boundary
	boundary := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	seedEvents(t, db, capped.ID, 10, boundary.Add(-time.Hour))

	require.NoError(t, quota.SyncOverLimitSites(db, testsupport.GetLogger()))

	var count int64
	require.NoError(t, db.Model(&quota.OverLimitSite{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestSyncOverLimitSitesPrunesStaleMonths(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	require.NoError(t, db.Create(&quota.OverLimitSite{WebsiteID: 42, Month: "2020-01"}).Error)

	require.NoError(t, quota.SyncOverLimitSites(db, testsupport.GetLogger()))

	var count int64
	require.NoError(t, db.Model(&quota.OverLimitSite{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestSyncOverLimitSitesIsIdempotent(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()
	now := time.Now().UTC()

	capped := websites.Website{Domain: "capped.example", MonthlyEventLimit: 1, CreatedAt: now}
	require.NoError(t, db.Create(&capped).Error)
	seedEvents(t, db, capped.ID, 2, now)

	require.NoError(t, quota.SyncOverLimitSites(db, logger))
	require.NoError(t, quota.SyncOverLimitSites(db, logger))

	var count int64
	require.NoError(t, db.Model(&quota.OverLimitSite{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "re-running must not duplicate the flag")
}
