package sessions_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsetrack/internal/sessions"
	"pulsetrack/internal/testsupport"
)

func baseUpdate(websiteID uint, visitorID, sessionID, path string) sessions.Update {
	return sessions.Update{
		SessionID:       sessionID,
		WebsiteID:       websiteID,
		VisitorID:       visitorID,
		Hostname:        "example.com",
		Timestamp:       time.Now().UTC(),
		Pageviews:       1,
		Pathname:        path,
		DeviceType:      "desktop",
		Browser:         "Chrome",
		OperatingSystem: "Linux",
		Language:        "en-us",
		Referrer:        "google.com",
	}
}

func TestStoreApplyCreatesSession(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	store := sessions.NewStore(db, testsupport.GetLogger())

	sessionID := uuid.NewString()
	require.NoError(t, store.Apply(baseUpdate(1, "visitor-a", sessionID, "/landing")))

	session, err := store.Active(1, "visitor-a")
	require.NoError(t, err)
	require.NotNil(t, session)

	assert.Equal(t, sessionID, session.SessionID)
	assert.Equal(t, 1, session.Pageviews)
	assert.Equal(t, "/landing", session.EntryPage)
	assert.Equal(t, "/landing", session.ExitPage)
	assert.Equal(t, "google.com", session.Referrer)
}

func TestStoreApplyContinuesSession(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	store := sessions.NewStore(db, testsupport.GetLogger())

	firstID := uuid.NewString()
	require.NoError(t, store.Apply(baseUpdate(1, "visitor-a", firstID, "/landing")))

	// A later event carries a fresh candidate id; the existing row must win
	update := baseUpdate(1, "visitor-a", uuid.NewString(), "/pricing")
	update.Timestamp = time.Now().UTC().Add(time.Minute)
	require.NoError(t, store.Apply(update))

	session, err := store.Active(1, "visitor-a")
	require.NoError(t, err)
	require.NotNil(t, session)

	assert.Equal(t, firstID, session.SessionID, "session id must not change mid-visit")
	assert.Equal(t, 2, session.Pageviews)
	assert.Equal(t, "/landing", session.EntryPage, "entry page is fixed at session start")
	assert.Equal(t, "/pricing", session.ExitPage)
	assert.True(t, session.LastActivity.After(session.StartedAt))
}

func TestStoreApplyCustomEventRefreshesWithoutCounting(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	store := sessions.NewStore(db, testsupport.GetLogger())

	sessionID := uuid.NewString()
	require.NoError(t, store.Apply(baseUpdate(1, "visitor-a", sessionID, "/landing")))

	custom := baseUpdate(1, "visitor-a", sessionID, "/landing")
	custom.Pageviews = 0
	custom.Timestamp = time.Now().UTC().Add(30 * time.Second)
	require.NoError(t, store.Apply(custom))

	session, err := store.Active(1, "visitor-a")
	require.NoError(t, err)
	require.NotNil(t, session)

	assert.Equal(t, 1, session.Pageviews, "custom events do not count as page views")
	assert.Equal(t, "/landing", session.ExitPage, "custom events do not advance the exit page")
	assert.WithinDuration(t, custom.Timestamp, session.LastActivity, time.Second)
}

func TestStoreApplyIsolatesVisitorsAndWebsites(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	store := sessions.NewStore(db, testsupport.GetLogger())

	require.NoError(t, store.Apply(baseUpdate(1, "visitor-a", uuid.NewString(), "/")))
	require.NoError(t, store.Apply(baseUpdate(1, "visitor-b", uuid.NewString(), "/")))
	require.NoError(t, store.Apply(baseUpdate(2, "visitor-a", uuid.NewString(), "/")))

	count, err := store.CountActive()
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	a1, err := store.Active(1, "visitor-a")
	require.NoError(t, err)
	a2, err := store.Active(2, "visitor-a")
	require.NoError(t, err)
	assert.NotEqual(t, a1.SessionID, a2.SessionID)
}

func TestStoreApplyConcurrentColdStart(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	store := sessions.NewStore(db, testsupport.GetLogger())

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			update := baseUpdate(1, "visitor-a", uuid.NewString(), fmt.Sprintf("/page-%d", i))
			errs <- store.Apply(update)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	count, err := store.CountActive()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "concurrent first events must converge on one session")

	session, err := store.Active(1, "visitor-a")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, n, session.Pageviews, "no pageview increment may be lost")
}

func TestStoreActiveReturnsNilWhenAbsent(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	store := sessions.NewStore(db, testsupport.GetLogger())

	session, err := store.Active(1, "nobody")
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestStoreDeleteStale(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	store := sessions.NewStore(db, testsupport.GetLogger())

	stale := baseUpdate(1, "visitor-old", uuid.NewString(), "/")
	stale.Timestamp = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.Apply(stale))

	fresh := baseUpdate(1, "visitor-new", uuid.NewString(), "/")
	require.NoError(t, store.Apply(fresh))

	deleted, err := store.DeleteStale(30*time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	gone, err := store.Active(1, "visitor-old")
	require.NoError(t, err)
	assert.Nil(t, gone, "expired session must be retired")

	kept, err := store.Active(1, "visitor-new")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestStoreDeleteStaleBatches(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	store := sessions.NewStore(db, testsupport.GetLogger())

	for i := 0; i < 7; i++ {
		update := baseUpdate(1, fmt.Sprintf("visitor-%d", i), uuid.NewString(), "/")
		update.Timestamp = time.Now().UTC().Add(-time.Hour)
		require.NoError(t, store.Apply(update))
	}

	deleted, err := store.DeleteStale(30*time.Minute, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)

	count, err := store.CountActive()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
