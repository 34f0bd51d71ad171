package events_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsetrack/internal/events"
	"pulsetrack/internal/queue"
	"pulsetrack/internal/quota"
	"pulsetrack/internal/sessions"
	"pulsetrack/internal/testsupport"
	"pulsetrack/internal/websites"
)

type pipeline struct {
	collector *events.Collector
	queue     *queue.Memory
	store     *sessions.Store
	gate      *quota.Gate
	website   websites.Website
}

func setupPipeline(t *testing.T, queueCapacity int, excludedIP func(string) bool) *pipeline {
	t.Helper()

	dbManager, logger, website := testsupport.SetupTestDBManagerWithWebsite(t, "example.com")

	gate := quota.NewGate(logger)
	memoryQueue := queue.NewMemory(queueCapacity, logger)
	store := sessions.NewStore(dbManager.GetConnection(), logger)
	normalizer := testsupport.NewTestNormalizer(time.Now().UTC())

	collector := events.NewCollector(dbManager, logger, gate, memoryQueue, normalizer, store, excludedIP)

	return &pipeline{
		collector: collector,
		queue:     memoryQueue,
		store:     store,
		gate:      gate,
		website:   website,
	}
}

func pageView(path string) *events.CollectEventInput {
	return testsupport.CreateTestCollectInput("93.184.216.34", chromeLinuxUA,
		testsupport.CreateTestRawInput("example.com", path))
}

func TestCollectSingleEvent(t *testing.T) {
	p := setupPipeline(t, 16, nil)

	require.NoError(t, p.collector.Collect(pageView("/landing")))

	assert.Equal(t, 1, p.queue.Len(), "the canonical record must be enqueued")

	record := <-p.queue.Records()
	assert.Equal(t, p.website.ID, record.WebsiteID)
	assert.Equal(t, "/landing", record.Pathname)
	require.NotEmpty(t, record.SessionID)

	session, err := p.store.Active(p.website.ID, record.VisitorID)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, record.SessionID, session.SessionID, "queued record and session must agree on the id")
	assert.Equal(t, 1, session.Pageviews)
}

func TestCollectContinuesSessionAcrossEvents(t *testing.T) {
	p := setupPipeline(t, 16, nil)

	require.NoError(t, p.collector.Collect(pageView("/landing")))
	require.NoError(t, p.collector.Collect(pageView("/pricing")))

	first := <-p.queue.Records()
	second := <-p.queue.Records()

	assert.Equal(t, first.SessionID, second.SessionID, "both events belong to one visit")

	session, err := p.store.Active(p.website.ID, first.VisitorID)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, 2, session.Pageviews)
	assert.Equal(t, "/pricing", session.ExitPage)
}

func TestCollectConcurrentColdStartConvergesOnOneSession(t *testing.T) {
	p := setupPipeline(t, 64, nil)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- p.collector.Collect(pageView("/landing"))
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, n, p.queue.Len())

	sessionIDs := make(map[string]struct{})
	visitorID := ""
	for i := 0; i < n; i++ {
		record := <-p.queue.Records()
		sessionIDs[record.SessionID] = struct{}{}
		visitorID = record.VisitorID
	}
	assert.Len(t, sessionIDs, 1, "every concurrent event must carry the same session id")

	count, err := p.store.CountActive()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	session, err := p.store.Active(p.website.ID, visitorID)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, n, session.Pageviews)
}

func TestCollectUnknownWebsite(t *testing.T) {
	p := setupPipeline(t, 16, nil)

	input := testsupport.CreateTestCollectInput("93.184.216.34", chromeLinuxUA,
		testsupport.CreateTestRawInput("unregistered.io", "/"))

	err := p.collector.Collect(input)
	var notFound *websites.WebsiteNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, 0, p.queue.Len())
}

func TestCollectSubdomainResolvesToRegisteredBase(t *testing.T) {
	p := setupPipeline(t, 16, nil)

	input := testsupport.CreateTestCollectInput("93.184.216.34", chromeLinuxUA,
		testsupport.CreateTestRawInput("blog.example.com", "/post"))

	require.NoError(t, p.collector.Collect(input))

	record := <-p.queue.Records()
	assert.Equal(t, p.website.ID, record.WebsiteID)
	assert.Equal(t, "blog.example.com", record.Hostname, "the event keeps the real hostname")
}

func TestCollectOverLimitRejected(t *testing.T) {
	p := setupPipeline(t, 16, nil)

	db := testsupport.SetupTestDB(t)
	require.NoError(t, db.Create(&quota.OverLimitSite{
		WebsiteID: p.website.ID,
		Month:     quota.CurrentMonth(),
	}).Error)
	require.NoError(t, p.gate.Refresh(db))

	err := p.collector.Collect(pageView("/landing"))
	var overLimit *events.OverLimitError
	require.ErrorAs(t, err, &overLimit)
	assert.Equal(t, p.website.ID, overLimit.WebsiteID)
	assert.Equal(t, 0, p.queue.Len(), "gated events never reach the queue")

	count, err := p.store.CountActive()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count, "gated events never touch sessions")
}

func TestCollectGateFailsOpenBeforeFirstRefresh(t *testing.T) {
	p := setupPipeline(t, 16, nil)

	// Over-limit row exists but the gate has not loaded it yet
	db := testsupport.SetupTestDB(t)
	require.NoError(t, db.Create(&quota.OverLimitSite{
		WebsiteID: p.website.ID,
		Month:     quota.CurrentMonth(),
	}).Error)

	require.NoError(t, p.collector.Collect(pageView("/landing")))
	assert.Equal(t, 1, p.queue.Len())
}

func TestCollectQueueFull(t *testing.T) {
	p := setupPipeline(t, 1, nil)

	require.NoError(t, p.collector.Collect(pageView("/one")))

	err := p.collector.Collect(pageView("/two"))
	require.ErrorIs(t, err, events.ErrQueueRejected)

	// The rejected event must not have mutated the session either way:
	// enqueue happens before apply, so a rejection leaves pageviews as-is
	record := <-p.queue.Records()
	session, err := p.store.Active(p.website.ID, record.VisitorID)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, 1, session.Pageviews)
}

func TestCollectExcludedIPIsDropped(t *testing.T) {
	p := setupPipeline(t, 16, func(ip string) bool { return ip == "93.184.216.34" })

	require.NoError(t, p.collector.Collect(pageView("/landing")))

	assert.Equal(t, 0, p.queue.Len(), "excluded traffic is acknowledged but never recorded")
	count, err := p.store.CountActive()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestCollectBotRejected(t *testing.T) {
	p := setupPipeline(t, 16, nil)

	input := testsupport.CreateTestCollectInput("93.184.216.34", googlebotUA,
		testsupport.CreateTestRawInput("example.com", "/"))

	err := p.collector.Collect(input)
	require.ErrorIs(t, err, events.ErrBotTraffic)
	assert.Equal(t, 0, p.queue.Len())
}

func TestCollectCustomEventSharesSession(t *testing.T) {
	p := setupPipeline(t, 16, nil)

	require.NoError(t, p.collector.Collect(pageView("/pricing")))

	custom := testsupport.CreateTestRawInput("example.com", "/pricing")
	custom.EventName = "demo_requested"
	require.NoError(t, p.collector.Collect(
		testsupport.CreateTestCollectInput("93.184.216.34", chromeLinuxUA, custom)))

	first := <-p.queue.Records()
	second := <-p.queue.Records()
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, events.EventTypeCustomEvent, second.EventType)

	session, err := p.store.Active(p.website.ID, first.VisitorID)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, 1, session.Pageviews, "the custom event refreshed activity without counting")
}

func TestCollectMixedVisitJourney(t *testing.T) {
	p := setupPipeline(t, 16, nil)

	require.NoError(t, p.collector.Collect(pageView("/pricing")))

	clicked := testsupport.CreateTestRawInput("example.com", "/pricing")
	clicked.EventName = "signup_clicked"
	require.NoError(t, p.collector.Collect(
		testsupport.CreateTestCollectInput("93.184.216.34", chromeLinuxUA, clicked)))

	require.NoError(t, p.collector.Collect(pageView("/thank-you")))

	first := <-p.queue.Records()
	second := <-p.queue.Records()
	third := <-p.queue.Records()
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, first.SessionID, third.SessionID)

	count, err := p.store.CountActive()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	session, err := p.store.Active(p.website.ID, first.VisitorID)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, 2, session.Pageviews, "only pageviews count toward the total")
	assert.Equal(t, "/pricing", session.EntryPage)
	assert.Equal(t, "/thank-you", session.ExitPage)
}
