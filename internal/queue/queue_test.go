package queue_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsetrack/internal/events"
	"pulsetrack/internal/queue"
	"pulsetrack/internal/testsupport"
)

func testRecord(websiteID uint, path string) *events.CanonicalEventRecord {
	return &events.CanonicalEventRecord{
		RecordID:  ulid.Make().String(),
		WebsiteID: websiteID,
		VisitorID: "visitor-1",
		SessionID: "session-1",
		EventType: events.EventTypePageView,
		Hostname:  "example.com",
		Pathname:  path,
		Timestamp: time.Now().UTC(),
	}
}

func TestMemoryEnqueue(t *testing.T) {
	q := queue.NewMemory(2, testsupport.GetLogger())

	require.NoError(t, q.Enqueue(testRecord(1, "/a")))
	require.NoError(t, q.Enqueue(testRecord(1, "/b")))

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 2, q.Capacity())
}

func TestMemoryEnqueueRejectsWhenFull(t *testing.T) {
	q := queue.NewMemory(1, testsupport.GetLogger())

	require.NoError(t, q.Enqueue(testRecord(1, "/a")))
	err := q.Enqueue(testRecord(1, "/b"))
	require.ErrorIs(t, err, events.ErrQueueRejected)
	assert.Equal(t, 1, q.Len(), "the rejected record must not displace staged ones")

	// Draining frees a slot again
	<-q.Records()
	require.NoError(t, q.Enqueue(testRecord(1, "/c")))
}

func TestConsumerFlushesByBatchSize(t *testing.T) {
	dbManager, logger, website := testsupport.SetupTestDBManagerWithWebsite(t, "example.com")
	q := queue.NewMemory(16, logger)

	consumer := queue.NewConsumer(q, dbManager, logger, 3, time.Hour)
	require.NoError(t, consumer.Start())
	defer consumer.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(testRecord(website.ID, fmt.Sprintf("/page-%d", i))))
	}

	db := dbManager.GetConnection()
	require.Eventually(t, func() bool {
		var count int64
		db.Model(&events.Event{}).Count(&count)
		return count == 3
	}, 2*time.Second, 10*time.Millisecond, "a full batch flushes without waiting for the ticker")
}

func TestConsumerFlushesOnInterval(t *testing.T) {
	dbManager, logger, website := testsupport.SetupTestDBManagerWithWebsite(t, "example.com")
	q := queue.NewMemory(16, logger)

	consumer := queue.NewConsumer(q, dbManager, logger, 100, 20*time.Millisecond)
	require.NoError(t, consumer.Start())
	defer consumer.Stop()

	require.NoError(t, q.Enqueue(testRecord(website.ID, "/solo")))

	db := dbManager.GetConnection()
	require.Eventually(t, func() bool {
		var count int64
		db.Model(&events.Event{}).Count(&count)
		return count == 1
	}, 2*time.Second, 10*time.Millisecond)

	var stored events.Event
	require.NoError(t, db.First(&stored).Error)
	assert.Equal(t, website.ID, stored.WebsiteID)
	assert.Equal(t, "/solo", stored.Pathname)
	assert.Equal(t, "session-1", stored.SessionID)
}

func TestConsumerDrainsOnStop(t *testing.T) {
	dbManager, logger, website := testsupport.SetupTestDBManagerWithWebsite(t, "example.com")
	q := queue.NewMemory(16, logger)

	consumer := queue.NewConsumer(q, dbManager, logger, 100, time.Hour)
	require.NoError(t, consumer.Start())

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(testRecord(website.ID, fmt.Sprintf("/page-%d", i))))
	}

	// Neither batch size nor interval triggered, Stop must still persist
	consumer.Stop()

	var count int64
	dbManager.GetConnection().Model(&events.Event{}).Count(&count)
	assert.Equal(t, int64(5), count)
}
