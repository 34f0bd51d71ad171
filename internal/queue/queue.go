// Package queue decouples request handling from durable event storage: a
// bounded in-process handoff that request handlers produce into and a single
// background consumer drains into the events table in batches.
package queue

import (
	"log/slog"

	"pulsetrack/internal/events"
)

// Memory is a bounded, channel-backed ingestion queue. Enqueue never blocks:
// a full queue rejects the record so the request path can fail explicitly
// instead of stalling on downstream storage.
type Memory struct {
	records  chan *events.CanonicalEventRecord
	capacity int
	logger   *slog.Logger
}

// NewMemory creates a queue holding at most capacity records.
func NewMemory(capacity int, logger *slog.Logger) *Memory {
	return &Memory{
		records:  make(chan *events.CanonicalEventRecord, capacity),
		capacity: capacity,
		logger:   logger,
	}
}

// Enqueue stages a canonical record for durable storage. Returns
// events.ErrQueueRejected immediately when the queue is full.
func (q *Memory) Enqueue(record *events.CanonicalEventRecord) error {
	select {
	case q.records <- record:
		return nil
	default:
		q.logger.Warn("Ingestion queue full, rejecting event",
			slog.Int("capacity", q.capacity),
			slog.Uint64("website_id", uint64(record.WebsiteID)))
		return events.ErrQueueRejected
	}
}

// Records exposes the consumer side of the queue.
func (q *Memory) Records() <-chan *events.CanonicalEventRecord {
	return q.records
}

// Len returns the number of records currently staged.
func (q *Memory) Len() int {
	return len(q.records)
}

// Capacity returns the maximum number of staged records.
func (q *Memory) Capacity() int {
	return q.capacity
}
