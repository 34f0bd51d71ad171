package queue

import (
	"log/slog"
	"sync"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"pulsetrack/internal/events"
)

// Consumer drains the ingestion queue into the durable events table. Records
// are written in batches: a batch flushes when it reaches batchSize or when
// flushEvery elapses, whichever comes first. Implements
// cartridge.BackgroundWorker so the application shell owns its lifecycle.
type Consumer struct {
	queue      *Memory
	dbManager  cartridge.DBManager
	logger     *slog.Logger
	batchSize  int
	flushEvery time.Duration

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

// NewConsumer creates a consumer for the given queue.
func NewConsumer(q *Memory, dbManager cartridge.DBManager, logger *slog.Logger, batchSize int, flushEvery time.Duration) *Consumer {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Consumer{
		queue:      q,
		dbManager:  dbManager,
		logger:     logger,
		batchSize:  batchSize,
		flushEvery: flushEvery,
		stopped:    make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the drain loop.
func (c *Consumer) Start() error {
	go c.run()
	c.logger.Info("Ingestion queue consumer started",
		slog.Int("batch_size", c.batchSize),
		slog.Duration("flush_every", c.flushEvery))
	return nil
}

// Stop signals the drain loop and waits for the remaining buffer to be
// persisted. Accepted events survive a graceful shutdown.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopped)
	})
	<-c.done
	c.logger.Info("Ingestion queue consumer stopped")
}

func (c *Consumer) run() {
	defer close(c.done)

	ticker := time.NewTicker(c.flushEvery)
	defer ticker.Stop()

	batch := make([]*events.CanonicalEventRecord, 0, c.batchSize)

	for {
		select {
		case record := <-c.queue.Records():
			batch = append(batch, record)
			if len(batch) >= c.batchSize {
				c.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				c.flush(batch)
				batch = batch[:0]
			}
		case <-c.stopped:
			// Drain whatever the handlers managed to enqueue before shutdown
			for {
				select {
				case record := <-c.queue.Records():
					batch = append(batch, record)
				default:
					if len(batch) > 0 {
						c.flush(batch)
					}
					return
				}
			}
		}
	}
}

// flush persists one batch. A failed batch is logged and dropped - the
// request was already acknowledged, and retrying here would head-of-line
// block every later event behind a poison record.
func (c *Consumer) flush(batch []*events.CanonicalEventRecord) {
	rows := make([]*events.Event, 0, len(batch))
	for _, record := range batch {
		rows = append(rows, record.StoredEvent())
	}

	db := c.dbManager.GetConnection()
	err := sqlite.PerformWrite(c.logger, db, func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
	if err != nil {
		c.logger.Error("Failed to persist event batch",
			slog.Int("batch_size", len(batch)),
			slog.Any("error", err))
		return
	}

	c.logger.Debug("Persisted event batch", slog.Int("count", len(rows)))
}
