package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Sink persists drained records.
type Sink interface {
	WriteBatch(ctx context.Context, recs []GameActionRecord) error
	MarkAbandoned(ctx context.Context, room uuid.UUID) error
}

// Options tunes a Service. Zero values fall back to the defaults below.
type Options struct {
	Queue      string
	BatchSize  int           // default 20
	FlushDelay time.Duration // default 500ms
	Inactivity time.Duration // default 10 minutes
	Logger     logrus.FieldLogger
}

// Service drains the action queue into a Sink in batches and marks rooms abandoned once
// no action has arrived for the inactivity window.
type Service struct {
	rdb  redis.Cmdable
	sink Sink
	log  logrus.FieldLogger
	now  func() time.Time

	queue      string
	batchSize  int
	flushDelay time.Duration
	inactivity time.Duration

	lastActivity sync.Map // map[uuid.UUID]time.Time

	batchMu sync.Mutex
	batch   []GameActionRecord
}

// NewService constructs a Service reading from rdb and writing to sink.
func NewService(rdb redis.Cmdable, sink Sink, opts Options) *Service {
	if opts.Queue == "" {
		opts.Queue = DefaultQueueName
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = 500 * time.Millisecond
	}
	if opts.Inactivity <= 0 {
		opts.Inactivity = 10 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Service{
		rdb:        rdb,
		sink:       sink,
		log:        opts.Logger,
		now:        time.Now,
		queue:      opts.Queue,
		batchSize:  opts.BatchSize,
		flushDelay: opts.FlushDelay,
		inactivity: opts.Inactivity,
		batch:      make([]GameActionRecord, 0, opts.BatchSize),
	}
}

// Run consumes the queue until ctx is done, then flushes whatever is still buffered.
func (hs *Service) Run(ctx context.Context) {
	hs.log.WithField("queue", hs.queue).Info("Historian service started")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		hs.inactivityLoop(ctx)
	}()

	hs.readRedisLoop(ctx)
	wg.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hs.Flush(flushCtx)
	hs.log.Info("Historian service stopped")
}

// readRedisLoop pops records with BLPop, flushing on every tick of flushDelay.
func (hs *Service) readRedisLoop(ctx context.Context) {
	ticker := time.NewTicker(hs.flushDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hs.Flush(ctx)
		default:
			// The BLPop timeout bounds how long a cancellation or a due flush can wait.
			res, err := hs.rdb.BLPop(ctx, hs.flushDelay, hs.queue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					hs.log.WithError(err).Error("BLPop failed")
					time.Sleep(hs.flushDelay)
				}
				continue
			}
			if len(res) < 2 {
				continue
			}

			// res[0] is the queue name and res[1] the payload.
			var rec GameActionRecord
			if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
				hs.log.WithError(err).Warn("Invalid action record")
				continue
			}
			hs.Ingest(ctx, rec)
		}
	}
}

// Ingest buffers rec and flushes once the batch is full.
func (hs *Service) Ingest(ctx context.Context, rec GameActionRecord) {
	if rec.Finished {
		hs.lastActivity.Delete(rec.RoomID)
	} else {
		hs.lastActivity.Store(rec.RoomID, hs.now())
	}

	hs.batchMu.Lock()
	hs.batch = append(hs.batch, rec)
	full := len(hs.batch) >= hs.batchSize
	hs.batchMu.Unlock()

	if full {
		hs.Flush(ctx)
	}
}

// Flush writes the buffered batch to the sink. A failed batch is kept for the next flush.
func (hs *Service) Flush(ctx context.Context) {
	hs.batchMu.Lock()
	if len(hs.batch) == 0 {
		hs.batchMu.Unlock()
		return
	}
	pending := hs.batch
	hs.batch = make([]GameActionRecord, 0, hs.batchSize)
	hs.batchMu.Unlock()

	if err := hs.sink.WriteBatch(ctx, pending); err != nil {
		hs.log.WithError(err).WithField("count", len(pending)).Error("Failed to flush actions")
		hs.batchMu.Lock()
		hs.batch = append(pending, hs.batch...)
		hs.batchMu.Unlock()
		return
	}
	hs.log.WithField("count", len(pending)).Debug("Flushed actions")
}

// Pending returns the number of buffered records.
func (hs *Service) Pending() int {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()
	return len(hs.batch)
}

func (hs *Service) inactivityLoop(ctx context.Context) {
	interval := hs.inactivity / 10
	if interval < time.Second {
		interval = time.Second
	}
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hs.SweepInactive(ctx)
		}
	}
}

// SweepInactive marks every room idle for longer than the inactivity window as abandoned.
func (hs *Service) SweepInactive(ctx context.Context) {
	now := hs.now()
	hs.lastActivity.Range(func(key, val interface{}) bool {
		room, ok1 := key.(uuid.UUID)
		last, ok2 := val.(time.Time)
		if !ok1 || !ok2 || now.Sub(last) <= hs.inactivity {
			return true
		}
		// Buffered actions must land before the room row is closed.
		hs.Flush(ctx)
		if err := hs.sink.MarkAbandoned(ctx, room); err != nil {
			hs.log.WithError(err).WithField("room", room).Error("Failed to mark room abandoned")
			return true
		}
		hs.lastActivity.Delete(room)
		hs.log.WithField("room", room).Info("Marked room as abandoned due to inactivity")
		return true
	})
}
