package historian

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jason-s-yu/partydeck/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultQueueName is the Redis list (queue) name for game action logs.
const DefaultQueueName = "partydeck_actions"

// Publisher pushes action records onto the historian's Redis queue.
type Publisher struct {
	rdb   redis.Cmdable
	queue string
	log   logrus.FieldLogger
}

// NewPublisher creates a publisher for queue, or DefaultQueueName if queue is empty.
func NewPublisher(rdb redis.Cmdable, queue string, logger logrus.FieldLogger) *Publisher {
	if queue == "" {
		queue = DefaultQueueName
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Publisher{rdb: rdb, queue: queue, log: logger}
}

// Publish serializes rec to JSON, then pushes it to the Redis queue.
func (p *Publisher) Publish(ctx context.Context, rec GameActionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal GameActionRecord: %w", err)
	}
	if err := p.rdb.RPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.queue, err)
	}
	return nil
}

// OnCommit records a snapshot accepted by the relay. Its signature matches handlers.CommitHook.
func (p *Publisher) OnCommit(ctx context.Context, _, next *models.GameState) {
	p.publishState(ctx, next)
}

// OnAction records a snapshot committed by a local session. Its signature matches statesync.ActionHook.
func (p *Publisher) OnAction(ctx context.Context, st *models.GameState, _ models.GameAction) {
	p.publishState(ctx, st)
}

func (p *Publisher) publishState(ctx context.Context, st *models.GameState) {
	rec := RecordFor(st)
	if err := p.Publish(ctx, rec); err != nil {
		p.log.WithError(err).WithFields(logrus.Fields{
			"room":    rec.RoomID,
			"version": rec.Version,
		}).Warn("Failed to publish game action")
	}
}
