// internal/store/redis.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partydeck/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultKeyPrefix namespaces every key the Redis store writes.
const DefaultKeyPrefix = "partydeck"

// Redis keeps each room's snapshot as a JSON string and announces writes on a pub/sub channel.
// Writes are conditional through WATCH/MULTI on the room key.
type Redis struct {
	rdb    *redis.Client
	prefix string
	log    logrus.FieldLogger
}

// NewRedis wraps a connected client.
func NewRedis(rdb *redis.Client, logger logrus.FieldLogger) *Redis {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Redis{rdb: rdb, prefix: DefaultKeyPrefix, log: logger}
}

func (r *Redis) key(room uuid.UUID) string {
	return fmt.Sprintf("%s:room:%s", r.prefix, room)
}

func (r *Redis) channel(room uuid.UUID) string {
	return fmt.Sprintf("%s:room:%s:updates", r.prefix, room)
}

func (r *Redis) Create(ctx context.Context, st *models.GameState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	ok, err := r.rdb.SetNX(ctx, r.key(st.RoomID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to SETNX room %s: %w", st.RoomID, err)
	}
	if !ok {
		return ErrAlreadyExists
	}
	if err := r.rdb.Publish(ctx, r.channel(st.RoomID), data).Err(); err != nil {
		r.log.WithError(err).WithField("room", st.RoomID).Warn("Failed to publish new room snapshot")
	}
	return nil
}

func (r *Redis) Load(ctx context.Context, room uuid.UUID) (*models.GameState, error) {
	return r.load(ctx, r.rdb, room)
}

func (r *Redis) load(ctx context.Context, c redis.Cmdable, room uuid.UUID) (*models.GameState, error) {
	data, err := c.Get(ctx, r.key(room)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to GET room %s: %w", room, err)
	}
	var st models.GameState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot for room %s: %w", room, err)
	}
	return &st, nil
}

func (r *Redis) CompareAndSwap(ctx context.Context, expected int64, next *models.GameState) error {
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	key := r.key(next.RoomID)

	err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := r.load(ctx, tx, next.RoomID)
		if err != nil {
			return err
		}
		if cur.Version != expected {
			return ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.Publish(ctx, r.channel(next.RoomID), data)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		// Someone wrote between WATCH and EXEC.
		return ErrVersionConflict
	}
	return err
}

func (r *Redis) Subscribe(ctx context.Context, room uuid.UUID) (<-chan Update, error) {
	sub := r.rdb.Subscribe(ctx, r.channel(room))
	// Wait for the subscription to be confirmed so no write after this call is missed.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe to room %s: %w", room, err)
	}

	out := make(chan Update, 1)
	go func() {
		defer close(out)
		defer sub.Close()

		if st, err := r.Load(ctx, room); err == nil {
			offer(out, Update{State: st})
		} else if !errors.Is(err, ErrNotFound) {
			offer(out, Update{Err: err})
		}

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var st models.GameState
				if err := json.Unmarshal([]byte(msg.Payload), &st); err != nil {
					offer(out, Update{Err: fmt.Errorf("failed to unmarshal published snapshot: %w", err)})
					continue
				}
				offer(out, Update{State: &st})
			}
		}
	}()
	return out, nil
}

func (r *Redis) Delete(ctx context.Context, room uuid.UUID) error {
	n, err := r.rdb.Del(ctx, r.key(room)).Result()
	if err != nil {
		return fmt.Errorf("failed to DEL room %s: %w", room, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
