// internal/store/postgres.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/partydeck/internal/models"
	"github.com/sirupsen/logrus"
)

// Postgres keeps snapshots in the room_states table. Conditional writes compare the version
// column and every write issues a NOTIFY on the room's channel.
type Postgres struct {
	pool *pgxpool.Pool
	log  logrus.FieldLogger
}

// NewPostgres wraps a connected pool. The room_states table must exist (see database.Migrate).
func NewPostgres(pool *pgxpool.Pool, logger logrus.FieldLogger) *Postgres {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Postgres{pool: pool, log: logger}
}

// notifyChannel is the LISTEN/NOTIFY channel for one room.
func notifyChannel(room uuid.UUID) string {
	return "room_" + room.String()
}

func (p *Postgres) Create(ctx context.Context, st *models.GameState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			INSERT INTO room_states (room_id, version, state, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (room_id) DO NOTHING
		`
		tag, err := tx.Exec(ctx, q, st.RoomID, st.Version, data)
		if err != nil {
			return fmt.Errorf("insert room_states: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrAlreadyExists
		}
		return notify(ctx, tx, st.RoomID, st.Version)
	})
}

func (p *Postgres) Load(ctx context.Context, room uuid.UUID) (*models.GameState, error) {
	var data []byte
	q := `SELECT state FROM room_states WHERE room_id = $1`
	if err := p.pool.QueryRow(ctx, q, room).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select room_states: %w", err)
	}
	var st models.GameState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot for room %s: %w", room, err)
	}
	return &st, nil
}

func (p *Postgres) CompareAndSwap(ctx context.Context, expected int64, next *models.GameState) error {
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			UPDATE room_states
			SET version = $1, state = $2, updated_at = NOW()
			WHERE room_id = $3 AND version = $4
		`
		tag, err := tx.Exec(ctx, q, next.Version, data, next.RoomID, expected)
		if err != nil {
			return fmt.Errorf("update room_states: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM room_states WHERE room_id = $1)`, next.RoomID).Scan(&exists); err != nil {
				return fmt.Errorf("check room_states: %w", err)
			}
			if !exists {
				return ErrNotFound
			}
			return ErrVersionConflict
		}
		return notify(ctx, tx, next.RoomID, next.Version)
	})
}

// notify is delivered when the surrounding transaction commits. The payload is only the version;
// snapshots can exceed the NOTIFY payload limit, so listeners re-read the row.
func notify(ctx context.Context, tx pgx.Tx, room uuid.UUID, version int64) error {
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel(room), fmt.Sprint(version)); err != nil {
		return fmt.Errorf("pg_notify: %w", err)
	}
	return nil
}

func (p *Postgres) Subscribe(ctx context.Context, room uuid.UUID) (<-chan Update, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	listen := "LISTEN " + pgx.Identifier{notifyChannel(room)}.Sanitize()
	if _, err := conn.Exec(ctx, listen); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen for room %s: %w", room, err)
	}

	out := make(chan Update, 1)
	go func() {
		defer close(out)
		defer func() {
			// The connection goes back to the pool, so drop the listener first.
			if _, err := conn.Exec(context.Background(), "UNLISTEN *"); err != nil {
				p.log.WithError(err).Debug("UNLISTEN failed, connection will be discarded")
			}
			conn.Release()
		}()

		var seen int64
		push := func() {
			st, err := p.Load(ctx, room)
			if errors.Is(err, ErrNotFound) {
				return
			}
			if err != nil {
				if ctx.Err() == nil {
					offer(out, Update{Err: err})
				}
				return
			}
			// Several notifications can collapse into one read; skip repeats.
			if st.Version == seen {
				return
			}
			seen = st.Version
			offer(out, Update{State: st})
		}

		push()
		for {
			if _, err := conn.Conn().WaitForNotification(ctx); err != nil {
				if ctx.Err() == nil {
					p.log.WithError(err).WithField("room", room).Warn("Lost LISTEN connection")
					offer(out, Update{Err: err})
				}
				return
			}
			push()
		}
	}()
	return out, nil
}

func (p *Postgres) Delete(ctx context.Context, room uuid.UUID) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM room_states WHERE room_id = $1`, room)
	if err != nil {
		return fmt.Errorf("delete room_states: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
