package historian

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSink writes records into the rooms and game_actions tables (see database.Migrate).
type PGSink struct {
	pool *pgxpool.Pool
}

func NewPGSink(pool *pgxpool.Pool) *PGSink {
	return &PGSink{pool: pool}
}

// WriteBatch inserts every record in one transaction. Records already stored are skipped,
// so the relay and the sessions may both publish the same commit.
func (s *PGSink) WriteBatch(ctx context.Context, recs []GameActionRecord) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range recs {
			if err := insertGameActionTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insert action %s@%d: %w", rec.RoomID, rec.Version, err)
			}
		}
		return nil
	})
}

func insertGameActionTx(ctx context.Context, tx pgx.Tx, rec GameActionRecord) error {
	upsertRoomQ := `
		INSERT INTO rooms (id, kind, status, start_time)
		VALUES ($1, $2, 'in_progress', $3)
		ON CONFLICT (id)
		DO UPDATE SET status = 'in_progress', end_time = NULL
	`
	at := time.UnixMilli(rec.Timestamp)
	if _, err := tx.Exec(ctx, upsertRoomQ, rec.RoomID, string(rec.Kind), at); err != nil {
		return err
	}

	actionInsertQ := `
		INSERT INTO game_actions (room_id, version, actor_id, action_type, action_payload, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (room_id, version) DO NOTHING
	`
	var payload []byte
	if len(rec.Payload) > 0 {
		payload = rec.Payload
	}
	if _, err := tx.Exec(ctx, actionInsertQ, rec.RoomID, rec.Version, rec.Actor, rec.ActionType, payload, at); err != nil {
		return err
	}

	if rec.Finished {
		finalizeQ := `
			UPDATE rooms
			SET status = 'completed', end_time = $2
			WHERE id = $1 AND status = 'in_progress'
		`
		if _, err := tx.Exec(ctx, finalizeQ, rec.RoomID, at); err != nil {
			return err
		}
	}
	return nil
}

// MarkAbandoned closes a room that was still in progress.
func (s *PGSink) MarkAbandoned(ctx context.Context, room uuid.UUID) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			UPDATE rooms
			SET status = 'abandoned', end_time = NOW()
			WHERE id = $1 AND status = 'in_progress'
		`
		_, err := tx.Exec(ctx, q, room)
		return err
	})
}
