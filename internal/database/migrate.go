package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied in order by Migrate. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS room_states (
		room_id UUID PRIMARY KEY,
		version BIGINT NOT NULL,
		state JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS rooms (
		id UUID PRIMARY KEY,
		kind TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'in_progress',
		start_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		end_time TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS game_actions (
		room_id UUID NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		version BIGINT NOT NULL,
		actor_id UUID NOT NULL,
		action_type TEXT NOT NULL,
		action_payload JSONB,
		recorded_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (room_id, version)
	)`,
	`CREATE INDEX IF NOT EXISTS rooms_status_idx ON rooms (status)`,
}

// Migrate creates the tables used by the Postgres store and the historian.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	return pgx.BeginTxFunc(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for i, stmt := range schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("migration %d: %w", i, err)
			}
		}
		return nil
	})
}
