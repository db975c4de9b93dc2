package store

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/partydeck/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(room uuid.UUID, version int64) *models.GameState {
	p1, p2 := uuid.New(), uuid.New()
	return &models.GameState{
		RoomID:      room,
		Kind:        models.GameClash,
		Version:     version,
		PlayerOrder: []uuid.UUID{p1, p2},
		Turn:        int(version),
		Clash: &models.ClashState{
			Hands:     map[uuid.UUID][]models.ClashCard{p1: {}, p2: {}},
			TurnState: models.TurnState{Direction: 1},
		},
	}
}

func nextOf(st *models.GameState) *models.GameState {
	next := st.Clone()
	next.Version++
	next.Turn++
	return next
}

func waitVersion(t *testing.T, ch <-chan Update, version int64) *models.GameState {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case u, ok := <-ch:
			require.True(t, ok, "subscription closed early")
			require.NoError(t, u.Err)
			if u.State.Version == version {
				return u.State
			}
			require.Less(t, u.State.Version, version, "versions never go backwards")
		case <-deadline:
			t.Fatalf("timed out waiting for version %d", version)
			return nil
		}
	}
}

// runStoreContract exercises the behaviour every backend must share.
func runStoreContract(t *testing.T, s Store) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	t.Run("create and load", func(t *testing.T) {
		room := uuid.New()
		_, err := s.Load(ctx, room)
		assert.ErrorIs(t, err, ErrNotFound)

		st := snapshot(room, 1)
		require.NoError(t, s.Create(ctx, st))
		assert.ErrorIs(t, s.Create(ctx, st), ErrAlreadyExists)

		got, err := s.Load(ctx, room)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Version)
		assert.Equal(t, st.PlayerOrder, got.PlayerOrder)
	})

	t.Run("compare and swap", func(t *testing.T) {
		room := uuid.New()
		st := snapshot(room, 1)
		require.NoError(t, s.Create(ctx, st))

		v2 := nextOf(st)
		require.NoError(t, s.CompareAndSwap(ctx, 1, v2))

		stale := nextOf(st)
		assert.ErrorIs(t, s.CompareAndSwap(ctx, 1, stale), ErrVersionConflict)

		got, err := s.Load(ctx, room)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)

		assert.ErrorIs(t, s.CompareAndSwap(ctx, 1, snapshot(uuid.New(), 2)), ErrNotFound)
	})

	t.Run("concurrent writers", func(t *testing.T) {
		room := uuid.New()
		st := snapshot(room, 1)
		require.NoError(t, s.Create(ctx, st))

		var wg sync.WaitGroup
		results := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results <- s.CompareAndSwap(ctx, 1, nextOf(st))
			}()
		}
		wg.Wait()
		close(results)

		wins := 0
		for err := range results {
			if err == nil {
				wins++
				continue
			}
			assert.ErrorIs(t, err, ErrVersionConflict)
		}
		assert.Equal(t, 1, wins, "exactly one conditional write succeeds")
	})

	t.Run("subscribe", func(t *testing.T) {
		room := uuid.New()
		st := snapshot(room, 1)
		require.NoError(t, s.Create(ctx, st))

		subCtx, stop := context.WithCancel(ctx)
		ch, err := s.Subscribe(subCtx, room)
		require.NoError(t, err)
		waitVersion(t, ch, 1)

		v2 := nextOf(st)
		require.NoError(t, s.CompareAndSwap(ctx, 1, v2))
		got := waitVersion(t, ch, 2)
		assert.Equal(t, v2.Turn, got.Turn)

		stop()
		for range ch {
		}
	})

	t.Run("delete", func(t *testing.T) {
		room := uuid.New()
		require.NoError(t, s.Create(ctx, snapshot(room, 1)))
		require.NoError(t, s.Delete(ctx, room))
		_, err := s.Load(ctx, room)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, room), ErrNotFound)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemory())
}

func TestMemoryDeliversLatestOnly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewMemory()
	room := uuid.New()
	st := snapshot(room, 1)
	require.NoError(t, m.Create(ctx, st))

	ch, err := m.Subscribe(ctx, room)
	require.NoError(t, err)

	// Nobody reads while three writes land.
	cur := st
	for i := 0; i < 3; i++ {
		next := nextOf(cur)
		require.NoError(t, m.CompareAndSwap(ctx, cur.Version, next))
		cur = next
	}
	u := <-ch
	assert.Equal(t, int64(4), u.State.Version)
}

func TestMemoryIsolatesCallers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	room := uuid.New()
	st := snapshot(room, 1)
	require.NoError(t, m.Create(ctx, st))

	st.PlayerOrder[0] = uuid.Nil
	got, err := m.Load(ctx, room)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, got.PlayerOrder[0], "stored snapshot is a copy")
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available at %s: %v", addr, err)
	}

	s := NewRedis(rdb, nil)
	s.prefix = "partydeck_test"
	runStoreContract(t, s)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		t.Skipf("postgres not available: %v", err)
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS room_states (
			room_id UUID PRIMARY KEY,
			version BIGINT NOT NULL,
			state JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	require.NoError(t, err)

	runStoreContract(t, NewPostgres(pool, nil))
}
