// internal/store/store.go
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partydeck/internal/models"
)

var (
	ErrNotFound        = errors.New("store: room not found")
	ErrAlreadyExists   = errors.New("store: room already has a game")
	ErrVersionConflict = errors.New("store: snapshot was updated by someone else")
)

// Update is one delivery on a subscription. Err is set when the backend could not
// produce a snapshot; the subscription stays open unless the context ends.
type Update struct {
	State *models.GameState
	Err   error
}

// Store is the shared document every client in a room reads and writes.
//
// Subscriptions deliver only the latest snapshot: a slow reader may miss intermediate
// versions, so consumers must rebuild their view from each delivery. The channel is closed
// once ctx is done.
type Store interface {
	// Create stores the first snapshot of a room.
	Create(ctx context.Context, st *models.GameState) error

	// Load returns the current snapshot of room.
	Load(ctx context.Context, room uuid.UUID) (*models.GameState, error)

	// CompareAndSwap replaces the snapshot only if its stored version is still expected.
	CompareAndSwap(ctx context.Context, expected int64, next *models.GameState) error

	// Subscribe streams the current snapshot and then every later one.
	Subscribe(ctx context.Context, room uuid.UUID) (<-chan Update, error)

	// Delete removes a closed room.
	Delete(ctx context.Context, room uuid.UUID) error
}

// offer replaces whatever is waiting in a latest-only channel with u.
// Only one goroutine may offer on a given channel at a time.
func offer(ch chan Update, u Update) {
	select {
	case <-ch:
	default:
	}
	ch <- u
}
