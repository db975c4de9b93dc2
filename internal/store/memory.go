// internal/store/memory.go
package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partydeck/internal/models"
)

// Memory is an in-process Store. It backs tests, the simulator and a single relay node.
type Memory struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*models.GameState
	subs  map[uuid.UUID]map[chan Update]struct{}
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		rooms: make(map[uuid.UUID]*models.GameState),
		subs:  make(map[uuid.UUID]map[chan Update]struct{}),
	}
}

func (m *Memory) Create(_ context.Context, st *models.GameState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rooms[st.RoomID]; exists {
		return ErrAlreadyExists
	}
	m.rooms[st.RoomID] = st.Clone()
	m.publish(st.RoomID)
	return nil
}

func (m *Memory) Load(_ context.Context, room uuid.UUID) (*models.GameState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.rooms[room]
	if !ok {
		return nil, ErrNotFound
	}
	return st.Clone(), nil
}

func (m *Memory) CompareAndSwap(_ context.Context, expected int64, next *models.GameState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rooms[next.RoomID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != expected {
		return ErrVersionConflict
	}
	m.rooms[next.RoomID] = next.Clone()
	m.publish(next.RoomID)
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, room uuid.UUID) (<-chan Update, error) {
	ch := make(chan Update, 1)

	m.mu.Lock()
	if m.subs[room] == nil {
		m.subs[room] = make(map[chan Update]struct{})
	}
	m.subs[room][ch] = struct{}{}
	if st, ok := m.rooms[room]; ok {
		offer(ch, Update{State: st.Clone()})
	}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs[room], ch)
		if len(m.subs[room]) == 0 {
			delete(m.subs, room)
		}
		close(ch)
	}()
	return ch, nil
}

func (m *Memory) Delete(_ context.Context, room uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[room]; !ok {
		return ErrNotFound
	}
	delete(m.rooms, room)
	return nil
}

// publish fans the current snapshot out to every subscriber. Assumes lock is held.
func (m *Memory) publish(room uuid.UUID) {
	st := m.rooms[room]
	for ch := range m.subs[room] {
		offer(ch, Update{State: st.Clone()})
	}
}
