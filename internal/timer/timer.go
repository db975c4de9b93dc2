// internal/timer/timer.go
package timer

import (
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Key identifies one turn's countdown. Turn is the snapshot's turn generation.
type Key struct {
	Room   uuid.UUID
	Player uuid.UUID
	Turn   int
}

// Func is invoked when a countdown expires.
type Func func(Key)

type entry struct {
	key   Key
	timer *time.Timer
}

// Scheduler owns at most one pending countdown per room.
// Scheduling a new turn replaces the previous one, so a callback never fires for a turn that has moved on.
type Scheduler struct {
	mu      sync.Mutex
	pending map[uuid.UUID]*entry
	now     func() time.Time
}

// NewScheduler returns an empty Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		pending: make(map[uuid.UUID]*entry),
		now:     time.Now,
	}
}

// Schedule arms a countdown for key that fires fn at deadline.
// Any countdown already pending for the same room is stopped first.
// Re-scheduling the exact key that is already pending keeps the existing countdown.
func (s *Scheduler) Schedule(key Key, deadline time.Time, fn Func) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.pending[key.Room]; ok {
		if prev.key == key {
			return
		}
		prev.timer.Stop()
	}

	e := &entry{key: key}
	e.timer = time.AfterFunc(deadline.Sub(s.now()), func() {
		// Only the entry still registered for the room may fire.
		s.mu.Lock()
		cur, ok := s.pending[key.Room]
		if !ok || cur != e {
			s.mu.Unlock()
			log.WithFields(log.Fields{"room": key.Room, "turn": key.Turn}).Debug("Stale turn timer fired, ignoring")
			return
		}
		delete(s.pending, key.Room)
		s.mu.Unlock()

		log.WithFields(log.Fields{"room": key.Room, "player": key.Player, "turn": key.Turn}).Info("Turn timer expired")
		fn(key)
	})
	s.pending[key.Room] = e
}

// Cancel stops the pending countdown for room, if any.
func (s *Scheduler) Cancel(room uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.pending[room]; ok {
		e.timer.Stop()
		delete(s.pending, room)
	}
}

// Pending returns the key of the countdown armed for room.
func (s *Scheduler) Pending(room uuid.UUID) (Key, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.pending[room]
	if !ok {
		return Key{}, false
	}
	return e.key, true
}

// Stop cancels every pending countdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for room, e := range s.pending {
		e.timer.Stop()
		delete(s.pending, room)
	}
}
