// internal/statesync/session.go
package statesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partydeck/internal/game"
	"github.com/jason-s-yu/partydeck/internal/models"
	"github.com/jason-s-yu/partydeck/internal/store"
	"github.com/jason-s-yu/partydeck/internal/timer"
	"github.com/sirupsen/logrus"
)

var (
	// ErrTransport wraps every failure to read or write the shared state.
	ErrTransport = errors.New("statesync: shared state unavailable")

	// ErrNoGame is returned when the room has no snapshot yet.
	ErrNoGame = errors.New("statesync: room has no game")

	// ErrNoIntent is returned by ChooseColor when no wild card is waiting for a color.
	ErrNoIntent = errors.New("statesync: no card is waiting for a color")
)

// ActionHook observes every snapshot this session commits, together with the action that produced it.
type ActionHook func(ctx context.Context, st *models.GameState, action models.GameAction)

// Session is one client's connection to a room's shared game state.
//
// Every mutation reads the latest snapshot, applies the action with the game machine and
// writes the result with a version-checked write. Every snapshot that arrives, whether written
// here or by another client, replaces the local view wholesale.
type Session struct {
	room    uuid.UUID
	me      uuid.UUID
	store   store.Store
	machine game.Machine
	timers  *timer.Scheduler
	log     logrus.FieldLogger
	now     func() time.Time
	hooks   []ActionHook

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	state    *models.GameState
	intent   *PendingIntent
	driving  bool
	onChange []func(View)
}

// Option configures a Session.
type Option func(*Session)

// WithScheduler shares a timer scheduler. Sessions for the same room need separate schedulers.
func WithScheduler(s *timer.Scheduler) Option {
	return func(sess *Session) { sess.timers = s }
}

// WithLogger sets the session logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(sess *Session) { sess.log = l }
}

// WithClock overrides the clock used for view countdowns and timer deadlines.
func WithClock(now func() time.Time) Option {
	return func(sess *Session) { sess.now = now }
}

// WithActionHook registers a hook that runs after every successful commit.
func WithActionHook(h ActionHook) Option {
	return func(sess *Session) { sess.hooks = append(sess.hooks, h) }
}

// New creates a session for player me in room. Call Start to begin following the room.
func New(st store.Store, m game.Machine, room, me uuid.UUID, opts ...Option) *Session {
	s := &Session{
		room:    room,
		me:      me,
		store:   st,
		machine: m,
		log:     logrus.StandardLogger(),
		now:     time.Now,
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.timers == nil {
		s.timers = timer.NewScheduler()
	}
	s.log = s.log.WithFields(logrus.Fields{"room": room, "player": me})
	return s
}

// Host deals a new match and stores it as the room's first snapshot.
func Host(ctx context.Context, st store.Store, m game.Machine, room uuid.UUID, players []uuid.UUID) (*models.GameState, error) {
	snap, err := m.NewMatch(room, players)
	if err != nil {
		return nil, err
	}
	if err := st.Create(ctx, snap); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return snap, nil
}

// Start subscribes to the room. Snapshots are applied until ctx ends or Close is called.
func (s *Session) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	updates, err := s.store.Subscribe(runCtx, s.room)
	if err != nil {
		cancel()
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	s.mu.Lock()
	s.ctx, s.cancel = runCtx, cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.timers.Cancel(s.room)
		for u := range updates {
			if u.Err != nil {
				s.log.WithError(u.Err).Warn("Subscription error")
				continue
			}
			s.accept(u.State)
		}
	}()
	return nil
}

// Close stops following the room. Local view state is discarded with the session.
func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.timers.Cancel(s.room)
	s.wg.Wait()
}

// OnChange registers fn to receive every new view.
func (s *Session) OnChange(fn func(View)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// View derives the current view.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// State returns a copy of the latest snapshot seen, or nil.
func (s *Session) State() *models.GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *Session) viewLocked() View {
	v := Derive(s.state, s.me, s.now())
	if s.intent != nil {
		in := *s.intent
		v.PendingIntent = &in
	}
	return v
}

// accept installs st if it is newer than what the session holds and rebuilds everything derived from it.
func (s *Session) accept(st *models.GameState) {
	if st == nil {
		return
	}
	s.mu.Lock()
	if s.state != nil && st.Version <= s.state.Version {
		s.mu.Unlock()
		return
	}
	s.state = st.Clone()
	if s.intent != nil && s.intent.Turn != st.Turn {
		s.intent = nil
	}
	s.armTimerLocked()
	s.maybeDriveLocked()
	v := s.viewLocked()
	listeners := append(([]func(View))(nil), s.onChange...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(v)
	}
}

// armTimerLocked schedules the timeout for the turn in force. The player who owns the turn fires
// at the deadline; everyone else waits out the grace period first, so a disconnected player's
// turn still ends.
func (s *Session) armTimerLocked() {
	st := s.state
	current, ok := st.CurrentPlayer()
	if !ok || st.TurnDeadline.IsZero() {
		s.timers.Cancel(s.room)
		return
	}
	if _, auto := s.machine.TimeoutAction(st); !auto {
		s.timers.Cancel(s.room)
		return
	}
	deadline := st.TurnDeadline
	if current != s.me {
		deadline = deadline.Add(s.machine.Rules().TimeoutGrace())
	}
	s.timers.Schedule(timer.Key{Room: s.room, Player: current, Turn: st.Turn}, deadline, s.onTimeout)
}

func (s *Session) onTimeout(key timer.Key) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	_, err := s.Do(ctx, models.GameAction{ActionType: models.ActionTimeout, Actor: s.me, Turn: key.Turn})
	switch {
	case err == nil:
		s.log.WithField("turn", key.Turn).Info("Applied timeout action")
	case errors.Is(err, game.ErrStaleTurn), errors.Is(err, game.ErrGameOver):
		s.log.WithField("turn", key.Turn).Debug("Timeout already handled by another client")
	default:
		s.log.WithError(err).WithField("turn", key.Turn).Warn("Timeout action failed")
	}
}

// Do commits action against the latest snapshot. Rule violations are returned as is and write
// nothing. A version conflict re-reads and re-applies up to Rules.MaxAttempts times.
func (s *Session) Do(ctx context.Context, action models.GameAction) (*models.GameState, error) {
	if action.Actor == uuid.Nil {
		action.Actor = s.me
	}
	attempts := s.machine.Rules().MaxAttempts
	var lastErr error
	for i := 0; i < attempts; i++ {
		cur, err := s.store.Load(ctx, s.room)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoGame
		}
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrTransport, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		s.accept(cur)

		next, err := s.machine.Apply(cur, action)
		if err != nil {
			return nil, err
		}

		err = s.store.CompareAndSwap(ctx, cur.Version, next)
		if err == nil {
			s.accept(next)
			for _, h := range s.hooks {
				h(ctx, next, action)
			}
			return next, nil
		}
		if errors.Is(err, store.ErrVersionConflict) {
			s.log.WithFields(logrus.Fields{"action": action.ActionType, "version": cur.Version, "attempt": i + 1}).Debug("Lost write race, retrying")
			lastErr = err
			continue
		}
		lastErr = fmt.Errorf("%w: %v", ErrTransport, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%s failed after %d attempts: %w", action.ActionType, attempts, lastErr)
}

// PlayCard plays a card from my hand. A wild card without a color is held as a pending intent,
// nothing is written, and the returned snapshot is nil until ChooseColor completes it.
func (s *Session) PlayCard(ctx context.Context, cardID uuid.UUID, color models.Color) (*models.GameState, error) {
	if color == models.ColorNone {
		s.mu.Lock()
		st := s.state
		if st != nil && st.Clash != nil {
			for _, c := range st.Clash.Hands[s.me] {
				if c.ID != cardID || !c.Kind.IsWild() {
					continue
				}
				if !st.IsCurrent(s.me) {
					s.mu.Unlock()
					return nil, game.ErrNotYourTurn
				}
				s.intent = &PendingIntent{CardID: cardID, Turn: st.Turn}
				v := s.viewLocked()
				listeners := append(([]func(View))(nil), s.onChange...)
				s.mu.Unlock()
				for _, fn := range listeners {
					fn(v)
				}
				return nil, nil
			}
		}
		s.mu.Unlock()
	}
	return s.Do(ctx, models.GameAction{ActionType: models.ActionPlayCard, CardID: cardID, Color: color})
}

// ChooseColor completes a pending wild card play.
func (s *Session) ChooseColor(ctx context.Context, color models.Color) (*models.GameState, error) {
	s.mu.Lock()
	intent := s.intent
	s.mu.Unlock()
	if intent == nil {
		return nil, ErrNoIntent
	}

	next, err := s.Do(ctx, models.GameAction{ActionType: models.ActionPlayCard, CardID: intent.CardID, Color: color})
	if errors.Is(err, game.ErrInvalidColor) || errors.Is(err, game.ErrColorRequired) {
		// Let the player pick again.
		return nil, err
	}
	s.mu.Lock()
	if s.intent == intent {
		s.intent = nil
	}
	s.mu.Unlock()
	return next, err
}

// CancelIntent drops a pending wild card play.
func (s *Session) CancelIntent() {
	s.mu.Lock()
	s.intent = nil
	s.mu.Unlock()
}

func (s *Session) DrawCard(ctx context.Context) (*models.GameState, error) {
	return s.Do(ctx, models.GameAction{ActionType: models.ActionDrawCard})
}

func (s *Session) DeclareLastCard(ctx context.Context) (*models.GameState, error) {
	return s.Do(ctx, models.GameAction{ActionType: models.ActionDeclareLastCard})
}

func (s *Session) SkipTurn(ctx context.Context) (*models.GameState, error) {
	return s.Do(ctx, models.GameAction{ActionType: models.ActionSkipTurn})
}

func (s *Session) Hit(ctx context.Context) (*models.GameState, error) {
	return s.Do(ctx, models.GameAction{ActionType: models.ActionHit})
}

func (s *Session) Lock(ctx context.Context) (*models.GameState, error) {
	return s.Do(ctx, models.GameAction{ActionType: models.ActionLock})
}

func (s *Session) StartNextRound(ctx context.Context) (*models.GameState, error) {
	return s.Do(ctx, models.GameAction{ActionType: models.ActionNextRound})
}

// Rematch restarts a finished room with a fresh deal.
func (s *Session) Rematch(ctx context.Context) (*models.GameState, error) {
	return s.Do(ctx, models.GameAction{ActionType: models.ActionRematch})
}
