// internal/game/engine.go
package game

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partydeck/internal/deck"
	"github.com/jason-s-yu/partydeck/internal/models"
	"github.com/sirupsen/logrus"
)

// Machine is a game's rule set. Apply is a pure transition: it never mutates its input
// snapshot and returns either a complete next snapshot or an error.
type Machine interface {
	Kind() models.GameKind
	Rules() Rules
	NewMatch(roomID uuid.UUID, players []uuid.UUID) (*models.GameState, error)
	Apply(st *models.GameState, action models.GameAction) (*models.GameState, error)

	// TimeoutAction returns the action injected when the current turn expires, if the game has one.
	TimeoutAction(st *models.GameState) (models.GameAction, bool)
}

// Option configures a Machine.
type Option func(*engine)

// WithRand sets the random source used for shuffles. Tests pass a seeded source.
func WithRand(rng *rand.Rand) Option {
	return func(e *engine) { e.rng = rng }
}

// WithClock overrides the time source used for deadlines and timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *engine) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *engine) { e.log = l }
}

// New returns the Machine for kind.
func New(kind models.GameKind, rules Rules, opts ...Option) (Machine, error) {
	switch kind {
	case models.GameClash:
		return NewClash(rules, opts...), nil
	case models.GameFlip21:
		return NewFlip21(rules, opts...), nil
	}
	return nil, fmt.Errorf("unknown game kind %q", kind)
}

// engine carries what both rule sets share. mu guards rng, which is not safe for concurrent use.
type engine struct {
	rules Rules
	mu    sync.Mutex
	rng   *rand.Rand
	now   func() time.Time
	log   logrus.FieldLogger
}

func newEngine(rules Rules, opts []Option) *engine {
	e := &engine{
		rules: rules.withDefaults(),
		now:   time.Now,
		log:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = deck.NewRand()
	}
	return e
}

// Rules returns the effective rules.
func (e *engine) Rules() Rules {
	return e.rules
}

// nextTurn opens a new turn generation and restarts its deadline.
func (e *engine) nextTurn(st *models.GameState) {
	st.Turn++
	if e.rules.TurnTimerSec > 0 {
		st.TurnDeadline = e.now().Add(e.rules.TurnDuration())
	} else {
		st.TurnDeadline = time.Time{}
	}
}

// noOwner marks a phase in which no player holds the turn.
func (e *engine) noOwner(st *models.GameState) {
	st.Turn++
	st.TurnDeadline = time.Time{}
}

// stamp records who wrote the next snapshot and bumps its version.
func (e *engine) stamp(next *models.GameState, action models.GameAction) {
	next.Version++
	next.UpdatedBy = action.Actor
	next.UpdatedAt = e.now()
	a := action
	next.LastAction = &a
}

func (e *engine) logger(st *models.GameState) logrus.FieldLogger {
	return e.log.WithFields(logrus.Fields{
		"room":    st.RoomID,
		"game":    st.Kind,
		"version": st.Version,
	})
}

// checkSeated validates that the snapshot is still live and the actor belongs to it.
func checkSeated(st *models.GameState, actor uuid.UUID) error {
	if st.Finished() {
		return ErrGameOver
	}
	if !st.HasPlayer(actor) {
		return ErrNotPlayer
	}
	return nil
}

// checkTurn additionally requires the actor to hold the turn.
func checkTurn(st *models.GameState, actor uuid.UUID) error {
	if err := checkSeated(st, actor); err != nil {
		return err
	}
	if !st.IsCurrent(actor) {
		return ErrNotYourTurn
	}
	return nil
}
