package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partydeck/internal/models"
	"github.com/jason-s-yu/partydeck/internal/statesync"
	"github.com/sirupsen/logrus"
)

// ErrMoveLimit is returned when a match does not finish within the allowed number of moves.
var ErrMoveLimit = errors.New("bot: match did not finish within the move limit")

// Table plays one match with a bot behind every seat. Each seat acts through its own
// started session, so every move goes through the same commit path a real client uses.
type Table struct {
	Seats    map[uuid.UUID]*statesync.Session
	MaxMoves int
	Poll     time.Duration
	Log      logrus.FieldLogger

	// OnMove is called with every snapshot a bot committed.
	OnMove func(*models.GameState)
}

// Play drives the match until it is finished, returning the final snapshot.
// Flip21 dealer phases are left to whichever session was designated to drive them.
func (t *Table) Play(ctx context.Context) (*models.GameState, error) {
	if t.MaxMoves <= 0 {
		t.MaxMoves = 5000
	}
	if t.Poll <= 0 {
		t.Poll = 5 * time.Millisecond
	}
	if t.Log == nil {
		t.Log = logrus.StandardLogger()
	}

	moves, misses := 0, 0
	for moves < t.MaxMoves {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		st := t.latest()
		if st == nil {
			t.wait(ctx)
			continue
		}
		if st.Finished() {
			return st, nil
		}

		seat, action, ok := t.nextMove(st)
		if !ok {
			t.wait(ctx)
			continue
		}
		next, err := t.Seats[seat].Do(ctx, action)
		if err != nil {
			// A rule error here means this seat acted on a snapshot that has since moved on.
			misses++
			if misses > t.MaxMoves {
				return nil, fmt.Errorf("bot stuck on %s: %w", action.ActionType, err)
			}
			if isTransport(err) {
				return nil, err
			}
			t.Log.WithError(err).WithField("action", action.ActionType).Debug("Bot move rejected, retrying")
			t.wait(ctx)
			continue
		}
		moves++
		if t.OnMove != nil {
			t.OnMove(next)
		}
		if next.Kind == models.GameClash && len(next.Clash.Hands[seat]) == 1 && !next.Clash.LastCard[seat] {
			if declared, err := t.Seats[seat].DeclareLastCard(ctx); err == nil && t.OnMove != nil {
				t.OnMove(declared)
			}
		}
	}
	return nil, ErrMoveLimit
}

func (t *Table) nextMove(st *models.GameState) (uuid.UUID, models.GameAction, bool) {
	switch st.Kind {
	case models.GameClash:
		cur, ok := st.CurrentPlayer()
		if !ok || t.Seats[cur] == nil {
			return uuid.Nil, models.GameAction{}, false
		}
		return cur, ClashMove(st, cur), true
	case models.GameFlip21:
		if st.Flip21.Phase == models.PhaseFinished {
			seat := st.PlayerOrder[0]
			return seat, models.GameAction{ActionType: models.ActionNextRound, Actor: seat}, t.Seats[seat] != nil
		}
		cur, ok := st.CurrentPlayer()
		if !ok || t.Seats[cur] == nil {
			return uuid.Nil, models.GameAction{}, false
		}
		action, ok := Flip21Move(st, cur)
		return cur, action, ok
	}
	return uuid.Nil, models.GameAction{}, false
}

// latest returns the newest snapshot any seat has seen.
func (t *Table) latest() *models.GameState {
	var best *models.GameState
	for _, s := range t.Seats {
		if st := s.State(); st != nil && (best == nil || st.Version > best.Version) {
			best = st
		}
	}
	return best
}

func (t *Table) wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(t.Poll):
	}
}

func isTransport(err error) bool {
	return errors.Is(err, statesync.ErrTransport) || errors.Is(err, statesync.ErrNoGame)
}
