// internal/statesync/dealer.go
package statesync

import (
	"context"
	"errors"
	"time"

	"github.com/jason-s-yu/partydeck/internal/game"
	"github.com/jason-s-yu/partydeck/internal/models"
)

// maybeDriveLocked starts the dealer loop when this client has been designated to run the
// Flip21 dealer. Assumes lock is held.
func (s *Session) maybeDriveLocked() {
	fs := s.state.Flip21
	if fs == nil || s.driving || fs.Driver != s.me || s.ctx.Err() != nil {
		return
	}
	if fs.Phase != models.PhaseDealerTurn && fs.Phase != models.PhaseResolving {
		return
	}
	s.driving = true
	ctx := s.ctx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.driveDealer(ctx)
		s.mu.Lock()
		s.driving = false
		s.mu.Unlock()
	}()
}

// driveDealer draws the dealer's cards one at a time, pausing between draws so every client
// can watch them land, then scores the round.
func (s *Session) driveDealer(ctx context.Context) {
	pause := s.machine.Rules().DealerPause()
	failures := 0
	for failures < s.machine.Rules().MaxAttempts {
		if pause > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pause):
			}
		} else if ctx.Err() != nil {
			return
		}

		st := s.State()
		if st == nil || st.Flip21 == nil {
			return
		}
		var action models.ActionType
		switch st.Flip21.Phase {
		case models.PhaseDealerTurn:
			action = models.ActionDealerDraw
		case models.PhaseResolving:
			action = models.ActionResolve
		default:
			return
		}

		_, err := s.Do(ctx, models.GameAction{ActionType: action})
		switch {
		case err == nil:
			failures = 0
		case errors.Is(err, game.ErrNotDriver), errors.Is(err, game.ErrWrongPhase), errors.Is(err, game.ErrGameOver):
			s.log.WithError(err).Debug("Dealer phase moved on")
			return
		default:
			failures++
			s.log.WithError(err).WithField("action", action).Warn("Dealer step failed")
		}
	}
}
