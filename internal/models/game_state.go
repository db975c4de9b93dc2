// internal/models/game_state.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// GameKind selects which rule set a room is playing.
type GameKind string

const (
	GameClash  GameKind = "clash"
	GameFlip21 GameKind = "flip21"
)

// TurnState is the persisted turn controller state.
type TurnState struct {
	Current     int  `json:"current"`
	Direction   int  `json:"direction"`
	SkipNext    bool `json:"skipNext"`
	PendingDraw int  `json:"pendingDraw"`
}

// GameState is the single versioned document shared by every client in a room.
// Exactly one of Clash or Flip21 is set, matching Kind.
type GameState struct {
	RoomID      uuid.UUID   `json:"roomId"`
	Kind        GameKind    `json:"kind"`
	Version     int64       `json:"version"`
	PlayerOrder []uuid.UUID `json:"playerOrder"`

	// Turn increments every time turn ownership changes. Timers are keyed on it.
	Turn         int       `json:"turn"`
	TurnDeadline time.Time `json:"turnDeadline"`

	// Winner is uuid.Nil until somebody wins.
	Winner uuid.UUID `json:"winner"`

	UpdatedBy  uuid.UUID   `json:"updatedBy"`
	UpdatedAt  time.Time   `json:"updatedAt"`
	LastAction *GameAction `json:"lastAction,omitempty"`

	Clash  *ClashState  `json:"clash,omitempty"`
	Flip21 *Flip21State `json:"flip21,omitempty"`
}

// ClashState holds the Color Clash specific part of a room's state.
type ClashState struct {
	Hands        map[uuid.UUID][]ClashCard `json:"hands"`
	Deck         []ClashCard               `json:"deck"`
	Discard      []ClashCard               `json:"discard"`
	TurnState    TurnState                 `json:"turnState"`
	CurrentColor Color                     `json:"currentColor"`
	LastCard     map[uuid.UUID]bool        `json:"lastCard,omitempty"`
	Finished     bool                      `json:"finished"`
}

// TopCard returns the visible discard card.
func (c *ClashState) TopCard() (ClashCard, bool) {
	if len(c.Discard) == 0 {
		return ClashCard{}, false
	}
	return c.Discard[len(c.Discard)-1], true
}

// Phase is a Flip21 round phase.
type Phase string

const (
	PhaseDealing     Phase = "dealing"
	PhasePlayerTurns Phase = "playerTurns"
	PhaseDealerTurn  Phase = "dealerTurn"
	PhaseResolving   Phase = "resolving"
	PhaseFinished    Phase = "finished"
)

// Flip21State holds the Flip21 specific part of a room's state.
type Flip21State struct {
	Phase Phase `json:"phase"`
	Round int   `json:"round"`

	// Current indexes PlayerOrder during PhasePlayerTurns, -1 otherwise.
	Current int `json:"current"`

	Hands   map[uuid.UUID][]PlayingCard `json:"hands"`
	Status  map[uuid.UUID]PlayerStatus  `json:"status"`
	Dealer  []PlayingCard               `json:"dealer"`
	Deck    []PlayingCard               `json:"deck"`
	Discard []PlayingCard               `json:"discard"`
	Results map[uuid.UUID]Outcome       `json:"results,omitempty"`
	Scores  map[uuid.UUID]int           `json:"scores"`

	// Roster is the original seating, kept so a finished bracket can be replayed.
	Roster []uuid.UUID `json:"roster"`

	// Eliminated lists players removed from PlayerOrder, in elimination order.
	Eliminated []uuid.UUID `json:"eliminated,omitempty"`

	// Driver is the client designated to run the automated dealer phases.
	Driver uuid.UUID `json:"driver"`

	MatchOver bool `json:"matchOver"`
}

// CurrentPlayer returns whoever holds the turn, or false during terminal or automated phases.
func (s *GameState) CurrentPlayer() (uuid.UUID, bool) {
	switch s.Kind {
	case GameClash:
		if s.Clash == nil || s.Clash.Finished || len(s.PlayerOrder) == 0 {
			return uuid.Nil, false
		}
		return s.PlayerOrder[s.Clash.TurnState.Current], true
	case GameFlip21:
		f := s.Flip21
		if f == nil || f.MatchOver || f.Phase != PhasePlayerTurns || f.Current < 0 || f.Current >= len(s.PlayerOrder) {
			return uuid.Nil, false
		}
		return s.PlayerOrder[f.Current], true
	}
	return uuid.Nil, false
}

// IsCurrent reports whether playerID holds the turn.
func (s *GameState) IsCurrent(playerID uuid.UUID) bool {
	cur, ok := s.CurrentPlayer()
	return ok && cur == playerID
}

// Finished reports whether the match is over and accepts no further moves.
func (s *GameState) Finished() bool {
	switch s.Kind {
	case GameClash:
		return s.Clash != nil && s.Clash.Finished
	case GameFlip21:
		return s.Flip21 != nil && s.Flip21.MatchOver
	}
	return false
}

// HasPlayer reports whether playerID is seated in PlayerOrder.
func (s *GameState) HasPlayer(playerID uuid.UUID) bool {
	for _, id := range s.PlayerOrder {
		if id == playerID {
			return true
		}
	}
	return false
}

// CardCount totals every card in hands, deck and discard piles.
func (s *GameState) CardCount() int {
	n := 0
	if c := s.Clash; c != nil {
		n += len(c.Deck) + len(c.Discard)
		for _, h := range c.Hands {
			n += len(h)
		}
	}
	if f := s.Flip21; f != nil {
		n += len(f.Deck) + len(f.Discard) + len(f.Dealer)
		for _, h := range f.Hands {
			n += len(h)
		}
	}
	return n
}

// Clone returns a deep copy so a mutation never touches the snapshot it was derived from.
func (s *GameState) Clone() *GameState {
	if s == nil {
		return nil
	}
	out := *s
	out.PlayerOrder = append([]uuid.UUID(nil), s.PlayerOrder...)
	if s.LastAction != nil {
		la := *s.LastAction
		out.LastAction = &la
	}
	if c := s.Clash; c != nil {
		cc := *c
		cc.Hands = make(map[uuid.UUID][]ClashCard, len(c.Hands))
		for id, h := range c.Hands {
			cc.Hands[id] = append([]ClashCard(nil), h...)
		}
		cc.Deck = append([]ClashCard(nil), c.Deck...)
		cc.Discard = append([]ClashCard(nil), c.Discard...)
		cc.LastCard = make(map[uuid.UUID]bool, len(c.LastCard))
		for id, v := range c.LastCard {
			cc.LastCard[id] = v
		}
		out.Clash = &cc
	}
	if f := s.Flip21; f != nil {
		fc := *f
		fc.Hands = make(map[uuid.UUID][]PlayingCard, len(f.Hands))
		for id, h := range f.Hands {
			fc.Hands[id] = append([]PlayingCard(nil), h...)
		}
		fc.Status = make(map[uuid.UUID]PlayerStatus, len(f.Status))
		for id, st := range f.Status {
			fc.Status[id] = st
		}
		fc.Results = make(map[uuid.UUID]Outcome, len(f.Results))
		for id, r := range f.Results {
			fc.Results[id] = r
		}
		fc.Scores = make(map[uuid.UUID]int, len(f.Scores))
		for id, sc := range f.Scores {
			fc.Scores[id] = sc
		}
		fc.Dealer = append([]PlayingCard(nil), f.Dealer...)
		fc.Deck = append([]PlayingCard(nil), f.Deck...)
		fc.Discard = append([]PlayingCard(nil), f.Discard...)
		fc.Roster = append([]uuid.UUID(nil), f.Roster...)
		fc.Eliminated = append([]uuid.UUID(nil), f.Eliminated...)
		out.Flip21 = &fc
	}
	return &out
}
