// internal/game/flip21.go
package game

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partydeck/internal/deck"
	"github.com/jason-s-yu/partydeck/internal/models"
	"github.com/jason-s-yu/partydeck/internal/turn"
	"github.com/sirupsen/logrus"
)

// Flip21 is the elimination game: every round only the players who beat the dealer go on.
type Flip21 struct {
	*engine
}

// NewFlip21 builds a Flip21 machine.
func NewFlip21(rules Rules, opts ...Option) *Flip21 {
	return &Flip21{engine: newEngine(rules, opts)}
}

// Kind implements Machine.
func (f *Flip21) Kind() models.GameKind {
	return models.GameFlip21
}

// NewMatch shuffles a deck and deals the first round.
func (f *Flip21) NewMatch(roomID uuid.UUID, players []uuid.UUID) (*models.GameState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.newMatch(roomID, players)
}

func (f *Flip21) newMatch(roomID uuid.UUID, players []uuid.UUID) (*models.GameState, error) {
	if len(players) < 2 {
		return nil, ErrTooFewPlayers
	}
	cards := models.NewFlip21Deck()
	deck.Shuffle(f.rng, cards)

	scores := make(map[uuid.UUID]int, len(players))
	for _, id := range players {
		scores[id] = 0
	}
	st := &models.GameState{
		RoomID:      roomID,
		Kind:        models.GameFlip21,
		Version:     1,
		PlayerOrder: append([]uuid.UUID(nil), players...),
		Flip21: &models.Flip21State{
			Phase:   models.PhaseDealing,
			Current: -1,
			Hands:   map[uuid.UUID][]models.PlayingCard{},
			Status:  map[uuid.UUID]models.PlayerStatus{},
			Deck:    cards,
			Scores:  scores,
			Roster:  append([]uuid.UUID(nil), players...),
		},
		UpdatedAt: f.now(),
	}
	if err := f.dealRound(st); err != nil {
		return nil, err
	}
	return st, nil
}

// dealRound runs the dealing phase: one face-up card to every remaining player and one to the dealer.
// It leaves the state in playerTurns with the first seat to act.
func (f *Flip21) dealRound(st *models.GameState) error {
	fs := st.Flip21
	fs.Phase = models.PhaseDealing
	fs.Round++
	fs.Results = map[uuid.UUID]models.Outcome{}
	fs.Driver = uuid.Nil

	shoe := flip21Shoe(fs)
	dealt, err := shoe.Deal(len(st.PlayerOrder)+1, 1)
	if err != nil {
		// Deal only looks at the draw pile; recycle the discards and try once more.
		shoe.Reshuffle(f.rng)
		if dealt, err = shoe.Deal(len(st.PlayerOrder)+1, 1); err != nil {
			return fmt.Errorf("dealing round %d: %w", fs.Round, err)
		}
	}
	for i, id := range st.PlayerOrder {
		fs.Hands[id] = []models.PlayingCard{reveal(dealt[i][0])}
		fs.Status[id] = models.StatusPlaying
	}
	fs.Dealer = []models.PlayingCard{reveal(dealt[len(st.PlayerOrder)][0])}
	fs.Deck, fs.Discard = shoe.Cards, shoe.Discard

	fs.Phase = models.PhasePlayerTurns
	fs.Current = 0
	f.nextTurn(st)
	f.logger(st).WithFields(logrus.Fields{"round": fs.Round, "players": len(st.PlayerOrder), "dealer": fs.Dealer[0].String()}).Info("Flip21 round dealt")
	return nil
}

// Apply implements Machine.
func (f *Flip21) Apply(st *models.GameState, action models.GameAction) (*models.GameState, error) {
	if st == nil || st.Kind != models.GameFlip21 || st.Flip21 == nil {
		return nil, ErrWrongGame
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var (
		next *models.GameState
		err  error
	)
	switch action.ActionType {
	case models.ActionHit:
		next, err = f.hit(st, action.Actor)
	case models.ActionLock:
		next, err = f.lock(st, action.Actor)
	case models.ActionDealerDraw:
		next, err = f.dealerDraw(st, action.Actor)
	case models.ActionResolve:
		next, err = f.resolve(st, action.Actor)
	case models.ActionNextRound:
		next, err = f.startNextRound(st, action.Actor)
	case models.ActionRematch:
		next, err = f.rematch(st, action.Actor)
	case models.ActionTimeout:
		// The turn timer is advisory in this game.
		err = ErrNoAutoAction
	default:
		err = ErrUnknownAction
	}
	if err != nil {
		return nil, err
	}
	f.stamp(next, action)
	return next, nil
}

// TimeoutAction implements Machine. Flip21 has no automatic move when a turn expires.
func (f *Flip21) TimeoutAction(*models.GameState) (models.GameAction, bool) {
	return models.GameAction{}, false
}

// Hit draws one card for the current player.
func (f *Flip21) Hit(st *models.GameState, actor uuid.UUID) (*models.GameState, error) {
	return f.Apply(st, models.GameAction{ActionType: models.ActionHit, Actor: actor})
}

// Lock ends the current player's turn without drawing.
func (f *Flip21) Lock(st *models.GameState, actor uuid.UUID) (*models.GameState, error) {
	return f.Apply(st, models.GameAction{ActionType: models.ActionLock, Actor: actor})
}

// DealerDraw draws a single dealer card. Only the designated driver may call it.
func (f *Flip21) DealerDraw(st *models.GameState, actor uuid.UUID) (*models.GameState, error) {
	return f.Apply(st, models.GameAction{ActionType: models.ActionDealerDraw, Actor: actor})
}

// Resolve scores the round against the dealer.
func (f *Flip21) Resolve(st *models.GameState, actor uuid.UUID) (*models.GameState, error) {
	return f.Apply(st, models.GameAction{ActionType: models.ActionResolve, Actor: actor})
}

// StartNextRound eliminates everyone who did not win and deals the survivors in.
func (f *Flip21) StartNextRound(st *models.GameState, actor uuid.UUID) (*models.GameState, error) {
	return f.Apply(st, models.GameAction{ActionType: models.ActionNextRound, Actor: actor})
}

func (f *Flip21) hit(st *models.GameState, actor uuid.UUID) (*models.GameState, error) {
	if err := f.checkPlayerTurn(st, actor); err != nil {
		return nil, err
	}
	next := st.Clone()
	fs := next.Flip21
	shoe := flip21Shoe(fs)
	card, err := shoe.Draw(f.rng)
	if err != nil {
		return nil, ErrDeckExhausted
	}
	f.storeShoe(st, fs, shoe)
	fs.Hands[actor] = append(fs.Hands[actor], reveal(card))

	if models.Busted(fs.Hands[actor]) {
		fs.Status[actor] = models.StatusBusted
		f.logger(st).WithFields(logrus.Fields{"player": actor, "value": models.HandValue(fs.Hands[actor])}).Debug("Player busted")
		f.advance(next, actor)
		return next, nil
	}
	// The player keeps the turn after a safe hit.
	return next, nil
}

func (f *Flip21) lock(st *models.GameState, actor uuid.UUID) (*models.GameState, error) {
	if err := f.checkPlayerTurn(st, actor); err != nil {
		return nil, err
	}
	next := st.Clone()
	next.Flip21.Status[actor] = models.StatusLocked
	f.advance(next, actor)
	return next, nil
}

// advance hands the turn to the next player still playing, or to the dealer once nobody is.
// The actor who closed out the player turns becomes the dealer driver.
func (f *Flip21) advance(st *models.GameState, actor uuid.UUID) {
	fs := st.Flip21
	ts := models.TurnState{Current: fs.Current, Direction: 1}
	ctl := turn.New(&ts, len(st.PlayerOrder))
	seat, ok := ctl.NextEligible(fs.Current, func(seat int) bool {
		return !fs.Status[st.PlayerOrder[seat]].Done()
	})
	if ok {
		fs.Current = seat
		f.nextTurn(st)
		return
	}
	fs.Phase = models.PhaseDealerTurn
	fs.Current = -1
	fs.Driver = actor
	f.noOwner(st)
}

func (f *Flip21) dealerDraw(st *models.GameState, actor uuid.UUID) (*models.GameState, error) {
	if err := f.checkDriver(st, actor, models.PhaseDealerTurn); err != nil {
		return nil, err
	}
	next := st.Clone()
	fs := next.Flip21
	if models.HandValue(fs.Dealer) >= f.rules.DealerStandsOn {
		fs.Phase = models.PhaseResolving
		return next, nil
	}
	shoe := flip21Shoe(fs)
	card, err := shoe.Draw(f.rng)
	if err != nil {
		f.logger(st).WithField("dealer", models.HandValue(fs.Dealer)).Warn("Dealer stopped early, shoe exhausted")
		fs.Phase = models.PhaseResolving
		return next, nil
	}
	f.storeShoe(st, fs, shoe)
	fs.Dealer = append(fs.Dealer, reveal(card))
	if models.HandValue(fs.Dealer) >= f.rules.DealerStandsOn {
		fs.Phase = models.PhaseResolving
	}
	return next, nil
}

func (f *Flip21) resolve(st *models.GameState, actor uuid.UUID) (*models.GameState, error) {
	if err := f.checkDriver(st, actor, models.PhaseResolving); err != nil {
		return nil, err
	}
	next := st.Clone()
	fs := next.Flip21
	dealer := models.HandValue(fs.Dealer)
	dealerBusted := dealer > 21

	fs.Results = make(map[uuid.UUID]models.Outcome, len(next.PlayerOrder))
	for _, id := range next.PlayerOrder {
		var out models.Outcome
		value := models.HandValue(fs.Hands[id])
		switch {
		case fs.Status[id] == models.StatusBusted || value > 21:
			out = models.OutcomeLoss
		case dealerBusted:
			out = models.OutcomeWin
		case value > dealer:
			out = models.OutcomeWin
		case value == dealer:
			out = models.OutcomePush
		default:
			out = models.OutcomeLoss
		}
		fs.Results[id] = out
		if out == models.OutcomeWin {
			fs.Scores[id]++
		}
	}
	fs.Phase = models.PhaseFinished
	f.logger(st).WithFields(logrus.Fields{"round": fs.Round, "dealer": dealer}).Info("Flip21 round resolved")
	return next, nil
}

func (f *Flip21) startNextRound(st *models.GameState, actor uuid.UUID) (*models.GameState, error) {
	if err := checkSeated(st, actor); err != nil {
		return nil, err
	}
	if st.Flip21.Phase != models.PhaseFinished {
		return nil, ErrWrongPhase
	}
	next := st.Clone()
	fs := next.Flip21

	var survivors []uuid.UUID
	for _, id := range next.PlayerOrder {
		if fs.Results[id] == models.OutcomeWin {
			survivors = append(survivors, id)
		} else {
			fs.Eliminated = append(fs.Eliminated, id)
		}
	}

	// Every card from the round goes onto the discard pile.
	for _, id := range next.PlayerOrder {
		fs.Discard = append(fs.Discard, fs.Hands[id]...)
	}
	fs.Discard = append(fs.Discard, fs.Dealer...)
	fs.Dealer = nil
	fs.Hands = make(map[uuid.UUID][]models.PlayingCard, len(survivors))
	fs.Status = make(map[uuid.UUID]models.PlayerStatus, len(survivors))
	next.PlayerOrder = survivors

	if len(survivors) < 2 {
		fs.MatchOver = true
		fs.Current = -1
		fs.Driver = uuid.Nil
		if len(survivors) == 1 {
			next.Winner = survivors[0]
		}
		f.noOwner(next)
		f.logger(st).WithFields(logrus.Fields{"winner": next.Winner, "rounds": fs.Round}).Info("Flip21 match over")
		return next, nil
	}
	if err := f.dealRound(next); err != nil {
		return nil, err
	}
	return next, nil
}

func (f *Flip21) rematch(st *models.GameState, actor uuid.UUID) (*models.GameState, error) {
	if !st.Finished() {
		return nil, ErrWrongPhase
	}
	roster := st.Flip21.Roster
	if !contains(roster, actor) {
		return nil, ErrNotPlayer
	}
	fresh, err := f.newMatch(st.RoomID, roster)
	if err != nil {
		return nil, err
	}
	fresh.Version = st.Version
	fresh.Turn += st.Turn
	return fresh, nil
}

func (f *Flip21) checkPlayerTurn(st *models.GameState, actor uuid.UUID) error {
	if err := checkSeated(st, actor); err != nil {
		return err
	}
	if st.Flip21.Phase != models.PhasePlayerTurns {
		return ErrWrongPhase
	}
	if !st.IsCurrent(actor) {
		return ErrNotYourTurn
	}
	return nil
}

func (f *Flip21) checkDriver(st *models.GameState, actor uuid.UUID, phase models.Phase) error {
	if st.Finished() {
		return ErrGameOver
	}
	if st.Flip21.Phase != phase {
		return ErrWrongPhase
	}
	if actor != st.Flip21.Driver {
		return ErrNotDriver
	}
	return nil
}

func (f *Flip21) storeShoe(st *models.GameState, fs *models.Flip21State, shoe *deck.Shoe[models.PlayingCard]) {
	if shoe.Reshuffles > 0 {
		f.logger(st).WithField("stockpileSize", len(shoe.Cards)).Info("Reshuffled discard pile into deck")
	}
	fs.Deck = shoe.Cards
	fs.Discard = shoe.Discard
}

func flip21Shoe(fs *models.Flip21State) *deck.Shoe[models.PlayingCard] {
	return &deck.Shoe[models.PlayingCard]{Cards: fs.Deck, Discard: fs.Discard, Reset: models.PlayingCard.Reset}
}

func reveal(c models.PlayingCard) models.PlayingCard {
	c.Revealed = true
	return c
}

func contains(ids []uuid.UUID, id uuid.UUID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
