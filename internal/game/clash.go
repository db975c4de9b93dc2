// internal/game/clash.go
package game

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partydeck/internal/deck"
	"github.com/jason-s-yu/partydeck/internal/models"
	"github.com/jason-s-yu/partydeck/internal/turn"
	"github.com/sirupsen/logrus"
)

// Clash is the Color Clash rule set.
type Clash struct {
	*engine
}

// NewClash builds a Color Clash machine.
func NewClash(rules Rules, opts ...Option) *Clash {
	return &Clash{engine: newEngine(rules, opts)}
}

// Kind implements Machine.
func (c *Clash) Kind() models.GameKind {
	return models.GameClash
}

// NewMatch shuffles a fresh deck, deals every player a hand and turns up the opening card.
func (c *Clash) NewMatch(roomID uuid.UUID, players []uuid.UUID) (*models.GameState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.newMatch(roomID, players)
}

func (c *Clash) newMatch(roomID uuid.UUID, players []uuid.UUID) (*models.GameState, error) {
	if len(players) < 2 {
		return nil, ErrTooFewPlayers
	}
	shoe := &deck.Shoe[models.ClashCard]{Cards: models.NewClashDeck(), Reset: models.ClashCard.Reset}
	shoe.Shuffle(c.rng)

	dealt, err := shoe.Deal(len(players), c.rules.HandSize)
	if err != nil {
		return nil, fmt.Errorf("dealing %d cards to %d players: %w", c.rules.HandSize, len(players), err)
	}
	hands := make(map[uuid.UUID][]models.ClashCard, len(players))
	for i, id := range players {
		hands[id] = dealt[i]
	}

	// The opening card must be a number card; anything else goes to the bottom.
	var opening models.ClashCard
	for tries := shoe.Len(); tries > 0; tries-- {
		card, err := shoe.Draw(c.rng)
		if err != nil {
			return nil, fmt.Errorf("turning up opening card: %w", err)
		}
		if card.Kind == models.KindNumber {
			opening = card
			break
		}
		shoe.PutBottom(card)
	}
	if opening.Kind != models.KindNumber {
		return nil, fmt.Errorf("turning up opening card: %w", deck.ErrEmpty)
	}
	shoe.PushDiscard(opening)

	st := &models.GameState{
		RoomID:      roomID,
		Kind:        models.GameClash,
		Version:     1,
		PlayerOrder: append([]uuid.UUID(nil), players...),
		Clash: &models.ClashState{
			Hands:        hands,
			Deck:         shoe.Cards,
			Discard:      shoe.Discard,
			TurnState:    models.TurnState{Current: 0, Direction: 1},
			CurrentColor: opening.Color,
			LastCard:     map[uuid.UUID]bool{},
		},
		UpdatedAt: c.now(),
	}
	c.nextTurn(st)
	c.logger(st).WithFields(logrus.Fields{"players": len(players), "opening": opening.String()}).Info("Color Clash match dealt")
	return st, nil
}

// Apply implements Machine.
func (c *Clash) Apply(st *models.GameState, action models.GameAction) (*models.GameState, error) {
	if st == nil || st.Kind != models.GameClash || st.Clash == nil {
		return nil, ErrWrongGame
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		next *models.GameState
		err  error
	)
	switch action.ActionType {
	case models.ActionPlayCard:
		next, err = c.playCard(st, action.Actor, action.CardID, action.Color)
	case models.ActionDrawCard:
		next, err = c.drawCard(st, action.Actor)
	case models.ActionDeclareLastCard:
		next, err = c.declareLastCard(st, action.Actor)
	case models.ActionSkipTurn:
		next, err = c.skipTurn(st, action.Actor)
	case models.ActionTimeout:
		next, err = c.timeout(st, action.Turn)
	case models.ActionRematch:
		next, err = c.rematch(st, action.Actor)
	default:
		err = ErrUnknownAction
	}
	if err != nil {
		return nil, err
	}
	c.stamp(next, action)
	return next, nil
}

// TimeoutAction implements Machine: an expired Color Clash turn draws for the player.
func (c *Clash) TimeoutAction(st *models.GameState) (models.GameAction, bool) {
	if st == nil || st.Finished() {
		return models.GameAction{}, false
	}
	return models.GameAction{ActionType: models.ActionTimeout, Turn: st.Turn}, true
}

// PlayCard plays cardID from actor's hand. Wild cards need chosen set.
func (c *Clash) PlayCard(st *models.GameState, actor, cardID uuid.UUID, chosen models.Color) (*models.GameState, error) {
	return c.Apply(st, models.GameAction{ActionType: models.ActionPlayCard, Actor: actor, CardID: cardID, Color: chosen})
}

// DrawCard draws the owed cards, or one card, and ends actor's turn.
func (c *Clash) DrawCard(st *models.GameState, actor uuid.UUID) (*models.GameState, error) {
	return c.Apply(st, models.GameAction{ActionType: models.ActionDrawCard, Actor: actor})
}

// DeclareLastCard flags that actor is down to one card.
func (c *Clash) DeclareLastCard(st *models.GameState, actor uuid.UUID) (*models.GameState, error) {
	return c.Apply(st, models.GameAction{ActionType: models.ActionDeclareLastCard, Actor: actor})
}

// SkipTurn passes without drawing.
func (c *Clash) SkipTurn(st *models.GameState, actor uuid.UUID) (*models.GameState, error) {
	return c.Apply(st, models.GameAction{ActionType: models.ActionSkipTurn, Actor: actor})
}

// Timeout runs the auto-action for turn generation turnGen on behalf of the current player.
func (c *Clash) Timeout(st *models.GameState, writer uuid.UUID, turnGen int) (*models.GameState, error) {
	return c.Apply(st, models.GameAction{ActionType: models.ActionTimeout, Actor: writer, Turn: turnGen})
}

func (c *Clash) playCard(st *models.GameState, actor, cardID uuid.UUID, chosen models.Color) (*models.GameState, error) {
	if err := checkTurn(st, actor); err != nil {
		return nil, err
	}
	cs := st.Clash
	if cs.TurnState.PendingDraw > 0 {
		return nil, ErrDrawPending
	}
	hand := cs.Hands[actor]
	idx := clashCardIndex(hand, cardID)
	if idx < 0 {
		return nil, ErrCardNotInHand
	}
	card := hand[idx]
	if card.Kind.IsWild() {
		if chosen == models.ColorNone {
			return nil, ErrColorRequired
		}
		if !chosen.Valid() {
			return nil, ErrInvalidColor
		}
	}
	// A last card is exempt from matching.
	if top, ok := cs.TopCard(); ok && len(hand) > 1 && !models.CanPlay(card, top, cs.CurrentColor) {
		return nil, ErrInvalidCardPlay
	}

	next := st.Clone()
	ns := next.Clash
	if card.Kind.IsWild() {
		card.SelectedColor = chosen
	}
	ns.Hands[actor] = append(ns.Hands[actor][:idx], ns.Hands[actor][idx+1:]...)
	ns.Discard = append(ns.Discard, card)
	ns.CurrentColor = card.EffectiveColor()
	syncLastCard(ns, actor)

	if len(ns.Hands[actor]) == 0 {
		next.Winner = actor
		ns.Finished = true
		c.noOwner(next)
		c.logger(st).WithField("winner", actor).Info("Color Clash match won")
		return next, nil
	}

	ctl := turn.New(&ns.TurnState, len(next.PlayerOrder))
	switch card.Kind {
	case models.KindSkip:
		ctl.Skip()
	case models.KindReverse:
		ctl.Reverse()
		// With two players a reverse hands the turn straight back.
		if len(next.PlayerOrder) == 2 {
			ctl.Skip()
		}
	case models.KindDrawTwo:
		ctl.AddDraw(2)
		ctl.Skip()
	case models.KindWildDrawFour:
		ctl.AddDraw(4)
		ctl.Skip()
	}
	if ns.TurnState.PendingDraw > 0 {
		// The obligated player takes the turn only to pay it; their draw spends the skip.
		ctl.Step()
	} else {
		ctl.Advance()
	}
	c.nextTurn(next)
	return next, nil
}

func (c *Clash) drawCard(st *models.GameState, actor uuid.UUID) (*models.GameState, error) {
	if err := checkTurn(st, actor); err != nil {
		return nil, err
	}
	next := st.Clone()
	ns := next.Clash
	shoe := clashShoe(ns)
	ctl := turn.New(&ns.TurnState, len(next.PlayerOrder))

	if owed := ctl.TakeDraw(); owed > 0 {
		if avail := shoe.Available(); avail < owed {
			c.logger(st).WithFields(logrus.Fields{"player": actor, "owed": owed, "available": avail}).Warn("Draw obligation capped, shoe ran dry")
		}
		drawn := shoe.DrawUpTo(c.rng, owed)
		ns.Hands[actor] = append(ns.Hands[actor], drawn...)
		ns.TurnState.SkipNext = false
		ctl.Step()
	} else {
		card, err := shoe.Draw(c.rng)
		if err != nil {
			return nil, ErrDeckExhausted
		}
		ns.Hands[actor] = append(ns.Hands[actor], card)
		ctl.Advance()
	}
	c.storeShoe(st, ns, shoe)
	syncLastCard(ns, actor)
	c.nextTurn(next)
	return next, nil
}

func (c *Clash) skipTurn(st *models.GameState, actor uuid.UUID) (*models.GameState, error) {
	if err := checkTurn(st, actor); err != nil {
		return nil, err
	}
	// Passing cannot dodge a draw obligation.
	if st.Clash.TurnState.PendingDraw > 0 {
		return c.drawCard(st, actor)
	}
	next := st.Clone()
	turn.New(&next.Clash.TurnState, len(next.PlayerOrder)).Advance()
	c.nextTurn(next)
	return next, nil
}

func (c *Clash) declareLastCard(st *models.GameState, actor uuid.UUID) (*models.GameState, error) {
	if err := checkSeated(st, actor); err != nil {
		return nil, err
	}
	if len(st.Clash.Hands[actor]) != 1 {
		return nil, ErrNotLastCard
	}
	next := st.Clone()
	next.Clash.LastCard[actor] = true
	return next, nil
}

func (c *Clash) timeout(st *models.GameState, turnGen int) (*models.GameState, error) {
	if st.Finished() {
		return nil, ErrGameOver
	}
	if turnGen != st.Turn {
		return nil, ErrStaleTurn
	}
	current, ok := st.CurrentPlayer()
	if !ok {
		return nil, ErrStaleTurn
	}
	next, err := c.drawCard(st, current)
	if errors.Is(err, ErrDeckExhausted) {
		return c.skipTurn(st, current)
	}
	return next, err
}

func (c *Clash) rematch(st *models.GameState, actor uuid.UUID) (*models.GameState, error) {
	if !st.Finished() {
		return nil, ErrWrongPhase
	}
	if !st.HasPlayer(actor) {
		return nil, ErrNotPlayer
	}
	fresh, err := c.newMatch(st.RoomID, st.PlayerOrder)
	if err != nil {
		return nil, err
	}
	fresh.Version = st.Version
	fresh.Turn += st.Turn
	return fresh, nil
}

func (c *Clash) storeShoe(st *models.GameState, ns *models.ClashState, shoe *deck.Shoe[models.ClashCard]) {
	if shoe.Reshuffles > 0 {
		c.logger(st).WithField("stockpileSize", len(shoe.Cards)).Info("Reshuffled discard pile into deck")
	}
	ns.Deck = shoe.Cards
	ns.Discard = shoe.Discard
}

func clashShoe(cs *models.ClashState) *deck.Shoe[models.ClashCard] {
	return &deck.Shoe[models.ClashCard]{Cards: cs.Deck, Discard: cs.Discard, Reset: models.ClashCard.Reset}
}

// syncLastCard drops a last-card declaration once the hand is no longer a single card.
func syncLastCard(cs *models.ClashState, player uuid.UUID) {
	if len(cs.Hands[player]) != 1 {
		delete(cs.LastCard, player)
	}
}

func clashCardIndex(hand []models.ClashCard, id uuid.UUID) int {
	for i, c := range hand {
		if c.ID == id {
			return i
		}
	}
	return -1
}
