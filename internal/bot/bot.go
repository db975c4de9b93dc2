// internal/bot/bot.go
package bot

import (
	"github.com/google/uuid"
	"github.com/jason-s-yu/partydeck/internal/models"
)

// FlipStandOn is the hand value at which a Flip21 bot stops hitting.
const FlipStandOn = 15

// ClashMove picks a move for me: pay any draw obligation, else play the first legal card
// (wilds take the color I hold most of), else draw.
func ClashMove(st *models.GameState, me uuid.UUID) models.GameAction {
	cs := st.Clash
	draw := models.GameAction{ActionType: models.ActionDrawCard, Actor: me}
	if cs == nil || cs.TurnState.PendingDraw > 0 {
		return draw
	}
	hand := cs.Hands[me]
	top, _ := cs.TopCard()
	for _, card := range hand {
		if len(hand) > 1 && !models.CanPlay(card, top, cs.CurrentColor) {
			continue
		}
		action := models.GameAction{ActionType: models.ActionPlayCard, Actor: me, CardID: card.ID}
		if card.Kind.IsWild() {
			action.Color = favoriteColor(hand)
		}
		return action
	}
	if len(cs.Deck) == 0 && len(cs.Discard) <= 1 {
		return models.GameAction{ActionType: models.ActionSkipTurn, Actor: me}
	}
	return draw
}

// favoriteColor is the printed color that appears most in hand, red on a tie or an all-wild hand.
func favoriteColor(hand []models.ClashCard) models.Color {
	counts := map[models.Color]int{}
	for _, c := range hand {
		if c.Color.Valid() {
			counts[c.Color]++
		}
	}
	best := models.ColorRed
	for _, color := range models.Colors {
		if counts[color] > counts[best] {
			best = color
		}
	}
	return best
}

// Flip21Move hits below FlipStandOn and locks otherwise. The bool is false when me has
// nothing to do in the current phase.
func Flip21Move(st *models.GameState, me uuid.UUID) (models.GameAction, bool) {
	fs := st.Flip21
	if fs == nil || !st.IsCurrent(me) {
		return models.GameAction{}, false
	}
	if models.HandValue(fs.Hands[me]) < FlipStandOn {
		return models.GameAction{ActionType: models.ActionHit, Actor: me}, true
	}
	return models.GameAction{ActionType: models.ActionLock, Actor: me}, true
}
