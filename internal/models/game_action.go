package models

import "github.com/google/uuid"

// ActionType names a player (or automated) move.
type ActionType string

const (
	ActionPlayCard        ActionType = "action_play_card"
	ActionDrawCard        ActionType = "action_draw_card"
	ActionDeclareLastCard ActionType = "action_declare_last_card"
	ActionSkipTurn        ActionType = "action_skip_turn"
	ActionHit             ActionType = "action_hit"
	ActionLock            ActionType = "action_lock"
	ActionDealerDraw      ActionType = "action_dealer_draw"
	ActionResolve         ActionType = "action_resolve"
	ActionNextRound       ActionType = "action_next_round"
	ActionRematch         ActionType = "action_rematch"
	ActionTimeout         ActionType = "action_timeout"
)

// GameAction captures a single in-game move. Only the fields relevant to ActionType are set.
type GameAction struct {
	ActionType ActionType `json:"action_type"`
	Actor      uuid.UUID  `json:"actor"`
	CardID     uuid.UUID  `json:"cardId"`
	Color      Color      `json:"color,omitempty"`

	// Turn is the turn generation a timeout was scheduled for.
	Turn int `json:"turn,omitempty"`
}
