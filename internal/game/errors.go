package game

import "errors"

// Rule violations. None of them mutate state; callers surface Reason(err) to the player.
var (
	ErrNotYourTurn     = errors.New("it's not your turn")
	ErrInvalidCardPlay = errors.New("that card doesn't match the current color or value")
	ErrCardNotInHand   = errors.New("card is not in your hand")
	ErrDeckExhausted   = errors.New("no cards left to draw")
	ErrGameOver        = errors.New("the game is already over")
	ErrColorRequired   = errors.New("choose a color for the wild card")
	ErrInvalidColor    = errors.New("invalid color choice")
	ErrDrawPending     = errors.New("you must draw the cards you owe first")
	ErrNotLastCard     = errors.New("you can only declare your last card when holding exactly one card")
	ErrWrongPhase      = errors.New("that action is not available in this phase")
	ErrNotDriver       = errors.New("another client is running the dealer")
	ErrNotPlayer       = errors.New("you are not seated in this game")
	ErrStaleTurn       = errors.New("the turn has already moved on")
	ErrNoAutoAction    = errors.New("this game has no timeout action")
	ErrUnknownAction   = errors.New("unknown action type")
	ErrTooFewPlayers   = errors.New("at least two players are required")
	ErrWrongGame       = errors.New("snapshot belongs to a different game")
)

// Reason is the human-readable message for a rejected action.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, known := range []error{
		ErrNotYourTurn, ErrInvalidCardPlay, ErrCardNotInHand, ErrDeckExhausted, ErrGameOver,
		ErrColorRequired, ErrInvalidColor, ErrDrawPending, ErrNotLastCard, ErrWrongPhase,
		ErrNotDriver, ErrNotPlayer, ErrStaleTurn, ErrNoAutoAction, ErrUnknownAction,
		ErrTooFewPlayers, ErrWrongGame,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return err.Error()
}
