package models

// PlayerStatus is a Flip21 player's progress through the current round.
type PlayerStatus string

const (
	StatusPlaying PlayerStatus = "playing"
	StatusLocked  PlayerStatus = "locked"
	StatusBusted  PlayerStatus = "busted"
)

// Done reports whether the player has finished acting this round.
func (s PlayerStatus) Done() bool {
	return s == StatusLocked || s == StatusBusted
}

// Outcome is a Flip21 round result for one player.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	OutcomePush Outcome = "push"
)
