// internal/turn/turn.go
package turn

import "github.com/jason-s-yu/partydeck/internal/models"

// Controller moves turn ownership around a table of Count seats.
// It operates directly on the persisted models.TurnState.
type Controller struct {
	State *models.TurnState
	Count int
}

// New wraps st for a table of count seats. A zero direction is normalised to clockwise.
func New(st *models.TurnState, count int) *Controller {
	if st.Direction == 0 {
		st.Direction = 1
	}
	return &Controller{State: st, Count: count}
}

func (c *Controller) move(steps int) {
	if c.Count <= 0 {
		return
	}
	next := (c.State.Current + steps*c.State.Direction) % c.Count
	if next < 0 {
		next += c.Count
	}
	c.State.Current = next
}

// Advance passes the turn on. A pending skip is consumed and moves the turn two seats,
// so exactly one player loses their turn.
func (c *Controller) Advance() {
	if c.State.SkipNext {
		c.State.SkipNext = false
		c.move(2)
		return
	}
	c.move(1)
}

// Step moves the turn one seat regardless of a pending skip.
func (c *Controller) Step() {
	c.move(1)
}

// Reverse flips the direction of play.
func (c *Controller) Reverse() {
	c.State.Direction = -c.State.Direction
}

// Skip marks the next player's turn as forfeited.
func (c *Controller) Skip() {
	c.State.SkipNext = true
}

// AddDraw accumulates a forced-draw obligation.
func (c *Controller) AddDraw(n int) {
	c.State.PendingDraw += n
}

// TakeDraw consumes and returns the pending draw obligation.
func (c *Controller) TakeDraw() int {
	n := c.State.PendingDraw
	c.State.PendingDraw = 0
	return n
}

// NextEligible returns the first seat after from, walking in the current direction,
// for which eligible reports true. It returns false when no seat qualifies.
// The seat at from is considered last, after a full lap.
func (c *Controller) NextEligible(from int, eligible func(seat int) bool) (int, bool) {
	if c.Count <= 0 {
		return -1, false
	}
	dir := c.State.Direction
	if dir == 0 {
		dir = 1
	}
	for i := 1; i <= c.Count; i++ {
		seat := ((from+i*dir)%c.Count + c.Count) % c.Count
		if eligible(seat) {
			return seat, true
		}
	}
	return -1, false
}
