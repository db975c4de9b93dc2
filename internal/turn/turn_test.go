package turn

import (
	"testing"

	"github.com/jason-s-yu/partydeck/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvanceRoundTrip(t *testing.T) {
	for _, count := range []int{2, 3, 5, 8} {
		for _, dir := range []int{1, -1} {
			st := &models.TurnState{Current: 1 % count, Direction: dir}
			c := New(st, count)
			start := st.Current
			for i := 0; i < count; i++ {
				c.Advance()
			}
			assert.Equal(t, start, st.Current, "count=%d dir=%d", count, dir)
		}
	}
}

func TestSkipPassesExactlyOnePlayer(t *testing.T) {
	st := &models.TurnState{Current: 0}
	c := New(st, 4)
	c.Skip()
	c.Advance()
	assert.Equal(t, 2, st.Current)
	assert.False(t, st.SkipNext, "skip flag is consumed")

	c.Advance()
	assert.Equal(t, 3, st.Current, "later advances are back to one seat")
}

func TestSkipCounterClockwise(t *testing.T) {
	st := &models.TurnState{Current: 0, Direction: -1}
	c := New(st, 4)
	c.Skip()
	c.Advance()
	assert.Equal(t, 2, st.Current)
	c.Advance()
	assert.Equal(t, 1, st.Current)
}

func TestReverseChangesDirection(t *testing.T) {
	st := &models.TurnState{Current: 2}
	c := New(st, 4)
	require.Equal(t, 1, st.Direction)
	c.Reverse()
	c.Advance()
	assert.Equal(t, 1, st.Current)
	assert.Equal(t, -1, st.Direction)
}

func TestStepIgnoresSkip(t *testing.T) {
	st := &models.TurnState{Current: 0}
	c := New(st, 3)
	c.Skip()
	c.Step()
	assert.Equal(t, 1, st.Current)
	assert.True(t, st.SkipNext)
}

func TestDrawObligation(t *testing.T) {
	st := &models.TurnState{}
	c := New(st, 2)
	c.AddDraw(2)
	c.AddDraw(4)
	assert.Equal(t, 6, c.TakeDraw())
	assert.Zero(t, st.PendingDraw)
}

func TestNextEligible(t *testing.T) {
	st := &models.TurnState{}
	c := New(st, 4)
	done := map[int]bool{1: true, 2: true}

	seat, ok := c.NextEligible(0, func(s int) bool { return !done[s] })
	require.True(t, ok)
	assert.Equal(t, 3, seat)

	seat, ok = c.NextEligible(3, func(s int) bool { return !done[s] })
	require.True(t, ok)
	assert.Equal(t, 0, seat, "wraps around")

	_, ok = c.NextEligible(0, func(int) bool { return false })
	assert.False(t, ok)
}
