package statesync

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partydeck/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveNil(t *testing.T) {
	me := uuid.New()
	v := Derive(nil, me, time.Now())
	assert.Equal(t, View{Me: me}, v)
}

func TestDeriveClash(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	top := models.ClashCard{ID: uuid.New(), Kind: models.KindNumber, Color: models.ColorRed, Number: 5}
	mine := models.ClashCard{ID: uuid.New(), Kind: models.KindSkip, Color: models.ColorBlue}
	st := &models.GameState{
		RoomID:       uuid.New(),
		Kind:         models.GameClash,
		Version:      4,
		PlayerOrder:  []uuid.UUID{a, b},
		Turn:         3,
		TurnDeadline: now.Add(10 * time.Second),
		Clash: &models.ClashState{
			Hands:        map[uuid.UUID][]models.ClashCard{a: {mine}, b: {top, top}},
			Discard:      []models.ClashCard{top},
			TurnState:    models.TurnState{Current: 1, Direction: 1, PendingDraw: 2, SkipNext: true},
			CurrentColor: models.ColorRed,
			LastCard:     map[uuid.UUID]bool{a: true},
		},
	}

	v := Derive(st, a, now)
	assert.Equal(t, b, v.Current)
	assert.False(t, v.MyTurn)
	assert.Equal(t, 10*time.Second, v.Remaining)
	assert.Equal(t, []models.ClashCard{mine}, v.Hand)
	assert.Equal(t, map[uuid.UUID]int{a: 1, b: 2}, v.HandSizes)
	require.NotNil(t, v.TopCard)
	assert.Equal(t, top.ID, v.TopCard.ID)
	assert.Equal(t, 2, v.PendingDraw)
	assert.True(t, v.LastCard[a])

	// The view owns its data.
	v.Hand[0].Color = models.ColorGreen
	v.LastCard[b] = true
	assert.Equal(t, models.ColorBlue, st.Clash.Hands[a][0].Color)
	assert.False(t, st.Clash.LastCard[b])

	late := Derive(st, b, now.Add(time.Minute))
	assert.True(t, late.MyTurn)
	assert.Zero(t, late.Remaining, "remaining time never goes negative")
}

func TestDeriveFlip21(t *testing.T) {
	a, b, out := uuid.New(), uuid.New(), uuid.New()
	card := func(rank string) models.PlayingCard {
		return models.PlayingCard{ID: uuid.New(), Rank: rank, Suit: "S", Revealed: true}
	}
	st := &models.GameState{
		Kind:        models.GameFlip21,
		Version:     9,
		PlayerOrder: []uuid.UUID{a, b},
		Flip21: &models.Flip21State{
			Phase:      models.PhaseDealerTurn,
			Round:      2,
			Current:    -1,
			Hands:      map[uuid.UUID][]models.PlayingCard{a: {card("K"), card("9")}, b: {card("5")}},
			Status:     map[uuid.UUID]models.PlayerStatus{a: models.StatusLocked},
			Dealer:     []models.PlayingCard{card("A"), card("6")},
			Scores:     map[uuid.UUID]int{a: 1},
			Roster:     []uuid.UUID{a, b, out},
			Eliminated: []uuid.UUID{out},
			Driver:     a,
		},
	}

	v := Derive(st, a, time.Now())
	assert.False(t, v.MyTurn)
	assert.Equal(t, 19, v.Value)
	assert.Equal(t, 17, v.DealerValue)
	assert.Equal(t, models.StatusLocked, v.Status)
	assert.True(t, v.Driving)
	assert.False(t, v.Eliminated)
	assert.Equal(t, 1, v.Scores[a])

	gone := Derive(st, out, time.Now())
	assert.True(t, gone.Eliminated)
	assert.False(t, gone.Driving)
	assert.Empty(t, gone.Cards)
}
