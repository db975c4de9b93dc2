package game

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partydeck/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func testOptions(seed int64) []Option {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return []Option{
		WithRand(rand.New(rand.NewSource(seed))),
		WithClock(func() time.Time { return testNow }),
		WithLogger(logger),
	}
}

func newPlayers(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i], _ = uuid.NewRandom()
	}
	return ids
}

// clashPool hands out specific cards from a full deck so fixtures keep every card accounted for.
type clashPool struct {
	cards []models.ClashCard
}

func newClashPool() *clashPool {
	return &clashPool{cards: models.NewClashDeck()}
}

func (p *clashPool) take(t *testing.T, kind models.CardKind, color models.Color, number int) models.ClashCard {
	t.Helper()
	for i, c := range p.cards {
		if c.Kind == kind && c.Color == color && (kind != models.KindNumber || c.Number == number) {
			p.cards = append(p.cards[:i], p.cards[i+1:]...)
			return c
		}
	}
	require.FailNowf(t, "card not in pool", "%s %s %d", kind, color, number)
	return models.ClashCard{}
}

func (p *clashPool) num(t *testing.T, color models.Color, n int) models.ClashCard {
	return p.take(t, models.KindNumber, color, n)
}

// clashState builds a snapshot with fixed hands and top card; the rest of the pool becomes the deck.
func clashState(players []uuid.UUID, p *clashPool, top models.ClashCard, hands ...[]models.ClashCard) *models.GameState {
	hs := make(map[uuid.UUID][]models.ClashCard, len(players))
	for i, id := range players {
		hs[id] = hands[i]
	}
	roomID, _ := uuid.NewRandom()
	return &models.GameState{
		RoomID:      roomID,
		Kind:        models.GameClash,
		Version:     1,
		PlayerOrder: players,
		Turn:        1,
		Clash: &models.ClashState{
			Hands:        hs,
			Deck:         p.cards,
			Discard:      []models.ClashCard{top},
			TurnState:    models.TurnState{Direction: 1},
			CurrentColor: top.EffectiveColor(),
			LastCard:     map[uuid.UUID]bool{},
		},
	}
}

func cards(cs ...models.ClashCard) []models.ClashCard {
	return cs
}

// flipPool is the Flip21 counterpart of clashPool, addressed by "9S" style names.
type flipPool struct {
	cards []models.PlayingCard
}

func newFlipPool() *flipPool {
	return &flipPool{cards: models.NewFlip21Deck()}
}

func (p *flipPool) take(t *testing.T, names ...string) []models.PlayingCard {
	t.Helper()
	out := make([]models.PlayingCard, 0, len(names))
	for _, name := range names {
		found := false
		for i, c := range p.cards {
			if c.String() == name {
				c.Revealed = true
				out = append(out, c)
				p.cards = append(p.cards[:i], p.cards[i+1:]...)
				found = true
				break
			}
		}
		require.Truef(t, found, "card %s not in pool", name)
	}
	return out
}

// flipState builds a playerTurns snapshot. deckTop cards are drawn first.
func flipState(t *testing.T, players []uuid.UUID, dealer []string, deckTop []string, hands ...[]string) *models.GameState {
	t.Helper()
	p := newFlipPool()
	fs := &models.Flip21State{
		Phase:   models.PhasePlayerTurns,
		Round:   1,
		Hands:   map[uuid.UUID][]models.PlayingCard{},
		Status:  map[uuid.UUID]models.PlayerStatus{},
		Results: map[uuid.UUID]models.Outcome{},
		Scores:  map[uuid.UUID]int{},
		Roster:  append([]uuid.UUID(nil), players...),
	}
	for i, id := range players {
		fs.Hands[id] = p.take(t, hands[i]...)
		fs.Status[id] = models.StatusPlaying
		fs.Scores[id] = 0
	}
	fs.Dealer = p.take(t, dealer...)
	top := p.take(t, deckTop...)
	for i := range top {
		top[i].Revealed = false
	}
	fs.Deck = append(top, p.cards...)

	roomID, _ := uuid.NewRandom()
	return &models.GameState{
		RoomID:      roomID,
		Kind:        models.GameFlip21,
		Version:     1,
		PlayerOrder: append([]uuid.UUID(nil), players...),
		Turn:        1,
		Flip21:      fs,
	}
}
