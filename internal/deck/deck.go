// internal/deck/deck.go
package deck

import (
	"errors"
	"math/rand"
	"time"
)

var (
	// ErrEmpty is returned when neither the deck nor the discard pile can supply a card.
	ErrEmpty = errors.New("deck: no cards left to draw")

	// ErrNotEnoughCards is returned when a deal asks for more cards than the shoe holds.
	ErrNotEnoughCards = errors.New("deck: not enough cards to deal")
)

// NewRand returns a time-seeded random source.
func NewRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// Shuffle permutes cards in place uniformly at random.
func Shuffle[T any](rng *rand.Rand, cards []T) {
	rng.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
}

// Shoe is a draw pile plus discard pile of one game's cards.
// Cards are drawn from the front of Cards; the top of Discard is its last element.
type Shoe[T any] struct {
	Cards   []T
	Discard []T

	// Reset, when set, is applied to every card moved from the discard pile back into Cards.
	Reset func(T) T

	// Reshuffles counts how many times the discard pile was recycled.
	Reshuffles int
}

// Len is the number of cards left to draw before a reshuffle.
func (s *Shoe[T]) Len() int {
	return len(s.Cards)
}

// Available is the number of cards that can still be drawn, counting a reshuffle.
// The top discard card is never recycled.
func (s *Shoe[T]) Available() int {
	n := len(s.Cards)
	if len(s.Discard) > 1 {
		n += len(s.Discard) - 1
	}
	return n
}

// Shuffle permutes the draw pile.
func (s *Shoe[T]) Shuffle(rng *rand.Rand) {
	Shuffle(rng, s.Cards)
}

// Deal hands out n cards to each of k hands round-robin, like a dealer around a table.
// Nothing is drawn if the shoe cannot cover every hand.
func (s *Shoe[T]) Deal(k, n int) ([][]T, error) {
	if k*n > len(s.Cards) {
		return nil, ErrNotEnoughCards
	}
	hands := make([][]T, k)
	for i := range hands {
		hands[i] = make([]T, 0, n)
	}
	for round := 0; round < n; round++ {
		for i := 0; i < k; i++ {
			hands[i] = append(hands[i], s.Cards[0])
			s.Cards = s.Cards[1:]
		}
	}
	return hands, nil
}

// Reshuffle moves every discard except the top card back into the draw pile and shuffles it.
// It reports false when there was nothing to recycle.
func (s *Shoe[T]) Reshuffle(rng *rand.Rand) bool {
	if len(s.Discard) <= 1 {
		return false
	}
	top := s.Discard[len(s.Discard)-1]
	recycled := s.Discard[:len(s.Discard)-1]
	for _, c := range recycled {
		if s.Reset != nil {
			c = s.Reset(c)
		}
		s.Cards = append(s.Cards, c)
	}
	s.Discard = []T{top}
	Shuffle(rng, s.Cards)
	s.Reshuffles++
	return true
}

// Draw pops the front card, recycling the discard pile first when the draw pile is empty.
func (s *Shoe[T]) Draw(rng *rand.Rand) (T, error) {
	var zero T
	if len(s.Cards) == 0 && !s.Reshuffle(rng) {
		return zero, ErrEmpty
	}
	card := s.Cards[0]
	s.Cards = s.Cards[1:]
	return card, nil
}

// DrawUpTo draws until n cards are drawn or nothing is left. Running dry is not an error.
func (s *Shoe[T]) DrawUpTo(rng *rand.Rand, n int) []T {
	drawn := make([]T, 0, n)
	for len(drawn) < n {
		card, err := s.Draw(rng)
		if err != nil {
			break
		}
		drawn = append(drawn, card)
	}
	return drawn
}

// PutBottom returns cards to the bottom of the draw pile.
func (s *Shoe[T]) PutBottom(cards ...T) {
	s.Cards = append(s.Cards, cards...)
}

// PushDiscard places a card on top of the discard pile.
func (s *Shoe[T]) PushDiscard(card T) {
	s.Discard = append(s.Discard, card)
}
