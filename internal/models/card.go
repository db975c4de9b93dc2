// internal/models/card.go
package models

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Color is one of the four Color Clash suits.
type Color string

const (
	ColorNone   Color = ""
	ColorRed    Color = "red"
	ColorYellow Color = "yellow"
	ColorGreen  Color = "green"
	ColorBlue   Color = "blue"
)

// Colors lists the playable colors in deck order.
var Colors = []Color{ColorRed, ColorYellow, ColorGreen, ColorBlue}

// Valid reports whether c is one of the four playable colors.
func (c Color) Valid() bool {
	switch c {
	case ColorRed, ColorYellow, ColorGreen, ColorBlue:
		return true
	}
	return false
}

// CardKind distinguishes number cards from the action and wild cards.
type CardKind string

const (
	KindNumber       CardKind = "number"
	KindSkip         CardKind = "skip"
	KindReverse      CardKind = "reverse"
	KindDrawTwo      CardKind = "drawTwo"
	KindWild         CardKind = "wild"
	KindWildDrawFour CardKind = "wildDrawFour"
)

// IsWild reports whether the kind has its color chosen on play.
func (k CardKind) IsWild() bool {
	return k == KindWild || k == KindWildDrawFour
}

// ClashCard is a single Color Clash card.
//
// Color is set for number/skip/reverse/drawTwo and empty for wild kinds.
// SelectedColor is only set on wild kinds after they are played.
// Number is meaningful only for KindNumber.
type ClashCard struct {
	ID            uuid.UUID `json:"id"`
	Kind          CardKind  `json:"kind"`
	Color         Color     `json:"color,omitempty"`
	Number        int       `json:"number"`
	SelectedColor Color     `json:"selectedColor,omitempty"`
}

// EffectiveColor is the color used for matching: the chosen color of a played wild, else the printed color.
func (c ClashCard) EffectiveColor() Color {
	if c.SelectedColor != ColorNone {
		return c.SelectedColor
	}
	return c.Color
}

// Reset clears the play-time color choice so a wild returns to the deck uncolored.
func (c ClashCard) Reset() ClashCard {
	c.SelectedColor = ColorNone
	return c
}

func (c ClashCard) String() string {
	switch c.Kind {
	case KindNumber:
		return fmt.Sprintf("%s %d", c.Color, c.Number)
	case KindWild, KindWildDrawFour:
		if c.SelectedColor != ColorNone {
			return fmt.Sprintf("%s(%s)", c.Kind, c.SelectedColor)
		}
		return string(c.Kind)
	default:
		return fmt.Sprintf("%s %s", c.Color, c.Kind)
	}
}

// CanPlay reports whether card may be played on top of top when currentColor is in force.
// Wild kinds are always legal; their color is chosen afterwards.
func CanPlay(card, top ClashCard, currentColor Color) bool {
	if card.Kind.IsWild() {
		return true
	}
	if card.Color == currentColor {
		return true
	}
	if card.Kind == KindNumber {
		return top.Kind == KindNumber && card.Number == top.Number
	}
	return card.Kind == top.Kind
}

// NewClashDeck builds the unshuffled 108-card Color Clash deck.
func NewClashDeck() []ClashCard {
	deck := make([]ClashCard, 0, ClashDeckSize)
	add := func(kind CardKind, color Color, number int) {
		cid, _ := uuid.NewRandom()
		deck = append(deck, ClashCard{ID: cid, Kind: kind, Color: color, Number: number})
	}
	for _, color := range Colors {
		add(KindNumber, color, 0)
		for n := 1; n <= 9; n++ {
			add(KindNumber, color, n)
			add(KindNumber, color, n)
		}
		for _, kind := range []CardKind{KindSkip, KindReverse, KindDrawTwo} {
			add(kind, color, 0)
			add(kind, color, 0)
		}
	}
	for i := 0; i < 4; i++ {
		add(KindWild, ColorNone, 0)
		add(KindWildDrawFour, ColorNone, 0)
	}
	return deck
}

// ClashDeckSize is the number of cards in a full Color Clash deck.
const ClashDeckSize = 108

// Flip21DeckSize is the number of cards in a standard 52-card Flip21 deck.
const Flip21DeckSize = 52

// Suits and ranks of the Flip21 deck, single-letter like the rest of the service.
var (
	Suits = []string{"H", "D", "C", "S"}
	Ranks = []string{"A", "2", "3", "4", "5", "6", "7", "8", "9", "T", "J", "Q", "K"}
)

// PlayingCard is a standard rank/suit card used by Flip21.
type PlayingCard struct {
	ID       uuid.UUID `json:"id"`
	Rank     string    `json:"rank"`
	Suit     string    `json:"suit"`
	Revealed bool      `json:"revealed"`
}

// Points is the card's base value with aces counted as 1.
func (c PlayingCard) Points() int {
	switch c.Rank {
	case "A":
		return 1
	case "T", "J", "Q", "K":
		return 10
	}
	v, err := strconv.Atoi(c.Rank)
	if err != nil {
		return 0
	}
	return v
}

// Reset turns a card face-down again when it goes back into the shoe.
func (c PlayingCard) Reset() PlayingCard {
	c.Revealed = false
	return c
}

func (c PlayingCard) String() string {
	return c.Rank + c.Suit
}

// NewFlip21Deck builds the unshuffled 52-card deck.
func NewFlip21Deck() []PlayingCard {
	deck := make([]PlayingCard, 0, Flip21DeckSize)
	for _, suit := range Suits {
		for _, rank := range Ranks {
			cid, _ := uuid.NewRandom()
			deck = append(deck, PlayingCard{ID: cid, Rank: rank, Suit: suit})
		}
	}
	return deck
}

// HandValue totals a Flip21 hand. One ace counts as 11 when that keeps the total at or under 21.
// If the hand is over 21 even with every ace at 1, one ace is still reported as 11.
func HandValue(cards []PlayingCard) int {
	total, aces := 0, 0
	for _, c := range cards {
		total += c.Points()
		if c.Rank == "A" {
			aces++
		}
	}
	if aces > 0 && (total+10 <= 21 || total > 21) {
		total += 10
	}
	return total
}

// Busted reports whether a hand total exceeds 21.
func Busted(cards []PlayingCard) bool {
	return HandValue(cards) > 21
}
