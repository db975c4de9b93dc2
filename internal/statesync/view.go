// internal/statesync/view.go
package statesync

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partydeck/internal/models"
)

// PendingIntent is a wild card play waiting for the player to pick a color.
// It lives only on the local client and is never written to the shared state.
type PendingIntent struct {
	CardID uuid.UUID
	Turn   int
}

// View is everything a client renders, derived in full from one snapshot.
type View struct {
	Room    uuid.UUID
	Me      uuid.UUID
	Kind    models.GameKind
	Version int64
	Players []uuid.UUID

	Current   uuid.UUID
	MyTurn    bool
	Turn      int
	Deadline  time.Time
	Remaining time.Duration
	Winner    uuid.UUID
	Finished  bool

	// Color Clash
	Hand          []models.ClashCard
	HandSizes     map[uuid.UUID]int
	TopCard       *models.ClashCard
	CurrentColor  models.Color
	Direction     int
	PendingDraw   int
	SkipNext      bool
	LastCard      map[uuid.UUID]bool
	PendingIntent *PendingIntent

	// Flip21
	Phase       models.Phase
	Round       int
	Cards       []models.PlayingCard
	Value       int
	Status      models.PlayerStatus
	Dealer      []models.PlayingCard
	DealerValue int
	Results     map[uuid.UUID]models.Outcome
	Scores      map[uuid.UUID]int
	Eliminated  bool
	Driving     bool
}

// Derive computes me's view of st at now. A nil snapshot yields an empty view.
func Derive(st *models.GameState, me uuid.UUID, now time.Time) View {
	v := View{Me: me}
	if st == nil {
		return v
	}
	v.Room = st.RoomID
	v.Kind = st.Kind
	v.Version = st.Version
	v.Players = append([]uuid.UUID(nil), st.PlayerOrder...)
	v.Turn = st.Turn
	v.Winner = st.Winner
	v.Finished = st.Finished()
	if cur, ok := st.CurrentPlayer(); ok {
		v.Current = cur
		v.MyTurn = cur == me
	}
	if !st.TurnDeadline.IsZero() && !v.Finished {
		v.Deadline = st.TurnDeadline
		if rem := st.TurnDeadline.Sub(now); rem > 0 {
			v.Remaining = rem
		}
	}

	if cs := st.Clash; cs != nil {
		v.Hand = append([]models.ClashCard(nil), cs.Hands[me]...)
		v.HandSizes = make(map[uuid.UUID]int, len(cs.Hands))
		for id, h := range cs.Hands {
			v.HandSizes[id] = len(h)
		}
		if top, ok := cs.TopCard(); ok {
			v.TopCard = &top
		}
		v.CurrentColor = cs.CurrentColor
		v.Direction = cs.TurnState.Direction
		v.PendingDraw = cs.TurnState.PendingDraw
		v.SkipNext = cs.TurnState.SkipNext
		v.LastCard = make(map[uuid.UUID]bool, len(cs.LastCard))
		for id, flag := range cs.LastCard {
			v.LastCard[id] = flag
		}
	}

	if fs := st.Flip21; fs != nil {
		v.Phase = fs.Phase
		v.Round = fs.Round
		v.Cards = append([]models.PlayingCard(nil), fs.Hands[me]...)
		if len(v.Cards) > 0 {
			v.Value = models.HandValue(v.Cards)
		}
		v.Status = fs.Status[me]
		v.Dealer = append([]models.PlayingCard(nil), fs.Dealer...)
		if len(v.Dealer) > 0 {
			v.DealerValue = models.HandValue(v.Dealer)
		}
		v.Results = make(map[uuid.UUID]models.Outcome, len(fs.Results))
		for id, r := range fs.Results {
			v.Results[id] = r
		}
		v.Scores = make(map[uuid.UUID]int, len(fs.Scores))
		for id, sc := range fs.Scores {
			v.Scores[id] = sc
		}
		v.Eliminated = !st.HasPlayer(me)
		v.Driving = fs.Driver == me && (fs.Phase == models.PhaseDealerTurn || fs.Phase == models.PhaseResolving)
	}
	return v
}
