package game

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partydeck/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertFlipConserved(t *testing.T, st *models.GameState) {
	t.Helper()
	require.Equal(t, models.Flip21DeckSize, st.CardCount())
	seen := make(map[uuid.UUID]bool, models.Flip21DeckSize)
	check := func(cs []models.PlayingCard) {
		for _, c := range cs {
			require.False(t, seen[c.ID], "card %s appears twice", c)
			seen[c.ID] = true
		}
	}
	fs := st.Flip21
	check(fs.Deck)
	check(fs.Discard)
	check(fs.Dealer)
	for _, h := range fs.Hands {
		check(h)
	}
}

func TestFlip21NewMatch(t *testing.T) {
	f := NewFlip21(DefaultRules(), testOptions(1)...)
	players := newPlayers(3)
	roomID, _ := uuid.NewRandom()

	st, err := f.NewMatch(roomID, players)
	require.NoError(t, err)

	fs := st.Flip21
	assert.Equal(t, models.PhasePlayerTurns, fs.Phase)
	assert.Equal(t, 1, fs.Round)
	assert.Equal(t, players, fs.Roster)
	for _, id := range players {
		require.Len(t, fs.Hands[id], 1, "one card per player")
		assert.True(t, fs.Hands[id][0].Revealed)
		assert.Equal(t, models.StatusPlaying, fs.Status[id])
		assert.Zero(t, fs.Scores[id])
	}
	require.Len(t, fs.Dealer, 1, "dealer gets a single face-up card")
	assert.True(t, fs.Dealer[0].Revealed)
	assert.True(t, st.IsCurrent(players[0]))
	assert.Equal(t, testNow.Add(f.Rules().TurnDuration()), st.TurnDeadline)
	assertFlipConserved(t, st)

	_, ok := f.TimeoutAction(st)
	assert.False(t, ok)
	_, err = f.Apply(st, models.GameAction{ActionType: models.ActionTimeout, Actor: players[1], Turn: st.Turn})
	assert.ErrorIs(t, err, ErrNoAutoAction)
}

func TestFlip21HitAndBust(t *testing.T) {
	f := NewFlip21(DefaultRules(), testOptions(2)...)
	ps := newPlayers(2)
	st := flipState(t, ps, []string{"9C"}, []string{"5H", "KH"}, []string{"TS"}, []string{"4D"})

	next, err := f.Hit(st, ps[0])
	require.NoError(t, err)
	assert.Equal(t, 15, models.HandValue(next.Flip21.Hands[ps[0]]))
	assert.True(t, next.Flip21.Hands[ps[0]][1].Revealed)
	assert.True(t, next.IsCurrent(ps[0]), "a safe hit keeps the turn")
	assert.Equal(t, st.Turn, next.Turn)

	next, err = f.Hit(next, ps[0])
	require.NoError(t, err)
	assert.Equal(t, models.StatusBusted, next.Flip21.Status[ps[0]])
	assert.True(t, next.IsCurrent(ps[1]), "busting passes the turn")
	assert.Greater(t, next.Turn, st.Turn)
	assertFlipConserved(t, next)

	_, err = f.Hit(next, ps[0])
	assert.ErrorIs(t, err, ErrNotYourTurn)
}

func TestFlip21TurnOrderSkipsFinishedPlayers(t *testing.T) {
	f := NewFlip21(DefaultRules(), testOptions(3)...)
	ps := newPlayers(3)
	st := flipState(t, ps, []string{"9C"}, nil, []string{"TS"}, []string{"4D"}, []string{"6D"})
	st.Flip21.Status[ps[1]] = models.StatusLocked

	next, err := f.Lock(st, ps[0])
	require.NoError(t, err)
	assert.True(t, next.IsCurrent(ps[2]))

	next, err = f.Lock(next, ps[2])
	require.NoError(t, err)
	assert.Equal(t, models.PhaseDealerTurn, next.Flip21.Phase)
	assert.Equal(t, ps[2], next.Flip21.Driver, "the last actor drives the dealer")
	_, ok := next.CurrentPlayer()
	assert.False(t, ok)
	assert.True(t, next.TurnDeadline.IsZero())

	_, err = f.Hit(next, ps[2])
	assert.ErrorIs(t, err, ErrWrongPhase)
}

func TestFlip21ScenarioDealerDraws(t *testing.T) {
	f := NewFlip21(DefaultRules(), testOptions(4)...)
	ps := newPlayers(2)
	st := flipState(t, ps, []string{"9C", "7C"}, []string{"2H"}, []string{"TS"}, []string{"4D"})
	st.Flip21.Phase = models.PhaseDealerTurn
	st.Flip21.Current = -1
	st.Flip21.Driver = ps[1]

	_, err := f.DealerDraw(st, ps[0])
	assert.ErrorIs(t, err, ErrNotDriver)
	_, err = f.Resolve(st, ps[1])
	assert.ErrorIs(t, err, ErrWrongPhase)

	next, err := f.DealerDraw(st, ps[1])
	require.NoError(t, err)
	assert.Equal(t, 18, models.HandValue(next.Flip21.Dealer))
	assert.Equal(t, models.PhaseResolving, next.Flip21.Phase)
	assertFlipConserved(t, next)
}

func TestFlip21DealerDrawsOneCardAtATime(t *testing.T) {
	f := NewFlip21(DefaultRules(), testOptions(5)...)
	ps := newPlayers(2)
	st := flipState(t, ps, []string{"9C"}, []string{"3H", "2H", "8H"}, []string{"TS"}, []string{"4D"})
	st.Flip21.Phase = models.PhaseDealerTurn
	st.Flip21.Current = -1
	st.Flip21.Driver = ps[0]

	next, err := f.DealerDraw(st, ps[0])
	require.NoError(t, err)
	assert.Equal(t, 12, models.HandValue(next.Flip21.Dealer))
	assert.Equal(t, models.PhaseDealerTurn, next.Flip21.Phase)

	next, err = f.DealerDraw(next, ps[0])
	require.NoError(t, err)
	assert.Equal(t, 14, models.HandValue(next.Flip21.Dealer))
	assert.Equal(t, models.PhaseDealerTurn, next.Flip21.Phase)

	next, err = f.DealerDraw(next, ps[0])
	require.NoError(t, err)
	assert.Equal(t, 22, models.HandValue(next.Flip21.Dealer))
	assert.Equal(t, models.PhaseResolving, next.Flip21.Phase)
}

func TestFlip21DealerStopsOnEmptyShoe(t *testing.T) {
	f := NewFlip21(DefaultRules(), testOptions(6)...)
	ps := newPlayers(2)
	st := flipState(t, ps, []string{"2C"}, nil, []string{"TS"}, []string{"4D"})
	fs := st.Flip21
	fs.Hands[ps[0]] = append(fs.Hands[ps[0]], fs.Deck...)
	fs.Deck = nil
	fs.Phase = models.PhaseDealerTurn
	fs.Current = -1
	fs.Driver = ps[0]

	next, err := f.DealerDraw(st, ps[0])
	require.NoError(t, err)
	assert.Len(t, next.Flip21.Dealer, 1)
	assert.Equal(t, models.PhaseResolving, next.Flip21.Phase)
}

func finishedRound(t *testing.T, f *Flip21, ps []uuid.UUID, dealer []string, hands [][]string, status []models.PlayerStatus) *models.GameState {
	t.Helper()
	st := flipState(t, ps, dealer, nil, hands...)
	for i, id := range ps {
		st.Flip21.Status[id] = status[i]
	}
	st.Flip21.Phase = models.PhaseResolving
	st.Flip21.Current = -1
	st.Flip21.Driver = ps[0]

	next, err := f.Resolve(st, ps[0])
	require.NoError(t, err)
	require.Equal(t, models.PhaseFinished, next.Flip21.Phase)
	return next
}

func TestFlip21ScenarioDealerBusts(t *testing.T) {
	f := NewFlip21(DefaultRules(), testOptions(7)...)
	ps := newPlayers(3)
	st := finishedRound(t, f, ps,
		[]string{"TC", "5C", "8C"},
		[][]string{{"KS", "QS"}, {"9D", "9H"}, {"KD", "QD", "5D"}},
		[]models.PlayerStatus{models.StatusLocked, models.StatusLocked, models.StatusBusted})

	fs := st.Flip21
	assert.Equal(t, models.OutcomeWin, fs.Results[ps[0]])
	assert.Equal(t, models.OutcomeWin, fs.Results[ps[1]])
	assert.Equal(t, models.OutcomeLoss, fs.Results[ps[2]], "busted players lose even against a busted dealer")
	assert.Equal(t, 1, fs.Scores[ps[0]])
	assert.Zero(t, fs.Scores[ps[2]])

	next, err := f.StartNextRound(st, ps[1])
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{ps[0], ps[1]}, next.PlayerOrder)
	assert.Equal(t, []uuid.UUID{ps[2]}, next.Flip21.Eliminated)
	assert.Equal(t, 2, next.Flip21.Round)
	assert.Equal(t, models.PhasePlayerTurns, next.Flip21.Phase)
	assert.NotContains(t, next.Flip21.Hands, ps[2])
	assert.Len(t, next.Flip21.Hands[ps[0]], 1)
	assert.Equal(t, 1, next.Flip21.Scores[ps[0]], "scores carry across rounds")
	assert.True(t, next.IsCurrent(ps[0]))
	assertFlipConserved(t, next)
}

func TestFlip21ScenarioPushEliminates(t *testing.T) {
	f := NewFlip21(DefaultRules(), testOptions(8)...)
	ps := newPlayers(3)
	st := finishedRound(t, f, ps,
		[]string{"TC", "9C"},
		[][]string{{"KS", "9S"}, {"KD", "QD"}, {"KH", "QH"}},
		[]models.PlayerStatus{models.StatusLocked, models.StatusLocked, models.StatusLocked})

	assert.Equal(t, models.OutcomePush, st.Flip21.Results[ps[0]])
	assert.Equal(t, models.OutcomeWin, st.Flip21.Results[ps[1]])

	next, err := f.StartNextRound(st, ps[0])
	require.NoError(t, err)
	assert.NotContains(t, next.PlayerOrder, ps[0], "a push does not survive")
	assert.Equal(t, []uuid.UUID{ps[1], ps[2]}, next.PlayerOrder)
}

func TestFlip21ResultsCoverEveryPlayer(t *testing.T) {
	f := NewFlip21(DefaultRules(), testOptions(9)...)
	ps := newPlayers(4)
	st := finishedRound(t, f, ps,
		[]string{"TC", "8C"},
		[][]string{{"KS", "7S"}, {"KD", "8D"}, {"KH", "9H"}, {"KC", "QC", "2C"}},
		[]models.PlayerStatus{models.StatusLocked, models.StatusLocked, models.StatusLocked, models.StatusBusted})

	fs := st.Flip21
	require.Len(t, fs.Results, 4)
	assert.Equal(t, models.OutcomeLoss, fs.Results[ps[0]])
	assert.Equal(t, models.OutcomePush, fs.Results[ps[1]])
	assert.Equal(t, models.OutcomeWin, fs.Results[ps[2]])
	assert.Equal(t, models.OutcomeLoss, fs.Results[ps[3]])
}

func TestFlip21MatchOver(t *testing.T) {
	f := NewFlip21(DefaultRules(), testOptions(10)...)
	ps := newPlayers(2)
	st := finishedRound(t, f, ps,
		[]string{"TC", "8C"},
		[][]string{{"KS", "QS"}, {"KD", "6D"}},
		[]models.PlayerStatus{models.StatusLocked, models.StatusLocked})

	_, err := f.StartNextRound(st, uuid.New())
	assert.ErrorIs(t, err, ErrNotPlayer)

	over, err := f.StartNextRound(st, ps[1])
	require.NoError(t, err)
	assert.True(t, over.Finished())
	assert.Equal(t, ps[0], over.Winner)
	assert.Equal(t, []uuid.UUID{ps[0]}, over.PlayerOrder)
	assertFlipConserved(t, over)

	_, err = f.Hit(over, ps[0])
	assert.ErrorIs(t, err, ErrGameOver)
	_, err = f.StartNextRound(over, ps[0])
	assert.ErrorIs(t, err, ErrGameOver)

	// Eliminated players can still ask for a rematch of the whole roster.
	fresh, err := f.Apply(over, models.GameAction{ActionType: models.ActionRematch, Actor: ps[1]})
	require.NoError(t, err)
	assert.Equal(t, ps, fresh.PlayerOrder)
	assert.Equal(t, 1, fresh.Flip21.Round)
	assert.Equal(t, over.Version+1, fresh.Version)
	assert.Greater(t, fresh.Turn, over.Turn)
	assertFlipConserved(t, fresh)
}

func TestFlip21NoSurvivors(t *testing.T) {
	f := NewFlip21(DefaultRules(), testOptions(11)...)
	ps := newPlayers(2)
	st := finishedRound(t, f, ps,
		[]string{"TC", "9C"},
		[][]string{{"KS", "7S"}, {"KD", "QD", "5D"}},
		[]models.PlayerStatus{models.StatusLocked, models.StatusBusted})

	over, err := f.StartNextRound(st, ps[0])
	require.NoError(t, err)
	assert.True(t, over.Finished())
	assert.Equal(t, uuid.Nil, over.Winner)
	assert.Empty(t, over.PlayerOrder)
}

func TestFlip21HitRecyclesDiscard(t *testing.T) {
	f := NewFlip21(DefaultRules(), testOptions(12)...)
	ps := newPlayers(2)
	st := flipState(t, ps, []string{"9C"}, nil, []string{"2S"}, []string{"4D"})
	fs := st.Flip21
	for i := range fs.Deck {
		fs.Deck[i].Revealed = true
	}
	fs.Discard, fs.Deck = fs.Deck, nil
	top := fs.Discard[len(fs.Discard)-1]

	next, err := f.Hit(st, ps[0])
	require.NoError(t, err)
	nfs := next.Flip21
	require.Len(t, nfs.Discard, 1, "only the top discard stays behind")
	assert.Equal(t, top.ID, nfs.Discard[0].ID)
	assert.Len(t, nfs.Deck, len(fs.Discard)-2)
	for _, c := range nfs.Deck {
		assert.False(t, c.Revealed, "recycled cards go back face down")
	}
	assert.Len(t, nfs.Hands[ps[0]], 2)
	assert.True(t, next.IsCurrent(ps[0]))
	assertFlipConserved(t, next)
	assert.Len(t, st.Flip21.Deck, 0, "the input snapshot is untouched")
}

func TestFlip21DealRoundReshufflesShortDeck(t *testing.T) {
	f := NewFlip21(DefaultRules(), testOptions(13)...)
	ps := newPlayers(3)
	st := finishedRound(t, f, ps,
		[]string{"TC", "7C"},
		[][]string{{"KS", "9S"}, {"KD", "8D"}, {"2H", "3H"}},
		[]models.PlayerStatus{models.StatusLocked, models.StatusLocked, models.StatusLocked})
	fs := st.Flip21
	require.Equal(t, models.OutcomeWin, fs.Results[ps[0]])
	require.Equal(t, models.OutcomeWin, fs.Results[ps[1]])

	// Two survivors plus the dealer need three cards; leave one.
	fs.Discard = append(fs.Discard, fs.Deck[1:]...)
	fs.Deck = fs.Deck[:1]
	assertFlipConserved(t, st)

	next, err := f.StartNextRound(st, ps[0])
	require.NoError(t, err)
	nfs := next.Flip21
	assert.Equal(t, []uuid.UUID{ps[0], ps[1]}, next.PlayerOrder)
	assert.Equal(t, models.PhasePlayerTurns, nfs.Phase)
	require.Len(t, nfs.Discard, 1, "the reshuffle keeps a single anchor card")
	assert.Equal(t, "7C", nfs.Discard[0].String(), "the dealer's last card was the top discard")
	assert.Len(t, nfs.Deck, models.Flip21DeckSize-4)
	for _, id := range next.PlayerOrder {
		require.Len(t, nfs.Hands[id], 1)
	}
	require.Len(t, nfs.Dealer, 1)
	assertFlipConserved(t, next)
}

// TestFlip21Playout runs seeded brackets to the end with simple bots.
func TestFlip21Playout(t *testing.T) {
	for seed := int64(0); seed < 5; seed++ {
		f := NewFlip21(DefaultRules(), testOptions(seed)...)
		roomID, _ := uuid.NewRandom()
		players := newPlayers(6)
		st, err := f.NewMatch(roomID, players)
		require.NoError(t, err)

		for step := 0; step < 2000 && !st.Finished(); step++ {
			fs := st.Flip21
			var next *models.GameState
			switch fs.Phase {
			case models.PhasePlayerTurns:
				cur, ok := st.CurrentPlayer()
				require.True(t, ok)
				if models.HandValue(fs.Hands[cur]) < 15 {
					next, err = f.Hit(st, cur)
				} else {
					next, err = f.Lock(st, cur)
				}
			case models.PhaseDealerTurn:
				next, err = f.DealerDraw(st, fs.Driver)
			case models.PhaseResolving:
				next, err = f.Resolve(st, fs.Driver)
			case models.PhaseFinished:
				next, err = f.StartNextRound(st, st.PlayerOrder[0])
			}
			require.NoError(t, err, "seed %d step %d phase %s", seed, step, fs.Phase)
			require.LessOrEqual(t, len(next.PlayerOrder), len(st.PlayerOrder))
			assertFlipConserved(t, next)
			st = next
		}
	}
}
