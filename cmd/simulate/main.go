// cmd/simulate/main.go plays a full match between bots, either in-process over the memory
// store or against a running relay.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partydeck/internal/bot"
	"github.com/jason-s-yu/partydeck/internal/config"
	"github.com/jason-s-yu/partydeck/internal/game"
	"github.com/jason-s-yu/partydeck/internal/handlers"
	"github.com/jason-s-yu/partydeck/internal/historian"
	"github.com/jason-s-yu/partydeck/internal/models"
	"github.com/jason-s-yu/partydeck/internal/statesync"
	"github.com/jason-s-yu/partydeck/internal/store"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	kind := flag.String("game", string(models.GameClash), "game to play: clash or flip21")
	players := flag.Int("players", 4, "number of bot seats")
	seed := flag.Int64("seed", time.Now().UnixNano(), "shuffle seed")
	relay := flag.String("relay", "", "relay base URL (e.g. http://localhost:8080); empty plays in-process")
	maxMoves := flag.Int("max-moves", 5000, "give up after this many moves")
	pauseMs := flag.Int("dealer-pause-ms", 0, "pause between Flip21 dealer draws")
	publish := flag.Bool("publish", false, "push every move onto the historian queue")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	logger := cfg.Logger()

	rules := game.DefaultRules()
	if err := rules.Update(map[string]interface{}{"turnTimerSec": 0, "dealerPauseMs": *pauseMs}); err != nil {
		logger.Fatalf("rules: %v", err)
	}
	machine, err := game.New(models.GameKind(*kind), rules,
		game.WithRand(rand.New(rand.NewSource(*seed))), game.WithLogger(logger))
	if err != nil {
		logger.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var opts []statesync.Option
	opts = append(opts, statesync.WithLogger(logger))
	if *publish {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		defer rdb.Close()
		opts = append(opts, statesync.WithActionHook(historian.NewPublisher(rdb, cfg.HistorianQueue, logger).OnAction))
	}

	room := uuid.New()
	seats, err := openSeats(ctx, *relay, room, *players, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}

	ids := make([]uuid.UUID, 0, len(seats))
	for id := range seats {
		ids = append(ids, id)
	}
	if _, err := statesync.Host(ctx, seats[ids[0]], machine, room, ids); err != nil {
		logger.Fatalf("host: %v", err)
	}

	sessions := map[uuid.UUID]*statesync.Session{}
	for id, st := range seats {
		s := statesync.New(st, machine, room, id, opts...)
		if err := s.Start(ctx); err != nil {
			logger.Fatalf("start session: %v", err)
		}
		defer s.Close()
		sessions[id] = s
	}

	tb := &bot.Table{
		Seats:    sessions,
		MaxMoves: *maxMoves,
		Log:      logger,
		OnMove: func(st *models.GameState) {
			logger.WithFields(logrus.Fields{
				"version": st.Version,
				"actor":   short(st.UpdatedBy),
				"action":  st.LastAction.ActionType,
			}).Info(describe(st))
		},
	}
	started := time.Now()
	final, err := tb.Play(ctx)
	if err != nil {
		logger.Fatalf("match aborted: %v", err)
	}
	logger.WithFields(logrus.Fields{
		"room":     room,
		"winner":   short(final.Winner),
		"versions": final.Version,
		"elapsed":  time.Since(started).Round(time.Millisecond),
	}).Info("Match finished")
}

// openSeats returns one store per bot. In-process bots share a memory store; relay bots each
// get a guest identity and their own connection.
func openSeats(ctx context.Context, relay string, room uuid.UUID, n int, logger *logrus.Logger) (map[uuid.UUID]store.Store, error) {
	seats := map[uuid.UUID]store.Store{}
	if relay == "" {
		mem := store.NewMemory()
		for i := 0; i < n; i++ {
			seats[uuid.New()] = mem
		}
		return seats, nil
	}

	for i := 0; i < n; i++ {
		guest, err := fetchGuest(ctx, relay)
		if err != nil {
			return nil, err
		}
		client, err := store.DialRelay(ctx, relay, room, guest.Token, logger)
		if err != nil {
			return nil, err
		}
		seats[guest.PlayerID] = client
	}
	return seats, nil
}

func fetchGuest(ctx context.Context, relay string) (handlers.GuestResponse, error) {
	var guest handlers.GuestResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(relay, "/")+"/auth/guest", nil)
	if err != nil {
		return guest, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return guest, fmt.Errorf("request guest session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return guest, fmt.Errorf("request guest session: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&guest); err != nil {
		return guest, fmt.Errorf("decode guest session: %w", err)
	}
	return guest, nil
}

func describe(st *models.GameState) string {
	switch {
	case st.Clash != nil:
		top, _ := st.Clash.TopCard()
		counts := make([]string, 0, len(st.PlayerOrder))
		for _, id := range st.PlayerOrder {
			counts = append(counts, fmt.Sprintf("%s:%d", short(id), len(st.Clash.Hands[id])))
		}
		return fmt.Sprintf("top %s (%s) hands [%s]", top, st.Clash.CurrentColor, strings.Join(counts, " "))
	case st.Flip21 != nil:
		fs := st.Flip21
		return fmt.Sprintf("round %d %s dealer %d, %d seated, %d out", fs.Round, fs.Phase, models.HandValue(fs.Dealer), len(st.PlayerOrder), len(fs.Eliminated))
	}
	return ""
}

func short(id uuid.UUID) string {
	return id.String()[:8]
}
