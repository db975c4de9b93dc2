// internal/store/relay.go
package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/jason-s-yu/partydeck/internal/models"
	"github.com/sirupsen/logrus"
)

// RelaySubprotocol is the WebSocket subprotocol spoken between RelayClient and the relay handler.
const RelaySubprotocol = "room"

// Relay message types.
const (
	RelayLoad     = "load"
	RelayCreate   = "create"
	RelayCommit   = "commit"
	RelayDelete   = "delete"
	RelayResult   = "result"
	RelaySnapshot = "snapshot"
	RelayPing     = "ping"
	RelayPong     = "pong"
)

// Relay error codes carried in RelayMessage.Code.
const (
	CodeNotFound   = "not_found"
	CodeExists     = "exists"
	CodeConflict   = "conflict"
	CodeForbidden  = "forbidden"
	CodeBadRequest = "bad_request"
	CodeInternal   = "internal"
)

// RelayMessage is the single JSON frame type exchanged with the relay.
// Requests carry an ID that the matching result echoes; snapshot pushes have none.
type RelayMessage struct {
	ID       int64             `json:"id,omitempty"`
	Type     string            `json:"type"`
	Expected int64             `json:"expected,omitempty"`
	State    *models.GameState `json:"state,omitempty"`
	Code     string            `json:"code,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// CodeFor maps a store error to its wire code.
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrAlreadyExists):
		return CodeExists
	case errors.Is(err, ErrVersionConflict):
		return CodeConflict
	}
	return CodeInternal
}

// ErrRelayRejected is returned for relay refusals that have no store equivalent.
var ErrRelayRejected = errors.New("store: relay rejected the request")

func errorFor(msg RelayMessage) error {
	switch msg.Code {
	case "":
		return nil
	case CodeNotFound:
		return ErrNotFound
	case CodeExists:
		return ErrAlreadyExists
	case CodeConflict:
		return ErrVersionConflict
	}
	return fmt.Errorf("%w: %s (%s)", ErrRelayRejected, msg.Error, msg.Code)
}

// RelayClient is a Store for a single room served by a relay over one WebSocket connection.
type RelayClient struct {
	conn   *websocket.Conn
	room   uuid.UUID
	log    logrus.FieldLogger
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan RelayMessage
	subs    map[chan Update]struct{}
	latest  *models.GameState
	done    chan struct{}
	err     error
}

// DialRelay connects to the relay at baseURL (e.g. "ws://localhost:8080") for room,
// authenticating with token.
func DialRelay(ctx context.Context, baseURL string, room uuid.UUID, token string, logger logrus.FieldLogger) (*RelayClient, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/room/ws/" + room.String())
	if err != nil {
		return nil, fmt.Errorf("invalid relay url: %w", err)
	}
	header := http.Header{}
	if token != "" {
		header.Set("Cookie", "auth_token="+token)
	}
	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: []string{RelaySubprotocol},
		HTTPHeader:   header,
	})
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", u, err)
	}
	// Snapshots of large rooms exceed the default 32KiB read limit.
	conn.SetReadLimit(1 << 20)

	readCtx, cancel := context.WithCancel(context.Background())
	c := &RelayClient{
		conn:    conn,
		room:    room,
		log:     logger.WithField("room", room),
		cancel:  cancel,
		pending: make(map[int64]chan RelayMessage),
		subs:    make(map[chan Update]struct{}),
		done:    make(chan struct{}),
	}
	go c.readLoop(readCtx)
	return c, nil
}

// Close shuts the connection down and ends every subscription.
func (c *RelayClient) Close() error {
	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "client closing")
}

func (c *RelayClient) readLoop(ctx context.Context) {
	var err error
	defer func() {
		c.mu.Lock()
		c.err = err
		close(c.done)
		c.mu.Unlock()
	}()

	for {
		var msg RelayMessage
		if err = wsjson.Read(ctx, c.conn, &msg); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && ctx.Err() == nil {
				c.log.WithError(err).Warn("Relay connection lost")
			}
			return
		}

		switch msg.Type {
		case RelaySnapshot:
			if msg.State == nil {
				continue
			}
			c.mu.Lock()
			if c.latest == nil || msg.State.Version >= c.latest.Version {
				c.latest = msg.State
				for ch := range c.subs {
					offer(ch, Update{State: msg.State.Clone()})
				}
			}
			c.mu.Unlock()
		case RelayResult:
			c.mu.Lock()
			reply, ok := c.pending[msg.ID]
			delete(c.pending, msg.ID)
			c.mu.Unlock()
			if ok {
				reply <- msg
			}
		case RelayPong:
		default:
			c.log.WithField("type", msg.Type).Debug("Ignoring unknown relay message")
		}
	}
}

func (c *RelayClient) call(ctx context.Context, req RelayMessage) (RelayMessage, error) {
	reply := make(chan RelayMessage, 1)
	c.mu.Lock()
	select {
	case <-c.done:
		err := c.err
		c.mu.Unlock()
		return RelayMessage{}, fmt.Errorf("relay connection closed: %w", err)
	default:
	}
	c.nextID++
	req.ID = c.nextID
	c.pending[req.ID] = reply
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}

	c.writeMu.Lock()
	err := wsjson.Write(ctx, c.conn, req)
	c.writeMu.Unlock()
	if err != nil {
		forget()
		return RelayMessage{}, fmt.Errorf("write %s request: %w", req.Type, err)
	}

	select {
	case msg := <-reply:
		return msg, errorFor(msg)
	case <-ctx.Done():
		forget()
		return RelayMessage{}, ctx.Err()
	case <-c.done:
		forget()
		return RelayMessage{}, errors.New("relay connection closed")
	}
}

func (c *RelayClient) checkRoom(room uuid.UUID) error {
	if room != c.room {
		return fmt.Errorf("%w: client is bound to room %s", ErrNotFound, c.room)
	}
	return nil
}

func (c *RelayClient) Create(ctx context.Context, st *models.GameState) error {
	if err := c.checkRoom(st.RoomID); err != nil {
		return err
	}
	_, err := c.call(ctx, RelayMessage{Type: RelayCreate, State: st})
	return err
}

func (c *RelayClient) Load(ctx context.Context, room uuid.UUID) (*models.GameState, error) {
	if err := c.checkRoom(room); err != nil {
		return nil, err
	}
	msg, err := c.call(ctx, RelayMessage{Type: RelayLoad})
	if err != nil {
		return nil, err
	}
	if msg.State == nil {
		return nil, ErrNotFound
	}
	return msg.State, nil
}

func (c *RelayClient) CompareAndSwap(ctx context.Context, expected int64, next *models.GameState) error {
	if err := c.checkRoom(next.RoomID); err != nil {
		return err
	}
	_, err := c.call(ctx, RelayMessage{Type: RelayCommit, Expected: expected, State: next})
	return err
}

func (c *RelayClient) Delete(ctx context.Context, room uuid.UUID) error {
	if err := c.checkRoom(room); err != nil {
		return err
	}
	_, err := c.call(ctx, RelayMessage{Type: RelayDelete})
	return err
}

// Subscribe streams snapshots pushed by the relay. The relay pushes the current snapshot on connect.
func (c *RelayClient) Subscribe(ctx context.Context, room uuid.UUID) (<-chan Update, error) {
	if err := c.checkRoom(room); err != nil {
		return nil, err
	}
	ch := make(chan Update, 1)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	if c.latest != nil {
		offer(ch, Update{State: c.latest.Clone()})
	}
	c.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-c.done:
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.err != nil && ctx.Err() == nil {
			offer(ch, Update{Err: fmt.Errorf("relay connection closed: %w", c.err)})
		}
		delete(c.subs, ch)
		close(ch)
	}()
	return ch, nil
}
