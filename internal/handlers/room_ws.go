// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/jason-s-yu/partydeck/internal/auth"
	"github.com/jason-s-yu/partydeck/internal/middleware"
	"github.com/jason-s-yu/partydeck/internal/models"
	"github.com/jason-s-yu/partydeck/internal/store"
	"github.com/sirupsen/logrus"
)

// CommitHook observes every snapshot the relay accepted. prev is nil for a room's first snapshot.
type CommitHook func(ctx context.Context, prev, next *models.GameState)

// RoomServer relays a shared room snapshot between browser clients and a backing store.
// The server never runs game rules: clients apply actions locally and commit the result.
// The relay only checks that the committer is seated and that the version chain is intact.
type RoomServer struct {
	Store    store.Store
	Logger   *logrus.Logger
	OnCommit CommitHook
}

// NewRoomServer creates a relay over st.
func NewRoomServer(st store.Store, logger *logrus.Logger) *RoomServer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RoomServer{Store: st, Logger: logger}
}

// roomConn serializes writes from the snapshot pump and the request loop.
type roomConn struct {
	c    *websocket.Conn
	mu   sync.Mutex
	room uuid.UUID
	user uuid.UUID
	log  *logrus.Entry
}

// RoomWSHandler serves /room/ws/{room_id}.
func (rs *RoomServer) RoomWSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, err := idFromPath(r.URL.Path, "/room/ws/")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		userID, err := auth.PlayerFromRequest(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{store.RelaySubprotocol},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			rs.Logger.Warnf("WebSocket accept error for room %s: %v", roomID, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if c.Subprotocol() != store.RelaySubprotocol {
			rs.Logger.Warnf("Client for room %s connected with invalid subprotocol: %q", roomID, c.Subprotocol())
			c.Close(BadSubprotocolError, "Client must use the 'room' subprotocol.")
			return
		}
		// Snapshots of a full Clash deck exceed the default read limit.
		c.SetReadLimit(1 << 20)

		middleware.LogWebSocketConnect(rs.Logger, r.RemoteAddr, r.URL.Path)
		rc := &roomConn{
			c:    c,
			room: roomID,
			user: userID,
			log:  rs.Logger.WithFields(logrus.Fields{"room": roomID, "user": userID}),
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		updates, err := rs.Store.Subscribe(ctx, roomID)
		if err != nil {
			rc.log.WithError(err).Error("Failed to subscribe to room")
			c.Close(websocket.StatusInternalError, "Could not subscribe to room.")
			return
		}
		go rs.pumpSnapshots(ctx, rc, updates)

		err = rs.readRoomMessages(ctx, rc)
		middleware.LogWebSocketDisconnect(rs.Logger, r.RemoteAddr, r.URL.Path, err)
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// pumpSnapshots forwards every stored snapshot to the client until ctx ends.
func (rs *RoomServer) pumpSnapshots(ctx context.Context, rc *roomConn, updates <-chan store.Update) {
	for u := range updates {
		if u.Err != nil {
			rc.log.WithError(u.Err).Warn("Room subscription reported an error")
			continue
		}
		if u.State == nil {
			continue
		}
		if err := rc.send(ctx, store.RelayMessage{Type: store.RelaySnapshot, State: u.State}); err != nil {
			rc.log.WithError(err).Debug("Stopped pushing snapshots")
			return
		}
	}
}

// readRoomMessages handles client requests until the connection closes.
// A normal closure is reported as a nil error.
func (rs *RoomServer) readRoomMessages(ctx context.Context, rc *roomConn) error {
	for {
		var msg store.RelayMessage
		if err := wsjson.Read(ctx, rc.c, &msg); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		reply := rs.handle(ctx, rc, msg)
		reply.ID = msg.ID
		if err := rc.send(ctx, reply); err != nil {
			return err
		}
	}
}

func (rs *RoomServer) handle(ctx context.Context, rc *roomConn, msg store.RelayMessage) store.RelayMessage {
	switch msg.Type {
	case store.RelayPing:
		return store.RelayMessage{Type: store.RelayPong}
	case store.RelayLoad:
		st, err := rs.Store.Load(ctx, rc.room)
		if err != nil {
			return storeError(err)
		}
		return store.RelayMessage{Type: store.RelayResult, State: st}
	case store.RelayCreate:
		return rs.handleCreate(ctx, rc, msg)
	case store.RelayCommit:
		return rs.handleCommit(ctx, rc, msg)
	case store.RelayDelete:
		return rs.handleDelete(ctx, rc)
	default:
		rc.log.Warnf("Unknown relay message type: %q", msg.Type)
		return rejection(store.CodeBadRequest, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

func (rs *RoomServer) handleCreate(ctx context.Context, rc *roomConn, msg store.RelayMessage) store.RelayMessage {
	st := msg.State
	if st == nil || st.RoomID != rc.room {
		return rejection(store.CodeBadRequest, "snapshot is missing or for another room")
	}
	if !isMember(st, rc.user) {
		return rejection(store.CodeForbidden, "only a seated player may start the game")
	}
	if err := rs.Store.Create(ctx, st); err != nil {
		return storeError(err)
	}
	rc.log.WithField("kind", st.Kind).Info("Game created")
	rs.commitHook(ctx, nil, st)
	return store.RelayMessage{Type: store.RelayResult}
}

func (rs *RoomServer) handleCommit(ctx context.Context, rc *roomConn, msg store.RelayMessage) store.RelayMessage {
	next := msg.State
	if next == nil || next.RoomID != rc.room {
		return rejection(store.CodeBadRequest, "snapshot is missing or for another room")
	}
	if next.UpdatedBy != rc.user {
		return rejection(store.CodeForbidden, "snapshot must be attributed to the committing player")
	}
	if next.Version != msg.Expected+1 {
		return rejection(store.CodeBadRequest, fmt.Sprintf("version %d does not follow %d", next.Version, msg.Expected))
	}

	prev, err := rs.Store.Load(ctx, rc.room)
	if err != nil {
		return storeError(err)
	}
	if !isMember(prev, rc.user) {
		return rejection(store.CodeForbidden, "you are not a player in this room")
	}
	if err := rs.Store.CompareAndSwap(ctx, msg.Expected, next); err != nil {
		return storeError(err)
	}
	rs.commitHook(ctx, prev, next)
	return store.RelayMessage{Type: store.RelayResult}
}

func (rs *RoomServer) handleDelete(ctx context.Context, rc *roomConn) store.RelayMessage {
	st, err := rs.Store.Load(ctx, rc.room)
	if err != nil {
		return storeError(err)
	}
	if !isMember(st, rc.user) {
		return rejection(store.CodeForbidden, "you are not a player in this room")
	}
	if err := rs.Store.Delete(ctx, rc.room); err != nil {
		return storeError(err)
	}
	rc.log.Info("Room closed")
	return store.RelayMessage{Type: store.RelayResult}
}

func (rs *RoomServer) commitHook(ctx context.Context, prev, next *models.GameState) {
	if rs.OnCommit != nil {
		rs.OnCommit(ctx, prev, next)
	}
}

// send writes one frame; the mutex keeps concurrent writers from interleaving.
func (rc *roomConn) send(ctx context.Context, msg store.RelayMessage) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return wsjson.Write(ctx, rc.c, msg)
}

// isMember reports whether id may act in the room: seated players, plus knocked-out
// Flip21 players who can still ask for a rematch.
func isMember(st *models.GameState, id uuid.UUID) bool {
	if st.HasPlayer(id) {
		return true
	}
	if st.Flip21 != nil {
		for _, p := range st.Flip21.Roster {
			if p == id {
				return true
			}
		}
	}
	return false
}

func storeError(err error) store.RelayMessage {
	return rejection(store.CodeFor(err), err.Error())
}

func rejection(code, reason string) store.RelayMessage {
	return store.RelayMessage{Type: store.RelayResult, Code: code, Error: reason}
}
