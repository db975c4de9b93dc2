// internal/historian/record.go
package historian

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partydeck/internal/models"
)

// ActionStart is recorded for the first snapshot of a room, which has no action behind it.
const ActionStart = "action_start"

// GameActionRecord holds the minimal info the historian needs about one committed snapshot.
type GameActionRecord struct {
	RoomID     uuid.UUID       `json:"room_id"`
	Kind       models.GameKind `json:"kind"`
	Version    int64           `json:"version"`
	Actor      uuid.UUID       `json:"actor_id"`
	ActionType string          `json:"action_type"`
	Payload    json.RawMessage `json:"action_payload,omitempty"`
	Finished   bool            `json:"finished"`
	Timestamp  int64           `json:"timestamp"` // epoch millis
}

// RecordFor describes the commit that produced st.
func RecordFor(st *models.GameState) GameActionRecord {
	rec := GameActionRecord{
		RoomID:     st.RoomID,
		Kind:       st.Kind,
		Version:    st.Version,
		Actor:      st.UpdatedBy,
		ActionType: ActionStart,
		Finished:   st.Finished(),
		Timestamp:  st.UpdatedAt.UnixMilli(),
	}
	if st.LastAction != nil {
		rec.ActionType = string(st.LastAction.ActionType)
		if payload, err := json.Marshal(st.LastAction); err == nil {
			rec.Payload = payload
		}
	}
	return rec
}
