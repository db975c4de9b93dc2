package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partydeck/internal/auth"
	"github.com/sirupsen/logrus"
)

// GuestResponse is returned by the guest endpoint.
type GuestResponse struct {
	PlayerID uuid.UUID `json:"playerId"`
	Token    string    `json:"token"`
}

// GuestHandler issues a session for a new anonymous player, or echoes the caller's
// identity if the request already carries a valid token. Players are never persisted:
// the token is the identity.
func GuestHandler(logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if tok, err := auth.TokenFromRequest(r); err == nil {
			if id, err := auth.AuthenticateJWT(tok); err == nil {
				writeJSON(w, GuestResponse{PlayerID: id, Token: tok})
				return
			}
		}

		id := uuid.New()
		tok, err := auth.CreateJWT(id)
		if err != nil {
			logger.WithError(err).Error("Failed to create guest token")
			http.Error(w, "failed to create guest token", http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     auth.CookieName,
			Value:    tok,
			HttpOnly: true,
			Path:     "/",
		})
		logger.WithField("player", id).Info("Issued guest session")
		writeJSON(w, GuestResponse{PlayerID: id, Token: tok})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
