package handlers

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// idFromPath extracts the UUID that follows prefix in path, e.g. "/room/ws/{id}".
func idFromPath(path, prefix string) (uuid.UUID, error) {
	parts := strings.Split(strings.TrimPrefix(path, prefix), "/")
	if len(parts) < 1 || parts[0] == "" {
		return uuid.Nil, fmt.Errorf("missing id in path (%s{id})", prefix)
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id format: %w", err)
	}
	return id, nil
}
