package callengine

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured is returned when the engine lacks its signing key pair or endpoint.
var ErrNotConfigured = errors.New("call engine not configured")

// Grant describes the room access a credential should carry.
type Grant struct {
	RoomName string
	Identity string
	Name     string
	Metadata string
	// CanUpdateOwnMetadata lets the participant change its own name/metadata.
	CanUpdateOwnMetadata bool
	TTL                  time.Duration
}

// JoinInfo contains information needed to join a room.
type JoinInfo struct {
	URL       string    `json:"url"`       // WebSocket URL (e.g., ws://localhost:7880)
	Token     string    `json:"token"`     // signed access token
	RoomName  string    `json:"room_name"` // media room name
	Identity  string    `json:"identity"`  // participant identity in the room
	ExpiresAt time.Time `json:"expires_at"`
}

// Engine abstracts the media backend that authorizes room access.
type Engine interface {
	// GenerateJoinInfo mints a credential scoped to exactly grant.RoomName.
	GenerateJoinInfo(ctx context.Context, grant Grant) (*JoinInfo, error)
}
