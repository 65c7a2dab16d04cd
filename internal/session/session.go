// Package session caches issued meeting credentials on the client so that
// re-entering the same room does not request a new one.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vovakirdan/wiremeet/internal/identity"
)

// ErrNoEntry is returned by Load when nothing is cached for a room.
var ErrNoEntry = errors.New("no cached session")

// Entry is one cached credential plus the display fields derived for it.
type Entry struct {
	RoomName    string        `json:"roomName"`
	Token       string        `json:"token"`
	EndpointURL string        `json:"endpointUrl"`
	Identity    string        `json:"identity"`
	DisplayName string        `json:"displayName"`
	Avatar      string        `json:"avatar"`
	UserType    identity.Kind `json:"userType"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// ExpiresAt decodes the expiry claim of the cached token without verifying its signature.
func (e *Entry) ExpiresAt() (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(e.Token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("decode token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("token has no expiry")
	}
	return claims.ExpiresAt.Time, nil
}

// UsableFor reports whether the entry may be reused to join room at now:
// the room must match exactly and the expiry must be strictly after now.
func (e *Entry) UsableFor(room string, now time.Time) bool {
	if e == nil || e.RoomName != room || e.Token == "" || e.EndpointURL == "" {
		return false
	}
	exp, err := e.ExpiresAt()
	if err != nil {
		return false
	}
	return exp.After(now)
}

// Store persists entries keyed by room name.
type Store interface {
	// Load returns the entry for room or ErrNoEntry.
	Load(ctx context.Context, room string) (*Entry, error)
	// Save replaces the entry for e.RoomName.
	Save(ctx context.Context, e *Entry) error
	// Clear removes the entry for room. Clearing a missing entry is not an error.
	Clear(ctx context.Context, room string) error
}
