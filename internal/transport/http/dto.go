package http

import (
	"strconv"
	"time"

	"github.com/vovakirdan/wiremeet/internal/store"
)

// UserResponse represents a user profile in API responses.
type UserResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	PhotoURL    string    `json:"photoUrl"`
	CreatedAt   time.Time `json:"createdAt"`
}

// AuthResponse represents the authentication response body.
type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// MeetingResponse represents a created meeting.
type MeetingResponse struct {
	RoomName  string    `json:"roomName"`
	CreatedAt time.Time `json:"createdAt"`
}

// RecentMeetingResponse is one entry of the caller's meeting history.
type RecentMeetingResponse struct {
	RoomName     string    `json:"roomName"`
	Identity     string    `json:"identity"`
	LastJoinedAt time.Time `json:"lastJoinedAt"`
}

func toUserResponse(u *store.User) UserResponse {
	return UserResponse{
		ID:          strconv.FormatInt(u.ID, 10),
		Email:       u.Email,
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
		CreatedAt:   u.CreatedAt,
	}
}
