package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert violates a uniqueness constraint.
	ErrConflict = errors.New("already exists")
)

// User is a registered account together with its public profile.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	DisplayName  string
	PhotoURL     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Meeting is a room name handed out by the meetings service.
type Meeting struct {
	RoomName  string
	CreatedBy *int64 // nil when created anonymously
	CreatedAt time.Time
}

// MeetingJoin records that a verified principal received a credential for a room.
type MeetingJoin struct {
	ID       string // UUID
	RoomName string
	UserID   string // verified subject; not necessarily a local user id
	Identity string
	JoinedAt time.Time
}

// RecentMeeting is one row of a user's meeting history.
type RecentMeeting struct {
	RoomName     string
	Identity     string
	LastJoinedAt time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user. Emails are unique case-insensitively.
	CreateUser(ctx context.Context, email, passwordHash, displayName string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// UpdateProfile replaces the display name and photo URL of a user.
	UpdateProfile(ctx context.Context, id int64, displayName, photoURL string) (*User, error)
}

// MeetingStore handles meeting persistence.
type MeetingStore interface {
	// CreateMeeting reserves a room name. Returns ErrConflict if it is taken.
	CreateMeeting(ctx context.Context, roomName string, createdBy *int64) (*Meeting, error)

	// GetMeeting retrieves a meeting by room name.
	GetMeeting(ctx context.Context, roomName string) (*Meeting, error)

	// RecordJoin appends a join to the history.
	RecordJoin(ctx context.Context, join *MeetingJoin) error

	// ListRecentMeetings returns distinct rooms joined by userID, newest first.
	ListRecentMeetings(ctx context.Context, userID string, limit int) ([]*RecentMeeting, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MeetingStore

	// Close closes the underlying database connection.
	Close() error
}
