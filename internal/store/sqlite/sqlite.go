package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/wiremeet/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the SQLite database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, ApplySchema)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests that need a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

const userColumns = `id, email, password_hash, display_name, photo_url, created_at, updated_at`

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, email, passwordHash, displayName string) (*store.User, error) {
	query := `
		INSERT INTO users (email, password_hash, display_name)
		VALUES (?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, strings.TrimSpace(email), passwordHash, displayName)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert user: %w", store.ErrConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByEmail retrieves a user by email, ignoring case.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	return scanUser(s.db.QueryRowContext(ctx, query, strings.TrimSpace(email)))
}

// UpdateProfile replaces the display name and photo URL of a user.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, id int64, displayName, photoURL string) (*store.User, error) {
	query := `
		UPDATE users
		SET display_name = ?, photo_url = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query, displayName, photoURL, id)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("user not found: %w", store.ErrNotFound)
	}
	return s.GetUserByID(ctx, id)
}

func scanUser(row *sql.Row) (*store.User, error) {
	var user store.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.DisplayName,
		&user.PhotoURL,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user not found: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// ==== MeetingStore implementation ====

// CreateMeeting reserves a room name.
func (s *SQLiteStore) CreateMeeting(ctx context.Context, roomName string, createdBy *int64) (*store.Meeting, error) {
	query := `
		INSERT INTO meetings (room_name, created_by)
		VALUES (?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, roomName, createdBy); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert meeting: %w", store.ErrConflict)
		}
		return nil, fmt.Errorf("insert meeting: %w", err)
	}
	return s.GetMeeting(ctx, roomName)
}

// GetMeeting retrieves a meeting by room name.
func (s *SQLiteStore) GetMeeting(ctx context.Context, roomName string) (*store.Meeting, error) {
	query := `
		SELECT room_name, created_by, created_at
		FROM meetings
		WHERE room_name = ?
	`
	var meeting store.Meeting
	var createdBy sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, roomName).Scan(&meeting.RoomName, &createdBy, &meeting.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("meeting not found: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query meeting: %w", err)
	}
	if createdBy.Valid {
		meeting.CreatedBy = &createdBy.Int64
	}
	return &meeting, nil
}

// RecordJoin appends a join to the history.
func (s *SQLiteStore) RecordJoin(ctx context.Context, join *store.MeetingJoin) error {
	query := `
		INSERT INTO meeting_joins (id, room_name, user_id, identity, joined_at)
		VALUES (?, ?, ?, ?, ?)
	`
	joinedAt := join.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query, join.ID, join.RoomName, join.UserID, join.Identity, joinedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert meeting join: %w", err)
	}
	return nil
}

// ListRecentMeetings returns distinct rooms joined by userID, newest first.
func (s *SQLiteStore) ListRecentMeetings(ctx context.Context, userID string, limit int) ([]*store.RecentMeeting, error) {
	query := `
		SELECT room_name, identity, joined_at
		FROM meeting_joins
		WHERE user_id = ?
		ORDER BY joined_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query meeting joins: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	meetings := make([]*store.RecentMeeting, 0, limit)
	for rows.Next() && len(meetings) < limit {
		var m store.RecentMeeting
		if err := rows.Scan(&m.RoomName, &m.Identity, &m.LastJoinedAt); err != nil {
			return nil, fmt.Errorf("scan meeting join: %w", err)
		}
		if _, dup := seen[m.RoomName]; dup {
			continue
		}
		seen[m.RoomName] = struct{}{}
		meetings = append(meetings, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meeting joins: %w", err)
	}
	return meetings, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

var _ store.Store = (*SQLiteStore)(nil)
