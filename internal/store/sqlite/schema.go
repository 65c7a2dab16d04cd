package sqlite

import (
	"database/sql"
	"fmt"
)

// Schema is applied on every open; all statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
	password_hash TEXT NOT NULL,
	display_name  TEXT NOT NULL DEFAULT '',
	photo_url     TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS meetings (
	room_name  TEXT PRIMARY KEY,
	created_by INTEGER REFERENCES users(id) ON DELETE SET NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS meeting_joins (
	id        TEXT PRIMARY KEY,
	room_name TEXT NOT NULL,
	user_id   TEXT NOT NULL,
	identity  TEXT NOT NULL,
	joined_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_meeting_joins_user ON meeting_joins(user_id, joined_at DESC);
`

// ApplySchema creates all tables. It can be passed to NewWithSetup.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
