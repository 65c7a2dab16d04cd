package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps entries in a JSON file so they survive across CLI invocations.
// The file holds credentials and is written with mode 0600.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store backed by path. The file is created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the file and returns the entry for room or ErrNoEntry.
func (s *FileStore) Load(_ context.Context, room string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return nil, err
	}
	e, ok := entries[room]
	if !ok {
		return nil, ErrNoEntry
	}
	return &e, nil
}

// Save rewrites the file with e stored under e.RoomName.
func (s *FileStore) Save(_ context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}
	entries[e.RoomName] = *e
	return s.write(entries)
}

// Clear removes the entry for room. A missing file is not an error.
func (s *FileStore) Clear(_ context.Context, room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := entries[room]; !ok {
		return nil
	}
	delete(entries, room)
	return s.write(entries)
}

func (s *FileStore) read() (map[string]Entry, error) {
	entries := make(map[string]Entry)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode session file: %w", err)
	}
	return entries, nil
}

// write replaces the file atomically via a temp file in the same directory.
func (s *FileStore) write(entries map[string]Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
