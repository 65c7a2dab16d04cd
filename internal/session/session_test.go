package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/vovakirdan/wiremeet/internal/identity"
)

func tokenExpiringAt(t *testing.T, exp time.Time) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "bob",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("irrelevant"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func newEntry(t *testing.T, room string, exp time.Time) *Entry {
	t.Helper()
	return &Entry{
		RoomName:    room,
		Token:       tokenExpiringAt(t, exp),
		EndpointURL: "wss://media.example",
		Identity:    "bob",
		DisplayName: "Bob",
		UserType:    identity.KindGuest,
		CreatedAt:   time.Now(),
	}
}

func TestUsableFor(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	valid := newEntry(t, "abc", now.Add(time.Hour))

	tests := []struct {
		name  string
		entry *Entry
		room  string
		want  bool
	}{
		{"same room unexpired", valid, "abc", true},
		{"other room", valid, "abd", false},
		{"room match is exact", valid, "ABC", false},
		{"expires exactly now", newEntry(t, "abc", now), "abc", false},
		{"expired", newEntry(t, "abc", now.Add(-time.Minute)), "abc", false},
		{"garbage token", &Entry{RoomName: "abc", Token: "not-a-jwt", EndpointURL: "x"}, "abc", false},
		{"missing endpoint", &Entry{RoomName: "abc", Token: valid.Token}, "abc", false},
		{"nil entry", nil, "abc", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.UsableFor(tt.room, now); got != tt.want {
				t.Fatalf("UsableFor = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExpiresAtRequiresClaim(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "x"}).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := (&Entry{Token: token}).ExpiresAt(); err == nil {
		t.Fatalf("expected error for token without exp")
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Load(ctx, "room-a"); !errors.Is(err, ErrNoEntry) {
		t.Fatalf("expected ErrNoEntry, got %v", err)
	}

	a := newEntry(t, "room-a", time.Now().Add(time.Hour))
	b := newEntry(t, "room-b", time.Now().Add(time.Hour))
	if err := s.Save(ctx, a); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if err := s.Save(ctx, b); err != nil {
		t.Fatalf("save b: %v", err)
	}

	got, err := s.Load(ctx, "room-a")
	if err != nil {
		t.Fatalf("load a: %v", err)
	}
	if got.Token != a.Token || got.Identity != "bob" || got.UserType != identity.KindGuest {
		t.Fatalf("unexpected entry: %+v", got)
	}

	if err := s.Clear(ctx, "room-a"); err != nil {
		t.Fatalf("clear a: %v", err)
	}
	if _, err := s.Load(ctx, "room-a"); !errors.Is(err, ErrNoEntry) {
		t.Fatalf("expected ErrNoEntry after clear, got %v", err)
	}
	if _, err := s.Load(ctx, "room-b"); err != nil {
		t.Fatalf("clearing room-a must keep room-b: %v", err)
	}
	if err := s.Clear(ctx, "never-saved"); err != nil {
		t.Fatalf("clearing a missing entry: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sessions.json")
	exerciseStore(t, NewFileStore(path))

	// A second store over the same file sees persisted entries.
	ctx := context.Background()
	first := NewFileStore(path)
	if err := first.Save(ctx, newEntry(t, "room-c", time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := NewFileStore(path).Load(ctx, "room-c"); err != nil {
		t.Fatalf("load from second store: %v", err)
	}
}

func TestRedisStore(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr: "127.0.0.1:6379",
		DB:   3,
	})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer client.FlushDB(ctx)
	defer client.Close()

	s := NewRedisStore(client, "wiremeet:test:")
	exerciseStore(t, s)

	expired := newEntry(t, "room-x", time.Now().Add(-time.Minute))
	if err := s.Save(ctx, expired); err != nil {
		t.Fatalf("save expired: %v", err)
	}
	if _, err := s.Load(ctx, "room-x"); !errors.Is(err, ErrNoEntry) {
		t.Fatalf("expired entry should not be stored, got %v", err)
	}

	live := newEntry(t, "room-y", time.Now().Add(time.Hour))
	if err := s.Save(ctx, live); err != nil {
		t.Fatalf("save live: %v", err)
	}
	ttl, err := client.TTL(ctx, "wiremeet:test:room-y").Result()
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 59*time.Minute || ttl > time.Hour {
		t.Fatalf("expected ttl close to 1h, got %v", ttl)
	}
}
