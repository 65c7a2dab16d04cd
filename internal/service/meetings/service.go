package meetings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vovakirdan/wiremeet/internal/store"
	"github.com/vovakirdan/wiremeet/internal/utils"
)

const (
	// DefaultRecentLimit is used when the caller asks for no specific count.
	DefaultRecentLimit = 10
	// MaxRecentLimit caps a recent-meetings page.
	MaxRecentLimit = 50

	createAttempts = 5
)

// ErrRoomNameExhausted is returned when no free room name was found.
var ErrRoomNameExhausted = errors.New("could not allocate a room name")

// Service manages meeting ids and join history.
type Service struct {
	store   store.MeetingStore
	newName func() string
	now     func() time.Time
}

// New creates a meetings service.
func New(st store.MeetingStore) *Service {
	return &Service{
		store:   st,
		newName: utils.NewRoomName,
		now:     time.Now,
	}
}

// Create reserves a fresh room name. createdBy is nil for anonymous callers.
func (s *Service) Create(ctx context.Context, createdBy *int64) (*store.Meeting, error) {
	for i := 0; i < createAttempts; i++ {
		meeting, err := s.store.CreateMeeting(ctx, s.newName(), createdBy)
		if err == nil {
			return meeting, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("create meeting: %w", err)
		}
	}
	return nil, ErrRoomNameExhausted
}

// RecordJoin stores that userID received a credential for roomName as participant.
func (s *Service) RecordJoin(ctx context.Context, roomName, userID, participant string) error {
	err := s.store.RecordJoin(ctx, &store.MeetingJoin{
		ID:       uuid.New().String(),
		RoomName: roomName,
		UserID:   userID,
		Identity: participant,
		JoinedAt: s.now(),
	})
	if err != nil {
		return fmt.Errorf("record join: %w", err)
	}
	return nil
}

// Recent lists the rooms userID joined most recently. limit is clamped to [1, MaxRecentLimit].
func (s *Service) Recent(ctx context.Context, userID string, limit int) ([]*store.RecentMeeting, error) {
	switch {
	case limit <= 0:
		limit = DefaultRecentLimit
	case limit > MaxRecentLimit:
		limit = MaxRecentLimit
	}
	meetings, err := s.store.ListRecentMeetings(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent meetings: %w", err)
	}
	return meetings, nil
}
