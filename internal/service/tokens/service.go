package tokens

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vovakirdan/wiremeet/internal/callengine"
	"github.com/vovakirdan/wiremeet/internal/identity"
)

// DefaultTTL is the lifetime of an issued credential.
const DefaultTTL = 2 * time.Hour

const maxUserIDLength = 128

var (
	// ErrInvalidRequest is returned for missing or malformed input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrConfiguration is returned when signing credentials or the endpoint are not configured.
	ErrConfiguration = errors.New("server configuration error")
)

// ReasonRequired is the RequestError reason for an absent field.
const ReasonRequired = "is required"

// RequestError carries field-level detail for an invalid request.
type RequestError struct {
	Field  string
	Reason string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidRequest.
func (e *RequestError) Unwrap() error {
	return ErrInvalidRequest
}

// Request is a credential request after transport decoding.
type Request struct {
	Identity        string
	RoomName        string
	DisplayName     string
	AvatarURL       string
	IsAuthenticated bool
	UserID          string
}

// Credential is an issued, room-scoped access token plus display data.
type Credential struct {
	Token       string
	ExpiresAt   time.Time
	EndpointURL string
	Identity    string
	RoomName    string
	DisplayName string
	AvatarURL   string
	Kind        identity.Kind
	Metadata    identity.Metadata
}

// Service issues meeting credentials. It keeps no state between calls.
type Service struct {
	engine callengine.Engine
	ttl    time.Duration
	now    func() time.Time
}

// New creates a token service backed by engine. A zero ttl means DefaultTTL.
func New(engine callengine.Engine, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		engine: engine,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue validates req, derives display metadata and mints a credential for req.RoomName.
func (s *Service) Issue(ctx context.Context, req Request) (*Credential, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	participant := Sanitize(req.Identity)
	meta := s.derive(participant, req)
	encoded, err := meta.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	info, err := s.engine.GenerateJoinInfo(ctx, callengine.Grant{
		RoomName:             req.RoomName,
		Identity:             participant,
		Name:                 meta.Name,
		Metadata:             encoded,
		CanUpdateOwnMetadata: meta.UserType != identity.KindAnonymous,
		TTL:                  s.ttl,
	})
	if err != nil {
		if errors.Is(err, callengine.ErrNotConfigured) {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		return nil, fmt.Errorf("mint credential: %w", err)
	}

	return &Credential{
		Token:       info.Token,
		ExpiresAt:   info.ExpiresAt,
		EndpointURL: info.URL,
		Identity:    info.Identity,
		RoomName:    info.RoomName,
		DisplayName: meta.Name,
		AvatarURL:   meta.Avatar,
		Kind:        meta.UserType,
		Metadata:    meta,
	}, nil
}

// Sanitize restricts a requested identity to a transport-safe form.
func Sanitize(requested string) string {
	return identity.Sanitize(requested)
}

func validate(req Request) error {
	if strings.TrimSpace(req.Identity) == "" {
		return &RequestError{Field: "identity", Reason: ReasonRequired}
	}
	if strings.TrimSpace(req.RoomName) == "" {
		return &RequestError{Field: "roomName", Reason: ReasonRequired}
	}
	if utf8.RuneCountInString(req.Identity) > identity.MaxRequestedLength {
		return &RequestError{Field: "identity", Reason: fmt.Sprintf("exceeds %d characters", identity.MaxRequestedLength)}
	}
	return nil
}

// derive picks the participant kind and fills display name and avatar.
func (s *Service) derive(participant string, req Request) identity.Metadata {
	name := strings.TrimSpace(req.DisplayName)
	if len([]rune(name)) > identity.MaxRequestedLength {
		name = string([]rune(name)[:identity.MaxRequestedLength])
	}

	kind := identity.KindAnonymous
	switch {
	case req.IsAuthenticated && name != "":
		kind = identity.KindAuthenticated
	case name != "":
		kind = identity.KindGuest
	default:
		name = identity.AnonymousName(participant)
	}

	avatar := strings.TrimSpace(req.AvatarURL)
	if kind == identity.KindAnonymous || !identity.ValidAvatarURL(avatar) {
		avatar = identity.PlaceholderAvatar(name, kind)
	}

	meta := identity.Metadata{
		Name:     name,
		Avatar:   avatar,
		UserType: kind,
		JoinedAt: s.now().UTC(),
		Version:  identity.MetadataVersion,
	}
	if kind == identity.KindAuthenticated {
		meta.IsAuthenticated = true
		meta.UserID = req.UserID
		if meta.UserID == "" {
			meta.UserID = participant
		}
		if len(meta.UserID) > maxUserIDLength {
			meta.UserID = meta.UserID[:maxUserIDLength]
		}
	}
	return meta
}
