package identity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// MetadataVersion is the schema version written into new metadata.
const MetadataVersion = 1

var validate = validator.New(validator.WithRequiredStructEnabled())

// Metadata is attached to a credential grant and surfaces on the participant
// at the transport level. UserType selects which fields are meaningful.
type Metadata struct {
	Name            string    `json:"name" validate:"required,max=100"`
	Avatar          string    `json:"avatar" validate:"omitempty,url"`
	UserType        Kind      `json:"userType" validate:"required,oneof=authenticated guest anonymous"`
	IsAuthenticated bool      `json:"isAuthenticated"`
	UserID          string    `json:"userId,omitempty" validate:"required_if=UserType authenticated,max=128"`
	JoinedAt        time.Time `json:"joinedAt" validate:"required"`
	Version         int       `json:"version" validate:"gte=1"`
}

// Validate checks the schema and the per-kind invariants.
func (m Metadata) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	if m.IsAuthenticated != (m.UserType == KindAuthenticated) {
		return fmt.Errorf("metadata: isAuthenticated=%t inconsistent with userType %q", m.IsAuthenticated, m.UserType)
	}
	if m.UserType != KindAuthenticated && m.UserID != "" {
		return fmt.Errorf("metadata: userId set for %s participant", m.UserType)
	}
	return nil
}

// Encode validates and serializes m.
func (m Metadata) Encode() (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(data), nil
}

// AnonymousMetadata is the safe default for a participant without usable metadata.
func AnonymousMetadata(identity string, joinedAt time.Time) Metadata {
	name := AnonymousName(identity)
	return Metadata{
		Name:     name,
		Avatar:   PlaceholderAvatar(name, KindAnonymous),
		UserType: KindAnonymous,
		JoinedAt: joinedAt,
		Version:  MetadataVersion,
	}
}

// DecodeMetadata parses raw metadata received from the transport. Anything
// unparsable or invalid degrades to anonymous defaults for identity.
func DecodeMetadata(raw, identity string) Metadata {
	var m Metadata
	if raw == "" || json.Unmarshal([]byte(raw), &m) != nil || m.Validate() != nil {
		return AnonymousMetadata(identity, time.Now())
	}
	return m
}
