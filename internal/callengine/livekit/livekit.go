package livekit

import (
	"context"
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"

	"github.com/vovakirdan/wiremeet/internal/callengine"
)

// LiveKitEngine implements callengine.Engine using LiveKit as the media backend.
type LiveKitEngine struct {
	apiKey    string
	apiSecret string
	wsURL     string
	now       func() time.Time
}

// New creates a new LiveKitEngine. Empty values are allowed; GenerateJoinInfo
// then fails with callengine.ErrNotConfigured.
func New(apiKey, apiSecret, wsURL string) *LiveKitEngine {
	return &LiveKitEngine{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		wsURL:     wsURL,
		now:       time.Now,
	}
}

// GenerateJoinInfo creates join credentials for a participant.
func (e *LiveKitEngine) GenerateJoinInfo(_ context.Context, grant callengine.Grant) (*callengine.JoinInfo, error) {
	if e.apiKey == "" || e.apiSecret == "" || e.wsURL == "" {
		return nil, callengine.ErrNotConfigured
	}
	if grant.RoomName == "" || grant.Identity == "" {
		return nil, fmt.Errorf("room name and identity are required")
	}

	canPublish := true
	canSubscribe := true
	canPublishData := true
	videoGrant := &auth.VideoGrant{
		RoomJoin:       true,
		Room:           grant.RoomName,
		CanPublish:     &canPublish,
		CanSubscribe:   &canSubscribe,
		CanPublishData: &canPublishData,
	}
	if grant.CanUpdateOwnMetadata {
		canUpdate := true
		videoGrant.CanUpdateOwnMetadata = &canUpdate
	}

	at := auth.NewAccessToken(e.apiKey, e.apiSecret)
	at.SetVideoGrant(videoGrant).
		SetIdentity(grant.Identity).
		SetName(grant.Name).
		SetMetadata(grant.Metadata).
		SetValidFor(grant.TTL)

	expiresAt := e.now().Add(grant.TTL)
	token, err := at.ToJWT()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	return &callengine.JoinInfo{
		URL:       e.wsURL,
		Token:     token,
		RoomName:  grant.RoomName,
		Identity:  grant.Identity,
		ExpiresAt: expiresAt,
	}, nil
}

// Ensure LiveKitEngine implements callengine.Engine
var _ callengine.Engine = (*LiveKitEngine)(nil)
