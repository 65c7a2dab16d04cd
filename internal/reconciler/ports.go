package reconciler

import (
	"context"

	"github.com/vovakirdan/wiremeet/internal/identity"
)

// TokenRequest is sent to the credential endpoint.
type TokenRequest struct {
	Identity        string
	RoomName        string
	DisplayName     string
	AvatarURL       string
	IsAuthenticated bool
	UserID          string
	// BearerToken proves IsAuthenticated to the server. Optional.
	BearerToken string
}

// Credential is a successful token endpoint response.
type Credential struct {
	Token       string
	EndpointURL string
	Identity    string
	RoomName    string
	DisplayName string
	Avatar      string
	UserType    identity.Kind
}

// TokenSource obtains credentials.
type TokenSource interface {
	Fetch(ctx context.Context, req TokenRequest) (*Credential, error)
}

// Transport opens connections to the media service. sink must be wired to the
// connection's callbacks before any network activity so no event is lost.
type Transport interface {
	Connect(ctx context.Context, endpointURL, token string, sink EventSink) (Connection, error)
}

// Connection is one live transport session.
type Connection interface {
	// Publish sends a local track to the room.
	Publish(ctx context.Context, track MediaTrack) error
	// SetMuted mutes or unmutes the published local track for source.
	SetMuted(source TrackSource, muted bool) error
	// SendChat broadcasts a chat message to the room.
	SendChat(ctx context.Context, text string) error
	// Disconnect closes the session. It is safe to call more than once.
	Disconnect()
}

// MediaTrack is an acquired local capture device.
type MediaTrack interface {
	Source() TrackSource
	// Close releases the device. It is safe to call more than once.
	Close() error
}

// MediaDevices opens local capture devices.
type MediaDevices interface {
	Open(ctx context.Context, source TrackSource) (MediaTrack, error)
}

// Renderer owns per-participant rendering resources.
type Renderer interface {
	Release(identity string)
}
