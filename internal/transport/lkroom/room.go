// Package lkroom connects the reconciler to a LiveKit room.
package lkroom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiremeet/internal/reconciler"
)

// Transport implements reconciler.Transport on top of the LiveKit Go SDK.
type Transport struct {
	log *zerolog.Logger
}

// New returns a transport that logs through logger, or discards logs when nil.
func New(logger *zerolog.Logger) *Transport {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Transport{log: logger}
}

// Connect joins the room the token grants. Participants already in the room
// are reported to sink as joined before Connect returns.
func (t *Transport) Connect(ctx context.Context, endpointURL, token string, sink reconciler.EventSink) (reconciler.Connection, error) {
	room := lksdk.NewRoom(roomCallback(sink))

	joined := make(chan error, 1)
	go func() { joined <- room.JoinWithToken(endpointURL, token, lksdk.WithAutoSubscribe(true)) }()

	select {
	case err := <-joined:
		if err != nil {
			return nil, fmt.Errorf("join room: %w", err)
		}
	case <-ctx.Done():
		// Join has no context; tear down whatever it produces.
		go func() {
			if err := <-joined; err == nil {
				room.Disconnect()
			}
		}()
		return nil, ctx.Err()
	}

	t.log.Debug().Str("room", room.Name()).Str("identity", room.LocalParticipant.Identity()).Msg("joined livekit room")

	for _, rp := range room.GetRemoteParticipants() {
		info := participantInfo(rp)
		sink(reconciler.Event{Kind: reconciler.EventParticipantJoined, Participant: info})
		for _, pub := range rp.TrackPublications() {
			sink(reconciler.Event{
				Kind:        mutedKind(pub.IsMuted(), reconciler.EventTrackPublished),
				Participant: info,
				Source:      sourceOf(pub.Source()),
			})
		}
	}

	return &Connection{room: room, log: t.log}, nil
}

// Connection is a joined LiveKit room.
type Connection struct {
	room *lksdk.Room
	log  *zerolog.Logger
	once sync.Once

	mu   sync.Mutex
	pubs map[reconciler.TrackSource]*lksdk.LocalTrackPublication
}

var (
	errUnsupportedTrack = errors.New("track was not opened by FileDevices")
	errNotPublished     = errors.New("no track published for source")
)

// Publish sends a FileTrack to the room and remembers its publication for muting.
func (c *Connection) Publish(_ context.Context, track reconciler.MediaTrack) error {
	ft, ok := track.(*FileTrack)
	if !ok {
		return errUnsupportedTrack
	}
	pub, err := c.room.LocalParticipant.PublishTrack(ft.track, &lksdk.TrackPublicationOptions{
		Name:   ft.source.String(),
		Source: trackSourceOf(ft.source),
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", ft.source, err)
	}
	c.mu.Lock()
	if c.pubs == nil {
		c.pubs = make(map[reconciler.TrackSource]*lksdk.LocalTrackPublication)
	}
	c.pubs[ft.source] = pub
	c.mu.Unlock()
	return nil
}

// SetMuted mutes or unmutes the publication for source.
func (c *Connection) SetMuted(source reconciler.TrackSource, muted bool) error {
	c.mu.Lock()
	pub := c.pubs[source]
	c.mu.Unlock()
	if pub == nil {
		return fmt.Errorf("%w: %s", errNotPublished, source)
	}
	pub.SetMuted(muted)
	return nil
}

// SendChat publishes text as a LiveKit chat message over the reliable data channel.
func (c *Connection) SendChat(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.room.LocalParticipant.PublishDataPacket(lksdk.ChatMessage(time.Now(), text), lksdk.WithDataPublishReliable(true)); err != nil {
		return fmt.Errorf("send chat: %w", err)
	}
	return nil
}

// Disconnect leaves the room once; later calls are no-ops.
func (c *Connection) Disconnect() {
	c.once.Do(func() {
		c.log.Debug().Str("room", c.room.Name()).Msg("leaving livekit room")
		c.room.Disconnect()
	})
}

func roomCallback(sink reconciler.EventSink) *lksdk.RoomCallback {
	remote := func(kind reconciler.EventKind) func(*lksdk.RemoteTrackPublication, *lksdk.RemoteParticipant) {
		return func(pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
			sink(reconciler.Event{Kind: kind, Participant: participantInfo(rp), Source: sourceOf(pub.Source())})
		}
	}
	subscription := func(kind reconciler.EventKind) func(*webrtc.TrackRemote, *lksdk.RemoteTrackPublication, *lksdk.RemoteParticipant) {
		return func(_ *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
			sink(reconciler.Event{Kind: kind, Participant: participantInfo(rp), Source: sourceOf(pub.Source())})
		}
	}
	mute := func(kind reconciler.EventKind) func(lksdk.TrackPublication, lksdk.Participant) {
		return func(pub lksdk.TrackPublication, p lksdk.Participant) {
			_, local := p.(*lksdk.LocalParticipant)
			sink(reconciler.Event{Kind: kind, Participant: participantInfo(p), Local: local, Source: sourceOf(pub.Source())})
		}
	}

	return &lksdk.RoomCallback{
		OnParticipantConnected: func(rp *lksdk.RemoteParticipant) {
			sink(reconciler.Event{Kind: reconciler.EventParticipantJoined, Participant: participantInfo(rp)})
		},
		OnParticipantDisconnected: func(rp *lksdk.RemoteParticipant) {
			sink(reconciler.Event{Kind: reconciler.EventParticipantLeft, Participant: participantInfo(rp)})
		},
		OnDisconnectedWithReason: func(reason lksdk.DisconnectionReason) {
			sink(reconciler.Event{Kind: reconciler.EventDisconnected, Reason: string(reason)})
		},
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackPublished:    remote(reconciler.EventTrackPublished),
			OnTrackUnpublished:  remote(reconciler.EventTrackUnpublished),
			OnTrackSubscribed:   subscription(reconciler.EventTrackSubscribed),
			OnTrackUnsubscribed: subscription(reconciler.EventTrackUnsubscribed),
			OnTrackMuted:        mute(reconciler.EventTrackMuted),
			OnTrackUnmuted:      mute(reconciler.EventTrackUnmuted),
			OnMetadataChanged: func(_ string, p lksdk.Participant) {
				if _, local := p.(*lksdk.LocalParticipant); local {
					return
				}
				sink(reconciler.Event{Kind: reconciler.EventParticipantUpdated, Participant: participantInfo(p)})
			},
			OnDataPacket: func(packet lksdk.DataPacket, params lksdk.DataReceiveParams) {
				text, ok := chatText(packet)
				if !ok {
					return
				}
				info := reconciler.ParticipantInfo{Identity: params.SenderIdentity}
				if params.Sender != nil {
					info = participantInfo(params.Sender)
				}
				sink(reconciler.Event{Kind: reconciler.EventChatReceived, Participant: info, Text: text})
			},
			OnConnectionQualityChanged: func(update *livekit.ConnectionQualityInfo, p lksdk.Participant) {
				_, local := p.(*lksdk.LocalParticipant)
				sink(reconciler.Event{
					Kind:        reconciler.EventConnectionQuality,
					Participant: participantInfo(p),
					Local:       local,
					Quality:     qualityOf(update.GetQuality()),
				})
			},
		},
	}
}

// legacyChatTopic carries JSON chat messages from older web clients.
const legacyChatTopic = "lk-chat-topic"

type legacyChat struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

func chatText(packet lksdk.DataPacket) (string, bool) {
	switch p := packet.(type) {
	case *livekit.ChatMessage:
		return p.GetMessage(), p.GetMessage() != ""
	case *lksdk.UserDataPacket:
		if p.Topic != legacyChatTopic {
			return "", false
		}
		var msg legacyChat
		if err := json.Unmarshal(p.Payload, &msg); err != nil || msg.Message == "" {
			return "", false
		}
		return msg.Message, true
	}
	return "", false
}

func participantInfo(p lksdk.Participant) reconciler.ParticipantInfo {
	return reconciler.ParticipantInfo{Identity: p.Identity(), Name: p.Name(), Metadata: p.Metadata()}
}

func mutedKind(muted bool, otherwise reconciler.EventKind) reconciler.EventKind {
	if muted {
		return reconciler.EventTrackMuted
	}
	return otherwise
}

func sourceOf(s livekit.TrackSource) reconciler.TrackSource {
	switch s {
	case livekit.TrackSource_MICROPHONE:
		return reconciler.SourceMicrophone
	case livekit.TrackSource_CAMERA:
		return reconciler.SourceCamera
	case livekit.TrackSource_SCREEN_SHARE:
		return reconciler.SourceScreenShare
	case livekit.TrackSource_SCREEN_SHARE_AUDIO:
		return reconciler.SourceScreenShareAudio
	default:
		return reconciler.SourceUnknown
	}
}

func trackSourceOf(s reconciler.TrackSource) livekit.TrackSource {
	switch s {
	case reconciler.SourceMicrophone:
		return livekit.TrackSource_MICROPHONE
	case reconciler.SourceCamera:
		return livekit.TrackSource_CAMERA
	case reconciler.SourceScreenShare:
		return livekit.TrackSource_SCREEN_SHARE
	case reconciler.SourceScreenShareAudio:
		return livekit.TrackSource_SCREEN_SHARE_AUDIO
	default:
		return livekit.TrackSource_UNKNOWN
	}
}

func qualityOf(q livekit.ConnectionQuality) reconciler.Quality {
	switch q {
	case livekit.ConnectionQuality_EXCELLENT:
		return reconciler.QualityExcellent
	case livekit.ConnectionQuality_GOOD:
		return reconciler.QualityGood
	case livekit.ConnectionQuality_POOR:
		return reconciler.QualityPoor
	case livekit.ConnectionQuality_LOST:
		return reconciler.QualityLost
	default:
		return reconciler.QualityUnknown
	}
}
