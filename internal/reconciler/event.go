package reconciler

// EventKind is a transport notification delivered to the reconciler.
type EventKind int

const (
	// EventParticipantJoined reports a remote participant entering the room.
	EventParticipantJoined EventKind = iota
	// EventParticipantLeft reports a remote participant leaving the room.
	EventParticipantLeft
	// EventParticipantUpdated reports changed name or metadata.
	EventParticipantUpdated
	EventTrackPublished
	EventTrackUnpublished
	EventTrackSubscribed
	EventTrackUnsubscribed
	EventTrackMuted
	EventTrackUnmuted
	// EventConnectionQuality reports a new quality estimate for a participant.
	EventConnectionQuality
	// EventDisconnected reports that the transport connection is gone.
	EventDisconnected
	// EventChatReceived carries a chat message from a remote participant.
	EventChatReceived
)

// TrackSource identifies what a media track carries.
type TrackSource int

const (
	SourceUnknown TrackSource = iota
	SourceMicrophone
	SourceCamera
	SourceScreenShare
	SourceScreenShareAudio
)

func (s TrackSource) String() string {
	switch s {
	case SourceMicrophone:
		return "microphone"
	case SourceCamera:
		return "camera"
	case SourceScreenShare:
		return "screen_share"
	case SourceScreenShareAudio:
		return "screen_share_audio"
	default:
		return "unknown"
	}
}

// Quality is a coarse connection quality estimate.
type Quality string

const (
	QualityUnknown   Quality = ""
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityPoor      Quality = "poor"
	QualityLost      Quality = "lost"
)

// ParticipantInfo is what the transport knows about a participant.
type ParticipantInfo struct {
	Identity string
	Name     string
	Metadata string
}

// Event is a single transport notification. Local marks events about the
// caller's own tracks; Participant is then ignored.
type Event struct {
	Kind        EventKind
	Participant ParticipantInfo
	Local       bool
	Source      TrackSource
	Quality     Quality
	Reason      string // for EventDisconnected
	Text        string // for EventChatReceived

	attempt uint64
}

// EventSink receives transport events. It may be called from any goroutine
// and blocks until the reconciler accepts the event.
type EventSink func(Event)
