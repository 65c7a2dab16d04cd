package reconciler

import (
	"slices"

	"github.com/vovakirdan/wiremeet/internal/identity"
)

// MediaState holds per-participant media flags.
type MediaState struct {
	AudioOn  bool
	VideoOn  bool
	ScreenOn bool
}

// ParticipantView is the render model of one remote participant.
type ParticipantView struct {
	Identity string
	Name     string
	Avatar   string
	Kind     identity.Kind
	Quality  Quality
	MediaState
}

// LocalView is the render model of the caller.
type LocalView struct {
	Identity string
	Name     string
	Avatar   string
	Kind     identity.Kind
	Quality  Quality
	MediaState
}

// View is a consistent snapshot of a room session.
type View struct {
	Room         string
	State        State
	Local        LocalView
	Participants []ParticipantView
	// Err is set in StateFailed.
	Err error
}

// Participant returns the remote participant with the given identity.
func (v View) Participant(id string) (ParticipantView, bool) {
	i := v.indexOf(id)
	if i < 0 {
		return ParticipantView{}, false
	}
	return v.Participants[i], true
}

func (v View) indexOf(id string) int {
	return slices.IndexFunc(v.Participants, func(p ParticipantView) bool { return p.Identity == id })
}

func (v View) clone() View {
	v.Participants = slices.Clone(v.Participants)
	return v
}

// participantFromInfo derives display fields from transport metadata,
// falling back to the identity when metadata is absent or unusable.
func participantFromInfo(info ParticipantInfo) ParticipantView {
	p := ParticipantView{Identity: info.Identity}
	if info.Metadata != "" {
		meta := identity.DecodeMetadata(info.Metadata, info.Identity)
		p.Name, p.Avatar, p.Kind = meta.Name, meta.Avatar, meta.UserType
		return p
	}
	p.Kind = identity.KindAnonymous
	p.Name = info.Name
	if p.Name == "" {
		p.Name = identity.DisplayNameFromIdentity(info.Identity)
	}
	return p
}
