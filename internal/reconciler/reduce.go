package reconciler

// Reduce applies one transport event to v and returns the new view plus any
// notifications. It does not modify v.
func Reduce(v View, ev Event) (View, []Notification) {
	v = v.clone()

	switch ev.Kind {
	case EventParticipantJoined:
		p := participantFromInfo(ev.Participant)
		if i := v.indexOf(p.Identity); i >= 0 {
			p.MediaState, p.Quality = v.Participants[i].MediaState, v.Participants[i].Quality
			v.Participants[i] = p
			return v, nil
		}
		v.Participants = append(v.Participants, p)
		return v, []Notification{{Kind: NotifyParticipantJoined, Identity: p.Identity, Name: p.Name, Message: p.Name + " joined"}}

	case EventParticipantLeft:
		i := v.indexOf(ev.Participant.Identity)
		if i < 0 {
			return v, nil
		}
		p := v.Participants[i]
		v.Participants = append(v.Participants[:i], v.Participants[i+1:]...)
		return v, []Notification{{Kind: NotifyParticipantLeft, Identity: p.Identity, Name: p.Name, Message: p.Name + " left"}}

	case EventParticipantUpdated:
		if i := v.indexOf(ev.Participant.Identity); i >= 0 {
			p := participantFromInfo(ev.Participant)
			p.MediaState, p.Quality = v.Participants[i].MediaState, v.Participants[i].Quality
			v.Participants[i] = p
		}
		return v, nil

	case EventTrackPublished, EventTrackSubscribed, EventTrackUnmuted:
		return setMedia(v, ev, true), nil

	case EventTrackUnpublished, EventTrackUnsubscribed, EventTrackMuted:
		return setMedia(v, ev, false), nil

	case EventConnectionQuality:
		if ev.Local {
			v.Local.Quality = ev.Quality
		} else if i := v.indexOf(ev.Participant.Identity); i >= 0 {
			v.Participants[i].Quality = ev.Quality
		}
		return v, nil

	case EventChatReceived:
		if ev.Text == "" {
			return v, nil
		}
		name := participantFromInfo(ev.Participant).Name
		if i := v.indexOf(ev.Participant.Identity); i >= 0 && v.Participants[i].Name != "" {
			name = v.Participants[i].Name
		}
		return v, []Notification{chatNotification(ev.Participant.Identity, name, ev.Text)}

	case EventDisconnected:
		v.State = StateDisconnected
		v.Participants = nil
		v.Local.MediaState = MediaState{}
		msg := "disconnected"
		if ev.Reason != "" {
			msg += ": " + ev.Reason
		}
		return v, []Notification{{Kind: NotifyDisconnected, Message: msg}}
	}

	return v, nil
}

func chatNotification(id, name, text string) Notification {
	return Notification{Kind: NotifyChat, Identity: id, Name: name, Text: text, Message: name + ": " + text}
}

// setMedia updates the flag matching ev.Source. Track events for a remote
// participant not yet in the roster add it without a notification.
func setMedia(v View, ev Event, on bool) View {
	if ev.Local {
		applySource(&v.Local.MediaState, ev.Source, on)
		return v
	}

	i := v.indexOf(ev.Participant.Identity)
	if i < 0 {
		if ev.Participant.Identity == "" {
			return v
		}
		v.Participants = append(v.Participants, participantFromInfo(ev.Participant))
		i = len(v.Participants) - 1
	}
	applySource(&v.Participants[i].MediaState, ev.Source, on)
	return v
}

func applySource(m *MediaState, source TrackSource, on bool) {
	switch source {
	case SourceMicrophone:
		m.AudioOn = on
	case SourceCamera:
		m.VideoOn = on
	case SourceScreenShare:
		m.ScreenOn = on
	}
}
