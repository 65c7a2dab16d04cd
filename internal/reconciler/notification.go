package reconciler

// NotificationKind classifies a transient, user-facing message.
type NotificationKind int

const (
	NotifyParticipantJoined NotificationKind = iota
	NotifyParticipantLeft
	// NotifyMediaUnavailable reports a camera or microphone that could not be used.
	NotifyMediaUnavailable
	// NotifyError reports a failed fetch or connect.
	NotifyError
	// NotifyDisconnected asks the caller to navigate away from the room.
	NotifyDisconnected
	// NotifyChat carries a chat message, including the caller's own.
	NotifyChat
)

// Notification is a transient message for the UI. It carries no state.
type Notification struct {
	Kind     NotificationKind
	Identity string
	Name     string
	Message  string
	Text     string // chat body for NotifyChat
	Err      error
}
