// Package identity holds the rules that turn people into room participants:
// transport identities, display names, participant kinds and their metadata.
package identity

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const (
	// MaxRequestedLength is the longest identity a caller may request.
	MaxRequestedLength = 100
	// MaxLength caps a sanitized transport identity.
	MaxLength = 50
)

// Kind classifies a joining principal.
type Kind string

const (
	KindAuthenticated Kind = "authenticated"
	KindGuest         Kind = "guest"
	KindAnonymous     Kind = "anonymous"
)

// ParseKind maps a wire value to a Kind. Unknown values are anonymous.
func ParseKind(s string) Kind {
	switch Kind(s) {
	case KindAuthenticated, KindGuest:
		return Kind(s)
	default:
		return KindAnonymous
	}
}

// Principal is an identity-provider user as seen by the meeting layer.
type Principal struct {
	UID         string
	DisplayName string
	Email       string
	PhotoURL    string
}

// Sanitize replaces every rune outside [A-Za-z0-9_-] with '_' and caps the
// result at MaxLength. Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if b.Len() >= MaxLength {
			break
		}
		if allowed(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func allowed(r rune) bool {
	return r < unicode.MaxASCII && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-')
}

// FromPrincipal derives a deterministic identity for an authenticated user:
// display name, else the email local part, else a truncated uid.
func FromPrincipal(p Principal) string {
	if name := compactName(p.DisplayName); name != "" {
		return Sanitize(name)
	}
	if local, _, _ := strings.Cut(strings.TrimSpace(p.Email), "@"); local != "" {
		return Sanitize(local)
	}
	uid := p.UID
	if len(uid) > 8 {
		uid = uid[:8]
	}
	return Sanitize("user_" + uid)
}

// Guest builds a unique identity for a guest with the given display name.
func Guest(displayName string) string {
	const prefix, suffixLen = "guest-", 8
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:suffixLen]

	name := compactName(displayName)
	if limit := MaxLength - len(prefix) - suffixLen - 1; len(name) > limit {
		name = name[:limit]
	}
	if name == "" {
		return Sanitize(prefix + suffix)
	}
	return Sanitize(prefix + name + "-" + suffix)
}

// compactName keeps letters, digits and spaces and joins words with '_'.
func compactName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ') {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), "_")
}

// AnonymousName picks a neutral display name from the identity prefix.
func AnonymousName(identity string) string {
	lower := strings.ToLower(identity)
	switch {
	case strings.HasPrefix(lower, "guest"):
		return "Guest"
	case strings.HasPrefix(lower, "user"):
		return "User"
	default:
		return "Participant"
	}
}

// DisplayNameFromIdentity recovers a readable name when no metadata is available.
func DisplayNameFromIdentity(identity string) string {
	if identity == "" {
		return "Unknown"
	}
	if rest, ok := strings.CutPrefix(identity, "guest-"); ok {
		name, _, _ := strings.Cut(rest, "-")
		if name == "" {
			return "Guest"
		}
		return strings.ReplaceAll(name, "_", " ")
	}
	return strings.ReplaceAll(identity, "_", " ")
}

// Initials returns up to two uppercase letters for an avatar badge.
func Initials(name string) string {
	words := strings.Fields(name)
	switch len(words) {
	case 0:
		return "U"
	case 1:
		r := []rune(words[0])
		if len(r) > 2 {
			r = r[:2]
		}
		return strings.ToUpper(string(r))
	default:
		first := []rune(words[0])[0]
		last := []rune(words[len(words)-1])[0]
		return strings.ToUpper(string([]rune{first, last}))
	}
}
