package identity

import (
	"math/rand/v2"
	"net/url"
)

const placeholderAvatarBase = "https://ui-avatars.com/api/"

const (
	authenticatedBackground = "4285F4"
	anonymousBackground     = "6B7280"
)

var guestPalette = []string{"F59E0B", "10B981", "8B5CF6", "EC4899", "14B8A6", "F97316"}

// PlaceholderAvatar returns a generated avatar image URL keyed by name.
func PlaceholderAvatar(name string, kind Kind) string {
	background := anonymousBackground
	switch kind {
	case KindAuthenticated:
		background = authenticatedBackground
	case KindGuest:
		background = guestPalette[rand.IntN(len(guestPalette))]
	}

	q := url.Values{}
	q.Set("name", name)
	q.Set("background", background)
	q.Set("color", "fff")
	q.Set("size", "128")
	q.Set("bold", "true")
	return placeholderAvatarBase + "?" + q.Encode()
}

// ValidAvatarURL reports whether s is an absolute http(s) URL.
func ValidAvatarURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
