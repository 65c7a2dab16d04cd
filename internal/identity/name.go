package identity

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxDisplayNameLength caps a self-declared display name.
const MaxDisplayNameLength = 50

// ErrInvalidDisplayName is returned when a display name is rejected.
var ErrInvalidDisplayName = errors.New("invalid display name")

var reservedWords = []string{"admin", "moderator", "host", "null", "undefined"}

// ValidateDisplayName trims name and checks it against length limits and
// reserved words (case-insensitive substring match). It returns the trimmed name.
func ValidateDisplayName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidDisplayName)
	}
	if utf8.RuneCountInString(trimmed) > MaxDisplayNameLength {
		return "", fmt.Errorf("%w: name must be at most %d characters", ErrInvalidDisplayName, MaxDisplayNameLength)
	}
	lower := strings.ToLower(trimmed)
	for _, word := range reservedWords {
		if strings.Contains(lower, word) {
			return "", fmt.Errorf("%w: %q is reserved", ErrInvalidDisplayName, word)
		}
	}
	return trimmed, nil
}
