package utils

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const (
	base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	// RoomNameLength is the length of a generated meeting id.
	RoomNameLength = 9
)

// NewRoomName returns a random lowercase base36 meeting id of RoomNameLength characters.
func NewRoomName() string {
	var b strings.Builder
	b.Grow(RoomNameLength)

	limit := big.NewInt(int64(len(base36Alphabet)))
	for b.Len() < RoomNameLength {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return fallbackRoomName()
		}
		b.WriteByte(base36Alphabet[n.Int64()])
	}
	return b.String()
}

// fallbackRoomName derives an id from the clock if crypto/rand is unavailable.
func fallbackRoomName() string {
	s := strconv.FormatInt(time.Now().UnixNano(), 36)
	if len(s) > RoomNameLength {
		s = s[len(s)-RoomNameLength:]
	}
	return strings.Repeat("0", RoomNameLength-len(s)) + s
}

// IsRoomName reports whether s looks like a generated meeting id.
func IsRoomName(s string) bool {
	if len(s) != RoomNameLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !strings.ContainsRune(base36Alphabet, rune(s[i])) {
			return false
		}
	}
	return true
}
