package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// bcryptCost is the default cost for bcrypt hashing.
	bcryptCost = 10

	// MinPasswordLength is the shortest accepted password.
	MinPasswordLength = 6
	// bcrypt ignores input beyond 72 bytes.
	maxPasswordLength = 72
)

// HashPassword generates a bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength || len(password) > maxPasswordLength {
		return "", ErrInvalidPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// ComparePassword compares a bcrypt hashed password with its plaintext version.
func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}
