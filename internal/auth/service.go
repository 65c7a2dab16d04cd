package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/wiremeet/internal/identity"
	"github.com/vovakirdan/wiremeet/internal/store"
)

var (
	// ErrInvalidCredentials is returned when email/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with an existing email.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidEmail is returned when the email doesn't meet constraints.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidPassword is returned when the password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrInvalidPhotoURL is returned for a profile photo that is not an absolute http(s) URL.
	ErrInvalidPhotoURL = errors.New("invalid photo url")
)

// Service provides authentication and profile operations.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// ProfileUpdate holds optional profile changes. Nil fields are left untouched.
type ProfileUpdate struct {
	DisplayName *string
	PhotoURL    *string
}

// Register creates a new user with hashed password and returns a session token.
func (s *Service) Register(ctx context.Context, email, password, displayName string) (string, *store.User, error) {
	email = strings.TrimSpace(email)
	if len(email) < 3 || len(email) > 254 || !strings.Contains(email, "@") {
		return "", nil, ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return "", nil, ErrInvalidPassword
	}
	if strings.TrimSpace(displayName) != "" {
		name, err := identity.ValidateDisplayName(displayName)
		if err != nil {
			return "", nil, err
		}
		displayName = name
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return "", nil, err
	}

	user, err := s.store.CreateUser(ctx, email, hashedPassword, displayName)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return "", nil, ErrUserExists
		}
		return "", nil, fmt.Errorf("create user: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, user)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}

	return token, user, nil
}

// Login validates credentials and returns a session token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *store.User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return "", nil, ErrInvalidCredentials
	}

	if errPwd := ComparePassword(user.PasswordHash, password); errPwd != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, user)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}

	return token, user, nil
}

// Profile returns the stored user for id.
func (s *Service) Profile(ctx context.Context, id int64) (*store.User, error) {
	return s.store.GetUserByID(ctx, id)
}

// UpdateProfile applies upd to the user's profile.
func (s *Service) UpdateProfile(ctx context.Context, id int64, upd ProfileUpdate) (*store.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	displayName, photoURL := user.DisplayName, user.PhotoURL
	if upd.DisplayName != nil {
		name, err := identity.ValidateDisplayName(*upd.DisplayName)
		if err != nil {
			return nil, err
		}
		displayName = name
	}
	if upd.PhotoURL != nil {
		photoURL = strings.TrimSpace(*upd.PhotoURL)
		if photoURL != "" && !identity.ValidAvatarURL(photoURL) {
			return nil, ErrInvalidPhotoURL
		}
	}

	return s.store.UpdateProfile(ctx, id, displayName, photoURL)
}

// ValidateToken validates a session token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

// Verify implements Verifier for tokens issued by this service.
func (s *Service) Verify(_ context.Context, token string) (*identity.Principal, error) {
	claims, err := s.ValidateToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return principalFromClaims(claims), nil
}

var _ Verifier = (*Service)(nil)
