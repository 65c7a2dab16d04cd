package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiremeet/internal/auth"
	"github.com/vovakirdan/wiremeet/internal/identity"
)

// AuthHandlers provides registration and login endpoints.
type AuthHandlers struct {
	authService *auth.Service
	log         *zerolog.Logger
}

// NewAuthHandlers creates a new auth handlers instance.
func NewAuthHandlers(authService *auth.Service, logger *zerolog.Logger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		log:         logger,
	}
}

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,max=254"`
	Password    string `json:"password" binding:"required,min=6"`
	DisplayName string `json:"displayName"`
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register handles user registration.
// POST /api/auth/register
func (h *AuthHandlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid register request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}

	token, user, err := h.authService.Register(c.Request.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists):
			c.JSON(http.StatusConflict, ErrorResponse{Error: "user already exists"})
		case errors.Is(err, auth.ErrInvalidEmail),
			errors.Is(err, auth.ErrInvalidPassword),
			errors.Is(err, identity.ErrInvalidDisplayName):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
		default:
			h.log.Error().Err(err).Msg("failed to register user")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	h.log.Info().Int64("user_id", user.ID).Msg("user registered successfully")
	c.JSON(http.StatusCreated, AuthResponse{Token: token, User: toUserResponse(user)})
}

// Login handles user login.
// POST /api/auth/login
func (h *AuthHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid login request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}

	token, user, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
			return
		}
		h.log.Error().Err(err).Msg("failed to login user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Int64("user_id", user.ID).Msg("user logged in successfully")
	c.JSON(http.StatusOK, AuthResponse{Token: token, User: toUserResponse(user)})
}
