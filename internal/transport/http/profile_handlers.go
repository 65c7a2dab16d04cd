package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiremeet/internal/auth"
	"github.com/vovakirdan/wiremeet/internal/identity"
	"github.com/vovakirdan/wiremeet/internal/store"
)

// ProfileHandlers serves the caller's own profile.
type ProfileHandlers struct {
	authService *auth.Service
	log         *zerolog.Logger
}

// NewProfileHandlers creates a new profile handlers instance.
func NewProfileHandlers(authService *auth.Service, logger *zerolog.Logger) *ProfileHandlers {
	return &ProfileHandlers{
		authService: authService,
		log:         logger,
	}
}

// UpdateProfileRequest represents the profile update body. Absent fields are unchanged.
type UpdateProfileRequest struct {
	DisplayName *string `json:"displayName"`
	PhotoURL    *string `json:"photoUrl"`
}

// GetProfile returns the caller's profile.
// GET /api/me
func (h *ProfileHandlers) GetProfile(c *gin.Context) {
	userID, ok := h.localUserID(c)
	if !ok {
		return
	}

	user, err := h.authService.Profile(c.Request.Context(), userID)
	if err != nil {
		h.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

// UpdateProfile changes the caller's display name and/or photo.
// PUT /api/me
func (h *ProfileHandlers) UpdateProfile(c *gin.Context) {
	userID, ok := h.localUserID(c)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}

	user, err := h.authService.UpdateProfile(c.Request.Context(), userID, auth.ProfileUpdate{
		DisplayName: req.DisplayName,
		PhotoURL:    req.PhotoURL,
	})
	if err != nil {
		if errors.Is(err, identity.ErrInvalidDisplayName) || errors.Is(err, auth.ErrInvalidPhotoURL) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid profile", Details: err.Error()})
			return
		}
		h.writeStoreError(c, err)
		return
	}

	h.log.Info().Int64("user_id", userID).Msg("profile updated")
	c.JSON(http.StatusOK, toUserResponse(user))
}

// localUserID maps the verified principal to a local account. Principals from an
// external identity provider have no local profile.
func (h *ProfileHandlers) localUserID(c *gin.Context) (int64, bool) {
	principal, ok := PrincipalFrom(c)
	if !ok {
		h.log.Error().Msg("principal not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return 0, false
	}
	id, err := strconv.ParseInt(principal.UID, 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "profile not found"})
		return 0, false
	}
	return id, true
}

func (h *ProfileHandlers) writeStoreError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "profile not found"})
		return
	}
	h.log.Error().Err(err).Msg("profile operation failed")
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}
