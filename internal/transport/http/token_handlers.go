package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiremeet/internal/identity"
	"github.com/vovakirdan/wiremeet/internal/service/meetings"
	"github.com/vovakirdan/wiremeet/internal/service/tokens"
)

// TokenHandlers serves meeting credential issuance.
type TokenHandlers struct {
	tokens   *tokens.Service
	meetings *meetings.Service
	missing  []string
	log      *zerolog.Logger
}

// NewTokenHandlers creates token handlers. missing names the unset signing
// options, logged when issuance fails for lack of configuration.
func NewTokenHandlers(tokenService *tokens.Service, meetingService *meetings.Service, missing []string, logger *zerolog.Logger) *TokenHandlers {
	return &TokenHandlers{
		tokens:   tokenService,
		meetings: meetingService,
		missing:  missing,
		log:      logger,
	}
}

// TokenQuery is the query string of GET /api/token.
type TokenQuery struct {
	Identity        string `form:"identity"`
	RoomName        string `form:"roomName"`
	Name            string `form:"name"`
	Avatar          string `form:"avatar"`
	IsAuthenticated string `form:"isAuthenticated"`
	UserID          string `form:"userId"`
}

// TokenResponse is the success body of GET /api/token.
type TokenResponse struct {
	Token       string            `json:"token"`
	EndpointURL string            `json:"endpointUrl"`
	Identity    string            `json:"identity"`
	RoomName    string            `json:"roomName"`
	DisplayName string            `json:"displayName"`
	Avatar      string            `json:"avatar"`
	UserType    identity.Kind     `json:"userType"`
	Metadata    identity.Metadata `json:"metadata"`
	Success     bool              `json:"success"`
}

// IssueToken mints a room-scoped credential.
// GET /api/token?identity=&roomName=&name=&avatar=&isAuthenticated=&userId=
func (h *TokenHandlers) IssueToken(c *gin.Context) {
	var q TokenQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid query", Details: err.Error()})
		return
	}

	req := tokens.Request{
		Identity:    q.Identity,
		RoomName:    q.RoomName,
		DisplayName: q.Name,
		AvatarURL:   q.Avatar,
	}

	principal, verified := PrincipalFrom(c)
	claimsAuth, _ := strconv.ParseBool(q.IsAuthenticated)
	switch {
	case claimsAuth && verified:
		req.IsAuthenticated = true
		req.UserID = principal.UID
		if strings.TrimSpace(req.DisplayName) == "" {
			req.DisplayName = principal.DisplayName
		}
		if req.AvatarURL == "" {
			req.AvatarURL = principal.PhotoURL
		}
	case claimsAuth:
		h.log.Warn().
			Str("identity", q.Identity).
			Str("room", q.RoomName).
			Str("claimed_user_id", q.UserID).
			Msg("isAuthenticated without a verified bearer token; issuing as guest")
	}

	cred, err := h.tokens.Issue(c.Request.Context(), req)
	if err != nil {
		h.writeIssueError(c, err)
		return
	}

	if req.IsAuthenticated && h.meetings != nil {
		if err := h.meetings.RecordJoin(c.Request.Context(), cred.RoomName, principal.UID, cred.Identity); err != nil {
			h.log.Warn().Err(err).Str("room", cred.RoomName).Msg("failed to record meeting join")
		}
	}

	h.log.Info().
		Str("identity", cred.Identity).
		Str("room", cred.RoomName).
		Str("user_type", string(cred.Kind)).
		Msg("credential issued")

	c.JSON(http.StatusOK, TokenResponse{
		Token:       cred.Token,
		EndpointURL: cred.EndpointURL,
		Identity:    cred.Identity,
		RoomName:    cred.RoomName,
		DisplayName: cred.DisplayName,
		Avatar:      cred.AvatarURL,
		UserType:    cred.Kind,
		Metadata:    cred.Metadata,
		Success:     true,
	})
}

func (h *TokenHandlers) writeIssueError(c *gin.Context, err error) {
	var reqErr *tokens.RequestError
	switch {
	case errors.As(err, &reqErr):
		msg := "Invalid request"
		if reqErr.Reason == tokens.ReasonRequired {
			msg = "Missing identity or roomName"
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Details: reqErr.Error()})
	case errors.Is(err, tokens.ErrConfiguration):
		h.log.Error().Err(err).Strs("missing", h.missing).Msg("token issuance is not configured")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Server configuration error",
			Details: "The server is not configured to issue meeting credentials",
		})
	default:
		h.log.Error().Err(err).Msg("failed to issue credential")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to generate token",
			Details: "internal server error",
		})
	}
}
