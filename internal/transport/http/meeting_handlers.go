package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiremeet/internal/service/meetings"
)

// MeetingHandlers provides meeting creation and history endpoints.
type MeetingHandlers struct {
	meetings *meetings.Service
	log      *zerolog.Logger
}

// NewMeetingHandlers creates a new meeting handlers instance.
func NewMeetingHandlers(meetingService *meetings.Service, logger *zerolog.Logger) *MeetingHandlers {
	return &MeetingHandlers{
		meetings: meetingService,
		log:      logger,
	}
}

// CreateMeeting reserves a new room name.
// POST /api/meetings
func (h *MeetingHandlers) CreateMeeting(c *gin.Context) {
	var createdBy *int64
	if principal, ok := PrincipalFrom(c); ok {
		if id, err := strconv.ParseInt(principal.UID, 10, 64); err == nil {
			createdBy = &id
		}
	}

	meeting, err := h.meetings.Create(c.Request.Context(), createdBy)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to create meeting")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("room", meeting.RoomName).Msg("meeting created")
	c.JSON(http.StatusCreated, MeetingResponse{RoomName: meeting.RoomName, CreatedAt: meeting.CreatedAt})
}

// RecentMeetings lists rooms the caller joined recently.
// GET /api/meetings/recent?limit=10
func (h *MeetingHandlers) RecentMeetings(c *gin.Context) {
	principal, ok := PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit", Details: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	recent, err := h.meetings.Recent(c.Request.Context(), principal.UID, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list recent meetings")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]RecentMeetingResponse, 0, len(recent))
	for _, m := range recent {
		response = append(response, RecentMeetingResponse{
			RoomName:     m.RoomName,
			Identity:     m.Identity,
			LastJoinedAt: m.LastJoinedAt,
		})
	}
	c.JSON(http.StatusOK, response)
}
