package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/concord-im/concord/internal/proto"
	"github.com/concord-im/concord/internal/service/chat"
)

// ChannelHandlers provides HTTP handlers for channel endpoints.
type ChannelHandlers struct {
	chat *chat.Service
	log  *zerolog.Logger
}

// NewChannelHandlers creates a new channel handlers instance.
func NewChannelHandlers(chatService *chat.Service, logger *zerolog.Logger) *ChannelHandlers {
	return &ChannelHandlers{chat: chatService, log: logger}
}

// CreateChannelRequest represents the create channel request body. Location
// is either {"type":"dm","members":[...]} or {"type":"guild","id":"..."}.
type CreateChannelRequest struct {
	Name     string                `json:"name" binding:"required,min=1"`
	Location proto.ChannelLocation `json:"location" binding:"required"`
}

// CreateChannel handles channel creation.
// POST /api/channels
func (h *ChannelHandlers) CreateChannel(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create channel request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	resp, err := h.chat.CreateChannel(c.Request.Context(), user, req.Name, req.Location)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrGuildNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "guild not found"})
		case errors.Is(err, chat.ErrAccessDenied):
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a guild member"})
		default:
			h.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to create channel")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	h.log.Info().Str("channel_id", resp.Channel.ID).Str("user_id", user.ID).Msg("channel created")
	c.JSON(http.StatusCreated, resp)
}

// GetChannel returns a channel the caller is a member of.
// GET /api/channels/:id
func (h *ChannelHandlers) GetChannel(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	resp, err := h.chat.GetChannel(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrChannelNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "channel not found"})
		case errors.Is(err, chat.ErrAccessDenied):
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a channel member"})
		default:
			h.log.Error().Err(err).Str("channel_id", c.Param("id")).Msg("failed to fetch channel")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}
