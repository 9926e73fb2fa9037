package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/concord-im/concord/internal/proto"
	"github.com/concord-im/concord/internal/service/chat"
)

// MessageHandlers provides HTTP handlers for message endpoints.
type MessageHandlers struct {
	chat *chat.Service
	log  *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(chatService *chat.Service, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{chat: chatService, log: logger}
}

// CreateMessageRequest represents the create message request body.
type CreateMessageRequest struct {
	ChannelID string `json:"channel_id" binding:"required"`
	Content   string `json:"content" binding:"required"`
}

// CreateMessage handles message creation.
// POST /api/messages
func (h *MessageHandlers) CreateMessage(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	resp, err := h.chat.CreateMessage(c.Request.Context(), user, req.ChannelID, req.Content)
	if err != nil {
		h.writeMessageError(c, err, req.ChannelID)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetMessage returns one message.
// GET /api/messages/:id
func (h *MessageHandlers) GetMessage(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	resp, err := h.chat.GetMessage(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		if errors.Is(err, chat.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
			return
		}
		h.writeMessageError(c, err, c.Param("id"))
		return
	}

	c.JSON(http.StatusOK, resp)
}

// History pages through a channel's messages, oldest first.
// GET /api/messages?channel=<id>&before=<id>&max=<n>
// GET /api/messages?channel=<id>&after=<id>&max=<n>
func (h *MessageHandlers) History(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	channelID := c.Query("channel")
	if channelID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "channel query parameter is required"})
		return
	}

	limit := 0
	if raw := c.Query("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "max must be an integer"})
			return
		}
		limit = n
	}

	var (
		page []proto.MessageResponse
		err  error
	)
	if after := c.Query("after"); after != "" {
		page, err = h.chat.MessagesAfter(c.Request.Context(), user.ID, channelID, after, limit)
	} else {
		page, err = h.chat.MessagesBefore(c.Request.Context(), user.ID, channelID, c.Query("before"), limit)
	}
	if err != nil {
		h.writeMessageError(c, err, channelID)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (h *MessageHandlers) writeMessageError(c *gin.Context, err error, subject string) {
	switch {
	case errors.Is(err, chat.ErrChannelNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "channel not found"})
	case errors.Is(err, chat.ErrAccessDenied):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a channel member"})
	case errors.Is(err, chat.ErrEmptyContent):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "message content is empty"})
	default:
		h.log.Error().Err(err).Str("subject", subject).Msg("message request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
