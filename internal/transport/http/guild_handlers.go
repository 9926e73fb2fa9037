package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/concord-im/concord/internal/service/chat"
)

// GuildHandlers provides HTTP handlers for guild endpoints.
type GuildHandlers struct {
	chat *chat.Service
	log  *zerolog.Logger
}

// NewGuildHandlers creates a new guild handlers instance.
func NewGuildHandlers(chatService *chat.Service, logger *zerolog.Logger) *GuildHandlers {
	return &GuildHandlers{chat: chatService, log: logger}
}

// CreateGuildRequest represents the create guild request body.
type CreateGuildRequest struct {
	Name string `json:"name" binding:"required,min=1"`
}

// CreateGuild handles guild creation.
// POST /api/guilds
func (h *GuildHandlers) CreateGuild(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateGuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create guild request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	resp, err := h.chat.CreateGuild(c.Request.Context(), user, req.Name)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to create guild")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("guild_id", resp.Guild.ID).Str("owner_id", user.ID).Msg("guild created")
	c.JSON(http.StatusCreated, resp)
}

// ListGuilds returns the caller's guilds.
// GET /api/guilds
func (h *GuildHandlers) ListGuilds(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	guilds, err := h.chat.ListGuilds(c.Request.Context(), user.ID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to list guilds")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, guilds)
}

// JoinGuild adds the caller to a guild.
// PUT /api/guilds/:id/members
func (h *GuildHandlers) JoinGuild(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	guildID := c.Param("id")
	if err := h.chat.JoinGuild(c.Request.Context(), user.ID, guildID); err != nil {
		if errors.Is(err, chat.ErrGuildNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "guild not found"})
			return
		}
		h.log.Error().Err(err).Str("guild_id", guildID).Msg("failed to join guild")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("guild_id", guildID).Str("user_id", user.ID).Msg("user joined guild")
	c.Status(http.StatusNoContent)
}
