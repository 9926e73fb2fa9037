// Package http exposes the REST API and the websocket gateway endpoint.
package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/concord-im/concord/internal/auth"
	"github.com/concord-im/concord/internal/config"
	"github.com/concord-im/concord/internal/core"
	"github.com/concord-im/concord/internal/service/chat"
	"github.com/concord-im/concord/internal/store"
)

// Deps bundles everything the HTTP layer needs.
type Deps struct {
	Auth      *auth.Service
	Chat      *chat.Service
	Registry  *core.Registry
	Handshake *core.Handshake
	Users     store.UserStore
}

// NewServer builds the HTTP server with all routes wired.
func NewServer(cfg config.Config, deps Deps, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	apiHandlers := NewAPIHandlers(deps.Auth, logger)
	guildHandlers := NewGuildHandlers(deps.Chat, logger)
	channelHandlers := NewChannelHandlers(deps.Chat, logger)
	messageHandlers := NewMessageHandlers(deps.Chat, logger)
	wsHandler := NewWSHandler(deps.Registry, deps.Handshake, deps.Users, logger)

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.POST("/users", apiHandlers.Register)
		api.POST("/login", apiHandlers.Login)

		authed := api.Group("")
		authed.Use(AuthMiddleware(deps.Auth, logger))
		{
			authed.GET("/users/:id", apiHandlers.GetUser)

			authed.POST("/guilds", guildHandlers.CreateGuild)
			authed.GET("/guilds", guildHandlers.ListGuilds)
			authed.PUT("/guilds/:id/members", guildHandlers.JoinGuild)

			authed.POST("/channels", channelHandlers.CreateChannel)
			authed.GET("/channels/:id", channelHandlers.GetChannel)

			authed.POST("/messages", messageHandlers.CreateMessage)
			authed.GET("/messages/:id", messageHandlers.GetMessage)
			authed.GET("/messages", messageHandlers.History)
		}
	}

	// The gateway upgrade hijacks the connection, which gin's ResponseWriter
	// forbids after it has written anything; mount it on the outer mux so it
	// sees the raw writer.
	mux := stdhttp.NewServeMux()
	mux.Handle("/gateway", wsHandler)
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
