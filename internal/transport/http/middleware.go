package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/concord-im/concord/internal/auth"
	"github.com/concord-im/concord/internal/proto"
)

// ContextKeyUser is the context key for the authenticated user.
const ContextKeyUser = "user"

// AuthMiddleware validates the bearer token and stores the resolved user in
// the request context.
func AuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Debug().Msg("missing authorization header")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization header"})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			logger.Debug().Msg("invalid authorization header format")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid authorization header format"})
			c.Abort()
			return
		}

		user, err := authService.ResolveToken(c.Request.Context(), parts[1])
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			c.Abort()
			return
		}

		c.Set(ContextKeyUser, *user)
		c.Next()
	}
}

// currentUser pulls the authenticated user out of the gin context. A false
// return means AuthMiddleware did not run; the handler should bail with 401.
func currentUser(c *gin.Context) (proto.User, bool) {
	v, exists := c.Get(ContextKeyUser)
	if !exists {
		return proto.User{}, false
	}
	user, ok := v.(proto.User)
	return user, ok
}

// LoggerMiddleware logs every HTTP request after it completes.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}
