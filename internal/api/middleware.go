package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
)

// SessionStore is the part of the redis client the HTTP layer needs.
type SessionStore interface {
	CreateSession(ctx context.Context, userID int64) (string, *redisclient.Session, error)
	GetSession(ctx context.Context, id string) (*redisclient.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

const (
	sessionCookie = "session_id"
	csrfHeader    = "X-CSRF-Token"

	ctxUserID  = "userID"
	ctxSession = "session"
)

// requireAuth rejects requests without a valid session cookie and
// stashes the user id for the handlers.
func (h *Handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(sessionCookie)
		if err != nil || id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": service.ErrUnauthenticated.Error(),
			})
			return
		}

		session, err := h.sessions.GetSession(c.Request.Context(), id)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": service.ErrUnauthenticated.Error(),
			})
			return
		}

		c.Set(ctxUserID, session.UserID)
		c.Set(ctxSession, session)
		c.Next()
	}
}

// requireCSRF rejects mutating requests whose token does not match the
// session's. Runs after requireAuth.
func (h *Handler) requireCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := c.MustGet(ctxSession).(*redisclient.Session)

		token := c.GetHeader(csrfHeader)
		if token == "" {
			token = c.PostForm("csrf_token")
		}
		if token == "" || token != session.CSRFToken {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"message": service.ErrInvalidSecurityToken.Error(),
			})
			return
		}
		c.Next()
	}
}

func userID(c *gin.Context) int64 {
	return c.MustGet(ctxUserID).(int64)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
