package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/safecommute/pkg/common"
	"github.com/richxcame/safecommute/pkg/logger"
	"github.com/richxcame/safecommute/pkg/session"
)

const (
	// UserIDHeader names the acting user. The credential is the bearer token.
	UserIDHeader = "X-User-ID"

	sessionKey = "session"
)

// RequireSession builds the request's session from the bearer token and the
// user id header. The token is opaque here; the backend validates it.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			common.ErrorResponse(c, http.StatusUnauthorized, "authorization required")
			c.Abort()
			return
		}

		scheme, token, found := strings.Cut(authHeader, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			common.ErrorResponse(c, http.StatusUnauthorized, "invalid authorization header format")
			c.Abort()
			return
		}

		sess := session.New(c.GetHeader(UserIDHeader), token)
		if err := sess.Validate(); err != nil {
			common.ErrorResponse(c, http.StatusUnauthorized, UserIDHeader+" header is required")
			c.Abort()
			return
		}

		c.Set(sessionKey, sess)
		c.Set("user_id", sess.UserID)
		c.Request = c.Request.WithContext(logger.ContextWithUserID(c.Request.Context(), sess.UserID))

		c.Next()
	}
}

// SessionFrom returns the session stored by RequireSession.
func SessionFrom(c *gin.Context) (session.Session, bool) {
	value, exists := c.Get(sessionKey)
	if !exists {
		return session.Session{}, false
	}
	sess, ok := value.(session.Session)
	return sess, ok
}
