package auth

import (
	"log/slog"
	"net/http"

	"whatsapp-crm/internal/models"

	"github.com/gin-gonic/gin"
)

const CookieName = "wa_crm_session"

const (
	contextUser  = "auth_user"
	contextToken = "auth_token"
)

// AttachSession resolves the session cookie, if any, and stores the user on
// the request context. Anonymous requests pass through.
func (s *Service) AttachSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(CookieName)
		if err != nil || token == "" {
			c.Next()
			return
		}
		c.Set(contextToken, token)

		user, err := s.Lookup(c.Request.Context(), token)
		if err != nil {
			s.logger.Error("session lookup failed", slog.Any("error", err))
		}
		if user != nil {
			c.Set(contextUser, user)
		}
		c.Next()
	}
}

func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required."})
			return
		}
		c.Next()
	}
}

func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(contextUser); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}

func UserID(c *gin.Context) string {
	if user := CurrentUser(c); user != nil {
		return user.ID
	}
	return ""
}

// SessionToken is the raw cookie value sent with the request.
func SessionToken(c *gin.Context) string {
	return c.GetString(contextToken)
}

// SetCookie writes the session cookie. Secure is added in production.
func SetCookie(c *gin.Context, token string, maxAgeSeconds int, secure bool) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAgeSeconds,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearCookie(c *gin.Context, secure bool) {
	// MaxAge < 0 is sent as Max-Age=0
	SetCookie(c, "", -1, secure)
}
