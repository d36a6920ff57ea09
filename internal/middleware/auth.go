package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/pkg/jwt"
	"github.com/folio-cms/folio/internal/pkg/response"
)

const (
	ContextKeyUser  = "current_user"
	ContextKeyToken = "session_token"

	// SessionCookie carries the signed session token for browser clients.
	SessionCookie = "folio_session"
)

// SessionResolver maps an opaque session token to its user.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*models.User, error)
}

// Auth attaches the current user when a valid session is presented. It never
// rejects; route groups add RequireEditor or RequireAdmin.
func Auth(resolver SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token != "" {
			if user, err := resolver.ResolveSession(c.Request.Context(), token); err == nil && user != nil {
				c.Set(ContextKeyUser, user)
				c.Set(ContextKeyToken, token)
			}
		}
		c.Next()
	}
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAuthenticated(c) {
			response.Unauthorized(c)
			return
		}
		c.Next()
	}
}

// RequireEditor allows admins and editors.
func RequireEditor() gin.HandlerFunc {
	return requireRole(func(r models.Role) bool { return r.CanEdit() })
}

// RequireAdmin allows admins only.
func RequireAdmin() gin.HandlerFunc {
	return requireRole(func(r models.Role) bool { return r == models.RoleAdmin })
}

func requireRole(allowed func(models.Role) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			response.Unauthorized(c)
			return
		}
		if !allowed(user.Role) {
			response.Forbidden(c)
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user or nil.
func CurrentUser(c *gin.Context) *models.User {
	v, _ := c.Get(ContextKeyUser)
	u, _ := v.(*models.User)
	return u
}

// CurrentUserID returns the authenticated user id or "".
func CurrentUserID(c *gin.Context) string {
	if u := CurrentUser(c); u != nil {
		return u.ID
	}
	return ""
}

// CurrentToken returns the session token used by this request.
func CurrentToken(c *gin.Context) string {
	v, _ := c.Get(ContextKeyToken)
	t, _ := v.(string)
	return t
}

// IsAuthenticated returns true if the request carries a valid session.
func IsAuthenticated(c *gin.Context) bool {
	return CurrentUser(c) != nil
}

// IsEditable reports whether the current user may mutate content.
func IsEditable(c *gin.Context) bool {
	u := CurrentUser(c)
	return u != nil && u.Role.CanEdit()
}

func extractToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		return NormalizeToken(auth)
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
		claims, err := jwt.Parse(cookie)
		if err != nil {
			return ""
		}
		return claims.SessionToken
	}
	return ""
}

// NormalizeToken trims spaces and strips an optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
