package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/folio-cms/folio/internal/middleware"
	"github.com/folio-cms/folio/internal/pkg/apperr"
	"github.com/folio-cms/folio/internal/pkg/jwt"
	"github.com/folio-cms/folio/internal/pkg/response"
)

type Handler struct {
	svc *Service
	// SecureCookie marks the session cookie Secure.
	SecureCookie bool
	logger       *zap.Logger
}

func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger.Named("AuthHandler")}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, adminMW gin.HandlerFunc) {
	a := rg.Group("/auth")
	a.POST("/login", h.login)
	a.POST("/logout", middleware.RequireAuth(), h.logout)

	me := rg.Group("/users/me", middleware.RequireAuth())
	me.GET("", h.me)
	me.PUT("/password", h.changePassword)

	u := rg.Group("/users", adminMW)
	u.GET("", h.list)
	u.POST("", h.create)
	u.GET("/:id", h.get)
	u.PUT("/:id", h.update)
	u.DELETE("/:id", h.remove)
}

type loginDTO struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type passwordDTO struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var dto loginDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	res, err := h.svc.Authenticate(c.Request.Context(), dto.Username, dto.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	if res == nil {
		response.Error(c, apperr.Unauthenticated("invalid username or password"))
		return
	}
	if jwt.HasSecret() {
		signed, err := jwt.Sign(res.Token, res.ExpiresAt)
		if err != nil {
			h.logger.Warn("session cookie not signed", zap.Error(err))
		} else {
			h.setCookie(c, signed, int(res.ExpiresAt.Sub(h.svc.now()).Seconds()))
		}
	}
	response.OK(c, res)
}

func (h *Handler) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, value, maxAge, "/", "", h.SecureCookie, true)
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.svc.InvalidateToken(middleware.CurrentToken(c)); err != nil {
		response.Error(c, err)
		return
	}
	h.setCookie(c, "", -1)
	response.OK(c, gin.H{"loggedOut": true})
}

func (h *Handler) me(c *gin.Context) {
	response.OK(c, middleware.CurrentUser(c).Public())
}

func (h *Handler) changePassword(c *gin.Context) {
	var dto passwordDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.svc.ChangePassword(middleware.CurrentUserID(c), dto.CurrentPassword, dto.NewPassword); err != nil {
		response.Error(c, err)
		return
	}
	h.setCookie(c, "", -1)
	response.OK(c, gin.H{"changed": true})
}

func (h *Handler) list(c *gin.Context) {
	users, err := h.svc.ListUsers()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, users)
}

func (h *Handler) get(c *gin.Context) {
	u, err := h.svc.GetUser(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, u)
}

func (h *Handler) create(c *gin.Context) {
	var in UserInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	u, err := h.svc.CreateUser(in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, u)
}

func (h *Handler) update(c *gin.Context) {
	var p UserPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	u, err := h.svc.UpdateUser(c.Param("id"), p)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, u)
}

func (h *Handler) remove(c *gin.Context) {
	if err := h.svc.DeleteUser(middleware.CurrentUserID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"deleted": true})
}
