package render

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/folio-cms/folio/internal/middleware"
	"github.com/folio-cms/folio/internal/modules/theme"
	"github.com/folio-cms/folio/internal/pkg/apperr"
	"github.com/folio-cms/folio/internal/pkg/pagination"
)

// Handler serves the public site.
type Handler struct {
	renderer *Renderer
	themes   *theme.Registry
	logger   *zap.Logger
}

func NewHandler(renderer *Renderer, themes *theme.Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{renderer: renderer, themes: themes, logger: logger.Named("Site")}
}

// RegisterRoutes mounts theme assets. Content paths are served by Serve from NoRoute.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/assets/*filepath", h.asset)
	r.HEAD("/assets/*filepath", h.asset)
}

// Serve renders the page for the request path.
func (h *Handler) Serve(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.Header("Allow", "GET, HEAD")
		c.Data(http.StatusMethodNotAllowed, "text/plain; charset=utf-8", []byte("Method Not Allowed"))
		return
	}
	req := Request{
		Path:    c.Request.URL.Path,
		Preview: middleware.IsEditable(c) && pagination.ParseBool(c.Query("preview")),
	}
	page, err := h.renderer.Render(c.Request.Context(), req)
	h.write(c, page, err)
}

func (h *Handler) asset(c *gin.Context) {
	p, err := h.themes.AssetPath(c.Param("filepath"))
	if err == nil {
		c.File(p)
		return
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		h.write(c, nil, err)
		return
	}
	page, err := h.renderer.NotFound(c.Request.Context(), Request{Path: c.Request.URL.Path})
	h.write(c, page, err)
}

func (h *Handler) write(c *gin.Context, page *Page, err error) {
	if err != nil {
		h.logger.Error("page failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.Data(http.StatusInternalServerError, ContentTypeHTML,
			[]byte("<!doctype html><title>Server error</title><h1>Something went wrong</h1>"))
		return
	}
	if page.Location != "" {
		c.Redirect(page.Status, page.Location)
		return
	}
	c.Data(page.Status, page.ContentType, page.Body)
}
