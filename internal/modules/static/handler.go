package static

import (
	"github.com/gin-gonic/gin"

	"github.com/folio-cms/folio/internal/pkg/response"
)

type Handler struct {
	exporter *Exporter
}

func NewHandler(exporter *Exporter) *Handler { return &Handler{exporter: exporter} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, adminMW gin.HandlerFunc) {
	g := rg.Group("/static", adminMW)
	g.POST("/generate", h.generate)
	g.GET("/status", h.status)
}

func (h *Handler) generate(c *gin.Context) {
	st, err := h.exporter.Start(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, st)
}

func (h *Handler) status(c *gin.Context) {
	response.OK(c, h.exporter.Status())
}
