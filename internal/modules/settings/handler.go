package settings

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/folio-cms/folio/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, adminMW gin.HandlerFunc) {
	rg.GET("/settings", h.get)
	rg.PUT("/settings", adminMW, h.put)
}

func (h *Handler) get(c *gin.Context) {
	cfg, err := h.svc.Get()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, cfg)
}

func (h *Handler) put(c *gin.Context) {
	var partial map[string]json.RawMessage
	if err := c.ShouldBindJSON(&partial); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	cfg, err := h.svc.Patch(partial)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, cfg)
}
