package menu

import (
	"github.com/gin-gonic/gin"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, editorMW gin.HandlerFunc) {
	rg.GET("/menu", h.list)

	g := rg.Group("/menu", editorMW)
	g.PUT("", h.replace)
	g.POST("", h.add)
	g.PUT("/reorder", h.reorder)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.remove)
}

func (h *Handler) list(c *gin.Context) {
	items, err := h.svc.List()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"menu": nonNil(items)})
}

func (h *Handler) replace(c *gin.Context) {
	var body struct {
		Menu []models.MenuItem `json:"menu"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	items, err := h.svc.Replace(body.Menu)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"menu": nonNil(items)})
}

func (h *Handler) add(c *gin.Context) {
	var in Input
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	item, err := h.svc.Add(in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

func (h *Handler) reorder(c *gin.Context) {
	var body struct {
		OrderedIDs []string `json:"orderedIds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	items, err := h.svc.Reorder(body.OrderedIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"menu": nonNil(items)})
}

func (h *Handler) update(c *gin.Context) {
	var in Input
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	item, err := h.svc.Update(c.Param("id"), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

func (h *Handler) remove(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Delete(id); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"id": id, "deleted": true})
}

func nonNil(items []models.MenuItem) []models.MenuItem {
	if items == nil {
		return []models.MenuItem{}
	}
	return items
}
