package theme

import (
	"github.com/gin-gonic/gin"

	"github.com/folio-cms/folio/internal/pkg/pagination"
	"github.com/folio-cms/folio/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, editorMW, adminMW gin.HandlerFunc) {
	g := rg.Group("/themes", editorMW)
	g.GET("", h.list)
	g.GET("/active", h.active)
	g.POST("/activate", h.activate)
	g.GET("/marketplace", h.browse)
	g.GET("/marketplace/:name/update", h.checkUpdate)

	a := rg.Group("/themes", adminMW)
	a.POST("/upload", h.upload)
	a.DELETE("/:name", h.remove)
	a.POST("/marketplace/install", h.marketInstall)
	a.POST("/marketplace/update", h.marketUpdate)
}

type nameDTO struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handler) list(c *gin.Context) {
	response.OK(c, h.svc.Registry.List())
}

func (h *Handler) active(c *gin.Context) {
	t, err := h.svc.Registry.Active()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, t)
}

func (h *Handler) activate(c *gin.Context) {
	var dto nameDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	t, err := h.svc.Registry.SwitchTheme(dto.Name)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, t)
}

// POST /themes/upload: multipart field "theme"; ?update=true allows reinstalling.
func (h *Handler) upload(c *gin.Context) {
	fh, err := c.FormFile("theme")
	if err != nil {
		response.BadRequest(c, "theme file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	defer f.Close()
	res, err := h.svc.Installer.Install(c.Request.Context(), f, InstallOptions{
		AllowUpdate: pagination.ParseBool(c.Query("update")),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

func (h *Handler) remove(c *gin.Context) {
	name := c.Param("name")
	if err := h.svc.Registry.Delete(name); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"name": name, "deleted": true})
}

func (h *Handler) browse(c *gin.Context) {
	list, err := h.svc.Browse(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

func (h *Handler) checkUpdate(c *gin.Context) {
	info, err := h.svc.CheckUpdate(c.Request.Context(), c.Param("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, info)
}

func (h *Handler) marketInstall(c *gin.Context) { h.marketplaceInstall(c, false) }

func (h *Handler) marketUpdate(c *gin.Context) { h.marketplaceInstall(c, true) }

func (h *Handler) marketplaceInstall(c *gin.Context, update bool) {
	var dto nameDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	res, err := h.svc.InstallFromMarketplace(c.Request.Context(), dto.Name, update)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}
