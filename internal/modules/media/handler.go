package media

import (
	"errors"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/pkg/apperr"
	"github.com/folio-cms/folio/internal/pkg/response"
)

type Handler struct {
	reg *Registry
}

func NewHandler(reg *Registry) *Handler { return &Handler{reg: reg} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, editorMW gin.HandlerFunc) {
	g := rg.Group("/media", editorMW)
	g.GET("", h.list)
	g.POST("/upload", h.upload)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.remove)
	g.GET("/:id/references", h.references)
	g.POST("/:id/propagate-metadata", h.propagate)
	g.GET("/:id/file", h.file)
}

// RegisterPublicRoutes serves uploads at /content/uploads/.
func (h *Handler) RegisterPublicRoutes(r gin.IRouter) {
	r.GET("/content/uploads/*filepath", h.serve)
	r.HEAD("/content/uploads/*filepath", h.serve)
}

func (h *Handler) list(c *gin.Context) {
	assets, err := h.reg.List(models.MediaKind(c.Query("type")))
	if err != nil {
		response.Error(c, err)
		return
	}
	if assets == nil {
		assets = []*models.MediaAsset{}
	}
	response.OK(c, assets)
}

func (h *Handler) upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.Error(c, apperr.Internal("open upload", err))
		return
	}
	defer f.Close()
	kind := models.MediaKind(c.DefaultPostForm("type", c.Query("type")))
	asset, err := h.reg.Upload(c.Request.Context(), f, fh.Filename, kind)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, asset)
}

func (h *Handler) get(c *gin.Context) {
	a, err := h.reg.Get(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, a)
}

func (h *Handler) update(c *gin.Context) {
	var p MetaPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	propagate, _ := strconv.ParseBool(c.Query("propagate"))
	a, err := h.reg.Update(c.Request.Context(), c.Param("id"), p, propagate)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, a)
}

func (h *Handler) remove(c *gin.Context) {
	clean, _ := strconv.ParseBool(c.Query("clean"))
	usage, err := h.reg.Delete(c.Request.Context(), c.Param("id"), clean)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := gin.H{"deleted": true}
	if usage != nil {
		out["cleaned"] = usage.References
	}
	response.OK(c, out)
}

func (h *Handler) references(c *gin.Context) {
	u, err := h.reg.References(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, u)
}

func (h *Handler) propagate(c *gin.Context) {
	n, err := h.reg.PropagateMetadata(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"updated": n})
}

func (h *Handler) file(c *gin.Context) {
	rc, a, err := h.reg.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer rc.Close()
	c.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": a.Filename}))
	c.DataFromReader(http.StatusOK, a.Size, a.MimeType, rc, nil)
}

func (h *Handler) serve(c *gin.Context) {
	rel := strings.TrimPrefix(c.Param("filepath"), "/")
	rc, err := h.reg.OpenUpload(c.Request.Context(), rel)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		response.Error(c, err)
		return
	}
	defer rc.Close()
	ct := mime.TypeByExtension(path.Ext(rel))
	if ct == "" {
		ct = "application/octet-stream"
	}
	c.Header("Cache-Control", "public, max-age=31536000")
	c.Header("X-Content-Type-Options", "nosniff")
	if c.Request.Method == http.MethodHead {
		c.Header("Content-Type", ct)
		c.Status(http.StatusOK)
		return
	}
	c.DataFromReader(http.StatusOK, -1, ct, rc, nil)
}
