package content

import (
	"archive/zip"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/folio-cms/folio/internal/middleware"
	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/pkg/pagination"
	"github.com/folio-cms/folio/internal/pkg/response"
)

// Handler serves /posts and /pages.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, editorMW gin.HandlerFunc) {
	for _, kind := range []models.Kind{models.KindPost, models.KindPage} {
		kind := kind
		base := "/" + string(kind) + "s"
		rg.GET(base, func(c *gin.Context) { h.list(c, kind) })
		rg.GET(base+"/:id", func(c *gin.Context) { h.get(c, kind) })

		g := rg.Group(base, editorMW)
		g.POST("", func(c *gin.Context) { h.create(c, kind) })
		g.PUT("/:id", func(c *gin.Context) { h.update(c, kind) })
		g.DELETE("/:id", func(c *gin.Context) { h.remove(c, kind) })
	}
	rg.GET("/content/export", editorMW, h.export)
}

// ParseQuery reads list flags from the query string.
func ParseQuery(c *gin.Context) Query {
	p := pagination.FromContext(c)
	return Query{
		Status:          models.Status(strings.TrimSpace(c.Query("status"))),
		Limit:           p.Limit,
		Offset:          p.Offset,
		Tag:             strings.TrimSpace(c.Query("tag")),
		Category:        strings.TrimSpace(c.Query("category")),
		Parent:          strings.TrimSpace(c.Query("parent")),
		SummaryView:     pagination.ParseBool(c.Query("summaryView")),
		PreviewLength:   pagination.ParseInt(c.Query("previewLength"), 0),
		FrontmatterOnly: pagination.ParseBool(c.Query("frontmatterOnly")),
		Properties:      pagination.ParseList(c.Query("properties")),
	}
}

// GET /posts, /pages: anonymous callers only see published items.
func (h *Handler) list(c *gin.Context, kind models.Kind) {
	q := ParseQuery(c)
	if !middleware.IsEditable(c) {
		q.Status = models.StatusPublished
	} else if q.Status != "" && !q.Status.Valid() {
		response.BadRequest(c, "status must be draft or published")
		return
	}
	res, err := h.svc.Query(c.Request.Context(), kind, q)
	if err != nil {
		response.Error(c, err)
		return
	}
	if res.Items == nil {
		res.Items = []map[string]any{}
	}
	response.OK(c, res)
}

func (h *Handler) get(c *gin.Context, kind models.Kind) {
	item, err := h.svc.Get(c.Request.Context(), kind, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !item.IsPublished() && !middleware.IsEditable(c) {
		response.NotFound(c)
		return
	}
	response.OK(c, item)
}

func (h *Handler) create(c *gin.Context, kind models.Kind) {
	var in Input
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if in.Author == nil {
		if u := middleware.CurrentUser(c); u != nil {
			in.Author = Ptr(u.Username)
		}
	}
	item, err := h.svc.Create(c.Request.Context(), kind, in, writeOptions(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

func (h *Handler) update(c *gin.Context, kind models.Kind) {
	var in Input
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	item, err := h.svc.Update(c.Request.Context(), kind, c.Param("id"), in, writeOptions(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

func (h *Handler) remove(c *gin.Context, kind models.Kind) {
	id := c.Param("id")
	if err := h.svc.Delete(c.Request.Context(), kind, id); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"id": id, "deleted": true})
}

// GET /content/export: zip of every content file as stored on disk.
func (h *Handler) export(c *gin.Context) {
	items, err := h.svc.Index().All()
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("folio-content-%s.zip", time.Now().Format("2006-01-02"))
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Status(http.StatusOK)

	zw := zip.NewWriter(c.Writer)
	for _, item := range items {
		data, err := encodeItem(item)
		if err != nil {
			_ = c.Error(err)
			continue
		}
		rel := strings.TrimPrefix(h.svc.Store().pathFor(item), h.svc.Store().root)
		w, err := zw.Create(strings.TrimPrefix(strings.ReplaceAll(rel, "\\", "/"), "/"))
		if err != nil {
			_ = c.Error(err)
			break
		}
		_, _ = w.Write(data)
	}
	_ = zw.Close()
}

func writeOptions(c *gin.Context) WriteOptions {
	return WriteOptions{Overwrite: pagination.ParseBool(c.Query("overwrite"))}
}
