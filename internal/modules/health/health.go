// Package health exposes liveness checks and the admin view of background jobs
// and log files.
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/folio-cms/folio/internal/pkg/apperr"
	"github.com/folio-cms/folio/internal/pkg/cron"
	"github.com/folio-cms/folio/internal/pkg/nativelog"
	"github.com/folio-cms/folio/internal/pkg/response"
)

// CheckTimeout bounds a single readiness probe.
const CheckTimeout = 3 * time.Second

// Check probes one dependency.
type Check func(ctx context.Context) error

type logItem struct {
	Size     string `json:"size"`
	Filename string `json:"filename"`
	Created  int64  `json:"created"`
}

type Handler struct {
	sched  *cron.Scheduler
	logDir string
	now    func() time.Time

	mu     sync.RWMutex
	names  []string
	checks map[string]Check
}

// NewHandler serves job state from sched and log files from logDir (may be empty).
func NewHandler(sched *cron.Scheduler, logDir string) *Handler {
	return &Handler{sched: sched, logDir: logDir, now: time.Now, checks: map[string]Check{}}
}

// AddCheck registers a named probe for /healthz.
func (h *Handler) AddCheck(name string, fn Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.checks[name]; !ok {
		h.names = append(h.names, name)
	}
	h.checks[name] = fn
}

// Probe runs every check and reports each outcome.
func (h *Handler) Probe(ctx context.Context) (map[string]string, bool) {
	h.mu.RLock()
	names := append([]string(nil), h.names...)
	checks := make([]Check, len(names))
	for i, n := range names {
		checks[i] = h.checks[n]
	}
	h.mu.RUnlock()

	out := make(map[string]string, len(names))
	healthy := true
	for i, name := range names {
		cctx, cancel := context.WithTimeout(ctx, CheckTimeout)
		err := checks[i](cctx)
		cancel()
		if err != nil {
			out[name] = err.Error()
			healthy = false
			continue
		}
		out[name] = "ok"
	}
	return out, healthy
}

// RegisterRoutes mounts the public liveness endpoint.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/healthz", func(c *gin.Context) {
		checks, ok := h.Probe(c.Request.Context())
		status, code := "ok", http.StatusOK
		if !ok {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "checks": checks})
	})
}

// RegisterAdminRoutes mounts job and log inspection under /health.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup, adminMW gin.HandlerFunc) {
	admin := rg.Group("/health", adminMW)

	jobs := admin.Group("/cron")
	jobs.GET("", func(c *gin.Context) {
		response.OK(c, h.sched.Reports())
	})
	jobs.POST("/run/:name", func(c *gin.Context) {
		if err := h.sched.Trigger(c.Request.Context(), c.Param("name")); err != nil {
			response.Error(c, err)
			return
		}
		response.Accepted(c, gin.H{"message": "job triggered"})
	})
	jobs.GET("/task/:name", func(c *gin.Context) {
		result, err := h.sched.Report(c.Param("name"))
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, result)
	})

	logs := admin.Group("/log")
	logs.GET("", h.listLogs)
	logs.GET("/:filename", h.readLog)
	logs.DELETE("/:filename", h.deleteLog)
}

func (h *Handler) listLogs(c *gin.Context) {
	if h.logDir == "" {
		response.OK(c, []logItem{})
		return
	}
	entries, err := os.ReadDir(h.logDir)
	if errors.Is(err, os.ErrNotExist) {
		response.OK(c, []logItem{})
		return
	}
	if err != nil {
		response.Error(c, apperr.Internal("read log dir", err))
		return
	}
	items := make([]logItem, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		items = append(items, logItem{
			Size:     formatByteSize(info.Size()),
			Filename: entry.Name(),
			Created:  info.ModTime().UnixMilli(),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Created > items[j].Created })
	response.OK(c, items)
}

func (h *Handler) logPath(c *gin.Context) (string, bool) {
	name := filepath.Base(c.Param("filename"))
	if h.logDir == "" || !strings.HasSuffix(name, ".log") || name != c.Param("filename") {
		response.NotFound(c)
		return "", false
	}
	return filepath.Join(h.logDir, name), true
}

func (h *Handler) readLog(c *gin.Context) {
	p, ok := h.logPath(c)
	if !ok {
		return
	}
	data, err := os.ReadFile(p)
	if err != nil {
		response.NotFound(c)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}

// deleteLog truncates today's file, which is still being written, and removes older ones.
func (h *Handler) deleteLog(c *gin.Context) {
	p, ok := h.logPath(c)
	if !ok {
		return
	}
	var err error
	if filepath.Base(p) == nativelog.TodayFilename(h.now()) {
		err = os.Truncate(p, 0)
	} else {
		err = os.Remove(p)
	}
	if errors.Is(err, os.ErrNotExist) {
		response.NotFound(c)
		return
	}
	if err != nil {
		response.Error(c, apperr.Internal("delete log", err))
		return
	}
	response.OK(c, gin.H{"deleted": filepath.Base(p)})
}

func formatByteSize(size int64) string {
	switch {
	case size >= 1<<20:
		return fmt.Sprintf("%.2f MB", float64(size)/(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.2f KB", float64(size)/(1<<10))
	default:
		return fmt.Sprintf("%d B", size)
	}
}
