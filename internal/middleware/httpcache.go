package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/folio-cms/folio/internal/pkg/cache"
)

const (
	// CacheHeader reports hit or miss on cacheable public responses.
	CacheHeader             = "X-Folio-Cache"
	defaultHTTPCacheMaxBody = 2 << 20
)

// CachePolicy reports, per request, whether caching is on and for how long.
// It is consulted on every request so settings changes apply immediately.
type CachePolicy func() (enabled bool, ttl time.Duration)

type HTTPCacheOptions struct {
	Policy       CachePolicy
	SkipPaths    []string
	MaxBodyBytes int
	// OnLookup observes hits and misses.
	OnLookup func(hit bool)
}

type cachedHTTPResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body"`
}

type cacheBodyWriter struct {
	gin.ResponseWriter
	body         []byte
	maxBodyBytes int
	overflow     bool
}

func (w *cacheBodyWriter) Write(data []byte) (int, error) {
	w.capture(data)
	return w.ResponseWriter.Write(data)
}

func (w *cacheBodyWriter) WriteString(s string) (int, error) {
	w.capture([]byte(s))
	return w.ResponseWriter.WriteString(s)
}

func (w *cacheBodyWriter) capture(data []byte) {
	if w.maxBodyBytes <= 0 || w.overflow || len(data) == 0 {
		return
	}
	remaining := w.maxBodyBytes - len(w.body)
	if remaining <= 0 {
		w.overflow = true
		return
	}
	if len(data) > remaining {
		w.body = append(w.body, data[:remaining]...)
		w.overflow = true
		return
	}
	w.body = append(w.body, data...)
}

// HTTPCache serves anonymous GET requests for public pages from store.
// Signed-in users always get a fresh render.
func HTTPCache(store cache.Store, opts HTTPCacheOptions) gin.HandlerFunc {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultHTTPCacheMaxBody
	}
	return func(c *gin.Context) {
		if store == nil || opts.Policy == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}
		enabled, ttl := opts.Policy()
		if !enabled || shouldSkipCachePath(c.Request.URL.Path, opts.SkipPaths) {
			c.Next()
			return
		}
		if IsAuthenticated(c) {
			c.Next()
			setPrivateCacheHeader(c.Writer, c.Writer.Status())
			return
		}

		key := c.Request.URL.RequestURI()
		if payload, ok := readCachedResponse(c.Request.Context(), store, key); ok {
			observe(opts.OnLookup, true)
			c.Header(CacheHeader, "hit")
			c.Data(payload.Status, payload.ContentType, payload.Body)
			c.Abort()
			return
		}
		observe(opts.OnLookup, false)

		buffer := &cacheBodyWriter{ResponseWriter: c.Writer, maxBodyBytes: opts.MaxBodyBytes}
		c.Writer = buffer
		c.Header(CacheHeader, "miss")
		c.Next()

		status := c.Writer.Status()
		if !isCacheableResponse(status, c.Writer.Header()) || buffer.overflow || len(buffer.body) == 0 {
			return
		}
		raw, err := json.Marshal(cachedHTTPResponse{
			Status:      status,
			ContentType: c.Writer.Header().Get("Content-Type"),
			Body:        buffer.body,
		})
		if err != nil {
			return
		}
		_ = store.Set(c.Request.Context(), key, raw, ttl)
	}
}

func observe(fn func(bool), hit bool) {
	if fn != nil {
		fn(hit)
	}
}

func readCachedResponse(ctx context.Context, store cache.Store, key string) (cachedHTTPResponse, bool) {
	raw, ok := store.Get(ctx, key)
	if !ok || len(raw) == 0 {
		return cachedHTTPResponse{}, false
	}
	var payload cachedHTTPResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return cachedHTTPResponse{}, false
	}
	if payload.Status <= 0 {
		payload.Status = http.StatusOK
	}
	if payload.ContentType == "" {
		payload.ContentType = "text/html; charset=utf-8"
	}
	return payload, true
}

func shouldSkipCachePath(path string, patterns []string) bool {
	for _, pattern := range patterns {
		p := strings.TrimSpace(pattern)
		if p == "" {
			continue
		}
		if strings.HasSuffix(p, "*") {
			if strings.HasPrefix(path, strings.TrimSuffix(p, "*")) {
				return true
			}
			continue
		}
		if path == p {
			return true
		}
	}
	return false
}

// Only 200s are stored; 404 pages are cheap and must disappear once content is published.
func isCacheableResponse(status int, headers http.Header) bool {
	if status != http.StatusOK {
		return false
	}
	cacheControl := strings.ToLower(headers.Get("Cache-Control"))
	return !strings.Contains(cacheControl, "no-cache") &&
		!strings.Contains(cacheControl, "no-store") &&
		!strings.Contains(cacheControl, "private")
}

func setPrivateCacheHeader(w gin.ResponseWriter, status int) {
	if status != http.StatusOK {
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=0, no-cache, no-store, must-revalidate")
}
