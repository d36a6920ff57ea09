package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/folio-cms/folio/internal/pkg/metrics"
)

// Metrics records request counts and latency by matched route.
func Metrics(c *metrics.Collector) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		c.RecordRequest(ctx.Request.Method, route, ctx.Writer.Status(), time.Since(start))
	}
}
