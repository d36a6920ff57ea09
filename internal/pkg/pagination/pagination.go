package pagination

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxLimit caps a single page.
const MaxLimit = 500

// Query holds parsed limit/offset parameters. Limit 0 means no limit.
type Query struct {
	Limit  int
	Offset int
}

// FromContext extracts and clamps limit/offset from the request.
func FromContext(c *gin.Context) Query {
	limit := ParseInt(c.Query("limit"), 0)
	offset := ParseInt(c.Query("offset"), 0)
	if limit < 0 {
		limit = 0
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return Query{Limit: limit, Offset: offset}
}

// ParseInt parses raw or returns fallback.
func ParseInt(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return n
}

// ParseBool converts common truthy query-string values to bool.
func ParseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// ParseList splits a comma-separated parameter.
func ParseList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
