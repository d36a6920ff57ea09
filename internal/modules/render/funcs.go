package render

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/folio-cms/folio/internal/modules/markdown"
)

// funcMap is shared by every theme template.
func funcMap() template.FuncMap {
	return template.FuncMap{
		"asset": func(p string) string { return "/assets/" + strings.TrimPrefix(p, "/") },
		"date": func(v any, layout string) string {
			t, ok := toTime(v)
			if !ok {
				return ""
			}
			return t.Format(layout)
		},
		"iso": func(v any) string {
			t, ok := toTime(v)
			if !ok {
				return ""
			}
			return t.UTC().Format(time.RFC3339)
		},
		"safeHTML": func(s string) template.HTML { return template.HTML(s) },
		"lower":    strings.ToLower,
		"upper":    strings.ToUpper,
		"join": func(v any, sep string) string {
			switch list := v.(type) {
			case []string:
				return strings.Join(list, sep)
			case []any:
				parts := make([]string, len(list))
				for i, x := range list {
					parts[i] = fmt.Sprint(x)
				}
				return strings.Join(parts, sep)
			}
			return ""
		},
		"truncate": markdown.Truncate,
		"default": func(fallback, v any) any {
			if v == nil || v == "" {
				return fallback
			}
			return v
		},
	}
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		return parsed, err == nil
	}
	return time.Time{}, false
}
