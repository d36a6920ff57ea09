package content

import (
	"strings"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/modules/markdown"
)

// Query is the list query accepted by Posts and Pages.
type Query struct {
	Status          models.Status
	Limit           int
	Offset          int
	Tag             string
	Category        string
	Parent          string
	SummaryView     bool
	PreviewLength   int
	FrontmatterOnly bool
	Properties      []string
}

// Result is one page of projected items.
type Result struct {
	Items  []map[string]any `json:"items"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// Posts runs q over posts.
func (ix *Index) Posts(q Query) (Result, error) { return ix.query(models.KindPost, q) }

// Pages runs q over pages.
func (ix *Index) Pages(q Query) (Result, error) { return ix.query(models.KindPage, q) }

func (ix *Index) query(kind models.Kind, q Query) (Result, error) {
	items, err := ix.Items(kind, Filter{
		Status:   q.Status,
		Tag:      q.Tag,
		Category: q.Category,
		Parent:   q.Parent,
	})
	if err != nil {
		return Result{}, err
	}
	res := Result{Total: len(items), Limit: q.Limit, Offset: q.Offset}
	items = paginate(items, q.Limit, q.Offset)
	res.Items = make([]map[string]any, len(items))
	for i, item := range items {
		res.Items[i] = Project(item, q)
	}
	return res, nil
}

func paginate(items []*models.ContentItem, limit, offset int) []*models.ContentItem {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// Project shapes one item according to q's view flags.
func Project(item *models.ContentItem, q Query) map[string]any {
	m := item.Map()
	if q.SummaryView {
		m["summary"] = markdown.Summarize(item.Body, q.PreviewLength)
		delete(m, "body")
	}
	if q.FrontmatterOnly {
		delete(m, "body")
	}
	if len(q.Properties) == 0 {
		return m
	}
	keep := map[string]bool{"id": true}
	for _, p := range q.Properties {
		if p = strings.TrimSpace(p); p != "" {
			keep[p] = true
		}
	}
	out := make(map[string]any, len(keep))
	for k, v := range m {
		if keep[k] {
			out[k] = v
		}
	}
	return out
}
