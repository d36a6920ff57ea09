package models

import "time"

// Kind is the top-level content kind.
type Kind string

const (
	KindPost Kind = "post"
	KindPage Kind = "page"
)

// Valid reports whether k names a known kind.
func (k Kind) Valid() bool { return k == KindPost || k == KindPage }

// PageType distinguishes normal pages from custom-template pages.
type PageType string

const (
	PageNormal PageType = "normal"
	PageCustom PageType = "custom"
)

// Status is the publication state of an item.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// Valid reports whether s names a known status.
func (s Status) Valid() bool { return s == StatusDraft || s == StatusPublished }

// ContentItem is one markdown file with its frontmatter.
type ContentItem struct {
	ID             string     `json:"id"`
	Kind           Kind       `json:"kind"`
	Slug           string     `json:"slug"`
	Title          string     `json:"title"`
	Subtitle       string     `json:"subtitle,omitempty"`
	Status         Status     `json:"status"`
	Author         string     `json:"author,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	PublishDate    *time.Time `json:"publishDate,omitempty"`
	Excerpt        string     `json:"excerpt,omitempty"`
	SEODescription string     `json:"seoDescription,omitempty"`
	FeaturedImage  string     `json:"featuredImage,omitempty"`
	Gallery        []string   `json:"gallery,omitempty"`
	Body           string     `json:"body"`

	Category     string   `json:"category,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	RelatedPosts []string `json:"relatedPosts,omitempty"`

	PageType   PageType `json:"pageType,omitempty"`
	ParentPage string   `json:"parentPage,omitempty"`

	// Extra carries unknown frontmatter keys verbatim.
	Extra map[string]any `json:"extra,omitempty"`
}

// IsPublished reports whether the item is publicly visible.
func (c *ContentItem) IsPublished() bool { return c.Status == StatusPublished }

// IsCustom reports whether the item is a custom page. A missing pageType means normal.
func (c *ContentItem) IsCustom() bool {
	return c.Kind == KindPage && c.PageType == PageCustom
}

// EffectivePageType resolves the page type, defaulting to normal.
func (c *ContentItem) EffectivePageType() PageType {
	if c.PageType == PageCustom {
		return PageCustom
	}
	return PageNormal
}

// Clone returns a deep copy so snapshots stay immutable.
func (c *ContentItem) Clone() *ContentItem {
	if c == nil {
		return nil
	}
	out := *c
	if c.PublishDate != nil {
		t := *c.PublishDate
		out.PublishDate = &t
	}
	out.Gallery = cloneStrings(c.Gallery)
	out.Tags = cloneStrings(c.Tags)
	out.RelatedPosts = cloneStrings(c.RelatedPosts)
	if c.Extra != nil {
		out.Extra = make(map[string]any, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}

// Map flattens the item into a JSON-shaped map for projections and templates.
func (c *ContentItem) Map() map[string]any {
	m := map[string]any{
		"id":        c.ID,
		"kind":      string(c.Kind),
		"slug":      c.Slug,
		"title":     c.Title,
		"status":    string(c.Status),
		"createdAt": c.CreatedAt,
		"updatedAt": c.UpdatedAt,
		"body":      c.Body,
	}
	setIf := func(key, v string) {
		if v != "" {
			m[key] = v
		}
	}
	setIf("subtitle", c.Subtitle)
	setIf("author", c.Author)
	setIf("excerpt", c.Excerpt)
	setIf("seoDescription", c.SEODescription)
	setIf("featuredImage", c.FeaturedImage)
	setIf("category", c.Category)
	setIf("parentPage", c.ParentPage)
	if c.PublishDate != nil {
		m["publishDate"] = *c.PublishDate
	}
	if len(c.Gallery) > 0 {
		m["gallery"] = cloneStrings(c.Gallery)
	}
	if len(c.Tags) > 0 {
		m["tags"] = cloneStrings(c.Tags)
	}
	if len(c.RelatedPosts) > 0 {
		m["relatedPosts"] = cloneStrings(c.RelatedPosts)
	}
	if c.Kind == KindPage {
		m["pageType"] = string(c.EffectivePageType())
	}
	for k, v := range c.Extra {
		if _, taken := m[k]; !taken {
			m[k] = v
		}
	}
	return m
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
