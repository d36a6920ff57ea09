package content

import (
	"sort"
	"strings"
	"time"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/pkg/frontmatter"
)

var knownKeys = map[string]struct{}{
	"id": {}, "kind": {}, "title": {}, "subtitle": {}, "slug": {}, "status": {}, "author": {},
	"createdAt": {}, "updatedAt": {}, "publishDate": {}, "excerpt": {}, "seoDescription": {},
	"featuredImage": {}, "gallery": {}, "body": {}, "category": {}, "tags": {}, "relatedPosts": {},
	"pageType": {}, "parentPage": {},
}

// encodeItem serializes an item with a stable key order.
func encodeItem(item *models.ContentItem) ([]byte, error) {
	fields := []frontmatter.Field{
		{Key: "id", Value: item.ID, Quote: true},
		{Key: "title", Value: item.Title},
	}
	str := func(key, v string) {
		if v != "" {
			fields = append(fields, frontmatter.Field{Key: key, Value: v})
		}
	}
	list := func(key string, v []string) {
		if len(v) > 0 {
			fields = append(fields, frontmatter.Field{Key: key, Value: v})
		}
	}

	str("subtitle", item.Subtitle)
	str("slug", item.Slug)
	str("status", string(item.Status))
	str("author", item.Author)
	fields = append(fields,
		frontmatter.Field{Key: "createdAt", Value: item.CreatedAt},
		frontmatter.Field{Key: "updatedAt", Value: item.UpdatedAt},
	)
	if item.PublishDate != nil {
		fields = append(fields, frontmatter.Field{Key: "publishDate", Value: *item.PublishDate})
	}
	str("excerpt", item.Excerpt)
	str("seoDescription", item.SEODescription)
	str("featuredImage", item.FeaturedImage)
	list("gallery", item.Gallery)
	if item.Kind == models.KindPost {
		str("category", item.Category)
		list("tags", item.Tags)
		list("relatedPosts", item.RelatedPosts)
	} else {
		str("pageType", string(item.EffectivePageType()))
		str("parentPage", item.ParentPage)
	}

	extraKeys := make([]string, 0, len(item.Extra))
	for k := range item.Extra {
		if _, known := knownKeys[k]; !known {
			extraKeys = append(extraKeys, k)
		}
	}
	sort.Strings(extraKeys)
	for _, k := range extraKeys {
		fields = append(fields, frontmatter.Field{Key: k, Value: item.Extra[k]})
	}

	return frontmatter.Marshal(fields, item.Body)
}

// decodeItem parses a file. The directory decides kind and page type; the
// filename decides the slug; a missing id falls back to the slug.
func decodeItem(kind models.Kind, pageType models.PageType, fileSlug string, data []byte, modTime time.Time) (*models.ContentItem, error) {
	meta, body, err := frontmatter.Parse(data)
	if err != nil {
		return nil, err
	}

	item := &models.ContentItem{
		ID:             strings.TrimSpace(frontmatter.String(meta["id"])),
		Kind:           kind,
		Slug:           fileSlug,
		Title:          frontmatter.String(meta["title"]),
		Subtitle:       frontmatter.String(meta["subtitle"]),
		Status:         models.Status(frontmatter.String(meta["status"])),
		Author:         frontmatter.String(meta["author"]),
		Excerpt:        frontmatter.String(meta["excerpt"]),
		SEODescription: frontmatter.String(meta["seoDescription"]),
		FeaturedImage:  frontmatter.String(meta["featuredImage"]),
		Gallery:        frontmatter.Strings(meta["gallery"]),
		Body:           body,
	}
	if item.ID == "" {
		item.ID = fileSlug
	}
	if !item.Status.Valid() {
		item.Status = models.StatusDraft
	}

	item.CreatedAt = modTime.UTC().Truncate(time.Second)
	if t, ok := frontmatter.ParseTime(meta["createdAt"]); ok {
		item.CreatedAt = t
	}
	item.UpdatedAt = item.CreatedAt
	if t, ok := frontmatter.ParseTime(meta["updatedAt"]); ok {
		item.UpdatedAt = t
	}
	if t, ok := frontmatter.ParseTime(meta["publishDate"]); ok {
		item.PublishDate = &t
	}

	if kind == models.KindPost {
		item.Category = frontmatter.String(meta["category"])
		item.Tags = frontmatter.Strings(meta["tags"])
		item.RelatedPosts = relatedIDs(meta["relatedPosts"])
	} else {
		item.PageType = pageType
		item.ParentPage = frontmatter.String(meta["parentPage"])
	}

	for k, v := range meta {
		if _, known := knownKeys[k]; known {
			continue
		}
		if item.Extra == nil {
			item.Extra = make(map[string]any)
		}
		item.Extra[k] = v
	}
	return item, nil
}

// relatedIDs accepts both plain ids and {id: ...} objects.
func relatedIDs(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return frontmatter.Strings(v)
	}
	out := make([]string, 0, len(list))
	for _, entry := range list {
		switch e := entry.(type) {
		case map[string]any:
			if id := frontmatter.String(e["id"]); id != "" {
				out = append(out, id)
			}
		default:
			if id := frontmatter.String(e); id != "" {
				out = append(out, id)
			}
		}
	}
	return out
}
