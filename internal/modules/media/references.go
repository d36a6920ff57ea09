package media

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/modules/content"
)

// Reference fields.
const (
	FieldFeaturedImage = "featuredImage"
	FieldGallery       = "gallery"
	FieldBody          = "body"
)

// Usage lists the content items pointing at an asset.
type Usage struct {
	Referenced bool                    `json:"referenced"`
	References []models.MediaReference `json:"references"`
}

func matches(a *models.MediaAsset, v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && (v == a.URL || v == a.ID)
}

// embedPattern matches ![alt](url) and ![alt](url "title") for one URL.
func embedPattern(url string) *regexp.Regexp {
	return regexp.MustCompile(`!\[([^\]]*)\]\(\s*` + regexp.QuoteMeta(url) + `(?:\s+"([^"]*)")?\s*\)`)
}

func fieldsOf(a *models.MediaAsset, item *models.ContentItem) []string {
	var fields []string
	if matches(a, item.FeaturedImage) {
		fields = append(fields, FieldFeaturedImage)
	}
	for _, g := range item.Gallery {
		if matches(a, g) {
			fields = append(fields, FieldGallery)
			break
		}
	}
	if strings.Contains(item.Body, a.URL) {
		fields = append(fields, FieldBody)
	}
	return fields
}

// References scans all content, drafts included, for uses of asset id.
func (r *Registry) References(id string) (*Usage, error) {
	a, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return r.usage(a)
}

func (r *Registry) usage(a *models.MediaAsset) (*Usage, error) {
	items, err := r.index.All()
	if err != nil {
		return nil, err
	}
	u := &Usage{References: []models.MediaReference{}}
	for _, item := range items {
		fields := fieldsOf(a, item)
		if len(fields) == 0 {
			continue
		}
		u.References = append(u.References, models.MediaReference{
			Type:   item.Kind,
			ID:     item.ID,
			Title:  item.Title,
			Slug:   item.Slug,
			Fields: fields,
		})
	}
	u.Referenced = len(u.References) > 0
	return u, nil
}

// strip removes every reference to a from content.
func (r *Registry) strip(ctx context.Context, a *models.MediaAsset) (*Usage, error) {
	u, err := r.usage(a)
	if err != nil || !u.Referenced {
		return u, err
	}
	items, err := r.index.All()
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.ContentItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	embed := embedPattern(a.URL)
	for _, ref := range u.References {
		item := byID[ref.ID]
		var in content.Input
		if matches(a, item.FeaturedImage) {
			in.FeaturedImage = content.Ptr("")
		}
		gallery := make([]string, 0, len(item.Gallery))
		for _, g := range item.Gallery {
			if !matches(a, g) {
				gallery = append(gallery, g)
			}
		}
		if len(gallery) != len(item.Gallery) {
			in.Gallery = &gallery
		}
		if body := embed.ReplaceAllString(item.Body, ""); body != item.Body {
			in.Body = &body
		}
		if _, err := r.writer.Update(ctx, item.Kind, item.ID, in, content.WriteOptions{}); err != nil {
			return nil, err
		}
		r.logger.Debug("media reference removed", zap.String("item", item.ID), zap.Strings("fields", ref.Fields))
	}
	return u, nil
}

func altText(s string) string {
	return strings.NewReplacer("[", "", "]", "", "\n", " ", "\r", "").Replace(s)
}

// propagate rewrites embeds of a with its alt and caption.
func (r *Registry) propagate(ctx context.Context, a *models.MediaAsset) (int, error) {
	items, err := r.index.All()
	if err != nil {
		return 0, err
	}
	embed := embedPattern(a.URL)
	repl := "![" + altText(a.Alt) + "](" + a.URL
	if a.Caption != "" {
		repl += ` "` + strings.ReplaceAll(a.Caption, `"`, "'") + `"`
	}
	repl += ")"
	n := 0
	for _, item := range items {
		body := embed.ReplaceAllLiteralString(item.Body, repl)
		if body == item.Body {
			continue
		}
		if _, err := r.writer.Update(ctx, item.Kind, item.ID, content.Input{Body: &body}, content.WriteOptions{}); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		r.logger.Info("media metadata propagated", zap.String("file", a.URL), zap.Int("items", n))
	}
	return n, nil
}
