// Package sitemap lists every public URL for search engines.
package sitemap

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/modules/content"
	"github.com/folio-cms/folio/internal/modules/render"
)

// SettingsSource supplies the site settings.
type SettingsSource interface {
	Get() (models.Settings, error)
}

type Builder struct {
	index    *content.Index
	settings SettingsSource
	logger   *zap.Logger
}

func NewBuilder(index *content.Index, settings SettingsSource, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{index: index, settings: settings, logger: logger.Named("Sitemap")}
}

func (b *Builder) RegisterRoutes(r gin.IRouter) {
	r.GET("/sitemap.xml", func(c *gin.Context) {
		data, err := b.Build()
		if err != nil {
			b.logger.Error("sitemap failed", zap.Error(err))
			c.String(http.StatusInternalServerError, "error generating sitemap")
			return
		}
		c.Data(http.StatusOK, "application/xml; charset=utf-8", data)
	})
}

// URL is one sitemap entry.
type URL struct {
	Loc        string
	LastMod    time.Time
	ChangeFreq string
	Priority   float64
}

// URLs lists home, published posts and pages, then tag and category listings.
func (b *Builder) URLs() ([]URL, error) {
	cfg, err := b.settings.Get()
	if err != nil {
		return nil, err
	}
	base := strings.TrimRight(cfg.SiteURL, "/")
	items, err := b.index.All()
	if err != nil {
		return nil, err
	}

	var newest time.Time
	var entries []URL
	for _, kind := range []models.Kind{models.KindPost, models.KindPage} {
		for _, item := range items {
			if item.Kind != kind || !item.IsPublished() {
				continue
			}
			if item.UpdatedAt.After(newest) {
				newest = item.UpdatedAt
			}
			u := URL{Loc: base + render.URLFor(item), LastMod: item.UpdatedAt, ChangeFreq: "weekly", Priority: 0.8}
			if kind == models.KindPage {
				u.ChangeFreq, u.Priority = "monthly", 0.5
			}
			entries = append(entries, u)
		}
	}
	urls := append([]URL{{Loc: base + "/", LastMod: newest, ChangeFreq: "daily", Priority: 1.0}}, entries...)

	tags, err := b.index.Tags()
	if err != nil {
		return nil, err
	}
	for _, t := range tags {
		urls = append(urls, URL{Loc: base + render.TagURL(t.Slug), ChangeFreq: "weekly", Priority: 0.3})
	}
	categories, err := b.index.Categories()
	if err != nil {
		return nil, err
	}
	for _, t := range categories {
		urls = append(urls, URL{Loc: base + render.CategoryURL(t.Slug), ChangeFreq: "weekly", Priority: 0.3})
	}
	return urls, nil
}

// Build renders the sitemap document.
func (b *Builder) Build() ([]byte, error) {
	urls, err := b.URLs()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
`)
	for _, u := range urls {
		buf.WriteString("  <url>\n")
		fmt.Fprintf(&buf, "    <loc>%s</loc>\n", escapeXML(u.Loc))
		if !u.LastMod.IsZero() {
			fmt.Fprintf(&buf, "    <lastmod>%s</lastmod>\n", u.LastMod.UTC().Format("2006-01-02"))
		}
		fmt.Fprintf(&buf, "    <changefreq>%s</changefreq>\n    <priority>%.1f</priority>\n  </url>\n", u.ChangeFreq, u.Priority)
	}
	buf.WriteString("</urlset>\n")
	return buf.Bytes(), nil
}

func escapeXML(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
