// Package feed builds the RSS and Atom feeds of published posts.
package feed

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
	"github.com/folio-cms/folio/internal/modules/markdown"
	"github.com/folio-cms/folio/internal/modules/render"
)

// MaxItems caps the number of posts in a feed.
const MaxItems = 20

// SettingsSource supplies the site settings.
type SettingsSource interface {
	Get() (models.Settings, error)
}

// Builder renders feeds from the content index. Dates come from the content,
// so the output is stable for unchanged content.
type Builder struct {
	index    *content.Index
	settings SettingsSource
	md       markdown.Renderer
	logger   *zap.Logger
}

func NewBuilder(index *content.Index, settings SettingsSource, md markdown.Renderer, logger *zap.Logger) *Builder {
	if md == nil {
		md = markdown.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{index: index, settings: settings, md: md, logger: logger.Named("Feed")}
}

// RegisterRoutes mounts RSS and Atom feed endpoints.
func (b *Builder) RegisterRoutes(r gin.IRouter) {
	r.GET("/feed.xml", func(c *gin.Context) { b.serve(c, false) })
	r.GET("/atom.xml", func(c *gin.Context) { b.serve(c, true) })
}

func (b *Builder) serve(c *gin.Context, atom bool) {
	build, contentType := b.RSS, "application/rss+xml; charset=utf-8"
	if atom {
		build, contentType = b.Atom, "application/atom+xml; charset=utf-8"
	}
	data, err := build()
	if err != nil {
		b.logger.Error("feed failed", zap.Error(err))
		c.String(http.StatusInternalServerError, "feed error")
		return
	}
	c.Data(http.StatusOK, contentType, data)
}

type feedItem struct {
	Title   string
	Link    string
	GUID    string
	PubDate time.Time
	Updated time.Time
	Summary string
	Content string
	Tags    []string
}

type channel struct {
	Title       string
	Description string
	Link        string
	Updated     time.Time
	Items       []feedItem
}

func (b *Builder) channel() (channel, error) {
	cfg, err := b.settings.Get()
	if err != nil {
		return channel{}, err
	}
	posts, err := b.index.Items(models.KindPost, content.Filter{Status: models.StatusPublished})
	if err != nil {
		return channel{}, err
	}
	if len(posts) > MaxItems {
		posts = posts[:MaxItems]
	}
	base := strings.TrimRight(cfg.SiteURL, "/")
	ch := channel{Title: cfg.SiteTitle, Description: cfg.SiteDescription, Link: base + "/"}
	for _, p := range posts {
		html, err := b.md.Render(p.Body)
		if err != nil {
			return channel{}, err
		}
		summary := p.Excerpt
		if summary == "" {
			summary = markdown.Summarize(p.Body, 0)
		}
		ch.Items = append(ch.Items, feedItem{
			Title:   p.Title,
			Link:    base + render.URLFor(p),
			GUID:    p.ID,
			PubDate: render.DisplayDate(p),
			Updated: p.UpdatedAt,
			Summary: summary,
			Content: string(html),
			Tags:    p.Tags,
		})
		if p.UpdatedAt.After(ch.Updated) {
			ch.Updated = p.UpdatedAt
		}
	}
	return ch, nil
}

// RSS renders an RSS 2.0 document.
func (b *Builder) RSS() ([]byte, error) {
	ch, err := b.channel()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/">
  <channel>
    <title>%s</title>
    <link>%s</link>
    <description>%s</description>
`, escapeXML(ch.Title), escapeXML(ch.Link), escapeXML(ch.Description))
	if !ch.Updated.IsZero() {
		fmt.Fprintf(&buf, "    <lastBuildDate>%s</lastBuildDate>\n", ch.Updated.UTC().Format(time.RFC1123Z))
	}
	for _, item := range ch.Items {
		fmt.Fprintf(&buf, `    <item>
      <title>%s</title>
      <link>%s</link>
      <guid isPermaLink="false">%s</guid>
      <pubDate>%s</pubDate>
      <description>%s</description>
`, escapeXML(item.Title), escapeXML(item.Link), escapeXML(item.GUID),
			item.PubDate.UTC().Format(time.RFC1123Z), escapeXML(item.Summary))
		for _, tag := range item.Tags {
			fmt.Fprintf(&buf, "      <category>%s</category>\n", escapeXML(tag))
		}
		fmt.Fprintf(&buf, "      <content:encoded>%s</content:encoded>\n    </item>\n", cdata(item.Content))
	}
	buf.WriteString("  </channel>\n</rss>\n")
	return buf.Bytes(), nil
}

// Atom renders an Atom 1.0 document.
func (b *Builder) Atom() ([]byte, error) {
	ch, err := b.channel()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>%s</title>
  <subtitle>%s</subtitle>
  <link href="%s"/>
  <updated>%s</updated>
  <id>%s</id>
`, escapeXML(ch.Title), escapeXML(ch.Description), escapeXML(ch.Link),
		ch.Updated.UTC().Format(time.RFC3339), escapeXML(ch.Link))
	for _, item := range ch.Items {
		fmt.Fprintf(&buf, `  <entry>
    <title>%s</title>
    <link href="%s"/>
    <id>urn:uuid:%s</id>
    <published>%s</published>
    <updated>%s</updated>
    <summary>%s</summary>
    <content type="html">%s</content>
  </entry>
`, escapeXML(item.Title), escapeXML(item.Link), escapeXML(item.GUID),
			item.PubDate.UTC().Format(time.RFC3339), item.Updated.UTC().Format(time.RFC3339),
			escapeXML(item.Summary), cdata(item.Content))
	}
	buf.WriteString("</feed>\n")
	return buf.Bytes(), nil
}

func escapeXML(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// cdata wraps s, splitting any "]]>" so the section stays well formed.
func cdata(s string) string {
	return "<![CDATA[" + strings.ReplaceAll(s, "]]>", "]]]]><![CDATA[>") + "]]>"
}
