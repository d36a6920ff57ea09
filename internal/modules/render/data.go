package render

import (
	"html/template"
	"time"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/modules/content"
	"github.com/folio-cms/folio/internal/modules/hooks"
	"github.com/folio-cms/folio/internal/modules/theme"
)

// TemplateData is what every theme template receives.
type TemplateData struct {
	Site        models.Settings
	Theme       ThemeInfo
	Title       string
	Description string
	// Path is the request path the page is rendered for.
	Path string

	Content  template.HTML
	Metadata map[string]any
	Extra    map[string]any
	MenuHTML template.HTML

	ContentRoute bool
	ContentID    string
	FileType     theme.FileType
	IsCustomPage bool
	Year         int
	Now          time.Time

	PrevPost     *PostLink
	NextPost     *PostLink
	RelatedPosts []content.RelatedPost
	Children     []PostSummary
	Posts        []PostSummary

	// Term and TermType describe tag and category listings.
	Term     string
	TermType string
}

// ThemeInfo exposes manifest details to templates.
type ThemeInfo struct {
	Name    string
	Version string
	Colors  map[string]string
}

// PostLink is a minimal reference to a neighbouring item.
type PostLink struct {
	ID    string
	Title string
	Slug  string
	URL   string
}

// PostSummary is one entry of a listing.
type PostSummary struct {
	ID            string
	Title         string
	Slug          string
	URL           string
	Summary       string
	Date          time.Time
	Tags          []string
	Category      string
	FeaturedImage string
}

// RenderContext is passed alongside template data to filters.
type RenderContext struct {
	Request
	// Template is the resolved file relative to the theme root, e.g. templates/post.html.
	Template string
}

// TemplateDataFilter lets extensions adjust data once the template is resolved.
var TemplateDataFilter = hooks.NewFilter[*TemplateData, RenderContext]("templateData")

// ContentFilter post-processes the rendered body of an item.
var ContentFilter = hooks.NewFilter[template.HTML, *models.ContentItem]("contentHtml")

// URLFor is the public path of an item.
func URLFor(item *models.ContentItem) string {
	switch {
	case item.Kind == models.KindPost:
		return "/post/" + item.Slug
	case item.IsCustom():
		return "/" + item.Slug
	default:
		return "/page/" + item.Slug
	}
}

func linkTo(item *models.ContentItem) *PostLink {
	if item == nil {
		return nil
	}
	return &PostLink{ID: item.ID, Title: item.Title, Slug: item.Slug, URL: URLFor(item)}
}

// DisplayDate is publishDate when set, otherwise createdAt.
func DisplayDate(item *models.ContentItem) time.Time {
	if item.PublishDate != nil {
		return *item.PublishDate
	}
	return item.CreatedAt
}

func themeInfo(t models.Theme) ThemeInfo {
	colors := make(map[string]string, len(t.Manifest.Colors))
	for _, c := range t.Manifest.Colors {
		colors[c.Name] = c.Value
	}
	return ThemeInfo{Name: t.Name, Version: t.Manifest.Version, Colors: colors}
}
