// Package render resolves public paths to content and executes theme templates.
package render

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/http"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/modules/content"
	"github.com/folio-cms/folio/internal/modules/hooks"
	"github.com/folio-cms/folio/internal/modules/markdown"
	"github.com/folio-cms/folio/internal/modules/theme"
	"github.com/folio-cms/folio/internal/pkg/apperr"
)

// ContentTypeHTML is sent with every rendered page.
const ContentTypeHTML = "text/html; charset=utf-8"

// Request is one page to render.
type Request struct {
	Path string
	// Preview makes drafts visible.
	Preview bool
}

// Page is a rendered response.
type Page struct {
	Status      int
	ContentType string
	Body        []byte
	// Location is set for redirects.
	Location string
	FileType theme.FileType
	ItemID   string
}

// SettingsSource supplies the current site settings.
type SettingsSource interface {
	Get() (models.Settings, error)
}

// MenuSource renders the site menu for a path.
type MenuSource interface {
	HTML(bus *hooks.Bus, currentPath string) (template.HTML, error)
}

// Options tunes a Renderer.
type Options struct {
	// Now is the clock behind Year and Now in template data.
	Now func() time.Time
	// ReloadTemplates parses templates on every render.
	ReloadTemplates bool
	Markdown        markdown.Renderer
}

// Renderer turns a path into HTML. Output depends only on the content, the
// settings, the menu, the active theme and the clock.
type Renderer struct {
	index     *content.Index
	themes    *theme.Registry
	settings  SettingsSource
	menu      MenuSource
	bus       *hooks.Bus
	md        markdown.Renderer
	now       func() time.Time
	templates *templateSet
	logger    *zap.Logger

	// OnRender, when set, observes every render.
	OnRender func(fileType string, status int, d time.Duration)
}

func NewRenderer(index *content.Index, themes *theme.Registry, settings SettingsSource, menu MenuSource, bus *hooks.Bus, logger *zap.Logger, opts Options) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Markdown == nil {
		opts.Markdown = markdown.New()
	}
	return &Renderer{
		index:     index,
		themes:    themes,
		settings:  settings,
		menu:      menu,
		bus:       bus,
		md:        opts.Markdown,
		now:       opts.Now,
		templates: newTemplateSet(opts.ReloadTemplates),
		logger:    logger.Named("Render"),
	}
}

// PurgeTemplates drops parsed templates, e.g. after a theme change.
func (r *Renderer) PurgeTemplates() { r.templates.Purge() }

type routeKind int

const (
	routeNone routeKind = iota
	routeHome
	routePost
	routePage
	routeCustom
	routeTag
	routeCategory
)

type route struct {
	kind routeKind
	slug string
}

func parseRoute(p string) route {
	p = path.Clean("/" + p)
	if p == "/" {
		return route{kind: routeHome}
	}
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	switch {
	case len(parts) == 1:
		return route{kind: routeCustom, slug: parts[0]}
	case len(parts) != 2:
		return route{}
	}
	switch parts[0] {
	case "post":
		return route{kind: routePost, slug: parts[1]}
	case "page":
		return route{kind: routePage, slug: parts[1]}
	case "tag":
		return route{kind: routeTag, slug: parts[1]}
	case "category":
		return route{kind: routeCategory, slug: parts[1]}
	}
	return route{}
}

// TagURL is the listing path for a tag.
func TagURL(tag string) string { return "/tag/" + tag }

// CategoryURL is the listing path for a category.
func CategoryURL(category string) string { return "/category/" + category }

// Render produces the page for req. Unknown or unpublished content yields the
// theme's 404 page with status 404; err is only returned for server faults.
func (r *Renderer) Render(ctx context.Context, req Request) (*Page, error) {
	start := time.Now()
	page, err := r.render(ctx, req)
	if r.OnRender != nil {
		status, ft := http.StatusInternalServerError, "error"
		if page != nil {
			status, ft = page.Status, string(page.FileType)
		}
		r.OnRender(ft, status, time.Since(start))
	}
	if err != nil {
		r.logger.Error("render failed", zap.String("path", req.Path), zap.Error(err))
	}
	return page, err
}

func (r *Renderer) render(ctx context.Context, req Request) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rt := parseRoute(req.Path)
	switch rt.kind {
	case routeHome:
		return r.home(req)
	case routePost:
		item, err := r.lookup(models.KindPost, rt.slug, req.Preview)
		if err != nil || item == nil {
			return r.notFoundOr(ctx, req, err)
		}
		return r.item(req, item)
	case routePage:
		item, err := r.lookup(models.KindPage, rt.slug, req.Preview)
		if err != nil || item == nil {
			return r.notFoundOr(ctx, req, err)
		}
		if item.IsCustom() {
			return redirect(URLFor(item)), nil
		}
		return r.item(req, item)
	case routeCustom:
		item, err := r.lookup(models.KindPage, rt.slug, req.Preview)
		if err != nil || item == nil {
			return r.notFoundOr(ctx, req, err)
		}
		if !item.IsCustom() {
			return redirect(URLFor(item)), nil
		}
		return r.item(req, item)
	case routeTag, routeCategory:
		return r.list(ctx, req, rt)
	}
	return r.NotFound(ctx, req)
}

func redirect(location string) *Page {
	return &Page{Status: http.StatusMovedPermanently, Location: location}
}

func (r *Renderer) notFoundOr(ctx context.Context, req Request, err error) (*Page, error) {
	if err != nil {
		return nil, err
	}
	return r.NotFound(ctx, req)
}

// lookup returns nil when the item is absent or not visible.
func (r *Renderer) lookup(kind models.Kind, sl string, preview bool) (*models.ContentItem, error) {
	item, err := r.index.GetBySlug(kind, sl)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil || item == nil {
		return nil, err
	}
	if !item.IsPublished() && !preview {
		return nil, nil
	}
	return item, nil
}

func (r *Renderer) base(req Request, ft theme.FileType) (*TemplateData, error) {
	cfg, err := r.settings.Get()
	if err != nil {
		return nil, err
	}
	active, err := r.themes.Active()
	if err != nil {
		return nil, err
	}
	p := path.Clean("/" + req.Path)
	var menuHTML template.HTML
	if r.menu != nil {
		if menuHTML, err = r.menu.HTML(r.bus, p); err != nil {
			r.logger.Warn("menu unavailable", zap.Error(err))
		}
	}
	now := r.now()
	return &TemplateData{
		Site:        cfg,
		Theme:       themeInfo(active),
		Description: cfg.SiteDescription,
		Path:        p,
		Metadata:    map[string]any{},
		Extra:       map[string]any{},
		MenuHTML:    menuHTML,
		FileType:    ft,
		Year:        now.Year(),
		Now:         now,
	}, nil
}

func (r *Renderer) body(item *models.ContentItem) (template.HTML, error) {
	html, err := r.md.Render(item.Body)
	if err != nil {
		return "", apperr.Internal("render markdown", err)
	}
	if r.bus != nil {
		html = hooks.ApplyFilters(r.bus, ContentFilter, html, item)
	}
	return html, nil
}

func (r *Renderer) fill(data *TemplateData, item *models.ContentItem) error {
	html, err := r.body(item)
	if err != nil {
		return err
	}
	meta := item.Map()
	delete(meta, "body")
	data.Content = html
	data.Metadata = meta
	for k, v := range item.Extra {
		data.Extra[k] = v
	}
	data.ContentID = item.ID
	data.Title = item.Title
	switch {
	case item.SEODescription != "":
		data.Description = item.SEODescription
	case item.Excerpt != "":
		data.Description = item.Excerpt
	default:
		data.Description = markdown.Summarize(item.Body, 160)
	}
	return nil
}

func (r *Renderer) item(req Request, item *models.ContentItem) (*Page, error) {
	ft := theme.FilePage
	if item.Kind == models.KindPost {
		ft = theme.FilePost
	}
	data, err := r.base(req, ft)
	if err != nil {
		return nil, err
	}
	if err := r.fill(data, item); err != nil {
		return nil, err
	}
	data.ContentRoute = true

	switch item.Kind {
	case models.KindPost:
		prev, next, err := r.index.Neighbors(item.ID)
		if err != nil {
			return nil, err
		}
		data.PrevPost, data.NextPost = linkTo(prev), linkTo(next)
		related, err := r.index.Related(item.ID)
		if err != nil {
			return nil, err
		}
		for _, rp := range related {
			if rp.Published || req.Preview {
				data.RelatedPosts = append(data.RelatedPosts, rp)
			}
		}
	case models.KindPage:
		data.IsCustomPage = item.IsCustom()
		children, err := r.index.Items(models.KindPage, content.Filter{Parent: item.Slug, Status: models.StatusPublished})
		if err != nil {
			return nil, err
		}
		data.Children = summaries(children)
	}
	return r.execute(req, theme.Target{Type: ft, Slug: item.Slug, Custom: item.IsCustom()}, data, http.StatusOK)
}

func (r *Renderer) home(req Request) (*Page, error) {
	data, err := r.base(req, theme.FileHome)
	if err != nil {
		return nil, err
	}
	posts, err := r.index.Items(models.KindPost, content.Filter{Status: models.StatusPublished})
	if err != nil {
		return nil, err
	}
	if n := data.Site.PostsPerPage; n > 0 && len(posts) > n {
		posts = posts[:n]
	}
	data.Posts = summaries(posts)

	tpl, err := r.themes.ResolveTemplate(theme.Target{Type: theme.FileHome})
	if err != nil {
		return nil, err
	}
	if tpl.HomeCustom {
		homepage, err := r.lookup(models.KindPage, theme.HomepageSlug, req.Preview)
		if err != nil {
			return nil, err
		}
		if homepage != nil && homepage.IsCustom() {
			if err := r.fill(data, homepage); err != nil {
				return nil, err
			}
			data.IsCustomPage = true
		}
	}
	return r.executeTemplate(req, tpl, data, http.StatusOK)
}

func (r *Renderer) list(ctx context.Context, req Request, rt route) (*Page, error) {
	filter := content.Filter{Status: models.StatusPublished}
	data, err := r.base(req, theme.FileList)
	if err != nil {
		return nil, err
	}
	data.Term = rt.slug
	if rt.kind == routeTag {
		filter.Tag = rt.slug
		data.TermType = "tag"
		data.Title = "#" + rt.slug
	} else {
		filter.Category = rt.slug
		data.TermType = "category"
		data.Title = rt.slug
	}
	posts, err := r.index.Items(models.KindPost, filter)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return r.NotFound(ctx, req)
	}
	data.Posts = summaries(posts)
	return r.execute(req, theme.Target{Type: theme.FileList}, data, http.StatusOK)
}

// NotFound renders the theme's 404 page. A theme without one gets a bare page.
func (r *Renderer) NotFound(_ context.Context, req Request) (*Page, error) {
	data, err := r.base(req, theme.FileNotFound)
	if err != nil {
		return nil, err
	}
	data.Title = "Page not found"
	page, err := r.execute(req, theme.Target{Type: theme.FileNotFound}, data, http.StatusNotFound)
	if errors.Is(err, apperr.ErrTemplateMissing) {
		return &Page{
			Status:      http.StatusNotFound,
			ContentType: ContentTypeHTML,
			Body:        []byte("<!doctype html><title>Not found</title><h1>Not found</h1>"),
			FileType:    theme.FileNotFound,
		}, nil
	}
	return page, err
}

func (r *Renderer) execute(req Request, target theme.Target, data *TemplateData, status int) (*Page, error) {
	tpl, err := r.themes.ResolveTemplate(target)
	if err != nil {
		return nil, err
	}
	return r.executeTemplate(req, tpl, data, status)
}

func (r *Renderer) executeTemplate(req Request, tpl theme.Template, data *TemplateData, status int) (*Page, error) {
	if r.bus != nil {
		rc := RenderContext{Request: req, Template: tpl.Name}
		if filtered := hooks.ApplyFilters(r.bus, TemplateDataFilter, data, rc); filtered != nil {
			data = filtered
		}
	}
	t, err := r.templates.load(tpl)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, tpl.Name, data); err != nil {
		return nil, apperr.Internal("execute template "+tpl.Theme.Name+"/"+tpl.Name, err)
	}
	return &Page{
		Status:      status,
		ContentType: ContentTypeHTML,
		Body:        buf.Bytes(),
		FileType:    data.FileType,
		ItemID:      data.ContentID,
	}, nil
}

func summaries(items []*models.ContentItem) []PostSummary {
	out := make([]PostSummary, 0, len(items))
	for _, item := range items {
		summary := item.Excerpt
		if summary == "" {
			summary = markdown.Summarize(item.Body, 0)
		}
		out = append(out, PostSummary{
			ID:            item.ID,
			Title:         item.Title,
			Slug:          item.Slug,
			URL:           URLFor(item),
			Summary:       summary,
			Date:          DisplayDate(item),
			Tags:          item.Tags,
			Category:      item.Category,
			FeaturedImage: item.FeaturedImage,
		})
	}
	return out
}
