package menu

import (
	"html"
	"html/template"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/modules/hooks"
)

// HTMLFilter post-processes generated menu markup; the argument is the current path.
var HTMLFilter = hooks.NewFilter[template.HTML, string]("menuHtml")

var (
	targetPattern = regexp.MustCompile(`^_(self|blank)$`)
	textPolicy    = bluemonday.StrictPolicy()
	linkPolicy    = func() *bluemonday.Policy {
		p := bluemonday.NewPolicy()
		p.AllowElements("nav", "ul", "li", "a")
		p.AllowAttrs("class").OnElements("nav", "ul", "li", "a")
		p.AllowAttrs("href").OnElements("a")
		p.AllowAttrs("target").Matching(targetPattern).OnElements("a")
		p.AllowAttrs("rel", "aria-current").OnElements("a")
		p.AllowStandardURLs()
		p.AllowRelativeURLs(true)
		p.RequireNoFollowOnLinks(false)
		return p
	}()
)

// HTML renders the menu as nested lists and runs the menuHtml filter.
// Items whose URL equals currentPath get the "current" class.
func (s *Service) HTML(bus *hooks.Bus, currentPath string) (template.HTML, error) {
	items, err := s.List()
	if err != nil {
		return "", err
	}
	out := Render(items, currentPath)
	if bus != nil {
		out = hooks.ApplyFilters(bus, HTMLFilter, out, currentPath)
	}
	return out, nil
}

// Render builds sanitized markup for items.
func Render(items []models.MenuItem, currentPath string) template.HTML {
	if len(items) == 0 {
		return ""
	}
	tree := children(items)
	var b strings.Builder
	b.WriteString(`<nav class="site-menu">`)
	writeLevel(&b, tree, "", currentPath, "menu", map[string]bool{})
	b.WriteString(`</nav>`)
	return template.HTML(linkPolicy.Sanitize(b.String()))
}

func writeLevel(b *strings.Builder, tree map[string][]models.MenuItem, parent, current, class string, seen map[string]bool) {
	b.WriteString(`<ul class="` + class + `">`)
	for _, item := range tree[parent] {
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		classes := []string{"menu-item"}
		if item.Class != "" {
			classes = append(classes, item.Class)
		}
		subs := tree[item.ID]
		if len(subs) > 0 {
			classes = append(classes, "has-children")
		}
		isCurrent := current != "" && item.URL == current
		if isCurrent {
			classes = append(classes, "current")
		}
		b.WriteString(`<li class="` + html.EscapeString(strings.Join(classes, " ")) + `">`)
		b.WriteString(`<a href="` + html.EscapeString(item.URL) + `"`)
		if item.Target == models.TargetBlank {
			b.WriteString(` target="_blank" rel="noopener noreferrer"`)
		}
		if isCurrent {
			b.WriteString(` aria-current="page"`)
		}
		b.WriteString(`>` + html.EscapeString(html.UnescapeString(textPolicy.Sanitize(item.Title))) + `</a>`)
		if len(subs) > 0 {
			writeLevel(b, tree, item.ID, current, "sub-menu", seen)
		}
		b.WriteString(`</li>`)
	}
	b.WriteString(`</ul>`)
}
