package theme

import (
	"path/filepath"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/pkg/apperr"
	"github.com/folio-cms/folio/internal/pkg/fsutil"
	"github.com/folio-cms/folio/internal/pkg/slug"
)

// FileType names the kind of view being rendered.
type FileType string

const (
	FilePost     FileType = "post"
	FilePage     FileType = "page"
	FileHome     FileType = "home"
	FileList     FileType = "list"
	FileNotFound FileType = "404"
)

// HomepageSlug is the custom page merged into the home view when present.
const HomepageSlug = "homepage"

// Target identifies the view to resolve a template for.
type Target struct {
	Type   FileType
	Slug   string
	Custom bool
}

// Template is a resolved template file.
type Template struct {
	Theme models.Theme
	// Name is the path relative to the theme root, with forward slashes.
	Name string
	Path string
	// HomeCustom is set when the home view uses custom/homepage.html.
	HomeCustom bool
}

// ResolveTemplate walks the template chain for target in the active theme.
func (r *Registry) ResolveTemplate(target Target) (Template, error) {
	t, err := r.Active()
	if err != nil {
		return Template{}, err
	}
	root := filepath.FromSlash(t.Dir)
	exists := func(rel string) bool { return fsutil.Exists(filepath.Join(root, filepath.FromSlash(rel))) }
	pick := func(rel string, homeCustom bool) (Template, error) {
		if !exists(rel) {
			return Template{}, apperr.TemplateMissing(t.Name + "/" + rel)
		}
		return Template{Theme: t, Name: rel, Path: filepath.Join(root, filepath.FromSlash(rel)), HomeCustom: homeCustom}, nil
	}

	switch target.Type {
	case FilePage:
		if target.Custom {
			if rel := CustomDir + "/" + target.Slug + ".html"; slug.Valid(target.Slug) && exists(rel) {
				return pick(rel, false)
			}
		}
		return pick(TemplatesDir+"/page.html", false)
	case FilePost:
		return pick(TemplatesDir+"/post.html", false)
	case FileHome:
		if rel := CustomDir + "/" + HomepageSlug + ".html"; exists(rel) {
			return pick(rel, true)
		}
		if t.Manifest.Index != "" {
			return pick(TemplatesDir+"/"+t.Manifest.Index, false)
		}
		return pick(TemplatesDir+"/layout.html", false)
	case FileList:
		if rel := TemplatesDir + "/list.html"; exists(rel) {
			return pick(rel, false)
		}
		return pick(TemplatesDir+"/layout.html", false)
	case FileNotFound:
		return pick(TemplatesDir+"/404.html", false)
	}
	return Template{}, apperr.TemplateMissing(string(target.Type))
}
