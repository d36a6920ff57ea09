package render

import (
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/folio-cms/folio/internal/modules/theme"
	"github.com/folio-cms/folio/internal/pkg/apperr"
)

// templateSet parses theme templates together with their partials and keeps
// the result until Purge. With reload set every lookup parses again.
type templateSet struct {
	reload bool

	mu     sync.Mutex
	parsed map[string]*template.Template
}

func newTemplateSet(reload bool) *templateSet {
	return &templateSet{reload: reload, parsed: map[string]*template.Template{}}
}

func (s *templateSet) Purge() {
	s.mu.Lock()
	s.parsed = map[string]*template.Template{}
	s.mu.Unlock()
}

func (s *templateSet) load(tpl theme.Template) (*template.Template, error) {
	key := tpl.Theme.Name + "/" + tpl.Name
	if !s.reload {
		s.mu.Lock()
		t, ok := s.parsed[key]
		s.mu.Unlock()
		if ok {
			return t, nil
		}
	}
	t, err := parse(tpl)
	if err != nil {
		return nil, err
	}
	if !s.reload {
		s.mu.Lock()
		s.parsed[key] = t
		s.mu.Unlock()
	}
	return t, nil
}

// parse builds a template named after tpl.Name. Every partial is registered
// under "partials/<file>", and any {{define}} blocks inside partials are
// available by their own names.
func parse(tpl theme.Template) (*template.Template, error) {
	root := template.New(tpl.Name).Funcs(funcMap())
	partialsDir := filepath.FromSlash(tpl.Theme.PartialsDir)
	partials, err := listPartials(partialsDir)
	if err != nil {
		return nil, apperr.Internal("read partials", err)
	}
	for _, p := range partials {
		data, err := os.ReadFile(filepath.Join(partialsDir, p))
		if err != nil {
			return nil, apperr.Internal("read partial", err)
		}
		if _, err := root.New(theme.PartialsDir + "/" + filepath.ToSlash(p)).Parse(string(data)); err != nil {
			return nil, apperr.Internal("parse partial "+p, err)
		}
	}
	data, err := os.ReadFile(tpl.Path)
	if err != nil {
		return nil, apperr.TemplateMissing(tpl.Theme.Name + "/" + tpl.Name)
	}
	if _, err := root.Parse(string(data)); err != nil {
		return nil, apperr.Internal("parse template "+tpl.Name, err)
	}
	return root, nil
}

func listPartials(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == dir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".html") {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		out = append(out, rel)
		return nil
	})
	sort.Strings(out)
	return out, err
}
