// Package theme discovers, installs and resolves templates for site themes.
package theme

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/modules/hooks"
	"github.com/folio-cms/folio/internal/pkg/apperr"
	"github.com/folio-cms/folio/internal/pkg/fsutil"
)

// DefaultName is the fallback theme name.
const DefaultName = "default"

// Theme sub directories.
const (
	TemplatesDir = "templates"
	PartialsDir  = "partials"
	AssetsDir    = "assets"
	CustomDir    = "custom"
)

// reservedPrefix marks installer scratch directories inside the themes dir.
const reservedPrefix = "_temp"

// Switch describes an active-theme change.
type Switch struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// SwitchedAction fires after the active theme changes.
var SwitchedAction = hooks.NewAction[Switch]("themeSwitched")

// SettingsStore is the slice of the settings service the registry needs.
type SettingsStore interface {
	Get() (models.Settings, error)
	SetActiveTheme(name string) (models.Settings, error)
}

// Registry holds the discovered themes and the active selection.
type Registry struct {
	dir      string
	settings SettingsStore
	bus      *hooks.Bus
	logger   *zap.Logger

	mu     sync.RWMutex
	themes map[string]models.Theme
	names  []string
	active string
}

func NewRegistry(dir string, settings SettingsStore, bus *hooks.Bus, logger *zap.Logger) (*Registry, error) {
	if err := os.MkdirAll(dir, fsutil.DirPerm); err != nil {
		return nil, apperr.Internal("create themes dir", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		dir:      dir,
		settings: settings,
		bus:      bus,
		logger:   logger.Named("ThemeRegistry"),
		themes:   map[string]models.Theme{},
	}, nil
}

// Dir is the themes root.
func (r *Registry) Dir() string { return r.dir }

// Seed copies every theme in bundle into the themes dir when no theme is installed.
func (r *Registry) Seed(bundle fs.FS) error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return apperr.Internal("read themes dir", err)
	}
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), reservedPrefix) {
			return nil
		}
	}
	return fs.WalkDir(bundle, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || p == "." {
			return err
		}
		target := filepath.Join(r.dir, filepath.FromSlash(p))
		if d.IsDir() {
			return os.MkdirAll(target, fsutil.DirPerm)
		}
		data, err := fs.ReadFile(bundle, p)
		if err != nil {
			return err
		}
		return fsutil.WriteFileAtomic(target, data)
	})
}

// Discover rescans the themes dir. Directories with a missing or invalid manifest are skipped.
func (r *Registry) Discover() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return apperr.Internal("read themes dir", err)
	}
	themes := make(map[string]models.Theme)
	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, reservedPrefix) || strings.HasPrefix(name, ".") {
			continue
		}
		t, err := r.load(name)
		if err != nil {
			r.logger.Warn("skipping theme", zap.String("theme", name), zap.Error(err))
			continue
		}
		themes[name] = t
		names = append(names, name)
	}
	sort.Strings(names)

	r.mu.Lock()
	r.themes = themes
	r.names = names
	if _, ok := themes[r.active]; !ok {
		r.active = ""
	}
	r.mu.Unlock()
	r.logger.Debug("themes discovered", zap.Strings("themes", names))
	return nil
}

func (r *Registry) load(name string) (models.Theme, error) {
	dir := filepath.Join(r.dir, name)
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return models.Theme{}, err
	}
	m, err := ParseManifest(data)
	if err != nil {
		return models.Theme{}, err
	}
	if !fsutil.IsDir(filepath.Join(dir, TemplatesDir)) {
		return models.Theme{}, apperr.InvalidPackage("theme has no templates directory", map[string]string{"templates": "templates/ is required"})
	}
	t := models.Theme{
		Name:         name,
		Manifest:     m,
		Dir:          filepath.ToSlash(dir),
		TemplatesDir: filepath.ToSlash(filepath.Join(dir, TemplatesDir)),
		PartialsDir:  filepath.ToSlash(filepath.Join(dir, PartialsDir)),
		AssetsDir:    filepath.ToSlash(filepath.Join(dir, AssetsDir)),
	}
	if fsutil.IsDir(filepath.Join(dir, CustomDir)) {
		t.CustomDir = filepath.ToSlash(filepath.Join(dir, CustomDir))
	}
	return t, nil
}

// SelectActive picks the startup theme: settings, then "default", then the first
// discovered. The settings file is corrected when a fallback was used.
func (r *Registry) SelectActive() (models.Theme, error) {
	cfg, err := r.settings.Get()
	if err != nil {
		return models.Theme{}, err
	}

	r.mu.Lock()
	chosen := ""
	for _, candidate := range []string{cfg.ActiveTheme, DefaultName} {
		if _, ok := r.themes[candidate]; ok && candidate != "" {
			chosen = candidate
			break
		}
	}
	if chosen == "" && len(r.names) > 0 {
		chosen = r.names[0]
	}
	if chosen == "" {
		r.mu.Unlock()
		return models.Theme{}, apperr.Internal("no themes installed", nil)
	}
	r.active = chosen
	t := r.themes[chosen]
	r.mu.Unlock()

	if chosen != cfg.ActiveTheme {
		r.logger.Warn("configured theme unavailable, falling back",
			zap.String("configured", cfg.ActiveTheme), zap.String("active", chosen))
		if _, err := r.settings.SetActiveTheme(chosen); err != nil {
			return models.Theme{}, err
		}
	}
	t.Active = true
	return t, nil
}

// List returns every installed theme sorted by name.
func (r *Registry) List() []models.Theme {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Theme, 0, len(r.names))
	for _, name := range r.names {
		t := r.themes[name]
		t.Active = name == r.active
		out = append(out, t)
	}
	return out
}

// Get returns one installed theme.
func (r *Registry) Get(name string) (models.Theme, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.themes[name]
	if !ok {
		return models.Theme{}, apperr.NotFound("theme %s not found", name)
	}
	t.Active = name == r.active
	return t, nil
}

// Exists reports whether name is installed.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.themes[name]
	return ok
}

// Active returns the active theme.
func (r *Registry) Active() (models.Theme, error) {
	r.mu.RLock()
	name := r.active
	r.mu.RUnlock()
	if name == "" {
		return models.Theme{}, apperr.Internal("no active theme", nil)
	}
	return r.Get(name)
}

// SwitchTheme activates name, persisting it to settings and rediscovering themes.
func (r *Registry) SwitchTheme(name string) (models.Theme, error) {
	if !r.Exists(name) {
		return models.Theme{}, apperr.NotFound("theme %s not found", name)
	}
	if _, err := r.settings.SetActiveTheme(name); err != nil {
		return models.Theme{}, err
	}
	if err := r.Discover(); err != nil {
		return models.Theme{}, err
	}
	from := r.activate(name)
	r.logger.Info("theme switched", zap.String("from", from), zap.String("to", name))
	return r.Get(name)
}

// Follow applies an activeTheme change made directly through settings.
func (r *Registry) Follow(name string) {
	if name == "" || !r.Exists(name) {
		return
	}
	r.activate(name)
}

func (r *Registry) activate(name string) string {
	r.mu.Lock()
	from := r.active
	r.active = name
	r.mu.Unlock()
	if from != name && r.bus != nil {
		hooks.DoAction(r.bus, SwitchedAction, Switch{From: from, To: name})
	}
	return from
}

// Delete removes an installed theme. The active theme cannot be deleted.
func (r *Registry) Delete(name string) error {
	r.mu.RLock()
	_, ok := r.themes[name]
	active := r.active
	r.mu.RUnlock()
	if !ok {
		return apperr.NotFound("theme %s not found", name)
	}
	if name == active {
		return apperr.Conflict("theme %s is active and cannot be deleted", name)
	}
	if err := os.RemoveAll(filepath.Join(r.dir, name)); err != nil {
		return apperr.Internal("delete theme", err)
	}
	r.logger.Info("theme deleted", zap.String("theme", name))
	return r.Discover()
}

// AssetPath maps a request path under /assets/ to a file in the active theme.
func (r *Registry) AssetPath(rel string) (string, error) {
	t, err := r.Active()
	if err != nil {
		return "", err
	}
	root := filepath.FromSlash(t.AssetsDir)
	target := filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(rel, "/")))
	if !fsutil.Within(root, target) || !fsutil.Exists(target) || fsutil.IsDir(target) {
		return "", apperr.NotFound("asset %s not found", rel)
	}
	return target, nil
}
