package theme

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folio-cms/folio/internal/modules/hooks"
	"github.com/folio-cms/folio/internal/pkg/apperr"
)

func TestDiscoverSkipsInvalidThemes(t *testing.T) {
	f := newFixture(t, "alpha")
	writeTheme(t, f.dir, "alpha", manifestFor("alpha", "1.0.0"), nil)
	bad := manifestFor("broken", "1.0.0")
	bad["license"] = "MIT"
	writeTheme(t, f.dir, "broken", bad, nil)
	require.NoError(t, os.MkdirAll(filepath.Join(f.dir, "_temp_extract", "x"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(f.dir, "empty"), 0o755))

	f.discover(t)
	names := []string{}
	for _, th := range f.registry.List() {
		names = append(names, th.Name)
	}
	assert.Equal(t, []string{"alpha"}, names)
	assert.True(t, f.registry.List()[0].Active)
}

func TestSelectActiveFallsBack(t *testing.T) {
	f := newFixture(t, "missing")
	writeTheme(t, f.dir, "zeta", manifestFor("zeta", "1.0.0"), nil)
	writeTheme(t, f.dir, "beta", manifestFor("beta", "1.0.0"), nil)
	f.discover(t)

	active, err := f.registry.Active()
	require.NoError(t, err)
	assert.Equal(t, "beta", active.Name)
	cfg, _ := f.settings.Get()
	assert.Equal(t, "beta", cfg.ActiveTheme)

	writeTheme(t, f.dir, DefaultName, manifestFor(DefaultName, "1.0.0"), nil)
	f.settings.cfg.ActiveTheme = "gone"
	f.discover(t)
	active, _ = f.registry.Active()
	assert.Equal(t, DefaultName, active.Name)
}

func TestSelectActiveWithoutThemes(t *testing.T) {
	f := newFixture(t, DefaultName)
	require.NoError(t, f.registry.Discover())
	_, err := f.registry.SelectActive()
	assert.Error(t, err)
}

func TestSwitchThemeFiresAction(t *testing.T) {
	f := newFixture(t, "alpha")
	writeTheme(t, f.dir, "alpha", manifestFor("alpha", "1.0.0"), nil)
	writeTheme(t, f.dir, "beta", manifestFor("beta", "1.0.0"), nil)
	f.discover(t)

	var got []Switch
	hooks.AddAction(f.bus, SwitchedAction, func(s Switch) error {
		got = append(got, s)
		return nil
	}, hooks.DefaultPriority)

	th, err := f.registry.SwitchTheme("beta")
	require.NoError(t, err)
	assert.True(t, th.Active)
	assert.Equal(t, []Switch{{From: "alpha", To: "beta"}}, got)
	cfg, _ := f.settings.Get()
	assert.Equal(t, "beta", cfg.ActiveTheme)

	_, err = f.registry.SwitchTheme("nope")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	f.registry.Follow("alpha")
	active, _ := f.registry.Active()
	assert.Equal(t, "alpha", active.Name)
	assert.Len(t, got, 2)
}

func TestDeleteActiveThemeConflicts(t *testing.T) {
	f := newFixture(t, "alpha")
	writeTheme(t, f.dir, "alpha", manifestFor("alpha", "1.0.0"), nil)
	writeTheme(t, f.dir, "beta", manifestFor("beta", "1.0.0"), nil)
	f.discover(t)

	err := f.registry.Delete("alpha")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.DirExists(t, filepath.Join(f.dir, "alpha"))

	require.NoError(t, f.registry.Delete("beta"))
	assert.NoDirExists(t, filepath.Join(f.dir, "beta"))
	assert.False(t, f.registry.Exists("beta"))

	assert.True(t, errors.Is(f.registry.Delete("beta"), apperr.ErrNotFound))
}

func TestResolveTemplateChain(t *testing.T) {
	f := newFixture(t, "alpha")
	writeTheme(t, f.dir, "alpha", manifestFor("alpha", "1.0.0"), map[string]string{
		"templates/post.html":   "post",
		"templates/page.html":   "page",
		"templates/layout.html": "layout",
		"custom/landing.html":   "landing",
	})
	f.discover(t)

	tpl, err := f.registry.ResolveTemplate(Target{Type: FilePage, Slug: "landing", Custom: true})
	require.NoError(t, err)
	assert.Equal(t, "custom/landing.html", tpl.Name)

	tpl, err = f.registry.ResolveTemplate(Target{Type: FilePage, Slug: "other", Custom: true})
	require.NoError(t, err)
	assert.Equal(t, "templates/page.html", tpl.Name)

	tpl, err = f.registry.ResolveTemplate(Target{Type: FilePage, Slug: "landing"})
	require.NoError(t, err)
	assert.Equal(t, "templates/page.html", tpl.Name, "plain pages ignore custom templates")

	tpl, err = f.registry.ResolveTemplate(Target{Type: FileHome})
	require.NoError(t, err)
	assert.Equal(t, "templates/layout.html", tpl.Name)
	assert.False(t, tpl.HomeCustom)

	tpl, err = f.registry.ResolveTemplate(Target{Type: FileList})
	require.NoError(t, err)
	assert.Equal(t, "templates/layout.html", tpl.Name)

	_, err = f.registry.ResolveTemplate(Target{Type: FileNotFound})
	assert.True(t, errors.Is(err, apperr.ErrTemplateMissing))
	assert.Contains(t, err.Error(), "alpha/templates/404.html")

	writeTheme(t, f.dir, "alpha", manifestFor("alpha", "1.0.0"), map[string]string{"custom/homepage.html": "home"})
	tpl, err = f.registry.ResolveTemplate(Target{Type: FileHome})
	require.NoError(t, err)
	assert.Equal(t, "custom/homepage.html", tpl.Name)
	assert.True(t, tpl.HomeCustom)
}

func TestResolveTemplateUsesManifestIndex(t *testing.T) {
	f := newFixture(t, "alpha")
	m := manifestFor("alpha", "1.0.0")
	m["index"] = "home.html"
	writeTheme(t, f.dir, "alpha", m, map[string]string{"templates/home.html": "home"})
	f.discover(t)

	tpl, err := f.registry.ResolveTemplate(Target{Type: FileHome})
	require.NoError(t, err)
	assert.Equal(t, "templates/home.html", tpl.Name)
}

func TestAssetPathStaysInsideTheme(t *testing.T) {
	f := newFixture(t, "alpha")
	writeTheme(t, f.dir, "alpha", manifestFor("alpha", "1.0.0"), map[string]string{"assets/css/site.css": "body{}"})
	f.discover(t)

	p, err := f.registry.AssetPath("css/site.css")
	require.NoError(t, err)
	assert.FileExists(t, p)

	_, err = f.registry.AssetPath("../theme.json")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	_, err = f.registry.AssetPath("css")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestSeedOnlyWhenEmpty(t *testing.T) {
	f := newFixture(t, DefaultName)
	writeTheme(t, f.dir, "alpha", manifestFor("alpha", "1.0.0"), nil)
	require.NoError(t, f.registry.Seed(Bundled()))
	assert.NoDirExists(t, filepath.Join(f.dir, DefaultName))
}
