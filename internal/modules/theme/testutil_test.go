package theme

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/modules/hooks"
)

type fakeSettings struct {
	mu  sync.Mutex
	cfg models.Settings
}

func (f *fakeSettings) Get() (models.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg, nil
}

func (f *fakeSettings) SetActiveTheme(name string) (models.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg.ActiveTheme = name
	return f.cfg, nil
}

func manifestFor(name, version string) map[string]any {
	return map[string]any{
		"name":        name,
		"title":       name + " theme",
		"description": "A test theme",
		"version":     version,
		"author":      "Tester",
		"authorUrl":   "https://example.com",
		"tags":        []string{"test"},
		"license":     RequiredLicense,
		"features":    []string{"posts"},
		"screenshot":  "screenshot.png",
	}
}

func writeTheme(t *testing.T, root, name string, manifest map[string]any, files map[string]string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, TemplatesDir), 0o755))
	data, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o644))
	for rel, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
}

type fixture struct {
	dir      string
	settings *fakeSettings
	bus      *hooks.Bus
	registry *Registry
}

func newFixture(t *testing.T, active string) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := models.DefaultSettings()
	cfg.ActiveTheme = active
	fs := &fakeSettings{cfg: cfg}
	bus := hooks.NewBus(nil)
	reg, err := NewRegistry(dir, fs, bus, nil)
	require.NoError(t, err)
	return &fixture{dir: dir, settings: fs, bus: bus, registry: reg}
}

func (f *fixture) discover(t *testing.T) {
	t.Helper()
	require.NoError(t, f.registry.Discover())
	_, err := f.registry.SelectActive()
	require.NoError(t, err)
}

// buildZip packs files (slash paths) into an in-memory archive.
func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func packageFiles(t *testing.T, top string, manifest map[string]any) map[string]string {
	t.Helper()
	data, err := json.Marshal(manifest)
	require.NoError(t, err)
	return map[string]string{
		top + "/theme.json":            string(data),
		top + "/templates/post.html":   "<h1>{{.Metadata.title}}</h1>",
		top + "/templates/layout.html": "home",
		top + "/assets/style.css":      "body{}",
	}
}
