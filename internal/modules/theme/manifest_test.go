package theme

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folio-cms/folio/internal/pkg/apperr"
)

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestParseManifestAcceptsValid(t *testing.T) {
	m, err := ParseManifest(mustJSON(t, manifestFor("clean", "1.2.3")))
	require.NoError(t, err)
	assert.Equal(t, "clean", m.Name)
	assert.Equal(t, "1.2.3", m.Version)
	assert.Equal(t, []string{"posts"}, m.Features)
}

func TestParseManifestReportsEveryField(t *testing.T) {
	cases := map[string]func(m map[string]any){
		"license":    func(m map[string]any) { m["license"] = "MIT" },
		"version":    func(m map[string]any) { m["version"] = "1.0" },
		"authorUrl":  func(m map[string]any) { m["authorUrl"] = "http://example.com" },
		"screenshot": func(m map[string]any) { m["screenshot"] = "shot.gif" },
		"tags":       func(m map[string]any) { delete(m, "tags") },
		"features":   func(m map[string]any) { m["features"] = "posts" },
		"title":      func(m map[string]any) { m["title"] = "  " },
		"name":       func(m map[string]any) { m["name"] = "Bad Name" },
		"index":      func(m map[string]any) { m["index"] = "../home.html" },
		"colors":     func(m map[string]any) { m["colors"] = []map[string]string{{"name": "accent"}} },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			m := manifestFor("clean", "1.0.0")
			mutate(m)
			_, err := ParseManifest(mustJSON(t, m))
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrInvalidPackage))
			e, ok := apperr.As(err)
			require.True(t, ok)
			assert.Contains(t, e.Fields, field)
			assert.Contains(t, e.Message, field)
		})
	}
}

func TestParseManifestRejectsGarbage(t *testing.T) {
	_, err := ParseManifest([]byte("{not json"))
	assert.True(t, errors.Is(err, apperr.ErrInvalidPackage))
}

func TestCompareVersions(t *testing.T) {
	assert.Equal(t, 0, CompareVersions("1.0.0", "1.0.0"))
	assert.Equal(t, 1, CompareVersions("1.10.0", "1.9.9"))
	assert.Equal(t, -1, CompareVersions("1.0.0", "1.0.1"))
	assert.Equal(t, 1, CompareVersions("2.0.0", "1.99.99"))
}

func TestBundledThemeIsValid(t *testing.T) {
	f := newFixture(t, DefaultName)
	require.NoError(t, f.registry.Seed(Bundled()))
	f.discover(t)

	active, err := f.registry.Active()
	require.NoError(t, err)
	assert.Equal(t, DefaultName, active.Name)
	assert.Equal(t, RequiredLicense, active.Manifest.License)

	for _, target := range []Target{{Type: FilePost}, {Type: FilePage}, {Type: FileHome}, {Type: FileList}, {Type: FileNotFound}} {
		_, err := f.registry.ResolveTemplate(target)
		assert.NoError(t, err, target.Type)
	}
}
