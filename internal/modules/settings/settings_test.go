package settings

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/modules/hooks"
	"github.com/folio-cms/folio/internal/pkg/apperr"
	"github.com/folio-cms/folio/internal/pkg/fsutil"
)

func raw(t *testing.T, v map[string]any) map[string]json.RawMessage {
	t.Helper()
	out := map[string]json.RawMessage{}
	for k, val := range v {
		b, err := json.Marshal(val)
		require.NoError(t, err)
		out[k] = b
	}
	return out
}

func TestGetSeedsDefaults(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(dir, nil, nil)

	cfg, err := svc.Get()
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSettings(), cfg)
	assert.True(t, fsutil.Exists(filepath.Join(dir, FileName)))
}

func TestPatchPersistsAndFiresAction(t *testing.T) {
	dir := t.TempDir()
	bus := hooks.NewBus(nil)
	var changes []Change
	hooks.AddAction(bus, ChangedAction, func(c Change) error {
		changes = append(changes, c)
		return nil
	}, hooks.DefaultPriority)
	svc := NewService(dir, bus, nil)

	cfg, err := svc.Patch(raw(t, map[string]any{"siteTitle": "Notebook", "postsPerPage": 5, "siteUrl": "https://example.com/"}))
	require.NoError(t, err)
	assert.Equal(t, "Notebook", cfg.SiteTitle)
	assert.Equal(t, "https://example.com", cfg.SiteURL)
	assert.Equal(t, 5, cfg.PostsPerPage)
	require.Len(t, changes, 1)
	assert.Equal(t, "My Folio Site", changes[0].Old.SiteTitle)

	reloaded, err := NewService(dir, nil, nil).Get()
	require.NoError(t, err)
	assert.Equal(t, cfg, reloaded)
}

func TestPatchValidation(t *testing.T) {
	svc := NewService(t.TempDir(), nil, nil)
	svc.SetThemeValidator(func(name string) bool { return name == "default" || name == "minimal" })

	cases := map[string]map[string]any{
		"postsPerPage":    {"postsPerPage": -1},
		"cacheDuration":   {"cacheDuration": -5},
		"activeTheme":     {"activeTheme": "ghost"},
		"staticOutputDir": {"staticOutputDir": "../outside"},
		"bogus":           {"bogus": true},
	}
	for field, body := range cases {
		_, err := svc.Patch(raw(t, body))
		var ae *apperr.Error
		require.True(t, errors.As(err, &ae), field)
		assert.Equal(t, apperr.KindValidation, ae.Kind, field)
		assert.Contains(t, ae.Fields, field)
	}

	cfg, err := svc.Patch(raw(t, map[string]any{"activeTheme": "minimal"}))
	require.NoError(t, err)
	assert.Equal(t, "minimal", cfg.ActiveTheme)
}

func TestHandlerPutRequiresGate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := NewService(t.TempDir(), nil, nil)
	r := gin.New()
	deny := func(c *gin.Context) { c.AbortWithStatus(http.StatusForbidden) }
	NewHandler(svc).RegisterRoutes(r.Group("/api"), deny)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/settings", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"activeTheme":"default"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/settings", strings.NewReader(`{"siteTitle":"x"}`)))
	assert.Equal(t, http.StatusForbidden, w.Code)
}
