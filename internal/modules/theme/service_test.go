package theme

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folio-cms/folio/internal/middleware"
	"github.com/folio-cms/folio/internal/models"
)

func init() { gin.SetMode(gin.TestMode) }

func newMarketServer(t *testing.T, pkg []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/market/themes.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"themes": []MarketplaceTheme{
			{Name: "alpha", Title: "Alpha", Version: "1.2.0", Changelog: []string{"new footer"}},
			{Name: "remote", Title: "Remote", Version: "2.0.0", DownloadURL: "files/remote-2.0.0.zip"},
		}})
	})
	mux.HandleFunc("/market/files/remote-2.0.0.zip", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(pkg)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newThemeService(t *testing.T) (*fixture, *Service) {
	t.Helper()
	f, in := newInstallFixture(t)
	srv := newMarketServer(t, buildZip(t, packageFiles(t, "remote", manifestFor("remote", "2.0.0"))))
	market, err := NewHTTPMarketplaceWithClient(srv.URL+"/market", srv.Client())
	require.NoError(t, err)
	return f, NewService(f.registry, in, market, nil)
}

func TestMarketplaceBrowseAndInstall(t *testing.T) {
	f, svc := newThemeService(t)
	ctx := t.Context()

	catalog, err := svc.Browse(ctx)
	require.NoError(t, err)
	require.Len(t, catalog, 2)
	assert.True(t, catalog[0].Installed)
	assert.Equal(t, "1.0.0", catalog[0].InstalledVersion)
	assert.False(t, catalog[1].Installed)

	info, err := svc.CheckUpdate(ctx, "alpha")
	require.NoError(t, err)
	assert.True(t, info.UpdateAvailable)
	assert.Equal(t, "1.2.0", info.LatestVersion)
	assert.Equal(t, []string{"new footer"}, info.Changelog)

	res, err := svc.InstallFromMarketplace(ctx, "remote", false)
	require.NoError(t, err)
	assert.Equal(t, "remote", res.Theme.Name)
	assert.True(t, f.registry.Exists("remote"))

	_, err = svc.InstallFromMarketplace(ctx, "ghost", false)
	assert.Error(t, err)
}

func TestHTTPMarketplaceRejectsBadURL(t *testing.T) {
	_, err := NewHTTPMarketplaceWithClient("ftp://example.com", http.DefaultClient)
	assert.Error(t, err)
}

func TestServiceWithoutMarketplace(t *testing.T) {
	f, in := newInstallFixture(t)
	svc := NewService(f.registry, in, nil, nil)
	_, err := svc.Browse(t.Context())
	assert.Error(t, err)
}

func newThemeRouter(t *testing.T) (*gin.Engine, *fixture) {
	t.Helper()
	f, svc := newThemeService(t)
	r := gin.New()
	api := r.Group("/api", func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set(middleware.ContextKeyUser, &models.User{ID: "u1", Username: "tester", Role: models.Role(role)})
		}
	})
	NewHandler(svc).RegisterRoutes(api, middleware.RequireEditor(), middleware.RequireAdmin())
	return r, f
}

func TestHandlerUploadNeedsAdmin(t *testing.T) {
	r, f := newThemeRouter(t)
	upload := func(role string) *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("theme", "fresh.zip")
		require.NoError(t, err)
		_, _ = part.Write(buildZip(t, packageFiles(t, "fresh", manifestFor("fresh", "1.0.0"))))
		require.NoError(t, mw.Close())
		req := httptest.NewRequest(http.MethodPost, "/api/themes/upload", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("X-Test-Role", role)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusForbidden, upload("editor").Code)
	w := upload("admin")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, f.registry.Exists("fresh"))
	w = upload("admin")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandlerActivateAndDelete(t *testing.T) {
	r, f := newThemeRouter(t)
	writeTheme(t, f.dir, "beta", manifestFor("beta", "1.0.0"), nil)
	require.NoError(t, f.registry.Discover())

	do := func(method, path, role string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			_ = json.NewEncoder(&buf).Encode(body)
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", role)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/api/themes", "editor", nil).Code)
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/api/themes/activate", "editor", map[string]string{"name": "beta"}).Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodPost, "/api/themes/activate", "editor", map[string]string{"name": "nope"}).Code)

	assert.Equal(t, http.StatusConflict, do(http.MethodDelete, "/api/themes/beta", "admin", nil).Code)
	assert.Equal(t, http.StatusOK, do(http.MethodDelete, "/api/themes/alpha", "admin", nil).Code)
	assert.False(t, f.registry.Exists("alpha"))
}
