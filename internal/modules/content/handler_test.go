package content

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folio-cms/folio/internal/middleware"
	"github.com/folio-cms/folio/internal/models"
)

func init() { gin.SetMode(gin.TestMode) }

type envelope struct {
	Success       bool              `json:"success"`
	Data          json.RawMessage   `json:"data"`
	Error         string            `json:"error"`
	Code          string            `json:"code"`
	Fields        map[string]string `json:"fields"`
	SuggestedSlug string            `json:"suggestedSlug"`
}

func newTestRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	svc, _ := newTestService(t)
	r := gin.New()
	api := r.Group("/api", func(c *gin.Context) {
		if c.GetHeader("X-Test-Role") != "" {
			c.Set(middleware.ContextKeyUser, &models.User{
				ID:       "u1",
				Username: "writer",
				Role:     models.Role(c.GetHeader("X-Test-Role")),
			})
		}
	})
	NewHandler(svc).RegisterRoutes(api, middleware.RequireEditor())
	return r, svc
}

func call(r http.Handler, method, path, role string, body any) (*httptest.ResponseRecorder, envelope) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("X-Test-Role", role)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestHandlerCreateRequiresEditor(t *testing.T) {
	r, _ := newTestRouter(t)
	body := map[string]any{"title": "Hello World"}

	w, _ := call(r, http.MethodPost, "/api/posts", "", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = call(r, http.MethodPost, "/api/posts", "author", body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := call(r, http.MethodPost, "/api/posts", "editor", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var item models.ContentItem
	require.NoError(t, json.Unmarshal(env.Data, &item))
	assert.Equal(t, "hello-world", item.Slug)
	assert.Equal(t, "writer", item.Author)
}

func TestHandlerHidesDraftsFromAnonymousReaders(t *testing.T) {
	r, svc := newTestRouter(t)
	ctx := t.Context()
	draft, err := svc.Create(ctx, models.KindPost, Input{Title: Ptr("Draft")}, WriteOptions{})
	require.NoError(t, err)
	_, err = svc.Create(ctx, models.KindPost, Input{Title: Ptr("Live"), Status: Ptr(models.StatusPublished)}, WriteOptions{})
	require.NoError(t, err)

	w, env := call(r, http.MethodGet, "/api/posts?status=draft", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res Result
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "Live", res.Items[0]["title"])

	w, env = call(r, http.MethodGet, "/api/posts?status=draft", "editor", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "Draft", res.Items[0]["title"])

	w, env = call(r, http.MethodGet, "/api/posts/"+draft.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Not found", env.Error)

	w, _ = call(r, http.MethodGet, "/api/posts/"+draft.ID, "admin", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandlerDuplicateSlugEnvelope(t *testing.T) {
	r, _ := newTestRouter(t)
	body := map[string]any{"title": "Twice"}
	w, _ := call(r, http.MethodPost, "/api/posts", "editor", body)
	require.Equal(t, http.StatusCreated, w.Code)

	w, env := call(r, http.MethodPost, "/api/posts", "editor", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "duplicate_slug", env.Code)
	assert.Equal(t, "twice-2", env.SuggestedSlug)

	w, _ = call(r, http.MethodPost, "/api/posts?overwrite=true", "editor", body)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestHandlerValidationEnvelope(t *testing.T) {
	r, _ := newTestRouter(t)
	w, env := call(r, http.MethodPost, "/api/pages", "editor", map[string]any{"title": "x", "pageType": "weird"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.Success)
	assert.Contains(t, env.Fields, "pageType")
}

func TestHandlerUpdateAndDelete(t *testing.T) {
	r, svc := newTestRouter(t)
	item, err := svc.Create(t.Context(), models.KindPage, Input{Title: Ptr("About")}, WriteOptions{})
	require.NoError(t, err)

	w, env := call(r, http.MethodPut, "/api/pages/"+item.ID, "editor", map[string]any{"subtitle": "Who we are"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated models.ContentItem
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, "Who we are", updated.Subtitle)

	w, _ = call(r, http.MethodDelete, "/api/pages/"+item.ID, "editor", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = call(r, http.MethodDelete, "/api/pages/"+item.ID, "editor", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlerExportZip(t *testing.T) {
	r, svc := newTestRouter(t)
	_, err := svc.Create(t.Context(), models.KindPost, Input{Title: Ptr("Zipped")}, WriteOptions{})
	require.NoError(t, err)
	_, err = svc.Create(t.Context(), models.KindPage, Input{Title: Ptr("Landing"), PageType: Ptr(models.PageCustom)}, WriteOptions{})
	require.NoError(t, err)

	w, _ := call(r, http.MethodGet, "/api/content/export", "editor", nil)
	require.Equal(t, http.StatusOK, w.Code)
	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"posts/zipped.md", "custom/landing.md"}, names)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Disposition"), "attachment;"))
}
