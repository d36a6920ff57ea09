package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/modules/content"
	"github.com/folio-cms/folio/internal/modules/settings"
)

func newBuilder(t *testing.T) (*Builder, *content.Service) {
	t.Helper()
	dir := t.TempDir()
	store, err := content.NewStore(dir, nil)
	require.NoError(t, err)
	index := content.NewIndex(store, nil)
	st := settings.NewService(dir, nil, nil)
	_, err = st.Patch(map[string]json.RawMessage{
		"siteTitle": json.RawMessage(`"Fish & Chips"`),
		"siteUrl":   json.RawMessage(`"https://example.com/"`),
	})
	require.NoError(t, err)
	return NewBuilder(index, st, nil, nil), content.NewService(store, index, nil, nil)
}

func TestRSSRoundTrip(t *testing.T) {
	b, svc := newBuilder(t)
	ctx := context.Background()
	published := content.Ptr(models.StatusPublished)
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.Create(ctx, models.KindPost, content.Input{
		Title: content.Ptr("First <post>"), Status: published, CreatedAt: &older,
		Body: content.Ptr("Hello ]]> world"), Tags: &[]string{"go"},
	}, content.WriteOptions{})
	require.NoError(t, err)
	_, err = svc.Create(ctx, models.KindPost, content.Input{Title: content.Ptr("Second"), Status: published, Excerpt: content.Ptr("Short")}, content.WriteOptions{})
	require.NoError(t, err)
	_, err = svc.Create(ctx, models.KindPost, content.Input{Title: content.Ptr("Draft")}, content.WriteOptions{})
	require.NoError(t, err)

	data, err := b.RSS()
	require.NoError(t, err)
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, "Fish & Chips", feed.Title)
	assert.Equal(t, "rss", feed.FeedType)
	require.Len(t, feed.Items, 2)
	assert.Equal(t, "Second", feed.Items[0].Title)
	assert.Equal(t, "Short", feed.Items[0].Description)
	assert.Equal(t, "First <post>", feed.Items[1].Title)
	assert.Equal(t, "https://example.com/post/first-post", feed.Items[1].Link)
	assert.Contains(t, feed.Items[1].Content, "<p>Hello ]]&gt; world</p>")
	assert.Equal(t, []string{"go"}, feed.Items[1].Categories)
	require.NotNil(t, feed.Items[1].PublishedParsed)
	assert.True(t, feed.Items[1].PublishedParsed.Equal(older))

	again, err := b.RSS()
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestAtomParses(t *testing.T) {
	b, svc := newBuilder(t)
	_, err := svc.Create(context.Background(), models.KindPost, content.Input{
		Title: content.Ptr("Only"), Status: content.Ptr(models.StatusPublished),
	}, content.WriteOptions{})
	require.NoError(t, err)

	data, err := b.Atom()
	require.NoError(t, err)
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "atom", feed.FeedType)
	require.Len(t, feed.Items, 1)
	assert.Equal(t, "https://example.com/post/only", feed.Items[0].Link)
}

func TestFeedRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	b, _ := newBuilder(t)
	r := gin.New()
	b.RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/feed.xml", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/rss+xml; charset=utf-8", w.Header().Get("Content-Type"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/atom.xml", nil))
	assert.Equal(t, "application/atom+xml; charset=utf-8", w.Header().Get("Content-Type"))
}

func TestCDATASplitsTerminator(t *testing.T) {
	assert.Equal(t, "<![CDATA[a]]]]><![CDATA[>b]]>", cdata("a]]>b"))
}
