package content

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/pkg/apperr"
)

// testClock hands out strictly increasing whole-second timestamps.
type testClock struct{ n atomic.Int64 }

func (c *testClock) now() time.Time {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return base.Add(time.Duration(c.n.Add(1)) * time.Minute)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	clk := &testClock{}
	s.now = clk.now
	var ids atomic.Int64
	s.newID = func() string { return fmt.Sprintf("id-%d", ids.Add(1)) }
	return s
}

func TestStoreCreateWritesMarkdownFile(t *testing.T) {
	s := newTestStore(t)

	item, err := s.Create(models.KindPost, Input{Title: Ptr("Hello World")}, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hello-world", item.Slug)
	assert.Equal(t, models.StatusDraft, item.Status)

	data, err := os.ReadFile(filepath.Join(s.root, PostsDir, "hello-world.md"))
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "---\n"))
	assert.Contains(t, text, `id: "id-1"`)
	assert.Contains(t, text, "slug: hello-world")
	assert.Contains(t, text, "status: draft")
	assert.Contains(t, text, "createdAt: ")
	assert.Contains(t, text, "updatedAt: ")
}

func TestStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	publish := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)

	created, err := s.Create(models.KindPost, Input{
		Title:        Ptr("Round trip"),
		Subtitle:     Ptr("sub"),
		Status:       Ptr(models.StatusPublished),
		Author:       Ptr("admin"),
		PublishDate:  &publish,
		Excerpt:      Ptr("short"),
		Gallery:      &[]string{"/content/uploads/images/a.png"},
		Body:         Ptr("# Heading\n\nSome *text*.\n"),
		Category:     Ptr("News"),
		Tags:         &[]string{"Go", "go", "Web Dev"},
		RelatedPosts: &[]string{"other"},
		Extra:        map[string]any{"mood": "happy"},
	}, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "web-dev"}, created.Tags)
	assert.Equal(t, "news", created.Category)

	loaded, err := s.Get(models.KindPost, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, loaded)
}

func TestStoreRenameMovesFile(t *testing.T) {
	s := newTestStore(t)
	item, err := s.Create(models.KindPost, Input{Title: Ptr("Hello World")}, WriteOptions{})
	require.NoError(t, err)

	updated, err := s.Update(models.KindPost, item.ID, Input{Slug: Ptr("greetings")}, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "greetings", updated.Slug)
	assert.True(t, updated.UpdatedAt.After(item.UpdatedAt))

	_, err = os.Stat(filepath.Join(s.root, PostsDir, "greetings.md"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(s.root, PostsDir, "hello-world.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestStoreDuplicateSlug(t *testing.T) {
	s := newTestStore(t)
	first, err := s.Create(models.KindPost, Input{Title: Ptr("Same")}, WriteOptions{})
	require.NoError(t, err)

	_, err = s.Create(models.KindPost, Input{Title: Ptr("Same")}, WriteOptions{})
	require.Error(t, err)
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.KindDuplicateSlug, ae.Kind)
	assert.Equal(t, "same-2", ae.SuggestedSlug)

	second, err := s.Create(models.KindPost, Input{Title: Ptr("Same")}, WriteOptions{Overwrite: true})
	require.NoError(t, err)
	items, err := s.List(models.KindPost)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, second.ID, items[0].ID)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestStorePagesShareSlugNamespace(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create(models.KindPage, Input{Title: Ptr("About"), PageType: Ptr(models.PageCustom)}, WriteOptions{})
	require.NoError(t, err)

	_, err = s.Create(models.KindPage, Input{Title: Ptr("About")}, WriteOptions{})
	assert.True(t, errors.Is(err, apperr.ErrDuplicateSlug))

	// posts have their own namespace
	_, err = s.Create(models.KindPost, Input{Title: Ptr("About")}, WriteOptions{})
	assert.NoError(t, err)
}

func TestStorePageTypeChangeMovesFile(t *testing.T) {
	s := newTestStore(t)
	page, err := s.Create(models.KindPage, Input{Title: Ptr("Contact")}, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.PageNormal, page.PageType)
	assert.FileExists(t, filepath.Join(s.root, PagesDir, "contact.md"))

	moved, err := s.Update(models.KindPage, page.ID, Input{PageType: Ptr(models.PageCustom)}, WriteOptions{})
	require.NoError(t, err)
	assert.True(t, moved.IsCustom())
	assert.FileExists(t, filepath.Join(s.root, CustomDir, "contact.md"))
	assert.NoFileExists(t, filepath.Join(s.root, PagesDir, "contact.md"))
}

func TestStoreDelete(t *testing.T) {
	s := newTestStore(t)
	item, err := s.Create(models.KindPost, Input{Title: Ptr("Gone")}, WriteOptions{})
	require.NoError(t, err)

	ok, err := s.Delete(models.KindPost, item.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Delete(models.KindPost, item.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(models.KindPost, item.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestStoreValidation(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create(models.KindPost, Input{Title: Ptr("  ")}, WriteOptions{})
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Contains(t, ae.Fields, "title")

	_, err = s.Create(models.KindPost, Input{Title: Ptr("x"), Status: Ptr(models.Status("live"))}, WriteOptions{})
	require.True(t, errors.As(err, &ae))
	assert.Contains(t, ae.Fields, "status")
}

func TestStoreReadsHandWrittenFiles(t *testing.T) {
	s := newTestStore(t)
	dir := filepath.Join(s.root, PostsDir)
	legacy := "---\ntitle: Legacy\nstatus: published\ncreatedAt: 2023-01-02T03:04:05Z\n" +
		"relatedPosts:\n  - id: abc\n  - def\nlayout: wide\n---\n\n\nBody text\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "legacy.md"), []byte(legacy), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.md"), []byte("---\ntitle: [unterminated\n---\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.md"), []byte("---\ntitle: x\n---\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	items, err := s.List(models.KindPost)
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, "legacy", item.ID)
	assert.Equal(t, "legacy", item.Slug)
	assert.Equal(t, []string{"abc", "def"}, item.RelatedPosts)
	assert.Equal(t, "wide", item.Extra["layout"])
	assert.Equal(t, "Body text\n", item.Body)
	assert.Equal(t, time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC), item.CreatedAt)
}

func TestStoreUnknownKeysSurviveUpdate(t *testing.T) {
	s := newTestStore(t)
	item, err := s.Create(models.KindPost, Input{Title: Ptr("Keep"), Extra: map[string]any{"layout": "wide", "weight": 3}}, WriteOptions{})
	require.NoError(t, err)

	updated, err := s.Update(models.KindPost, item.ID, Input{Title: Ptr("Kept"), Extra: map[string]any{"weight": nil}}, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"layout": "wide"}, updated.Extra)

	loaded, err := s.Get(models.KindPost, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "wide", loaded.Extra["layout"])
	assert.NotContains(t, loaded.Extra, "weight")
}

func TestStoreObserverRunsOnEveryMutation(t *testing.T) {
	s := newTestStore(t)
	var ops []Op
	s.SetObserver(func(m Mutation) { ops = append(ops, m.Op) })

	item, err := s.Create(models.KindPost, Input{Title: Ptr("Observed")}, WriteOptions{})
	require.NoError(t, err)
	_, err = s.Update(models.KindPost, item.ID, Input{Body: Ptr("x")}, WriteOptions{})
	require.NoError(t, err)
	_, err = s.Delete(models.KindPost, item.ID)
	require.NoError(t, err)

	assert.Equal(t, []Op{OpCreate, OpUpdate, OpDelete}, ops)
}
