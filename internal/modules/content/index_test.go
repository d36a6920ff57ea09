package content

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folio-cms/folio/internal/models"
)

func at(day int) *time.Time {
	t := time.Date(2024, 1, day, 9, 0, 0, 0, time.UTC)
	return &t
}

func mustCreate(t *testing.T, s *Store, kind models.Kind, in Input) *models.ContentItem {
	t.Helper()
	item, err := s.Create(kind, in, WriteOptions{})
	require.NoError(t, err)
	return item
}

func TestIndexNeighbors(t *testing.T) {
	s := newTestStore(t)
	ix := NewIndex(s, nil)
	published := Ptr(models.StatusPublished)

	a := mustCreate(t, s, models.KindPost, Input{Title: Ptr("A"), Status: published, CreatedAt: at(1)})
	b := mustCreate(t, s, models.KindPost, Input{Title: Ptr("B"), Status: published, CreatedAt: at(2)})
	mustCreate(t, s, models.KindPost, Input{Title: Ptr("Draft"), CreatedAt: at(3)})

	prev, next, err := ix.Neighbors(b.ID)
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, a.Slug, prev.Slug)
	assert.Nil(t, next)

	prev, next, err = ix.Neighbors(a.ID)
	require.NoError(t, err)
	assert.Nil(t, prev)
	require.NotNil(t, next)
	assert.Equal(t, b.Slug, next.Slug)
}

func TestIndexNeighborSymmetry(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("next(p) = q implies prev(q) = p", prop.ForAll(
		func(flags []bool) bool {
			s := newTestStore(t)
			ix := NewIndex(s, nil)
			ids := make([]string, len(flags))
			for i, pub := range flags {
				status := models.StatusDraft
				if pub {
					status = models.StatusPublished
				}
				item, err := s.Create(models.KindPost, Input{
					Title:     Ptr(fmt.Sprintf("Post %d", i)),
					Status:    &status,
					CreatedAt: at(i + 1),
				}, WriteOptions{})
				if err != nil {
					return false
				}
				ids[i] = item.ID
			}
			for _, id := range ids {
				_, next, err := ix.Neighbors(id)
				if err != nil {
					return false
				}
				if next == nil {
					continue
				}
				prev, _, err := ix.Neighbors(next.ID)
				if err != nil || prev == nil || prev.ID != id {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(6, gen.Bool()),
	))

	properties.TestingRun(t)
}

func TestIndexInvalidatesOnWrite(t *testing.T) {
	s := newTestStore(t)
	ix := NewIndex(s, nil)

	items, err := ix.Items(models.KindPost, Filter{})
	require.NoError(t, err)
	assert.Empty(t, items)

	post := mustCreate(t, s, models.KindPost, Input{Title: Ptr("Fresh"), Tags: &[]string{"go"}})
	got, err := ix.GetBySlug(models.KindPost, "fresh")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, post.ID, got.ID)

	_, err = s.Update(models.KindPost, post.ID, Input{Slug: Ptr("renamed")}, WriteOptions{})
	require.NoError(t, err)
	got, err = ix.GetBySlug(models.KindPost, "fresh")
	require.NoError(t, err)
	assert.Nil(t, got)
	got, err = ix.GetBySlug(models.KindPost, "renamed")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestIndexCoherence(t *testing.T) {
	s := newTestStore(t)
	ix := NewIndex(s, nil)
	published := Ptr(models.StatusPublished)

	p1 := mustCreate(t, s, models.KindPost, Input{Title: Ptr("One"), Status: published, Tags: &[]string{"go", "web"}, Category: Ptr("dev"), CreatedAt: at(1)})
	p2 := mustCreate(t, s, models.KindPost, Input{Title: Ptr("Two"), Status: published, Tags: &[]string{"go"}, CreatedAt: at(2)})
	mustCreate(t, s, models.KindPost, Input{Title: Ptr("Three"), Tags: &[]string{"go"}, Category: Ptr("dev"), CreatedAt: at(3)})
	_, err := s.Update(models.KindPost, p1.ID, Input{Tags: &[]string{"web"}}, WriteOptions{})
	require.NoError(t, err)

	tagged, err := ix.Items(models.KindPost, Filter{Tag: "go", Status: models.StatusPublished})
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	assert.Equal(t, p2.ID, tagged[0].ID)

	all, err := ix.Items(models.KindPost, Filter{})
	require.NoError(t, err)
	for _, item := range all {
		got, err := ix.Get(item.ID)
		require.NoError(t, err)
		assert.Equal(t, item, got)
		bySlug, err := ix.GetBySlug(item.Kind, item.Slug)
		require.NoError(t, err)
		assert.Equal(t, item.ID, bySlug.ID)
		for _, tag := range item.Tags {
			withTag, err := ix.Items(models.KindPost, Filter{Tag: tag})
			require.NoError(t, err)
			assert.True(t, containsID(withTag, item.ID), "tag %s missing %s", tag, item.ID)
		}
	}

	tags, err := ix.Tags()
	require.NoError(t, err)
	assert.Equal(t, []Term{{Slug: "go", Count: 1}, {Slug: "web", Count: 1}}, tags)
	cats, err := ix.Categories()
	require.NoError(t, err)
	assert.Equal(t, []Term{{Slug: "dev", Count: 1}}, cats)
}

func containsID(items []*models.ContentItem, id string) bool {
	for _, item := range items {
		if item.ID == id {
			return true
		}
	}
	return false
}

func TestIndexReturnsCopies(t *testing.T) {
	s := newTestStore(t)
	ix := NewIndex(s, nil)
	post := mustCreate(t, s, models.KindPost, Input{Title: Ptr("Immutable"), Tags: &[]string{"a"}})

	got, err := ix.Get(post.ID)
	require.NoError(t, err)
	got.Title = "changed"
	got.Tags[0] = "changed"

	again, err := ix.Get(post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Immutable", again.Title)
	assert.Equal(t, []string{"a"}, again.Tags)
}

func TestIndexRelated(t *testing.T) {
	s := newTestStore(t)
	ix := NewIndex(s, nil)
	a := mustCreate(t, s, models.KindPost, Input{Title: Ptr("A"), Status: Ptr(models.StatusPublished)})
	b := mustCreate(t, s, models.KindPost, Input{Title: Ptr("B")})
	c := mustCreate(t, s, models.KindPost, Input{Title: Ptr("C"), RelatedPosts: &[]string{b.ID, "missing", a.ID}})

	rel, err := ix.Related(c.ID)
	require.NoError(t, err)
	require.Len(t, rel, 2)
	assert.Equal(t, b.ID, rel[0].ID)
	assert.False(t, rel[0].Published)
	assert.Equal(t, a.ID, rel[1].ID)
	assert.True(t, rel[1].Published)
}

func TestIndexParentAndChildren(t *testing.T) {
	s := newTestStore(t)
	ix := NewIndex(s, nil)
	custom := Ptr(models.PageCustom)
	mustCreate(t, s, models.KindPage, Input{Title: Ptr("Docs"), PageType: custom})
	child := mustCreate(t, s, models.KindPage, Input{Title: Ptr("Install"), PageType: custom, ParentPage: Ptr("docs")})
	orphan := mustCreate(t, s, models.KindPage, Input{Title: Ptr("Orphan"), ParentPage: Ptr("nowhere")})

	parent, err := ix.Parent(child)
	require.NoError(t, err)
	require.NotNil(t, parent)
	assert.Equal(t, "docs", parent.Slug)

	parent, err = ix.Parent(orphan)
	require.NoError(t, err)
	assert.Nil(t, parent)

	children, err := ix.Children("docs")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, child.ID, children[0].ID)

	chain, cycle, err := ix.Ancestors("install")
	require.NoError(t, err)
	assert.False(t, cycle)
	assert.Equal(t, []string{"docs"}, chain)
}

func TestIndexDetectsHandWrittenCycle(t *testing.T) {
	s := newTestStore(t)
	ix := NewIndex(s, nil)
	dir := filepath.Join(s.root, CustomDir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("---\ntitle: A\nparentPage: b\n---\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("---\ntitle: B\nparentPage: a\n---\n"), 0o644))

	chain, cycle, err := ix.Ancestors("a")
	require.NoError(t, err)
	assert.True(t, cycle)
	assert.Equal(t, []string{"b", "a"}, chain)
}

func TestQueryViews(t *testing.T) {
	s := newTestStore(t)
	ix := NewIndex(s, nil)
	published := Ptr(models.StatusPublished)
	body := "# Title\n\nSome **bold** text with a [link](https://example.com).\n\n```go\ncode()\n```\n\n> quoted " + strings.Repeat("word ", 100)
	for i := 1; i <= 3; i++ {
		mustCreate(t, s, models.KindPost, Input{Title: Ptr(fmt.Sprintf("Post %d", i)), Status: published, Body: Ptr(body), CreatedAt: at(i)})
	}

	res, err := ix.Posts(Query{Limit: 2, Offset: 1, SummaryView: true, PreviewLength: 50})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "Post 2", res.Items[0]["title"])
	assert.Equal(t, "Post 1", res.Items[1]["title"])
	assert.NotContains(t, res.Items[0], "body")
	summary := res.Items[0]["summary"].(string)
	assert.True(t, strings.HasSuffix(summary, "…"))
	assert.NotContains(t, summary, "**")
	assert.NotContains(t, summary, "code()")
	assert.Contains(t, summary, "link")

	res, err = ix.Posts(Query{Properties: []string{"title", "slug"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": res.Items[0]["id"], "title": "Post 3", "slug": "post-3"}, res.Items[0])

	res, err = ix.Posts(Query{FrontmatterOnly: true})
	require.NoError(t, err)
	assert.NotContains(t, res.Items[0], "body")
	assert.NotContains(t, res.Items[0], "summary")
}

func TestIndexConcurrentReadersSeeWholeStates(t *testing.T) {
	s := newTestStore(t)
	ix := NewIndex(s, nil)
	post := mustCreate(t, s, models.KindPost, Input{Title: Ptr("Flip")})

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			sl := "flip"
			if i%2 == 0 {
				sl = "flop"
			}
			_, err := s.Update(models.KindPost, post.ID, Input{Slug: Ptr(sl)}, WriteOptions{})
			assert.NoError(t, err)
		}
		close(stop)
	}()

	for {
		select {
		case <-stop:
			wg.Wait()
			return
		default:
		}
		items, err := ix.Items(models.KindPost, Filter{})
		require.NoError(t, err)
		assert.Len(t, items, 1)
	}
}
