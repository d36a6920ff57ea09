package menu

import (
	"errors"
	"html/template"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/modules/hooks"
	"github.com/folio-cms/folio/internal/pkg/apperr"
)

func ptr[T any](v T) *T { return &v }

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(t.TempDir(), nil, nil)
	n := 0
	svc.newID = func() string {
		n++
		return "m" + string(rune('0'+n))
	}
	return svc
}

func TestAddOrdersSiblings(t *testing.T) {
	svc := newTestService(t)
	home, err := svc.Add(Input{Title: ptr("Home"), URL: ptr("/")})
	require.NoError(t, err)
	blog, err := svc.Add(Input{Title: ptr("Blog"), URL: ptr("/blog")})
	require.NoError(t, err)
	_, err = svc.Add(Input{Title: ptr("Archive"), URL: ptr("/archive"), Parent: ptr(blog.ID)})
	require.NoError(t, err)

	assert.Equal(t, 0, home.Order)
	assert.Equal(t, 1, blog.Order)
	assert.Equal(t, models.TargetSelf, home.Target)

	items, err := svc.List()
	require.NoError(t, err)
	var titles []string
	for _, item := range items {
		titles = append(titles, item.Title)
	}
	assert.Equal(t, []string{"Home", "Blog", "Archive"}, titles)
}

func TestAddRejectsMissingParent(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Add(Input{Title: ptr("Orphan"), URL: ptr("/x"), Parent: ptr("ghost")})
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Contains(t, ae.Fields, "parent")
}

func TestUpdateRejectsCycle(t *testing.T) {
	svc := newTestService(t)
	a, err := svc.Add(Input{Title: ptr("A"), URL: ptr("/a")})
	require.NoError(t, err)
	b, err := svc.Add(Input{Title: ptr("B"), URL: ptr("/b"), Parent: ptr(a.ID)})
	require.NoError(t, err)

	_, err = svc.Update(a.ID, Input{Parent: ptr(b.ID)})
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Contains(t, ae.Fields["parent"], "cycle")

	items, err := svc.List()
	require.NoError(t, err)
	assert.Nil(t, items[0].Parent)
}

func TestDeleteReparentsChildren(t *testing.T) {
	svc := newTestService(t)
	parent, err := svc.Add(Input{Title: ptr("Parent"), URL: ptr("/p")})
	require.NoError(t, err)
	child, err := svc.Add(Input{Title: ptr("Child"), URL: ptr("/c"), Parent: ptr(parent.ID)})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(parent.ID))
	items, err := svc.List()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, child.ID, items[0].ID)
	assert.Nil(t, items[0].Parent)

	assert.True(t, errors.Is(svc.Delete(parent.ID), apperr.ErrNotFound))
}

func TestReorder(t *testing.T) {
	svc := newTestService(t)
	a, _ := svc.Add(Input{Title: ptr("A"), URL: ptr("/a")})
	b, _ := svc.Add(Input{Title: ptr("B"), URL: ptr("/b")})
	c, _ := svc.Add(Input{Title: ptr("C"), URL: ptr("/c")})

	items, err := svc.Reorder([]string{c.ID, a.ID})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{c.ID, a.ID, b.ID}, []string{items[0].ID, items[1].ID, items[2].ID})

	_, err = svc.Reorder([]string{"nope"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestReplaceValidatesWholeTree(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Replace([]models.MenuItem{
		{ID: "x", Title: "X", URL: "/x", Parent: ptr("y")},
		{ID: "y", Title: "Y", URL: "/y", Parent: ptr("x")},
	})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	items, err := svc.Replace([]models.MenuItem{
		{ID: "x", Title: "X", URL: "/x"},
		{ID: "y", Title: "Y", URL: "/y", Parent: ptr("x"), Target: models.TargetBlank},
	})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestRenderMarkup(t *testing.T) {
	items := []models.MenuItem{
		{ID: "1", Title: "Home", URL: "/", Target: models.TargetSelf},
		{ID: "2", Title: "Docs <b>new</b>", URL: "/docs", Target: models.TargetSelf, Class: "highlight"},
		{ID: "3", Title: "GitHub", URL: "https://github.com", Parent: ptr("2"), Target: models.TargetBlank},
		{ID: "4", Title: "Bad", URL: "javascript:alert(1)", Target: models.TargetSelf},
	}
	out := string(Render(items, "/docs"))

	assert.True(t, strings.HasPrefix(out, `<nav class="site-menu"><ul class="menu">`))
	assert.Contains(t, out, `<ul class="sub-menu">`)
	assert.Contains(t, out, "menu-item highlight has-children current")
	assert.Contains(t, out, `target="_blank"`)
	assert.Contains(t, out, ">Docs new</a>")
	assert.NotContains(t, out, "<b>")
	assert.NotContains(t, out, "javascript:")
	assert.Equal(t, template.HTML(""), Render(nil, "/"))
}

func TestHTMLAppliesFilter(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Add(Input{Title: ptr("Home"), URL: ptr("/")})
	require.NoError(t, err)

	bus := hooks.NewBus(nil)
	hooks.AddFilter(bus, HTMLFilter, func(h template.HTML, path string) (template.HTML, error) {
		return h + template.HTML("<!-- "+path+" -->"), nil
	}, hooks.DefaultPriority)

	out, err := svc.HTML(bus, "/about")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(out), "<!-- /about -->"))
}
