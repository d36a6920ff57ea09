package content

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/modules/hooks"
	"github.com/folio-cms/folio/internal/pkg/apperr"
)

func newTestService(t *testing.T) (*Service, *hooks.Bus) {
	t.Helper()
	s := newTestStore(t)
	bus := hooks.NewBus(nil)
	return NewService(s, NewIndex(s, nil), bus, nil), bus
}

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae), "expected apperr, got %v", err)
	require.Equal(t, apperr.KindValidation, ae.Kind)
	return ae.Fields
}

func TestServiceFiresUpdatedAction(t *testing.T) {
	svc, bus := newTestService(t)
	var got []Mutation
	hooks.AddAction(bus, UpdatedAction, func(m Mutation) error {
		got = append(got, m)
		return nil
	}, hooks.DefaultPriority)

	ctx := context.Background()
	item, err := svc.Create(ctx, models.KindPost, Input{Title: Ptr("Hooked")}, WriteOptions{})
	require.NoError(t, err)
	_, err = svc.Update(ctx, models.KindPost, item.ID, Input{Status: Ptr(models.StatusPublished)}, WriteOptions{})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, models.KindPost, item.ID))

	require.Len(t, got, 3)
	assert.Equal(t, Mutation{Kind: models.KindPost, ID: item.ID, Slug: "hooked", Op: OpCreate}, got[0])
	assert.Equal(t, OpUpdate, got[1].Op)
	assert.Equal(t, OpDelete, got[2].Op)

	ops := make([]string, 0, len(got))
	for _, m := range got {
		ops = append(ops, string(m.Op))
	}
	assert.Equal(t, []string{"create", "update", "delete"}, ops)
}

func TestServiceRelatedPostRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, models.KindPost, Input{
		Title:        Ptr("Too many"),
		RelatedPosts: &[]string{"1", "2", "3", "4", "5", "6"},
	}, WriteOptions{})
	assert.Contains(t, fieldErrors(t, err), "relatedPosts")

	item, err := svc.Create(ctx, models.KindPost, Input{Title: Ptr("Self")}, WriteOptions{})
	require.NoError(t, err)
	_, err = svc.Update(ctx, models.KindPost, item.ID, Input{RelatedPosts: &[]string{item.ID}}, WriteOptions{})
	assert.Contains(t, fieldErrors(t, err), "relatedPosts")

	_, err = svc.Create(ctx, models.KindPost, Input{Title: Ptr("Wrong kind"), ParentPage: Ptr("x")}, WriteOptions{})
	assert.Contains(t, fieldErrors(t, err), "parentPage")
}

func TestServiceParentMustBeCustomPage(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, models.KindPage, Input{Title: Ptr("Plain")}, WriteOptions{})
	require.NoError(t, err)

	_, err = svc.Create(ctx, models.KindPage, Input{Title: Ptr("Child"), ParentPage: Ptr("plain")}, WriteOptions{})
	assert.Equal(t, "parent page must be an existing custom page", fieldErrors(t, err)["parentPage"])

	_, err = svc.Create(ctx, models.KindPage, Input{Title: Ptr("Child"), ParentPage: Ptr("ghost")}, WriteOptions{})
	assert.Contains(t, fieldErrors(t, err), "parentPage")

	_, err = svc.Create(ctx, models.KindPage, Input{Title: Ptr("Me"), PageType: Ptr(models.PageCustom), ParentPage: Ptr("me")}, WriteOptions{})
	assert.Equal(t, "a page cannot be its own parent", fieldErrors(t, err)["parentPage"])
}

func TestServiceRejectsParentCycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	custom := Ptr(models.PageCustom)

	a, err := svc.Create(ctx, models.KindPage, Input{Title: Ptr("A"), PageType: custom}, WriteOptions{})
	require.NoError(t, err)
	_, err = svc.Create(ctx, models.KindPage, Input{Title: Ptr("B"), PageType: custom, ParentPage: Ptr("a")}, WriteOptions{})
	require.NoError(t, err)
	_, err = svc.Create(ctx, models.KindPage, Input{Title: Ptr("C"), PageType: custom, ParentPage: Ptr("b")}, WriteOptions{})
	require.NoError(t, err)

	_, err = svc.Update(ctx, models.KindPage, a.ID, Input{ParentPage: Ptr("c")}, WriteOptions{})
	assert.Equal(t, "parent chain forms a cycle: a → c → b → a", fieldErrors(t, err)["parentPage"])

	stored, err := svc.Get(ctx, models.KindPage, a.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.ParentPage)
}

func TestServiceGetChecksKind(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	post, err := svc.Create(ctx, models.KindPost, Input{Title: Ptr("Post")}, WriteOptions{})
	require.NoError(t, err)

	_, err = svc.Get(ctx, models.KindPage, post.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.True(t, errors.Is(svc.Delete(ctx, models.KindPost, "missing"), apperr.ErrNotFound))
}
