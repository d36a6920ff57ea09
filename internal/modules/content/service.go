package content

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/modules/hooks"
	"github.com/folio-cms/folio/internal/pkg/apperr"
	"github.com/folio-cms/folio/internal/pkg/slug"
)

// MaxRelatedPosts caps relatedPosts per post.
const MaxRelatedPosts = 5

// UpdatedAction fires after every successful content mutation.
var UpdatedAction = hooks.NewAction[Mutation]("contentUpdated")

// Service validates cross-item rules and fires hooks around store writes.
type Service struct {
	store  *Store
	index  *Index
	bus    *hooks.Bus
	logger *zap.Logger
}

func NewService(store *Store, index *Index, bus *hooks.Bus, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, index: index, bus: bus, logger: logger.Named("Content")}
}

// Index exposes the read side.
func (s *Service) Index() *Index { return s.index }

// Store exposes the write side.
func (s *Service) Store() *Store { return s.store }

// Get returns the item of kind with id.
func (s *Service) Get(_ context.Context, kind models.Kind, id string) (*models.ContentItem, error) {
	item, err := s.index.Get(id)
	if err != nil {
		return nil, apperr.Internal("load index", err)
	}
	if item == nil || item.Kind != kind {
		return nil, apperr.NotFound("%s %s not found", kind, id)
	}
	return item, nil
}

// Query lists items of kind.
func (s *Service) Query(_ context.Context, kind models.Kind, q Query) (Result, error) {
	res, err := s.index.query(kind, q)
	if err != nil {
		return Result{}, apperr.Internal("load index", err)
	}
	return res, nil
}

// Create validates and stores a new item.
func (s *Service) Create(_ context.Context, kind models.Kind, in Input, opts WriteOptions) (*models.ContentItem, error) {
	if err := s.validate(kind, nil, in); err != nil {
		return nil, err
	}
	item, err := s.store.Create(kind, in, opts)
	if err != nil {
		return nil, err
	}
	s.logger.Info("content created", zap.String("kind", string(kind)), zap.String("id", item.ID), zap.String("slug", item.Slug))
	s.fire(Mutation{Kind: kind, ID: item.ID, Slug: item.Slug, Op: OpCreate})
	return item, nil
}

// Update validates and applies a patch.
func (s *Service) Update(ctx context.Context, kind models.Kind, id string, in Input, opts WriteOptions) (*models.ContentItem, error) {
	current, err := s.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if err := s.validate(kind, current, in); err != nil {
		return nil, err
	}
	item, err := s.store.Update(kind, id, in, opts)
	if err != nil {
		return nil, err
	}
	s.logger.Info("content updated", zap.String("kind", string(kind)), zap.String("id", item.ID), zap.String("slug", item.Slug))
	s.fire(Mutation{Kind: kind, ID: item.ID, Slug: item.Slug, Op: OpUpdate})
	return item, nil
}

// Delete removes an item.
func (s *Service) Delete(_ context.Context, kind models.Kind, id string) error {
	ok, err := s.store.Delete(kind, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("%s %s not found", kind, id)
	}
	s.logger.Info("content deleted", zap.String("kind", string(kind)), zap.String("id", id))
	s.fire(Mutation{Kind: kind, ID: id, Op: OpDelete})
	return nil
}

func (s *Service) fire(m Mutation) {
	if s.bus != nil {
		hooks.DoAction(s.bus, UpdatedAction, m)
	}
}

// validate checks rules that span items: related-post limits and parent chains.
func (s *Service) validate(kind models.Kind, current *models.ContentItem, in Input) error {
	errs := apperr.FieldErrors{}
	if in.Status != nil && !in.Status.Valid() {
		errs.Add("status", "status must be draft or published")
	}

	switch kind {
	case models.KindPost:
		if in.RelatedPosts != nil {
			ids := dedupe(*in.RelatedPosts, nil)
			if len(ids) > MaxRelatedPosts {
				errs.Add("relatedPosts", "at most 5 related posts are allowed")
			}
			if current != nil {
				for _, id := range ids {
					if id == current.ID {
						errs.Add("relatedPosts", "a post cannot be related to itself")
					}
				}
			}
		}
		if in.PageType != nil || (in.ParentPage != nil && *in.ParentPage != "") {
			errs.Add("parentPage", "pageType and parentPage apply to pages only")
		}
	case models.KindPage:
		if in.PageType != nil && *in.PageType != models.PageNormal && *in.PageType != models.PageCustom {
			errs.Add("pageType", "pageType must be normal or custom")
		}
		if in.ParentPage != nil && strings.TrimSpace(*in.ParentPage) != "" {
			if msg := s.checkParent(current, in); msg != "" {
				errs.Add("parentPage", msg)
			}
		}
	}
	return errs.Err("invalid content item")
}

func (s *Service) checkParent(current *models.ContentItem, in Input) string {
	parent := slug.Make(*in.ParentPage)
	self := ""
	if current != nil {
		self = current.Slug
	}
	if in.Slug != nil && strings.TrimSpace(*in.Slug) != "" {
		self = slug.Make(*in.Slug)
	} else if current == nil && in.Title != nil {
		self = slug.Make(*in.Title)
	}
	if parent == self {
		return "a page cannot be its own parent"
	}

	target, err := s.index.GetBySlug(models.KindPage, parent)
	if err != nil {
		return "unable to resolve parent page"
	}
	if target == nil || !target.IsCustom() {
		return "parent page must be an existing custom page"
	}

	chain, cyclic, err := s.index.Ancestors(parent)
	if err != nil {
		return "unable to resolve parent page"
	}
	path := []string{self, parent}
	for _, step := range chain {
		path = append(path, step)
		if step == self || (current != nil && step == current.Slug) {
			return "parent chain forms a cycle: " + strings.Join(path, " → ")
		}
	}
	if cyclic {
		return "parent chain forms a cycle: " + strings.Join(path, " → ")
	}
	return ""
}
