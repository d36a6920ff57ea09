package content

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/folio-cms/folio/internal/models"
)

type slugKey struct {
	kind models.Kind
	slug string
}

// snapshot is an immutable view of all content. Nothing in it is mutated after build.
type snapshot struct {
	items      []*models.ContentItem
	byID       map[string]*models.ContentItem
	bySlug     map[slugKey]*models.ContentItem
	byTag      map[string][]string
	byCategory map[string][]string
	byParent   map[string][]*models.ContentItem
	chrono     []*models.ContentItem
	chronoPos  map[string]int
	builtAt    time.Time
}

// Index keeps derived lookups over the store. It rebuilds lazily after
// invalidation; a generation counter keeps a rebuild that raced with a write
// from being cached.
type Index struct {
	store  *Store
	logger *zap.Logger

	mu   sync.Mutex
	gen  uint64
	snap *snapshot

	// OnRebuild, when set, observes every rebuild duration.
	OnRebuild func(time.Duration)
}

// NewIndex binds an index to store and subscribes it to store mutations.
func NewIndex(store *Store, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	ix := &Index{store: store, logger: logger.Named("ContentIndex")}
	store.SetObserver(func(Mutation) { ix.Invalidate() })
	return ix
}

// Invalidate drops the current snapshot; the next query rebuilds.
func (ix *Index) Invalidate() {
	ix.mu.Lock()
	ix.gen++
	ix.snap = nil
	ix.mu.Unlock()
}

func (ix *Index) current() (*snapshot, error) {
	ix.mu.Lock()
	if ix.snap != nil {
		s := ix.snap
		ix.mu.Unlock()
		return s, nil
	}
	gen := ix.gen
	ix.mu.Unlock()

	start := time.Now()
	s, err := ix.build()
	if err != nil {
		return nil, err
	}
	if ix.OnRebuild != nil {
		ix.OnRebuild(time.Since(start))
	}

	ix.mu.Lock()
	if ix.gen == gen {
		ix.snap = s
	}
	ix.mu.Unlock()
	return s, nil
}

func (ix *Index) build() (*snapshot, error) {
	unlock := ix.store.readLockAll()
	posts, err := ix.store.scan(models.KindPost)
	if err != nil {
		unlock()
		return nil, err
	}
	pages, err := ix.store.scan(models.KindPage)
	unlock()
	if err != nil {
		return nil, err
	}

	s := &snapshot{
		byID:       make(map[string]*models.ContentItem),
		bySlug:     make(map[slugKey]*models.ContentItem),
		byTag:      make(map[string][]string),
		byCategory: make(map[string][]string),
		byParent:   make(map[string][]*models.ContentItem),
		chronoPos:  make(map[string]int),
		builtAt:    time.Now(),
	}
	for _, loc := range append(posts, pages...) {
		item := loc.item
		if _, dup := s.byID[item.ID]; dup {
			ix.logger.Warn("duplicate content id, keeping first", zap.String("id", item.ID), zap.String("path", loc.path))
			continue
		}
		key := slugKey{item.Kind, item.Slug}
		if _, dup := s.bySlug[key]; dup {
			ix.logger.Warn("duplicate slug, keeping first", zap.String("slug", item.Slug), zap.String("path", loc.path))
			continue
		}
		s.byID[item.ID] = item
		s.bySlug[key] = item
		s.items = append(s.items, item)
	}
	sortNewestFirst(s.items)

	for _, item := range s.items {
		switch item.Kind {
		case models.KindPost:
			for _, tag := range item.Tags {
				s.byTag[tag] = append(s.byTag[tag], item.ID)
			}
			if item.Category != "" {
				s.byCategory[item.Category] = append(s.byCategory[item.Category], item.ID)
			}
			if item.IsPublished() {
				s.chronoPos[item.ID] = len(s.chrono)
				s.chrono = append(s.chrono, item)
			}
		case models.KindPage:
			if item.ParentPage != "" {
				s.byParent[item.ParentPage] = append(s.byParent[item.ParentPage], item)
			}
		}
	}
	return s, nil
}

func sortNewestFirst(items []*models.ContentItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
}

// Get returns a copy of the item with id.
func (ix *Index) Get(id string) (*models.ContentItem, error) {
	s, err := ix.current()
	if err != nil {
		return nil, err
	}
	return s.byID[id].Clone(), nil
}

// GetBySlug returns a copy of the item of kind with slug.
func (ix *Index) GetBySlug(kind models.Kind, sl string) (*models.ContentItem, error) {
	s, err := ix.current()
	if err != nil {
		return nil, err
	}
	return s.bySlug[slugKey{kind, sl}].Clone(), nil
}

// Filter selects items for Items.
type Filter struct {
	Status   models.Status
	Tag      string
	Category string
	Parent   string
	PageType models.PageType
}

func (f Filter) match(item *models.ContentItem) bool {
	if f.Status != "" && item.Status != f.Status {
		return false
	}
	if f.Category != "" && item.Category != f.Category {
		return false
	}
	if f.Parent != "" && item.ParentPage != f.Parent {
		return false
	}
	if f.PageType != "" && item.EffectivePageType() != f.PageType {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, t := range item.Tags {
			if t == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Items returns copies of every item of kind matching f, newest first.
func (ix *Index) Items(kind models.Kind, f Filter) ([]*models.ContentItem, error) {
	s, err := ix.current()
	if err != nil {
		return nil, err
	}
	var source []*models.ContentItem
	switch {
	case kind == models.KindPost && f.Tag != "":
		source = s.resolve(s.byTag[f.Tag])
	case kind == models.KindPost && f.Category != "":
		source = s.resolve(s.byCategory[f.Category])
	case kind == models.KindPage && f.Parent != "":
		source = s.byParent[f.Parent]
	default:
		source = s.items
	}
	out := make([]*models.ContentItem, 0, len(source))
	for _, item := range source {
		if item.Kind == kind && f.match(item) {
			out = append(out, item.Clone())
		}
	}
	return out, nil
}

// All returns copies of every indexed item.
func (ix *Index) All() ([]*models.ContentItem, error) {
	s, err := ix.current()
	if err != nil {
		return nil, err
	}
	out := make([]*models.ContentItem, len(s.items))
	for i, item := range s.items {
		out[i] = item.Clone()
	}
	return out, nil
}

func (s *snapshot) resolve(ids []string) []*models.ContentItem {
	out := make([]*models.ContentItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := s.byID[id]; ok {
			out = append(out, item)
		}
	}
	return out
}

// Neighbors returns the older (prev) and newer (next) published posts around id.
func (ix *Index) Neighbors(id string) (prev, next *models.ContentItem, err error) {
	s, err := ix.current()
	if err != nil {
		return nil, nil, err
	}
	pos, ok := s.chronoPos[id]
	if !ok {
		return nil, nil, nil
	}
	if pos+1 < len(s.chrono) {
		prev = s.chrono[pos+1].Clone()
	}
	if pos > 0 {
		next = s.chrono[pos-1].Clone()
	}
	return prev, next, nil
}

// RelatedPost is the projection rendered for related-post lists.
type RelatedPost struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Slug          string `json:"slug"`
	FeaturedImage string `json:"featuredImage,omitempty"`
	Published     bool   `json:"-"`
}

// Related resolves the relatedPosts ids of id in order, dropping unknown ids.
func (ix *Index) Related(id string) ([]RelatedPost, error) {
	s, err := ix.current()
	if err != nil {
		return nil, err
	}
	item, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	out := make([]RelatedPost, 0, len(item.RelatedPosts))
	for _, rid := range item.RelatedPosts {
		rel, ok := s.byID[rid]
		if !ok || rel.Kind != models.KindPost {
			continue
		}
		out = append(out, RelatedPost{
			ID:            rel.ID,
			Title:         rel.Title,
			Slug:          rel.Slug,
			FeaturedImage: rel.FeaturedImage,
			Published:     rel.IsPublished(),
		})
	}
	return out, nil
}

// Parent returns the page named by page.ParentPage, nil when unresolved.
func (ix *Index) Parent(page *models.ContentItem) (*models.ContentItem, error) {
	if page == nil || page.ParentPage == "" {
		return nil, nil
	}
	return ix.GetBySlug(models.KindPage, page.ParentPage)
}

// Children returns pages whose parent is slug.
func (ix *Index) Children(sl string) ([]*models.ContentItem, error) {
	return ix.Items(models.KindPage, Filter{Parent: sl})
}

// Ancestors walks the parent chain from slug upward. It stops at the first
// repeated slug and reports whether a cycle was found.
func (ix *Index) Ancestors(sl string) (chain []string, cycle bool, err error) {
	s, err := ix.current()
	if err != nil {
		return nil, false, err
	}
	seen := map[string]bool{sl: true}
	cur := s.bySlug[slugKey{models.KindPage, sl}]
	for cur != nil && cur.ParentPage != "" {
		chain = append(chain, cur.ParentPage)
		if seen[cur.ParentPage] {
			return chain, true, nil
		}
		seen[cur.ParentPage] = true
		cur = s.bySlug[slugKey{models.KindPage, cur.ParentPage}]
	}
	return chain, false, nil
}

// Term is a tag or category with its published post count.
type Term struct {
	Slug  string `json:"slug"`
	Count int    `json:"count"`
}

// Tags lists tags used by published posts, sorted by slug.
func (ix *Index) Tags() ([]Term, error) {
	s, err := ix.current()
	if err != nil {
		return nil, err
	}
	return s.terms(s.byTag), nil
}

// Categories lists categories used by published posts, sorted by slug.
func (ix *Index) Categories() ([]Term, error) {
	s, err := ix.current()
	if err != nil {
		return nil, err
	}
	return s.terms(s.byCategory), nil
}

func (s *snapshot) terms(m map[string][]string) []Term {
	out := make([]Term, 0, len(m))
	for term, ids := range m {
		n := 0
		for _, id := range ids {
			if item, ok := s.byID[id]; ok && item.IsPublished() {
				n++
			}
		}
		if n > 0 {
			out = append(out, Term{Slug: term, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}
