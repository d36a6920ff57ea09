package content

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/pkg/apperr"
	"github.com/folio-cms/folio/internal/pkg/fsutil"
	"github.com/folio-cms/folio/internal/pkg/slug"
)

const fileExt = ".md"

// Directory names under the data dir.
const (
	PostsDir  = "posts"
	PagesDir  = "pages"
	CustomDir = "custom"
)

type location struct {
	path string
	item *models.ContentItem
}

// Store persists content items as markdown files. Writers are serialized per
// kind; every mutation notifies the observer while the write lock is held.
type Store struct {
	root     string
	postsMu  sync.RWMutex
	pagesMu  sync.RWMutex
	observer func(Mutation)
	now      func() time.Time
	newID    func() string
	logger   *zap.Logger
}

// NewStore creates the content directories under root.
func NewStore(root string, logger *zap.Logger) (*Store, error) {
	for _, dir := range []string{PostsDir, PagesDir, CustomDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), fsutil.DirPerm); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", dir, err)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		root:   root,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
		logger: logger.Named("ContentStore"),
	}, nil
}

// SetObserver installs the mutation callback. It runs inside the writer's critical section.
func (s *Store) SetObserver(fn func(Mutation)) { s.observer = fn }

// Dirs returns the absolute content directories, for watchers and exports.
func (s *Store) Dirs() []string {
	return []string{
		filepath.Join(s.root, PostsDir),
		filepath.Join(s.root, PagesDir),
		filepath.Join(s.root, CustomDir),
	}
}

func (s *Store) lock(kind models.Kind) *sync.RWMutex {
	if kind == models.KindPage {
		return &s.pagesMu
	}
	return &s.postsMu
}

// readLockAll holds both read locks so a reader sees every kind at one point in time.
func (s *Store) readLockAll() func() {
	s.postsMu.RLock()
	s.pagesMu.RLock()
	return func() {
		s.pagesMu.RUnlock()
		s.postsMu.RUnlock()
	}
}

func (s *Store) dirFor(kind models.Kind, pt models.PageType) string {
	switch {
	case kind == models.KindPost:
		return filepath.Join(s.root, PostsDir)
	case pt == models.PageCustom:
		return filepath.Join(s.root, CustomDir)
	default:
		return filepath.Join(s.root, PagesDir)
	}
}

func (s *Store) pathFor(item *models.ContentItem) string {
	return filepath.Join(s.dirFor(item.Kind, item.EffectivePageType()), item.Slug+fileExt)
}

// slugPaths lists every path that would clash with slug inside kind's namespace.
func (s *Store) slugPaths(kind models.Kind, sl string) []string {
	if kind == models.KindPost {
		return []string{filepath.Join(s.root, PostsDir, sl+fileExt)}
	}
	return []string{
		filepath.Join(s.root, PagesDir, sl+fileExt),
		filepath.Join(s.root, CustomDir, sl+fileExt),
	}
}

func (s *Store) slugOwner(kind models.Kind, sl string) string {
	for _, p := range s.slugPaths(kind, sl) {
		if fsutil.Exists(p) {
			return p
		}
	}
	return ""
}

func (s *Store) suggestSlug(kind models.Kind, base string) string {
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if s.slugOwner(kind, candidate) == "" {
			return candidate
		}
	}
}

// List returns every parseable item of kind. Unreadable files are skipped.
func (s *Store) List(kind models.Kind) ([]*models.ContentItem, error) {
	mu := s.lock(kind)
	mu.RLock()
	defer mu.RUnlock()
	locs, err := s.scan(kind)
	if err != nil {
		return nil, err
	}
	items := make([]*models.ContentItem, len(locs))
	for i, l := range locs {
		items[i] = l.item
	}
	return items, nil
}

func (s *Store) scan(kind models.Kind) ([]location, error) {
	type source struct {
		dir string
		pt  models.PageType
	}
	var sources []source
	if kind == models.KindPost {
		sources = []source{{filepath.Join(s.root, PostsDir), ""}}
	} else {
		sources = []source{
			{filepath.Join(s.root, PagesDir), models.PageNormal},
			{filepath.Join(s.root, CustomDir), models.PageCustom},
		}
	}

	var out []location
	for _, src := range sources {
		entries, err := os.ReadDir(src.dir)
		if err != nil {
			if fsutil.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", src.dir, err)
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
				continue
			}
			path := filepath.Join(src.dir, name)
			item, err := s.readFile(kind, src.pt, path)
			if err != nil {
				s.logger.Warn("skipping unreadable content file", zap.String("path", path), zap.Error(err))
				continue
			}
			out = append(out, location{path: path, item: item})
		}
	}
	return out, nil
}

func (s *Store) readFile(kind models.Kind, pt models.PageType, path string) (*models.ContentItem, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeItem(kind, pt, strings.TrimSuffix(filepath.Base(path), fileExt), data, info.ModTime())
}

func (s *Store) find(kind models.Kind, id string) (*location, error) {
	locs, err := s.scan(kind)
	if err != nil {
		return nil, err
	}
	for i := range locs {
		if locs[i].item.ID == id {
			return &locs[i], nil
		}
	}
	return nil, apperr.NotFound("%s %s not found", kind, id)
}

// Get loads one item by id.
func (s *Store) Get(kind models.Kind, id string) (*models.ContentItem, error) {
	mu := s.lock(kind)
	mu.RLock()
	defer mu.RUnlock()
	loc, err := s.find(kind, id)
	if err != nil {
		return nil, err
	}
	return loc.item, nil
}

// GetByProperty returns the first item whose top-level key equals value.
func (s *Store) GetByProperty(kind models.Kind, key, value string) (*models.ContentItem, error) {
	items, err := s.List(kind)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if v, ok := item.Map()[key]; ok && fmt.Sprint(v) == value {
			return item, nil
		}
	}
	return nil, apperr.NotFound("%s with %s=%s not found", kind, key, value)
}

// Create writes a new item. The slug defaults to one derived from the title.
func (s *Store) Create(kind models.Kind, in Input, opts WriteOptions) (*models.ContentItem, error) {
	if !kind.Valid() {
		return nil, apperr.Validation("unknown content kind", nil)
	}
	now := s.now().UTC().Truncate(time.Second)
	item := &models.ContentItem{
		ID:        s.newID(),
		Kind:      kind,
		Status:    models.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if kind == models.KindPage {
		item.PageType = models.PageNormal
	}
	applyInput(item, in)
	if in.Slug == nil || strings.TrimSpace(*in.Slug) == "" {
		item.Slug = slug.Make(item.Title)
		if item.Slug == "" && strings.TrimSpace(item.Title) != "" {
			item.Slug = "untitled"
		}
	}
	if err := checkItem(item); err != nil {
		return nil, err
	}

	mu := s.lock(kind)
	mu.Lock()
	defer mu.Unlock()

	target := s.pathFor(item)
	owner := s.slugOwner(kind, item.Slug)
	if owner != "" && !opts.Overwrite {
		return nil, apperr.DuplicateSlug(item.Slug, s.suggestSlug(kind, item.Slug))
	}
	if err := s.write(target, item); err != nil {
		return nil, err
	}
	if owner != "" && owner != target {
		if err := os.Remove(owner); err != nil && !fsutil.IsNotExist(err) {
			s.logger.Warn("failed to remove overwritten item", zap.String("path", owner), zap.Error(err))
		}
	}
	s.notify(Mutation{Kind: kind, ID: item.ID, Slug: item.Slug, Op: OpCreate})
	return item, nil
}

// Update merges in onto the stored item. A slug or page type change moves the
// file: the new file is fully written before the old one is removed.
func (s *Store) Update(kind models.Kind, id string, in Input, opts WriteOptions) (*models.ContentItem, error) {
	mu := s.lock(kind)
	mu.Lock()
	defer mu.Unlock()

	loc, err := s.find(kind, id)
	if err != nil {
		return nil, err
	}
	item := loc.item.Clone()
	applyInput(item, in)
	if err := checkItem(item); err != nil {
		return nil, err
	}
	now := s.now().UTC().Truncate(time.Second)
	if !now.After(loc.item.UpdatedAt) {
		now = loc.item.UpdatedAt.Add(time.Second)
	}
	item.UpdatedAt = now

	target := s.pathFor(item)
	var displaced string
	if target != loc.path {
		for _, p := range s.slugPaths(kind, item.Slug) {
			if p != loc.path && fsutil.Exists(p) {
				displaced = p
				break
			}
		}
		if displaced != "" && !opts.Overwrite {
			return nil, apperr.DuplicateSlug(item.Slug, s.suggestSlug(kind, item.Slug))
		}
	}

	if err := s.write(target, item); err != nil {
		return nil, err
	}
	if target != loc.path {
		if err := os.Remove(loc.path); err != nil && !fsutil.IsNotExist(err) {
			return nil, apperr.Internal("remove previous file", err)
		}
	}
	if displaced != "" && displaced != target {
		_ = os.Remove(displaced)
	}
	s.notify(Mutation{Kind: kind, ID: item.ID, Slug: item.Slug, Op: OpUpdate})
	return item, nil
}

// Delete removes an item; false when it did not exist.
func (s *Store) Delete(kind models.Kind, id string) (bool, error) {
	mu := s.lock(kind)
	mu.Lock()
	defer mu.Unlock()

	loc, err := s.find(kind, id)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return false, nil
		}
		return false, err
	}
	if err := os.Remove(loc.path); err != nil {
		if fsutil.IsNotExist(err) {
			return false, nil
		}
		return false, apperr.Internal("delete content file", err)
	}
	s.notify(Mutation{Kind: kind, ID: id, Slug: loc.item.Slug, Op: OpDelete})
	return true, nil
}

func (s *Store) write(path string, item *models.ContentItem) error {
	data, err := encodeItem(item)
	if err != nil {
		return apperr.Internal("encode content", err)
	}
	if err := fsutil.WriteFileAtomic(path, data); err != nil {
		return apperr.Internal("write content", err)
	}
	return nil
}

func (s *Store) notify(m Mutation) {
	if s.observer != nil {
		s.observer(m)
	}
}

func checkItem(item *models.ContentItem) error {
	errs := apperr.FieldErrors{}
	if strings.TrimSpace(item.Title) == "" {
		errs.Add("title", "title is required")
	}
	if item.Slug == "" || !slug.Valid(item.Slug) {
		errs.Add("slug", "slug must contain lowercase letters, digits and hyphens")
	}
	if !item.Status.Valid() {
		errs.Add("status", "status must be draft or published")
	}
	if item.Kind == models.KindPage && item.PageType != models.PageNormal && item.PageType != models.PageCustom {
		errs.Add("pageType", "pageType must be normal or custom")
	}
	return errs.Err("invalid content item")
}

// applyInput merges in onto item, normalizing slugs, tags and lists.
func applyInput(item *models.ContentItem, in Input) {
	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	setStr(&item.Title, in.Title)
	setStr(&item.Subtitle, in.Subtitle)
	setStr(&item.Author, in.Author)
	setStr(&item.Excerpt, in.Excerpt)
	setStr(&item.SEODescription, in.SEODescription)
	setStr(&item.FeaturedImage, in.FeaturedImage)
	if in.Slug != nil && strings.TrimSpace(*in.Slug) != "" {
		item.Slug = slug.Make(*in.Slug)
	}
	if in.Status != nil {
		item.Status = *in.Status
	}
	if in.CreatedAt != nil && !in.CreatedAt.IsZero() {
		item.CreatedAt = in.CreatedAt.UTC().Truncate(time.Second)
	}
	if in.PublishDate != nil {
		if in.PublishDate.IsZero() {
			item.PublishDate = nil
		} else {
			t := in.PublishDate.UTC().Truncate(time.Second)
			item.PublishDate = &t
		}
	}
	if in.Body != nil {
		item.Body = strings.TrimLeft(*in.Body, "\r\n")
	}
	if in.Gallery != nil {
		item.Gallery = dedupe(*in.Gallery, nil)
	}

	if item.Kind == models.KindPost {
		if in.Category != nil {
			item.Category = slug.Make(*in.Category)
		}
		if in.Tags != nil {
			item.Tags = dedupe(*in.Tags, slug.Make)
		}
		if in.RelatedPosts != nil {
			item.RelatedPosts = dedupe(*in.RelatedPosts, nil)
		}
	} else {
		if in.PageType != nil {
			item.PageType = *in.PageType
		}
		if in.ParentPage != nil {
			item.ParentPage = slug.Make(*in.ParentPage)
		}
	}

	for k, v := range in.Extra {
		if _, known := knownKeys[k]; known {
			continue
		}
		if v == nil {
			delete(item.Extra, k)
			continue
		}
		if item.Extra == nil {
			item.Extra = make(map[string]any)
		}
		item.Extra[k] = v
	}
	if len(item.Extra) == 0 {
		item.Extra = nil
	}
}

func dedupe(in []string, norm func(string) string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, v := range in {
		v = strings.TrimSpace(v)
		if norm != nil {
			v = norm(v)
		}
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
