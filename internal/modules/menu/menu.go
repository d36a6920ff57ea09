// Package menu stores the site navigation tree in menu.json.
package menu

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/modules/hooks"
	"github.com/folio-cms/folio/internal/pkg/apperr"
	"github.com/folio-cms/folio/internal/pkg/fsutil"
)

// FileName is the menu document under the data dir.
const FileName = "menu.json"

// ChangedAction fires after the menu is persisted.
var ChangedAction = hooks.NewAction[[]models.MenuItem]("menuChanged")

type document struct {
	Menu []models.MenuItem `json:"menu"`
}

// Input is an add or update payload.
type Input struct {
	Title  *string `json:"title"`
	URL    *string `json:"url"`
	Parent *string `json:"parent"`
	Order  *int    `json:"order"`
	Target *string `json:"target"`
	Class  *string `json:"class"`
}

// Service owns menu.json. Every write validates the whole tree.
type Service struct {
	path   string
	bus    *hooks.Bus
	logger *zap.Logger
	mu     sync.Mutex
	newID  func() string
}

func NewService(dataDir string, bus *hooks.Bus, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		path:   filepath.Join(dataDir, FileName),
		bus:    bus,
		logger: logger.Named("Menu"),
		newID:  func() string { return uuid.NewString() },
	}
}

func (s *Service) read() ([]models.MenuItem, error) {
	var doc document
	if err := fsutil.ReadJSON(s.path, &doc); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Internal("read menu", err)
	}
	return doc.Menu, nil
}

func (s *Service) write(items []models.MenuItem) error {
	if items == nil {
		items = []models.MenuItem{}
	}
	if err := fsutil.WriteJSON(s.path, document{Menu: items}); err != nil {
		return apperr.Internal("write menu", err)
	}
	if s.bus != nil {
		hooks.DoAction(s.bus, ChangedAction, cloneItems(items))
	}
	return nil
}

// List returns every item in display order: parents before children, siblings by order then title.
func (s *Service) List() ([]models.MenuItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.read()
	if err != nil {
		return nil, err
	}
	return flatten(items), nil
}

// Add appends a new item. Without an explicit order it goes last among its siblings.
func (s *Service) Add(in Input) (models.MenuItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.read()
	if err != nil {
		return models.MenuItem{}, err
	}

	item := models.MenuItem{ID: s.newID(), Target: models.TargetSelf}
	apply(&item, in)
	if in.Order == nil {
		item.Order = nextOrder(items, item.ParentID())
	}
	items = append(items, item)
	if err := Validate(items); err != nil {
		return models.MenuItem{}, err
	}
	if err := s.write(items); err != nil {
		return models.MenuItem{}, err
	}
	s.logger.Info("menu item added", zap.String("id", item.ID), zap.String("title", item.Title))
	return item, nil
}

// Update patches one item.
func (s *Service) Update(id string, in Input) (models.MenuItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.read()
	if err != nil {
		return models.MenuItem{}, err
	}
	idx := indexOf(items, id)
	if idx < 0 {
		return models.MenuItem{}, apperr.NotFound("menu item %s not found", id)
	}
	apply(&items[idx], in)
	if err := Validate(items); err != nil {
		return models.MenuItem{}, err
	}
	if err := s.write(items); err != nil {
		return models.MenuItem{}, err
	}
	return items[idx], nil
}

// Delete removes an item; its children become top-level items.
func (s *Service) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.read()
	if err != nil {
		return err
	}
	idx := indexOf(items, id)
	if idx < 0 {
		return apperr.NotFound("menu item %s not found", id)
	}
	items = append(items[:idx], items[idx+1:]...)
	for i := range items {
		if items[i].ParentID() == id {
			items[i].Parent = nil
		}
	}
	return s.write(items)
}

// Reorder assigns order values following orderedIDs. Ids not listed keep their
// relative order after the listed ones.
func (s *Service) Reorder(orderedIDs []string) ([]models.MenuItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.read()
	if err != nil {
		return nil, err
	}
	pos := make(map[string]int, len(orderedIDs))
	for i, id := range orderedIDs {
		if indexOf(items, id) < 0 {
			return nil, apperr.Validation("unknown menu item", map[string]string{"orderedIds": "unknown id " + id})
		}
		pos[id] = i
	}
	rest := len(orderedIDs)
	for _, item := range flatten(items) {
		if _, ok := pos[item.ID]; !ok {
			pos[item.ID] = rest
			rest++
		}
	}
	for i := range items {
		items[i].Order = pos[items[i].ID]
	}
	if err := s.write(items); err != nil {
		return nil, err
	}
	return flatten(items), nil
}

// Replace swaps the whole menu after validation.
func (s *Service) Replace(items []models.MenuItem) ([]models.MenuItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range items {
		if strings.TrimSpace(items[i].ID) == "" {
			items[i].ID = s.newID()
		}
		if items[i].Parent != nil && *items[i].Parent == "" {
			items[i].Parent = nil
		}
		if items[i].Target == "" {
			items[i].Target = models.TargetSelf
		}
		items[i].Title = strings.TrimSpace(items[i].Title)
		items[i].URL = strings.TrimSpace(items[i].URL)
	}
	if err := Validate(items); err != nil {
		return nil, err
	}
	if err := s.write(items); err != nil {
		return nil, err
	}
	return flatten(items), nil
}

// Validate checks ids, required fields, parent references and acyclicity.
func Validate(items []models.MenuItem) error {
	errs := apperr.FieldErrors{}
	byID := make(map[string]models.MenuItem, len(items))
	for _, item := range items {
		if _, dup := byID[item.ID]; dup {
			errs.Add("id", "duplicate menu id "+item.ID)
		}
		byID[item.ID] = item
		if item.Title == "" {
			errs.Add("title", "title is required")
		}
		if item.URL == "" {
			errs.Add("url", "url is required")
		}
		if item.Target != models.TargetSelf && item.Target != models.TargetBlank {
			errs.Add("target", "target must be _self or _blank")
		}
	}
	for _, item := range items {
		parent := item.ParentID()
		if parent == "" {
			continue
		}
		if _, ok := byID[parent]; !ok {
			errs.Add("parent", "parent "+parent+" does not exist")
			continue
		}
		seen := map[string]bool{item.ID: true}
		path := []string{item.ID}
		for cur := parent; cur != ""; cur = byID[cur].ParentID() {
			path = append(path, cur)
			if seen[cur] {
				errs.Add("parent", "menu hierarchy forms a cycle: "+strings.Join(path, " → "))
				break
			}
			seen[cur] = true
		}
	}
	return errs.Err("invalid menu")
}

func apply(item *models.MenuItem, in Input) {
	if in.Title != nil {
		item.Title = strings.TrimSpace(*in.Title)
	}
	if in.URL != nil {
		item.URL = strings.TrimSpace(*in.URL)
	}
	if in.Parent != nil {
		if p := strings.TrimSpace(*in.Parent); p != "" {
			item.Parent = &p
		} else {
			item.Parent = nil
		}
	}
	if in.Order != nil {
		item.Order = *in.Order
	}
	if in.Target != nil {
		item.Target = *in.Target
	}
	if in.Class != nil {
		item.Class = strings.TrimSpace(*in.Class)
	}
}

func indexOf(items []models.MenuItem, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func nextOrder(items []models.MenuItem, parent string) int {
	n := 0
	for _, item := range items {
		if item.ParentID() == parent && item.Order >= n {
			n = item.Order + 1
		}
	}
	return n
}

func sortSiblings(items []models.MenuItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Order != items[j].Order {
			return items[i].Order < items[j].Order
		}
		return items[i].Title < items[j].Title
	})
}

// children groups items by parent id, siblings sorted.
func children(items []models.MenuItem) map[string][]models.MenuItem {
	out := make(map[string][]models.MenuItem)
	known := make(map[string]bool, len(items))
	for _, item := range items {
		known[item.ID] = true
	}
	for _, item := range items {
		parent := item.ParentID()
		if !known[parent] {
			parent = ""
		}
		out[parent] = append(out[parent], item)
	}
	for k := range out {
		sortSiblings(out[k])
	}
	return out
}

func flatten(items []models.MenuItem) []models.MenuItem {
	tree := children(items)
	out := make([]models.MenuItem, 0, len(items))
	seen := make(map[string]bool, len(items))
	var walk func(parent string)
	walk = func(parent string) {
		for _, item := range tree[parent] {
			if seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			out = append(out, item)
			walk(item.ID)
		}
	}
	walk("")
	return out
}

func cloneItems(items []models.MenuItem) []models.MenuItem {
	out := make([]models.MenuItem, len(items))
	copy(out, items)
	return out
}
