package auth

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/pkg/apperr"
	"github.com/folio-cms/folio/internal/pkg/fsutil"
)

// UsersFile holds every account under the data dir.
const UsersFile = "users.json"

type usersDoc struct {
	Users []*models.User `json:"users"`
}

// UserStore persists accounts in users.json.
type UserStore struct {
	path string
	mu   sync.RWMutex
}

func NewUserStore(dataDir string) *UserStore {
	return &UserStore{path: filepath.Join(dataDir, UsersFile)}
}

func (s *UserStore) load() ([]*models.User, error) {
	var doc usersDoc
	if err := fsutil.ReadJSON(s.path, &doc); err != nil {
		if fsutil.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Internal("read users", err)
	}
	return doc.Users, nil
}

func (s *UserStore) save(users []*models.User) error {
	if users == nil {
		users = []*models.User{}
	}
	if err := fsutil.WriteJSON(s.path, usersDoc{Users: users}); err != nil {
		return apperr.Internal("write users", err)
	}
	return nil
}

// List returns copies of every user sorted by username.
func (s *UserStore) List() ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users, err := s.load()
	if err != nil {
		return nil, err
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

// Get returns the user with id, or NotFound.
func (s *UserStore) Get(id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, apperr.NotFound("user %s not found", id)
}

// ByUsername returns the user or nil. Usernames compare case-insensitively.
func (s *UserStore) ByUsername(username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users, err := s.load()
	if err != nil {
		return nil, err
	}
	return findUsername(users, username), nil
}

func findUsername(users []*models.User, username string) *models.User {
	for _, u := range users {
		if strings.EqualFold(u.Username, username) {
			return u
		}
	}
	return nil
}

// Count returns the number of stored users.
func (s *UserStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users, err := s.load()
	return len(users), err
}

// Mutate loads every user, lets fn change the slice and saves the result.
// Nothing is written when fn fails.
func (s *UserStore) Mutate(fn func(users []*models.User) ([]*models.User, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	users, err := s.load()
	if err != nil {
		return err
	}
	next, err := fn(users)
	if err != nil {
		return err
	}
	return s.save(next)
}
