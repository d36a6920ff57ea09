package auth

import (
	"crypto/rand"
	"encoding/base64"
	"path/filepath"
	"sync"
	"time"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/pkg/apperr"
	"github.com/folio-cms/folio/internal/pkg/fsutil"
)

// SessionsFile holds live sessions under the data dir.
const SessionsFile = "sessions.json"

// TokenBytes is the entropy of a session token.
const TokenBytes = 32

type sessionsDoc struct {
	Sessions []*models.Session `json:"sessions"`
}

// SessionStore persists sessions in sessions.json.
type SessionStore struct {
	path string
	mu   sync.Mutex
}

func NewSessionStore(dataDir string) *SessionStore {
	return &SessionStore{path: filepath.Join(dataDir, SessionsFile)}
}

// NewToken returns a random url-safe token. It carries no user data.
func NewToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (s *SessionStore) load() ([]*models.Session, error) {
	var doc sessionsDoc
	if err := fsutil.ReadJSON(s.path, &doc); err != nil {
		if fsutil.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Internal("read sessions", err)
	}
	return doc.Sessions, nil
}

func (s *SessionStore) save(list []*models.Session) error {
	if list == nil {
		list = []*models.Session{}
	}
	if err := fsutil.WriteJSON(s.path, sessionsDoc{Sessions: list}); err != nil {
		return apperr.Internal("write sessions", err)
	}
	return nil
}

// Create stores a new session for userID.
func (s *SessionStore) Create(userID string, now time.Time, ttl time.Duration) (*models.Session, error) {
	token, err := NewToken()
	if err != nil {
		return nil, apperr.Internal("generate session token", err)
	}
	sess := &models.Session{Token: token, UserID: userID, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.load()
	if err != nil {
		return nil, err
	}
	if err := s.save(append(list, sess)); err != nil {
		return nil, err
	}
	return sess, nil
}

// Lookup returns the live session for token. An expired session is removed
// and reported as absent.
func (s *SessionStore) Lookup(token string, now time.Time) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.load()
	if err != nil {
		return nil, err
	}
	for i, sess := range list {
		if sess.Token != token {
			continue
		}
		if sess.Expired(now) {
			return nil, s.save(append(list[:i:i], list[i+1:]...))
		}
		return sess, nil
	}
	return nil, nil
}

// Remove deletes every session matching drop and reports how many went.
func (s *SessionStore) Remove(drop func(*models.Session) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.load()
	if err != nil {
		return 0, err
	}
	kept := list[:0:0]
	for _, sess := range list {
		if !drop(sess) {
			kept = append(kept, sess)
		}
	}
	removed := len(list) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	return removed, s.save(kept)
}
