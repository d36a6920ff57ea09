// Package auth owns accounts, sessions and the login attempt limiter.
package auth

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/pkg/apperr"
)

// DefaultSessionTTL applies when Options.SessionTTL is zero.
const DefaultSessionTTL = 7 * 24 * time.Hour

// BootstrapUsername is the account created on an empty user set.
const BootstrapUsername = "admin"

const minPasswordLen = 8

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{2,31}$`)

// Options tunes a Service.
type Options struct {
	SessionTTL  time.Duration
	MaxAttempts int
	Window      time.Duration
	Hasher      PasswordHasher
	Now         func() time.Time
}

// Login is the result of a successful Authenticate.
type Login struct {
	User      models.PublicUser `json:"user"`
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// Service authenticates users and manages accounts.
type Service struct {
	users    *UserStore
	sessions *SessionStore
	limiter  *AttemptLimiter
	hasher   PasswordHasher
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger

	// OnLogin, when set, observes every login attempt that reached the
	// password check or the limiter.
	OnLogin func(outcome string)
}

func NewService(dataDir string, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.Hasher == nil {
		opts.Hasher = BcryptHasher{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		users:    NewUserStore(dataDir),
		sessions: NewSessionStore(dataDir),
		limiter:  NewAttemptLimiter(opts.MaxAttempts, opts.Window),
		hasher:   opts.Hasher,
		ttl:      opts.SessionTTL,
		now:      opts.Now,
		logger:   logger.Named("Auth"),
	}
}

func (s *Service) observe(outcome string) {
	if s.OnLogin != nil {
		s.OnLogin(outcome)
	}
}

// Authenticate verifies credentials and opens a session. Bad credentials
// return (nil, nil); a locked username returns RateLimited.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Login, error) {
	now := s.now()
	if locked, retry := s.limiter.Check(username, now); locked {
		s.observe("rate_limited")
		return nil, apperr.RateLimited(retry)
	}
	u, err := s.users.ByUsername(username)
	if err != nil {
		return nil, err
	}
	if u == nil {
		s.limiter.Fail(username, now)
		s.observe("failure")
		return nil, nil
	}
	if err := s.hasher.Verify(u.PasswordHash, password); err != nil {
		if err != errWrongPassword {
			s.logger.Warn("password verification error", zap.String("user", u.ID), zap.Error(err))
		}
		s.limiter.Fail(username, now)
		s.observe("failure")
		return nil, nil
	}
	s.limiter.Reset(username)
	sess, err := s.sessions.Create(u.ID, now, s.ttl)
	if err != nil {
		return nil, err
	}
	s.observe("success")
	s.logger.Info("user logged in", zap.String("user", u.Username))
	return &Login{User: u.Public(), Token: sess.Token, ExpiresAt: sess.ExpiresAt}, nil
}

// ResolveSession returns the user behind a live token, or nil.
func (s *Service) ResolveSession(_ context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, nil
	}
	sess, err := s.sessions.Lookup(token, s.now())
	if err != nil || sess == nil {
		return nil, err
	}
	u, err := s.users.Get(sess.UserID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// InvalidateToken ends one session.
func (s *Service) InvalidateToken(token string) error {
	_, err := s.sessions.Remove(func(sess *models.Session) bool { return sess.Token == token })
	return err
}

// InvalidateUserSessions ends every session of a user.
func (s *Service) InvalidateUserSessions(userID string) (int, error) {
	return s.sessions.Remove(func(sess *models.Session) bool { return sess.UserID == userID })
}

// SweepSessions removes expired sessions.
func (s *Service) SweepSessions(context.Context) error {
	now := s.now()
	n, err := s.sessions.Remove(func(sess *models.Session) bool { return sess.Expired(now) })
	if n > 0 {
		s.logger.Debug("expired sessions removed", zap.Int("count", n))
	}
	return err
}

// SweepAttempts forgets stale login failures.
func (s *Service) SweepAttempts(context.Context) error {
	s.limiter.Sweep(s.now())
	return nil
}

// Bootstrap creates the admin account when no user exists. It returns the
// temporary password, or "" when nothing was created.
func (s *Service) Bootstrap(password string) (string, error) {
	n, err := s.users.Count()
	if err != nil || n > 0 {
		return "", err
	}
	source := "ADMIN_PASSWORD"
	if password == "" {
		source = "generated"
		tok, err := NewToken()
		if err != nil {
			return "", err
		}
		password = tok[:16]
	}
	if _, err := s.CreateUser(UserInput{
		Username: BootstrapUsername,
		Role:     models.RoleAdmin,
		Password: password,
	}); err != nil {
		return "", err
	}
	s.logger.Warn("created bootstrap admin account with a temporary password, log in and change it",
		zap.String("username", BootstrapUsername),
		zap.String("password", password),
		zap.String("source", source))
	return password, nil
}

// UserInput creates an account.
type UserInput struct {
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Role     models.Role `json:"role"`
	Password string      `json:"password"`
}

// UserPatch updates an account. Nil fields stay unchanged.
type UserPatch struct {
	Email    *string      `json:"email"`
	Role     *models.Role `json:"role"`
	Password *string      `json:"password"`
}

func (in UserInput) validate() error {
	errs := apperr.FieldErrors{}
	if !usernamePattern.MatchString(in.Username) {
		errs.Add("username", "3-32 letters, digits, dot, dash or underscore")
	}
	if in.Role != "" && !in.Role.Valid() {
		errs.Add("role", "must be admin, editor or author")
	}
	if len(in.Password) < minPasswordLen {
		errs.Add("password", "must be at least 8 characters")
	}
	if in.Email != "" && !strings.Contains(in.Email, "@") {
		errs.Add("email", "invalid email address")
	}
	return errs.Err("invalid user")
}

func (p UserPatch) validate() error {
	errs := apperr.FieldErrors{}
	if p.Role != nil && !p.Role.Valid() {
		errs.Add("role", "must be admin, editor or author")
	}
	if p.Password != nil && len(*p.Password) < minPasswordLen {
		errs.Add("password", "must be at least 8 characters")
	}
	if p.Email != nil && *p.Email != "" && !strings.Contains(*p.Email, "@") {
		errs.Add("email", "invalid email address")
	}
	return errs.Err("invalid user")
}

// ListUsers returns every account without password hashes.
func (s *Service) ListUsers() ([]models.PublicUser, error) {
	users, err := s.users.List()
	if err != nil {
		return nil, err
	}
	out := make([]models.PublicUser, len(users))
	for i, u := range users {
		out[i] = u.Public()
	}
	return out, nil
}

// GetUser returns one account.
func (s *Service) GetUser(id string) (models.PublicUser, error) {
	u, err := s.users.Get(id)
	if err != nil {
		return models.PublicUser{}, err
	}
	return u.Public(), nil
}

// CreateUser adds an account. Role defaults to author.
func (s *Service) CreateUser(in UserInput) (models.PublicUser, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Role == "" {
		in.Role = models.RoleAuthor
	}
	if err := in.validate(); err != nil {
		return models.PublicUser{}, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return models.PublicUser{}, apperr.Internal("hash password", err)
	}
	u := &models.User{
		ID:           uuid.NewString(),
		Username:     in.Username,
		Email:        strings.TrimSpace(in.Email),
		Role:         in.Role,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	err = s.users.Mutate(func(users []*models.User) ([]*models.User, error) {
		if findUsername(users, u.Username) != nil {
			return nil, apperr.Conflict("username %s is taken", u.Username)
		}
		return append(users, u), nil
	})
	if err != nil {
		return models.PublicUser{}, err
	}
	s.logger.Info("user created", zap.String("user", u.Username), zap.String("role", string(u.Role)))
	return u.Public(), nil
}

func admins(users []*models.User) int {
	n := 0
	for _, u := range users {
		if u.Role == models.RoleAdmin {
			n++
		}
	}
	return n
}

// UpdateUser changes email, role or password. The last admin cannot be
// demoted; a password change ends the user's sessions.
func (s *Service) UpdateUser(id string, p UserPatch) (models.PublicUser, error) {
	if err := p.validate(); err != nil {
		return models.PublicUser{}, err
	}
	var hash string
	if p.Password != nil {
		h, err := s.hasher.Hash(*p.Password)
		if err != nil {
			return models.PublicUser{}, apperr.Internal("hash password", err)
		}
		hash = h
	}
	var updated models.User
	err := s.users.Mutate(func(users []*models.User) ([]*models.User, error) {
		for _, u := range users {
			if u.ID != id {
				continue
			}
			if p.Role != nil && *p.Role != models.RoleAdmin && u.Role == models.RoleAdmin && admins(users) == 1 {
				return nil, apperr.Conflict("cannot demote the last admin")
			}
			if p.Email != nil {
				u.Email = strings.TrimSpace(*p.Email)
			}
			if p.Role != nil {
				u.Role = *p.Role
			}
			if hash != "" {
				u.PasswordHash = hash
			}
			updated = *u
			return users, nil
		}
		return nil, apperr.NotFound("user %s not found", id)
	})
	if err != nil {
		return models.PublicUser{}, err
	}
	if hash != "" {
		if _, err := s.InvalidateUserSessions(id); err != nil {
			return models.PublicUser{}, err
		}
	}
	return updated.Public(), nil
}

// ChangePassword lets a user replace their own password.
func (s *Service) ChangePassword(id, current, next string) error {
	u, err := s.users.Get(id)
	if err != nil {
		return err
	}
	if err := s.hasher.Verify(u.PasswordHash, current); err != nil {
		return apperr.Validation("invalid password", map[string]string{"currentPassword": "does not match"})
	}
	_, err = s.UpdateUser(id, UserPatch{Password: &next})
	return err
}

// DeleteUser removes an account and its sessions. Users cannot delete
// themselves and the last admin always stays.
func (s *Service) DeleteUser(actorID, id string) error {
	if actorID == id {
		return apperr.Conflict("users cannot delete themselves")
	}
	err := s.users.Mutate(func(users []*models.User) ([]*models.User, error) {
		for i, u := range users {
			if u.ID != id {
				continue
			}
			if u.Role == models.RoleAdmin && admins(users) == 1 {
				return nil, apperr.Conflict("cannot delete the last admin")
			}
			return append(users[:i:i], users[i+1:]...), nil
		}
		return nil, apperr.NotFound("user %s not found", id)
	})
	if err != nil {
		return err
	}
	_, err = s.InvalidateUserSessions(id)
	s.logger.Info("user deleted", zap.String("id", id))
	return err
}
