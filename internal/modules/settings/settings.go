// Package settings persists the site-wide settings document.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/modules/hooks"
	"github.com/folio-cms/folio/internal/pkg/apperr"
	"github.com/folio-cms/folio/internal/pkg/fsutil"
)

// FileName is the settings document under the data dir.
const FileName = "settings.json"

// Change carries the settings before and after a write.
type Change struct {
	Old models.Settings
	New models.Settings
}

// ChangedAction fires after settings are persisted.
var ChangedAction = hooks.NewAction[Change]("settingsChanged")

// Service manages settings.json. Reads are served from memory.
type Service struct {
	path   string
	bus    *hooks.Bus
	logger *zap.Logger

	mu  sync.RWMutex
	cfg *models.Settings

	themeExists func(name string) bool
}

func NewService(dataDir string, bus *hooks.Bus, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		path:   filepath.Join(dataDir, FileName),
		bus:    bus,
		logger: logger.Named("Settings"),
	}
}

// SetThemeValidator installs the check used for activeTheme writes.
func (s *Service) SetThemeValidator(fn func(name string) bool) {
	s.mu.Lock()
	s.themeExists = fn
	s.mu.Unlock()
}

// Get returns a copy of the current settings, loading (and seeding) the file on first use.
func (s *Service) Get() (models.Settings, error) {
	s.mu.RLock()
	if s.cfg != nil {
		defer s.mu.RUnlock()
		return *s.cfg, nil
	}
	s.mu.RUnlock()
	return s.load()
}

func (s *Service) load() (models.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg != nil {
		return *s.cfg, nil
	}

	cfg := models.DefaultSettings()
	err := fsutil.ReadJSON(s.path, &cfg)
	switch {
	case err == nil:
	case os.IsNotExist(err):
		s.logger.Info("settings file missing, writing defaults", zap.String("path", s.path))
		if err := fsutil.WriteJSON(s.path, cfg); err != nil {
			return models.Settings{}, apperr.Internal("write default settings", err)
		}
	default:
		return models.Settings{}, apperr.Internal("read settings", err)
	}
	s.cfg = &cfg
	return cfg, nil
}

// Patch merges partial JSON onto the current settings, validates and persists.
// Unknown keys are rejected.
func (s *Service) Patch(partial map[string]json.RawMessage) (models.Settings, error) {
	current, err := s.Get()
	if err != nil {
		return models.Settings{}, err
	}

	merged := map[string]json.RawMessage{}
	raw, _ := json.Marshal(current)
	_ = json.Unmarshal(raw, &merged)

	errs := apperr.FieldErrors{}
	for k, v := range partial {
		if !knownKeys[k] {
			errs.Add(k, "unknown setting")
			continue
		}
		if len(strings.TrimSpace(string(v))) == 0 || string(v) == "null" {
			continue
		}
		merged[k] = v
	}
	if err := errs.Err("invalid settings"); err != nil {
		return models.Settings{}, err
	}

	raw, _ = json.Marshal(merged)
	next := models.DefaultSettings()
	if err := json.Unmarshal(raw, &next); err != nil {
		return models.Settings{}, apperr.Validation("invalid settings", map[string]string{"body": err.Error()})
	}
	return s.Replace(next)
}

// Replace validates and stores a complete settings value.
func (s *Service) Replace(next models.Settings) (models.Settings, error) {
	current, err := s.Get()
	if err != nil {
		return models.Settings{}, err
	}
	normalize(&next)
	if err := s.validate(current, next); err != nil {
		return models.Settings{}, err
	}

	s.mu.Lock()
	if err := fsutil.WriteJSON(s.path, next); err != nil {
		s.mu.Unlock()
		return models.Settings{}, apperr.Internal("write settings", err)
	}
	s.cfg = &next
	s.mu.Unlock()

	s.logger.Info("settings updated", zap.String("activeTheme", next.ActiveTheme))
	if s.bus != nil {
		hooks.DoAction(s.bus, ChangedAction, Change{Old: current, New: next})
	}
	return next, nil
}

// SetActiveTheme records name as the active theme.
func (s *Service) SetActiveTheme(name string) (models.Settings, error) {
	current, err := s.Get()
	if err != nil {
		return models.Settings{}, err
	}
	if current.ActiveTheme == name {
		return current, nil
	}
	current.ActiveTheme = name
	return s.Replace(current)
}

var knownKeys = func() map[string]bool {
	keys := map[string]bool{}
	t := reflect.TypeOf(models.Settings{})
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		keys[name] = true
	}
	return keys
}()

func normalize(cfg *models.Settings) {
	cfg.SiteTitle = strings.TrimSpace(cfg.SiteTitle)
	cfg.SiteURL = strings.TrimRight(strings.TrimSpace(cfg.SiteURL), "/")
	cfg.ActiveTheme = strings.TrimSpace(cfg.ActiveTheme)
	cfg.StaticOutputDir = strings.TrimSpace(cfg.StaticOutputDir)
	cfg.StaticBaseURL = strings.TrimSpace(cfg.StaticBaseURL)
}

func (s *Service) validate(current, next models.Settings) error {
	errs := apperr.FieldErrors{}
	if next.SiteTitle == "" {
		errs.Add("siteTitle", "site title is required")
	}
	if next.PostsPerPage < 0 {
		errs.Add("postsPerPage", "must not be negative")
	}
	if next.CacheDuration < 0 {
		errs.Add("cacheDuration", "must not be negative")
	}
	if next.StaticOutputDir == "" {
		errs.Add("staticOutputDir", "output directory is required")
	} else if filepath.IsAbs(next.StaticOutputDir) || strings.Contains(filepath.ToSlash(next.StaticOutputDir), "..") {
		errs.Add("staticOutputDir", "must be a relative path inside the data directory")
	}
	if next.ActiveTheme == "" {
		errs.Add("activeTheme", "active theme is required")
	} else if next.ActiveTheme != current.ActiveTheme {
		s.mu.RLock()
		exists := s.themeExists
		s.mu.RUnlock()
		if exists != nil && !exists(next.ActiveTheme) {
			errs.Add("activeTheme", "theme "+next.ActiveTheme+" is not installed")
		}
	}
	return errs.Err("invalid settings")
}
