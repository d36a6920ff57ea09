package theme

import (
	"context"

	"go.uber.org/zap"

	"github.com/folio-cms/folio/internal/pkg/apperr"
)

// Service combines the registry, the installer and the marketplace for handlers.
type Service struct {
	Registry    *Registry
	Installer   *Installer
	marketplace Marketplace
	logger      *zap.Logger
}

func NewService(registry *Registry, installer *Installer, marketplace Marketplace, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{Registry: registry, Installer: installer, marketplace: marketplace, logger: logger.Named("Themes")}
}

func (s *Service) market() (Marketplace, error) {
	if s.marketplace == nil {
		return nil, apperr.NotFound("marketplace is not configured")
	}
	return s.marketplace, nil
}

// Browse lists the marketplace catalog with local install state.
func (s *Service) Browse(ctx context.Context) ([]MarketplaceTheme, error) {
	m, err := s.market()
	if err != nil {
		return nil, err
	}
	catalog, err := m.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	for i := range catalog {
		if t, err := s.Registry.Get(catalog[i].Name); err == nil {
			catalog[i].Installed = true
			catalog[i].InstalledVersion = t.Manifest.Version
		}
	}
	return catalog, nil
}

// InstallFromMarketplace downloads name and runs it through the installer.
func (s *Service) InstallFromMarketplace(ctx context.Context, name string, allowUpdate bool) (*Result, error) {
	m, err := s.market()
	if err != nil {
		return nil, err
	}
	body, err := m.Download(ctx, name)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	s.logger.Info("installing theme from marketplace", zap.String("theme", name), zap.Bool("update", allowUpdate))
	return s.Installer.Install(ctx, body, InstallOptions{AllowUpdate: allowUpdate})
}

// CheckUpdate compares the installed version of name with the catalog.
func (s *Service) CheckUpdate(ctx context.Context, name string) (UpdateInfo, error) {
	installed, err := s.Registry.Get(name)
	if err != nil {
		return UpdateInfo{}, err
	}
	m, err := s.market()
	if err != nil {
		return UpdateInfo{}, err
	}
	catalog, err := m.Catalog(ctx)
	if err != nil {
		return UpdateInfo{}, err
	}
	for _, t := range catalog {
		if t.Name != name {
			continue
		}
		changelog := t.Changelog
		if changelog == nil {
			changelog = []string{}
		}
		return UpdateInfo{
			Name:            name,
			CurrentVersion:  installed.Manifest.Version,
			LatestVersion:   t.Version,
			Changelog:       changelog,
			UpdateAvailable: CompareVersions(t.Version, installed.Manifest.Version) > 0,
		}, nil
	}
	return UpdateInfo{}, apperr.NotFound("theme %s is not in the marketplace", name)
}
