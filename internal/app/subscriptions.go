package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/modules/content"
	"github.com/folio-cms/folio/internal/modules/hooks"
	"github.com/folio-cms/folio/internal/modules/media"
	"github.com/folio-cms/folio/internal/modules/menu"
	"github.com/folio-cms/folio/internal/modules/settings"
	"github.com/folio-cms/folio/internal/modules/theme"
)

// subscribe keeps caches coherent with writes made anywhere in the process.
func (a *App) subscribe() {
	bus := a.bus
	hooks.AddAction(bus, content.UpdatedAction, func(m content.Mutation) error {
		a.purgePages("content " + string(m.Op))
		return nil
	}, hooks.DefaultPriority)

	hooks.AddAction(bus, settings.ChangedAction, func(c settings.Change) error {
		if c.New.ActiveTheme != c.Old.ActiveTheme {
			a.themes.Registry.Follow(c.New.ActiveTheme)
		}
		a.purgePages("settings changed")
		return nil
	}, hooks.DefaultPriority)

	hooks.AddAction(bus, menu.ChangedAction, func([]models.MenuItem) error {
		a.purgePages("menu changed")
		return nil
	}, hooks.DefaultPriority)

	hooks.AddAction(bus, theme.SwitchedAction, func(s theme.Switch) error {
		a.renderer.PurgeTemplates()
		a.purgePages("theme switched to " + s.To)
		return nil
	}, hooks.DefaultPriority)

	hooks.AddAction(bus, theme.InstalledAction, func(t models.Theme) error {
		a.renderer.PurgeTemplates()
		a.purgePages("theme installed: " + t.Name)
		return nil
	}, hooks.DefaultPriority)

	hooks.AddAction(bus, media.UploadedAction, func(asset *models.MediaAsset) error {
		a.metrics.RecordUpload(string(asset.Kind))
		return nil
	}, hooks.DefaultPriority)

	hooks.AddAction(bus, media.DeletedAction, func(*models.MediaAsset) error {
		a.purgePages("media deleted")
		return nil
	}, hooks.DefaultPriority)
}

func (a *App) purgePages(reason string) {
	if a.pageCache == nil {
		return
	}
	if err := a.pageCache.Purge(context.Background()); err != nil {
		a.logger.Warn("page cache purge failed", zap.String("reason", reason), zap.Error(err))
		return
	}
	a.logger.Debug("page cache purged", zap.String("reason", reason))
}
