package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/folio-cms/folio/internal/config"
	"github.com/folio-cms/folio/internal/middleware"
	"github.com/folio-cms/folio/internal/modules/auth"
	"github.com/folio-cms/folio/internal/modules/content"
	"github.com/folio-cms/folio/internal/modules/health"
	"github.com/folio-cms/folio/internal/modules/hooks"
	"github.com/folio-cms/folio/internal/modules/markdown"
	"github.com/folio-cms/folio/internal/modules/media"
	"github.com/folio-cms/folio/internal/modules/menu"
	"github.com/folio-cms/folio/internal/modules/render"
	"github.com/folio-cms/folio/internal/modules/settings"
	"github.com/folio-cms/folio/internal/modules/static"
	"github.com/folio-cms/folio/internal/modules/syndication/feed"
	"github.com/folio-cms/folio/internal/modules/syndication/sitemap"
	"github.com/folio-cms/folio/internal/modules/theme"
	"github.com/folio-cms/folio/internal/pkg/cache"
	pkgcron "github.com/folio-cms/folio/internal/pkg/cron"
	"github.com/folio-cms/folio/internal/pkg/fsutil"
	"github.com/folio-cms/folio/internal/pkg/metrics"
	pkgredis "github.com/folio-cms/folio/internal/pkg/redis"
	"github.com/folio-cms/folio/internal/pkg/response"
	"github.com/folio-cms/folio/internal/pkg/watcher"
)

// LockFile guards a data directory against a second process.
const LockFile = ".folio.lock"

// App holds all application dependencies.
type App struct {
	cfg    *config.AppConfig
	logger *zap.Logger
	router *gin.Engine
	lock   *fsutil.DirLock

	bus       *hooks.Bus
	content   *content.Service
	settings  *settings.Service
	menu      *menu.Service
	themes    *theme.Service
	renderer  *render.Renderer
	feed      *feed.Builder
	sitemap   *sitemap.Builder
	exporter  *static.Exporter
	auth      *auth.Service
	media     *media.Registry
	pageCache cache.Store
	redis     *pkgredis.Client
	limiter   *middleware.RateLimiter
	metrics   *metrics.Collector
	gatherer  prometheus.Gatherer
	health    *health.Handler
	sched     *pkgcron.Scheduler
	watcher   *watcher.FileWatcher

	cancel   context.CancelFunc
	shutdown sync.Once
}

// New wires every service on top of cfg.DataDir and registers the routes.
// The caller owns the returned App and must call Shutdown.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	lock, err := fsutil.LockDir(cfg.DataDir, LockFile)
	if err != nil {
		return nil, fmt.Errorf("lock data dir %s: %w", cfg.DataDir, err)
	}
	a := &App{cfg: cfg, logger: logger, lock: lock}
	if err := a.build(); err != nil {
		a.Shutdown()
		return nil, err
	}
	a.subscribe()
	a.router = a.newRouter()
	a.registerRoutes()
	return a, nil
}

func (a *App) build() error {
	cfg, logger := a.cfg, a.logger
	response.SetLogger(logger)
	if err := applySessionSecret(cfg, logger); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.gatherer = reg
	a.metrics = metrics.NewCollector(reg)

	a.bus = hooks.NewBus(logger)

	store, err := content.NewStore(cfg.DataDir, logger)
	if err != nil {
		return fmt.Errorf("content store: %w", err)
	}
	index := content.NewIndex(store, logger)
	index.OnRebuild = a.metrics.RecordIndexRebuild
	a.content = content.NewService(store, index, a.bus, logger)

	a.settings = settings.NewService(cfg.DataDir, a.bus, logger)
	if _, err := a.settings.Get(); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	a.menu = menu.NewService(cfg.DataDir, a.bus, logger)

	registry, err := theme.NewRegistry(cfg.ThemesPath(), a.settings, a.bus, logger)
	if err != nil {
		return fmt.Errorf("themes: %w", err)
	}
	if err := registry.Seed(theme.Bundled()); err != nil {
		return fmt.Errorf("seed themes: %w", err)
	}
	if err := registry.Discover(); err != nil {
		return fmt.Errorf("discover themes: %w", err)
	}
	active, err := registry.SelectActive()
	if err != nil {
		return fmt.Errorf("select theme: %w", err)
	}
	logger.Info("active theme", zap.String("name", active.Name), zap.String("version", active.Manifest.Version))
	a.settings.SetThemeValidator(registry.Exists)
	market, err := newMarketplace(cfg)
	if err != nil {
		return err
	}
	installer := theme.NewInstaller(registry, a.bus, theme.DefaultMaxPackageSize, logger)
	a.themes = theme.NewService(registry, installer, market, logger)

	md := markdown.New()
	a.renderer = render.NewRenderer(index, registry, a.settings, a.menu, a.bus, logger, render.Options{
		ReloadTemplates: cfg.IsDev(),
		Markdown:        md,
	})
	a.renderer.OnRender = a.metrics.RecordRender
	a.feed = feed.NewBuilder(index, a.settings, md, logger)
	a.sitemap = sitemap.NewBuilder(index, a.settings, logger)

	blobs, err := newBlobStore(cfg)
	if err != nil {
		return err
	}
	a.media = media.NewRegistry(cfg.DataDir, blobs, index, a.content, a.bus, logger, media.Options{MaxBytes: cfg.MaxUploadBytes()})

	a.exporter = static.NewExporter(cfg.DataDir, a.renderer, index, registry, a.settings, a.bus, logger, static.Options{
		Media: a.media,
		Artifacts: []static.Artifact{
			{Path: "feed.xml", Build: a.feed.RSS},
			{Path: "atom.xml", Build: a.feed.Atom},
			{Path: "sitemap.xml", Build: a.sitemap.Build},
		},
	})
	a.exporter.OnExport = func(ok bool, pages int, _ time.Duration) { a.metrics.RecordExport(ok, pages) }

	a.auth = auth.NewService(cfg.DataDir, logger, auth.Options{
		SessionTTL:  cfg.SessionTTL,
		MaxAttempts: cfg.LoginMaxAttempts,
		Window:      cfg.LoginWindow,
	})
	a.auth.OnLogin = a.metrics.RecordLogin
	if _, err := a.auth.Bootstrap(cfg.AdminPassword); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	if a.pageCache, a.redis, err = newPageCache(cfg, logger); err != nil {
		return err
	}
	a.limiter = newRateLimiter(cfg, logger)

	a.sched = pkgcron.New(logger, pkgcron.Options{OnRun: a.metrics.RecordJob})
	if err := registerCronJobs(a.sched, a); err != nil {
		return fmt.Errorf("register cron jobs: %w", err)
	}

	a.health = health.NewHandler(a.sched, cfg.LogDir)
	a.health.AddCheck("dataDir", func(context.Context) error { return checkWritable(cfg.DataDir) })
	a.health.AddCheck("index", func(context.Context) error {
		_, err := index.All()
		return err
	})
	if a.redis != nil {
		a.health.AddCheck("redis", a.redis.Ping)
	}

	if cfg.WatchContent {
		onChange := func(paths []string) {
			logger.Info("content changed on disk", zap.Int("files", len(paths)))
			index.Invalidate()
			a.purgePages("content files changed")
		}
		if a.watcher, err = newContentWatcher(store, onChange, logger); err != nil {
			logger.Warn("content watcher unavailable", zap.Error(err))
		}
	}
	return nil
}

// Start launches background work: cron sweeps and the content watcher.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.sched.Start(ctx)
	if a.watcher != nil {
		a.watcher.Start(ctx)
	}
}

// Export runs one static export synchronously.
func (a *App) Export(ctx context.Context) (static.Result, error) {
	return a.exporter.Generate(ctx)
}

// Addr returns the listen address.
func (a *App) Addr() string { return a.cfg.Addr() }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops background goroutines and releases the data dir lock.
func (a *App) Shutdown() {
	a.shutdown.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}
		if a.sched != nil {
			a.sched.Wait()
		}
		if a.watcher != nil {
			a.watcher.Stop()
		}
		if a.limiter != nil {
			a.limiter.Stop()
		}
		if a.exporter != nil {
			a.exporter.Wait()
		}
		if a.redis != nil {
			_ = a.redis.Close()
		}
		if err := a.lock.Release(); err != nil {
			a.logger.Warn("release data dir lock", zap.Error(err))
		}
	})
}

// OutputDir is where exports are written for the current settings.
func (a *App) OutputDir() (string, error) {
	s, err := a.settings.Get()
	if err != nil {
		return "", err
	}
	return filepath.Clean(a.exporter.OutputDir(s)), nil
}
