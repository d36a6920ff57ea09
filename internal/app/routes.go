package app

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/folio-cms/folio/internal/middleware"
	"github.com/folio-cms/folio/internal/modules/auth"
	"github.com/folio-cms/folio/internal/modules/content"
	"github.com/folio-cms/folio/internal/modules/media"
	"github.com/folio-cms/folio/internal/modules/menu"
	"github.com/folio-cms/folio/internal/modules/render"
	"github.com/folio-cms/folio/internal/modules/settings"
	"github.com/folio-cms/folio/internal/modules/static"
	"github.com/folio-cms/folio/internal/modules/theme"
	"github.com/folio-cms/folio/internal/pkg/metrics"
	"github.com/folio-cms/folio/internal/pkg/response"
)

// APIPrefix is where the admin JSON API lives.
const APIPrefix = "/api"

func (a *App) newRouter() *gin.Engine {
	if a.cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(apiOnly(newCORS(a.cfg)))
	router.Use(middleware.Logger(a.logger.Named("HTTP")))
	router.Use(middleware.Metrics(a.metrics))
	router.Use(middleware.Auth(a.auth))
	return router
}

func (a *App) registerRoutes() {
	r := a.router
	editorMW := middleware.RequireEditor()
	adminMW := middleware.RequireAdmin()

	api := r.Group(APIPrefix, a.limiter.Middleware())
	content.NewHandler(a.content).RegisterRoutes(api, editorMW)
	menu.NewHandler(a.menu).RegisterRoutes(api, editorMW)
	settings.NewHandler(a.settings).RegisterRoutes(api, adminMW)
	theme.NewHandler(a.themes).RegisterRoutes(api, editorMW, adminMW)
	static.NewHandler(a.exporter).RegisterRoutes(api, adminMW)
	mediaHandler := media.NewHandler(a.media)
	mediaHandler.RegisterRoutes(api, editorMW)
	authHandler := auth.NewHandler(a.auth, a.logger)
	authHandler.SecureCookie = !a.cfg.IsDev()
	authHandler.RegisterRoutes(api, adminMW)
	a.health.RegisterAdminRoutes(api, adminMW)

	a.health.RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(metrics.Handler(a.gatherer)))
	mediaHandler.RegisterPublicRoutes(r)

	cacheMW := middleware.HTTPCache(a.pageCache, middleware.HTTPCacheOptions{
		Policy:    a.cachePolicy,
		SkipPaths: []string{APIPrefix + "/*", "/metrics", "/healthz"},
		OnLookup:  a.metrics.RecordCache,
	})
	cached := r.Group("", cacheMW)
	a.feed.RegisterRoutes(cached)
	a.sitemap.RegisterRoutes(cached)

	site := render.NewHandler(a.renderer, a.themes.Registry, a.logger)
	site.RegisterRoutes(r)

	r.NoRoute(apiNotFound, cacheMW, site.Serve)
	r.NoMethod(func(c *gin.Context) {
		if isAPIPath(c.Request.URL.Path) {
			response.MethodNotAllowed(c)
			return
		}
		site.Serve(c)
	})
}

// cachePolicy follows the enableCaching and cacheDuration settings.
func (a *App) cachePolicy() (bool, time.Duration) {
	s, err := a.settings.Get()
	if err != nil || !s.EnableCaching || s.CacheDuration <= 0 {
		return false, 0
	}
	return true, time.Duration(s.CacheDuration) * time.Second
}

func isAPIPath(p string) bool {
	return p == APIPrefix || strings.HasPrefix(p, APIPrefix+"/")
}

// apiNotFound answers unknown /api paths with the JSON envelope instead of the 404 page.
func apiNotFound(c *gin.Context) {
	if isAPIPath(c.Request.URL.Path) {
		response.NotFound(c)
	}
}

// apiOnly limits mw to /api requests.
func apiOnly(mw gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isAPIPath(c.Request.URL.Path) {
			mw(c)
		}
	}
}
