package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/folio-cms/folio/internal/config"
	"github.com/folio-cms/folio/internal/middleware"
	"github.com/folio-cms/folio/internal/modules/content"
	"github.com/folio-cms/folio/internal/modules/media"
	"github.com/folio-cms/folio/internal/modules/theme"
	"github.com/folio-cms/folio/internal/pkg/cache"
	"github.com/folio-cms/folio/internal/pkg/jwt"
	pkgredis "github.com/folio-cms/folio/internal/pkg/redis"
	"github.com/folio-cms/folio/internal/pkg/watcher"
)

const (
	marketplaceTimeout = 30 * time.Second
	watchDebounce      = 300 * time.Millisecond
)

// applySessionSecret keys the session cookie signer. Without a configured
// secret a random one is used and cookies do not survive restarts.
func applySessionSecret(cfg *config.AppConfig, logger *zap.Logger) error {
	secret := cfg.SessionSecret
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("generate session secret: %w", err)
		}
		secret = hex.EncodeToString(buf)
		logger.Warn("SESSION_SECRET is empty, using a random secret; session cookies reset on restart")
	}
	jwt.SetSecret(secret)
	return nil
}

func newMarketplace(cfg *config.AppConfig) (theme.Marketplace, error) {
	if cfg.MarketplaceURL == "" {
		return nil, nil
	}
	m, err := theme.NewHTTPMarketplace(cfg.MarketplaceURL, marketplaceTimeout)
	if err != nil {
		return nil, fmt.Errorf("marketplace: %w", err)
	}
	return m, nil
}

// newBlobStore returns nil for the local backend; the registry then keeps
// files next to their sidecars.
func newBlobStore(cfg *config.AppConfig) (media.BlobStore, error) {
	if cfg.MediaBackend != config.MediaBackendS3 {
		return nil, nil
	}
	store, err := media.NewS3Store(media.S3Options{
		Endpoint:        cfg.S3.Endpoint,
		Region:          cfg.S3.Region,
		Bucket:          cfg.S3.Bucket,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		Prefix:          cfg.S3.Prefix,
		PathStyleAccess: cfg.S3.PathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 media backend: %w", err)
	}
	return store, nil
}

// newPageCache picks redis when REDIS_URL is set, memory otherwise.
func newPageCache(cfg *config.AppConfig, logger *zap.Logger) (cache.Store, *pkgredis.Client, error) {
	if cfg.RedisURL == "" {
		return cache.NewMemory(cache.DefaultMaxEntries), nil, nil
	}
	client, err := pkgredis.Connect(context.Background(), cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	logger.Info("page cache backed by redis")
	return cache.NewRedis(client), client, nil
}

func newRateLimiter(cfg *config.AppConfig, logger *zap.Logger) *middleware.RateLimiter {
	rc := middleware.DefaultRateLimiterConfig()
	rc.Rate = rate.Limit(cfg.APIRateLimit)
	rc.Burst = cfg.APIRateBurst
	return middleware.NewRateLimiter(rc, logger)
}

// newContentWatcher invalidates the index when markdown files change outside the API.
func newContentWatcher(store *content.Store, onChange func([]string), logger *zap.Logger) (*watcher.FileWatcher, error) {
	w, err := watcher.New(watchDebounce, logger)
	if err != nil {
		return nil, err
	}
	w.AddFilter(watcher.ExtFilter(".md"))
	for _, dir := range store.Dirs() {
		if err := w.AddPath(dir); err != nil {
			w.Stop()
			return nil, err
		}
	}
	w.AddHandler(onChange)
	return w, nil
}

func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".healthz-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(filepath.Clean(name))
}
