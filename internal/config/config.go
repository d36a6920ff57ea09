// Package config loads startup configuration from the environment and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultPort        = 8080
	defaultDataDir     = "./data"
	defaultEnv         = "development"
	defaultMaxUploadMB = 20

	EnvDevelopment = "development"
	EnvProduction  = "production"

	MediaBackendLocal = "local"
	MediaBackendS3    = "s3"
)

// AppConfig holds runtime startup configuration.
type AppConfig struct {
	Port      int    `mapstructure:"port"`
	DataDir   string `mapstructure:"data_dir"`
	ThemesDir string `mapstructure:"themes_dir"`
	Env       string `mapstructure:"env"` // "development" | "production"

	LogLevel string `mapstructure:"log_level"`
	LogDir   string `mapstructure:"log_dir"`

	SessionSecret    string        `mapstructure:"session_secret"`
	SessionTTL       time.Duration `mapstructure:"session_ttl"`
	LoginMaxAttempts int           `mapstructure:"login_max_attempts"`
	LoginWindow      time.Duration `mapstructure:"login_window"`
	AdminPassword    string        `mapstructure:"admin_password"`

	APIRateLimit float64 `mapstructure:"api_rate_limit"`
	APIRateBurst int     `mapstructure:"api_rate_burst"`

	RedisURL string `mapstructure:"redis_url"`

	MediaBackend string   `mapstructure:"media_backend"`
	S3           S3Config `mapstructure:"s3"`
	MaxUploadMB  int      `mapstructure:"max_upload_mb"`

	MarketplaceURL string   `mapstructure:"marketplace_url"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	WatchContent   bool     `mapstructure:"watch_content"`
}

// S3Config configures the S3 compatible media backend.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Prefix          string `mapstructure:"prefix"`
	PathStyle       bool   `mapstructure:"path_style"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", defaultPort)
	v.SetDefault("data_dir", defaultDataDir)
	v.SetDefault("themes_dir", "")
	v.SetDefault("env", defaultEnv)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_dir", "")
	v.SetDefault("session_secret", "")
	v.SetDefault("session_ttl", 7*24*time.Hour)
	v.SetDefault("login_max_attempts", 5)
	v.SetDefault("login_window", 15*time.Minute)
	v.SetDefault("admin_password", "")
	v.SetDefault("api_rate_limit", 10.0)
	v.SetDefault("api_rate_burst", 60)
	v.SetDefault("redis_url", "")
	v.SetDefault("media_backend", MediaBackendLocal)
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.prefix", "")
	v.SetDefault("s3.path_style", false)
	v.SetDefault("max_upload_mb", defaultMaxUploadMB)
	v.SetDefault("marketplace_url", "")
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("watch_content", true)
}

// Load reads configuration. Environment variables (PORT, DATA_DIR, S3_BUCKET,
// ...) win over the file; path may be empty, in which case config.yml in the
// working directory is used when present.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.MediaBackend = strings.ToLower(strings.TrimSpace(c.MediaBackend))
	if c.DataDir = strings.TrimSpace(c.DataDir); c.DataDir != "" {
		c.DataDir = filepath.Clean(c.DataDir)
	}
	if c.ThemesDir != "" {
		c.ThemesDir = filepath.Clean(c.ThemesDir)
	}
	origins := c.AllowedOrigins[:0]
	for _, o := range c.AllowedOrigins {
		for _, part := range strings.Split(o, ",") {
			if part = strings.TrimSpace(part); part != "" {
				origins = append(origins, part)
			}
		}
	}
	c.AllowedOrigins = origins
}

// Validate rejects settings the server cannot start with.
func (c *AppConfig) Validate() error {
	var problems []string
	if c.Port <= 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d out of range", c.Port))
	}
	if c.DataDir == "" {
		problems = append(problems, "data_dir is required")
	}
	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		problems = append(problems, fmt.Sprintf("env must be %q or %q", EnvDevelopment, EnvProduction))
	}
	switch c.MediaBackend {
	case MediaBackendLocal:
	case MediaBackendS3:
		if c.S3.Bucket == "" {
			problems = append(problems, "s3.bucket is required for the s3 media backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown media_backend %q", c.MediaBackend))
	}
	if c.MaxUploadMB <= 0 {
		problems = append(problems, "max_upload_mb must be positive")
	}
	if c.LoginMaxAttempts <= 0 || c.LoginWindow <= 0 {
		problems = append(problems, "login_max_attempts and login_window must be positive")
	}
	if c.SessionTTL <= 0 {
		problems = append(problems, "session_ttl must be positive")
	}
	if c.APIRateLimit <= 0 || c.APIRateBurst <= 0 {
		problems = append(problems, "api_rate_limit and api_rate_burst must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Addr is the listen address.
func (c *AppConfig) Addr() string { return fmt.Sprintf(":%d", c.Port) }

func (c *AppConfig) IsDev() bool { return c.Env == EnvDevelopment }

// ThemesPath defaults to <data_dir>/themes.
func (c *AppConfig) ThemesPath() string {
	if c.ThemesDir != "" {
		return c.ThemesDir
	}
	return filepath.Join(c.DataDir, "themes")
}

// MaxUploadBytes is the media size limit.
func (c *AppConfig) MaxUploadBytes() int64 { return int64(c.MaxUploadMB) << 20 }
