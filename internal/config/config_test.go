package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, filepath.Join("data", "themes"), cfg.ThemesPath())
	assert.True(t, cfg.IsDev())
	assert.Equal(t, 7*24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 5, cfg.LoginMaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.LoginWindow)
	assert.Equal(t, MediaBackendLocal, cfg.MediaBackend)
	assert.Equal(t, int64(20<<20), cfg.MaxUploadBytes())
	assert.True(t, cfg.WatchContent)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("DATA_DIR", "/srv/site")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://*.b.example")
	t.Setenv("MEDIA_BACKEND", "S3")
	t.Setenv("S3_BUCKET", "media")
	t.Setenv("S3_PATH_STYLE", "true")
	t.Setenv("WATCH_CONTENT", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "/srv/site", cfg.DataDir)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, []string{"https://a.example", "https://*.b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, MediaBackendS3, cfg.MediaBackend)
	assert.Equal(t, "media", cfg.S3.Bucket)
	assert.True(t, cfg.S3.PathStyle)
	assert.False(t, cfg.WatchContent)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "folio.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 3000
data_dir: /var/folio
env: production
log_level: debug
s3:
  region: eu-west-1
allowed_origins:
  - https://admin.example
`), 0o644))
	t.Setenv("PORT", "4000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, "/var/folio", cfg.DataDir)
	assert.False(t, cfg.IsDev())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "eu-west-1", cfg.S3.Region)
	assert.Equal(t, []string{"https://admin.example"}, cfg.AllowedOrigins)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	cases := map[string]map[string]string{
		"port":    {"PORT": "70000"},
		"env":     {"ENV": "staging"},
		"backend": {"MEDIA_BACKEND": "ftp"},
		"bucket":  {"MEDIA_BACKEND": "s3"},
		"upload":  {"MAX_UPLOAD_MB": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.ErrorContains(t, err, "invalid config")
		})
	}
}
