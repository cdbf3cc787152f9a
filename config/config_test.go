package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"HOST", "PORT", "DATA_DIR", "DATABASE_PATH", "SECRET_KEY", "APP_ENV", "FLASK_ENV",
	"DEBUG", "BASE_URL", "LOGO_PATH", "WEBHOOK_URL", "LOG_LEVEL", "SHUTDOWN_TIMEOUT",
}

// clearEnv unsets every variable Load looks at; t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 5001, cfg.Port)
	assert.Equal(t, "0.0.0.0:5001", cfg.Addr())
	assert.Equal(t, filepath.Join(".", "members.db"), cfg.DatabasePath)
	assert.Equal(t, filepath.Join("static", "logo.png"), cfg.LogoPath)
	assert.True(t, cfg.DebugEnabled())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout.Duration)
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAMLFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
host: 127.0.0.1
port: 8080
data_dir: /var/lib/memberqr
environment: production
secret_key: s3cret
base_url: https://members.example.com/
shutdown_timeout: 3s
`)
	require.NoError(t, os.WriteFile(path, body, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Addr())
	assert.Equal(t, filepath.Join("/var/lib/memberqr", "members.db"), cfg.DatabasePath)
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.DebugEnabled())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "https://members.example.com", cfg.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout.Duration)
	assert.NoError(t, cfg.Validate())
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 8080\n"), 0o644))

	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_PATH", "/tmp/other.db")
	t.Setenv("DEBUG", "no")
	t.Setenv("LOGO_PATH", "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "/tmp/other.db", cfg.DatabasePath)
	assert.False(t, cfg.DebugEnabled())
	assert.Empty(t, cfg.LogoPath, "empty LOGO_PATH disables the logo")
}

func TestLoadRejectsBadYAML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("shutdown_timeout: forever\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	cfg.Port = 0
	assert.Error(t, cfg.Validate())

	cfg.Port = 5001
	cfg.Environment = "production"
	assert.Error(t, cfg.Validate(), "default secret is refused in production")

	cfg.SecretKey = "real-secret"
	assert.NoError(t, cfg.Validate())
}

func TestFlaskEnvIsFallbackForAppEnv(t *testing.T) {
	clearEnv(t)
	missing := filepath.Join(t.TempDir(), "missing.yaml")

	t.Setenv("FLASK_ENV", "production")
	cfg, err := Load(missing)
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.DebugEnabled())

	t.Setenv("APP_ENV", "development")
	cfg, err = Load(missing)
	require.NoError(t, err)
	assert.False(t, cfg.IsProduction(), "APP_ENV wins over FLASK_ENV")
	assert.True(t, cfg.DebugEnabled())
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PORT=7070\n"), 0o644))
	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
}

func TestLoadRejectsMalformedDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BAD-KEY=1\n"), 0o644))
	_, err := Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".env")
}
