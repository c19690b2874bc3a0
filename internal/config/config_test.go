package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Empty(t, cfg.SAT.Endpoint)
	assert.Equal(t, 30, cfg.SAT.TimeoutSecs)
	assert.Equal(t, 3, cfg.SAT.RetryAttempts)
	assert.Equal(t, "pdftoppm", cfg.QR.PdfToPPMPath)
	assert.Empty(t, cfg.QR.Attempts)
	assert.Equal(t, "sqlite", cfg.Blacklist.Driver)
	assert.Equal(t, 1, cfg.Blacklist.Column)
	assert.Equal(t, 3, cfg.Blacklist.SkipRows)
	assert.Equal(t, "0 6 1 * *", cfg.Blacklist.Cron)
	assert.Equal(t, "supplier-verify", cfg.Temporal.TaskQueue)
	assert.Equal(t, 30, cfg.Validation.RecencyDays)
	assert.Equal(t, 30, cfg.Validation.RegistrationDays)
	assert.InDelta(t, 0.6, cfg.Validation.NameThreshold, 0.001)
	assert.Equal(t, "America/Mexico_City", cfg.Validation.TimeZone)
	assert.Equal(t, "local", cfg.OCR.Provider)
	assert.Equal(t, 2, cfg.OCR.MaxPages)
	assert.Equal(t, "uploads", cfg.Storage.Dir)
	assert.Equal(t, int64(2<<20), cfg.Intake.MaxBytes)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
server:
  port: 9090
sat:
  endpoint: https://verify.example.com/api/sat/extract
blacklist:
  driver: postgres
  database_url: postgres://localhost/suppliers
qr:
  attempts:
    - scale: 2
    - scale: 3
      invert: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https://verify.example.com/api/sat/extract", cfg.SAT.Endpoint)
	assert.Equal(t, "postgres", cfg.Blacklist.Driver)
	require.Len(t, cfg.QR.Attempts, 2)
	assert.InDelta(t, 3.0, cfg.QR.Attempts[1].Scale, 0.001)
	assert.True(t, cfg.QR.Attempts[1].Invert)
	// Defaults still apply for unset values
	assert.Equal(t, 30, cfg.Validation.RecencyDays)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
blacklist:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("SUPPLIER_BLACKLIST_DRIVER", "memory")
	t.Setenv("SUPPLIER_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "memory", cfg.Blacklist.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("SUPPLIER_SERVER_PORT", "3000")
	t.Setenv("SUPPLIER_VALIDATION_RECENCY_DAYS", "45")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 45, cfg.Validation.RecencyDays)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SUPPLIER_BLACKLIST_DRIVER", "mongo")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown blacklist driver")
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Blacklist.Driver = "memory"
	cfg.Intake.MaxBytes = 2 << 20
	return cfg
}

func TestValidate(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate())

	cfg.Blacklist.Driver = "redis"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis_url is required")

	cfg.Blacklist.RedisURL = "redis://localhost:6379/0"
	assert.NoError(t, cfg.Validate())

	cfg.Intake.MaxBytes = 0
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "intake.max_bytes")

	cfg.Intake.MaxBytes = 1024
	cfg.Validation.TimeZone = "Mexico/Nowhere"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation.time_zone")

	cfg.Validation.TimeZone = "America/Mexico_City"
	cfg.QR.Attempts = []QRAttempt{{Scale: 0}}
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qr.attempts[0]")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
