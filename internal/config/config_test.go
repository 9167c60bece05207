package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.NoError(t, err)
	assert.Equal(t, DefaultHTTPAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultSessionWindow, cfg.Pipeline.SessionWindow.Duration)
	assert.Equal(t, DefaultMaxAttempts, cfg.Pipeline.MaxAttempts)
	assert.NotEmpty(t, cfg.Postgres.DSN())
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[server]
addr = ":9090"

[postgres]
host = "db.internal"
database = "commerce"

[pipeline]
session_window = "12h"

[twilio]
account_sid = "AC123"
auth_token = "secret"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("COMPTOIR_HTTP_ADDR", ":7070")

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr, "environment must override the file")
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, "commerce", cfg.Postgres.Database)
	assert.Equal(t, 12*time.Hour, cfg.Pipeline.SessionWindow.Duration)
	assert.Equal(t, "AC123", cfg.Twilio.AccountSID)
	assert.Equal(t, "postgres://postgres:@db.internal:5432/commerce?sslmode=disable", cfg.Postgres.DSN())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[pipeline]
max_delivery_attempts = 99
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := Load(path)
	assert.Error(t, err, "attempt cap outside 1..5 must be rejected")
}
