package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadMergesEnvironmentAndSecrets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
server:
  port: ":8080"
api:
  base_url: "http://localhost:5000"
  timeout: 10s
session:
  backend: redis
  ttl: 2h
redis:
  addr: "localhost:6379"
  password: "${REDIS_PASSWORD}"
tasks:
  max_attachment_bytes: 1024
`)
	writeFile(t, dir, "staging.yaml", `
api:
  base_url: "https://api.staging.example"
`)
	writeFile(t, dir, "secrets.env", "REDIS_PASSWORD=s3cret\n")

	cfg, err := Load("staging", dir)
	require.NoError(t, err)

	assert.Equal(t, "https://api.staging.example", cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, "redis", cfg.Session.Backend)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "taskhub_session", cfg.Session.CookieName)
	assert.Equal(t, "s3cret", cfg.Redis.Password)
	assert.Equal(t, int64(1024), cfg.Tasks.MaxAttachmentBytes)
	assert.Equal(t, 10*time.Minute, cfg.DedupTTL)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
api:
  base_url: "http://localhost:5000"
`)
	t.Setenv("API_BASE_URL", "http://api.internal:9000")
	t.Setenv("API_TIMEOUT", "5s")
	t.Setenv("MAX_ATTACHMENT_BYTES", "2048")

	cfg, err := Load("local", dir)
	require.NoError(t, err)
	assert.Equal(t, "http://api.internal:9000", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, int64(2048), cfg.Tasks.MaxAttachmentBytes)
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.Equal(t, ":8080", cfg.Server.Port)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
session:
  backend: memory
`)
	_, err := Load("local", dir)
	assert.ErrorContains(t, err, "api.base_url")

	writeFile(t, dir, "base.yaml", `
api:
  base_url: "http://x"
session:
  backend: cassandra
`)
	_, err = Load("local", dir)
	assert.ErrorContains(t, err, "cassandra")
}

func TestLoadMissingBase(t *testing.T) {
	_, err := Load("local", t.TempDir())
	assert.Error(t, err)
}
