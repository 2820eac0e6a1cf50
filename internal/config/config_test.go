package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir moves into an empty directory so no stray analyst.yaml is picked up.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	chdir(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Server.MaxConcurrentAnalyses)
	assert.Equal(t, "python:3.12-slim", cfg.Sandbox.Image)
	assert.Equal(t, 5*time.Minute, cfg.Sandbox.EnvironmentBudget)
	assert.Equal(t, []string{"pandas", "tabulate"}, cfg.Sandbox.Dependencies)
	assert.Equal(t, "info", cfg.Log.Level)

	assert.Equal(t, int64(512*1024*1024), cfg.Docker().MemoryLimit)
	assert.Len(t, cfg.Analysis().Dependencies, 2)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "custom.yaml")
	writeFile(t, path, `
server:
  port: 9000
sandbox:
  memory_limit: 1g
  exec_timeout: 90s
  dependencies:
    - tabulate
    - sklearn=scikit-learn
log:
  format: json
`)
	t.Setenv("ANALYST_SANDBOX_IMAGE", "python:3.11")
	t.Setenv("ANALYST_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "python:3.11", cfg.Sandbox.Image)
	assert.Equal(t, 90*time.Second, cfg.Sandbox.ExecTimeout)
	assert.Equal(t, int64(1<<30), cfg.Docker().MemoryLimit)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Len(t, cfg.Analysis().Dependencies, 2)
}

func TestLoadLegacyEnv(t *testing.T) {
	chdir(t)
	t.Setenv("PORT", "3001")
	t.Setenv("DB_PATH", "/tmp/x.db")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, "/tmp/x.db", cfg.Server.DBPath)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
}

func TestLoadPrefixedEnvWinsOverLegacy(t *testing.T) {
	chdir(t)
	t.Setenv("PORT", "3001")
	t.Setenv("ANALYST_SERVER_PORT", "3002")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3002, cfg.Server.Port)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	dir := chdir(t)
	_, err := Load(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad memory", func(c *Config) { c.Sandbox.MemoryLimit = "lots" }, "sandbox.memory_limit"},
		{"zero budget", func(c *Config) { c.Sandbox.EnvironmentBudget = 0 }, "sandbox.environment_budget"},
		{"exec beyond budget", func(c *Config) { c.Sandbox.ExecTimeout = time.Hour }, "exceeds"},
		{"bad dependency", func(c *Config) { c.Sandbox.Dependencies = []string{"not valid"} }, "sandbox.dependencies"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t)
			cfg, err := Load("")
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdir(t)
	writeFile(t, filepath.Join(dir, ".env"), "ANALYST_TEST_DOTENV=from-file\nANALYST_TEST_PRESET=from-file\n")
	t.Setenv("ANALYST_TEST_DOTENV", "")
	os.Unsetenv("ANALYST_TEST_DOTENV")
	t.Setenv("ANALYST_TEST_PRESET", "from-env")

	require.NoError(t, LoadDotEnv())

	assert.Equal(t, "from-file", os.Getenv("ANALYST_TEST_DOTENV"))
	assert.Equal(t, "from-env", os.Getenv("ANALYST_TEST_PRESET"), "existing variables win")
}

func TestYAMLMasksSecret(t *testing.T) {
	chdir(t)
	t.Setenv("ANALYST_AUTH_JWT_SECRET", "top-secret")

	cfg, err := Load("")
	require.NoError(t, err)

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "top-secret")
	assert.Contains(t, string(out), "image: python:3.12-slim")
	assert.Contains(t, string(out), "exec_timeout: 1m0s")
	assert.Equal(t, "top-secret", cfg.Auth.JWTSecret, "rendering must not modify the config")
}

func TestNewLoggerFormat(t *testing.T) {
	chdir(t)
	cfg, err := Load("")
	require.NoError(t, err)

	var buf bytes.Buffer
	cfg.Log.Format = "json"
	cfg.NewLogger(&buf).Info("hello")
	assert.True(t, strings.HasPrefix(buf.String(), "{"))

	buf.Reset()
	cfg.Log.Format = "text"
	cfg.Log.Level = "warn"
	cfg.NewLogger(&buf).Info("hidden")
	assert.Empty(t, buf.String())
}
