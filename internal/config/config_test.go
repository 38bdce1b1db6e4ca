package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	Bind(v)
	v.Set("workspace", t.TempDir())
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper(t), "")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.Equal(t, "/v0", cfg.Server.BasePath)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, SourceRules, cfg.Generator.Source)
	assert.True(t, cfg.Generator.StrictSelection)
	assert.Equal(t, 50, cfg.Pagination.DefaultLimit)
	assert.Equal(t, 200, cfg.Pagination.MaxLimit)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Webhooks)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	body := `
server:
  addr: 0.0.0.0:9000
  base_path: api/
generator:
  strict_selection: false
pagination:
  default_limit: 10
  max_limit: 20
webhooks:
  - url: https://hooks.example.com/ck
    events: [checklist.created]
    enabled: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0o644))
	t.Setenv("COMPLIANCEKIT_LOG_LEVEL", "debug")
	t.Setenv("COMPLIANCEKIT_CACHE_TTL", "90s")

	v := viper.New()
	Bind(v)
	v.Set("workspace", dir)
	cfg, err := Load(v, "")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, "/api", cfg.Server.BasePath)
	assert.False(t, cfg.Generator.StrictSelection)
	assert.Equal(t, 10, cfg.Pagination.DefaultLimit)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
	require.Len(t, cfg.Webhooks, 1)
	assert.Equal(t, 5, cfg.Webhooks[0].TimeoutSeconds)
	assert.Equal(t, []string{"checklist.created"}, cfg.Webhooks[0].Events)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(newViper(t), filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, LoadDotEnv(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("COMPLIANCEKIT_TEST_DOTENV=loaded\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("COMPLIANCEKIT_TEST_DOTENV") })
	require.NoError(t, LoadDotEnv(dir))
	assert.Equal(t, "loaded", os.Getenv("COMPLIANCEKIT_TEST_DOTENV"))
}

func fieldNames(t *testing.T, err error) []string {
	t.Helper()
	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	names := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		names = append(names, fe.Field)
	}
	return names
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(c *Config)
		field string
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }, "database.dsn"},
		{"bad source", func(c *Config) { c.Generator.Source = "magic" }, "generator.source"},
		{"remote without url", func(c *Config) { c.Generator.Source = SourceRemote }, "generator.remote_url"},
		{"llm bad model", func(c *Config) {
			c.Generator.Source = SourceLLM
			c.Generator.Model = "gpt"
		}, "generator.model"},
		{"bad redis url", func(c *Config) { c.Cache.RedisURL = "http://localhost" }, "cache.redis_url"},
		{"half credentials", func(c *Config) {
			c.Export.Bucket = "b"
			c.Export.AccessKey = "k"
		}, "export.secret_key"},
		{"limits inverted", func(c *Config) { c.Pagination.MaxLimit = 10 }, "pagination.max_limit"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad webhook", func(c *Config) { c.Webhooks = []WebhookConfig{{URL: "ftp://x"}} }, "webhooks[0].url"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.edit(cfg)
			assert.Contains(t, fieldNames(t, cfg.Validate()), tc.field)
		})
	}
}

func TestValidateDefaultAndPostgres(t *testing.T) {
	require.NoError(t, Default().Validate())

	cfg := Default()
	cfg.Database.Driver = "postgres"
	cfg.Database.DSN = "postgres://localhost/ck"
	cfg.Generator.Source = SourceLLM
	cfg.Generator.Model = "openai:gpt-4o-mini"
	require.NoError(t, cfg.Validate())
}
