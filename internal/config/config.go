// Package config loads service settings from compliancekit.yml, the environment and CLI flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the workspace when no path is given.
const FileName = "compliancekit.yml"

// EnvPrefix prefixes every environment override, e.g. COMPLIANCEKIT_SERVER_ADDR.
const EnvPrefix = "COMPLIANCEKIT"

type Config struct {
	Workspace  string           `mapstructure:"workspace" yaml:"workspace" json:"workspace"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server" json:"server"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database" json:"database"`
	Auth       AuthConfig       `mapstructure:"auth" yaml:"auth" json:"auth"`
	Generator  GeneratorConfig  `mapstructure:"generator" yaml:"generator" json:"generator"`
	Cache      CacheConfig      `mapstructure:"cache" yaml:"cache" json:"cache"`
	Export     ExportConfig     `mapstructure:"export" yaml:"export" json:"export"`
	Pagination PaginationConfig `mapstructure:"pagination" yaml:"pagination" json:"pagination"`
	Log        LogConfig        `mapstructure:"log" yaml:"log" json:"log"`
	Webhooks   []WebhookConfig  `mapstructure:"webhooks" yaml:"webhooks" json:"webhooks"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr" json:"addr"`
	BasePath        string        `mapstructure:"base_path" yaml:"base_path" json:"base_path"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver" json:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn" json:"-"`
}

type AuthConfig struct {
	JWTSecret             string        `mapstructure:"jwt_secret" yaml:"jwt_secret" json:"-"`
	TokenTTL              time.Duration `mapstructure:"token_ttl" yaml:"token_ttl" json:"token_ttl"`
	DevLogin              bool          `mapstructure:"dev_login" yaml:"dev_login" json:"dev_login"`
	AllowLegacyUserHeader bool          `mapstructure:"allow_legacy_user_header" yaml:"allow_legacy_user_header" json:"allow_legacy_user_header"`
}

// Checklist sources.
const (
	SourceRules  = "rules"
	SourceRemote = "remote"
	SourceLLM    = "llm"
)

type GeneratorConfig struct {
	Source          string        `mapstructure:"source" yaml:"source" json:"source"`
	RulesFile       string        `mapstructure:"rules_file" yaml:"rules_file" json:"rules_file"`
	StrictSelection bool          `mapstructure:"strict_selection" yaml:"strict_selection" json:"strict_selection"`
	RemoteURL       string        `mapstructure:"remote_url" yaml:"remote_url" json:"remote_url"`
	RemoteToken     string        `mapstructure:"remote_token" yaml:"remote_token" json:"-"`
	FunctionName    string        `mapstructure:"function_name" yaml:"function_name" json:"function_name"`
	Model           string        `mapstructure:"model" yaml:"model" json:"model"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

type CacheConfig struct {
	RedisURL string        `mapstructure:"redis_url" yaml:"redis_url" json:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl" json:"ttl"`
}

type ExportConfig struct {
	Bucket     string        `mapstructure:"bucket" yaml:"bucket" json:"bucket"`
	Region     string        `mapstructure:"region" yaml:"region" json:"region"`
	Endpoint   string        `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	AccessKey  string        `mapstructure:"access_key" yaml:"access_key" json:"-"`
	SecretKey  string        `mapstructure:"secret_key" yaml:"secret_key" json:"-"`
	PresignTTL time.Duration `mapstructure:"presign_ttl" yaml:"presign_ttl" json:"presign_ttl"`
}

type PaginationConfig struct {
	DefaultLimit int `mapstructure:"default_limit" yaml:"default_limit" json:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit" yaml:"max_limit" json:"max_limit"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	File   string `mapstructure:"file" yaml:"file" json:"file"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// WebhookConfig subscribes a URL to audit events.
type WebhookConfig struct {
	URL            string   `mapstructure:"url" yaml:"url" json:"url"`
	Events         []string `mapstructure:"events" yaml:"events" json:"events"`
	Secret         string   `mapstructure:"secret" yaml:"secret" json:"-"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds" yaml:"timeout_seconds" json:"timeout_seconds"`
	Enabled        *bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled,omitempty"`
}

// IsEnabled treats an unset enabled flag as on.
func (w WebhookConfig) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		Workspace: ".",
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			BasePath:        "/v0",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Database: DatabaseConfig{Driver: "sqlite"},
		Auth:     AuthConfig{TokenTTL: 24 * time.Hour},
		Generator: GeneratorConfig{
			Source:          SourceRules,
			StrictSelection: true,
			FunctionName:    "generate-checklist",
			Model:           "anthropic:claude-sonnet-4-5",
			Timeout:         60 * time.Second,
		},
		Cache:      CacheConfig{TTL: time.Hour},
		Export:     ExportConfig{Region: "us-east-1", PresignTTL: 15 * time.Minute},
		Pagination: PaginationConfig{DefaultLimit: 50, MaxLimit: 200},
		Log:        LogConfig{Level: "info", Format: "json"},
	}
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("workspace", d.Workspace)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.base_path", d.Server.BasePath)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.token_ttl", d.Auth.TokenTTL)
	v.SetDefault("auth.dev_login", d.Auth.DevLogin)
	v.SetDefault("auth.allow_legacy_user_header", d.Auth.AllowLegacyUserHeader)
	v.SetDefault("generator.source", d.Generator.Source)
	v.SetDefault("generator.rules_file", d.Generator.RulesFile)
	v.SetDefault("generator.strict_selection", d.Generator.StrictSelection)
	v.SetDefault("generator.remote_url", d.Generator.RemoteURL)
	v.SetDefault("generator.remote_token", d.Generator.RemoteToken)
	v.SetDefault("generator.function_name", d.Generator.FunctionName)
	v.SetDefault("generator.model", d.Generator.Model)
	v.SetDefault("generator.timeout", d.Generator.Timeout)
	v.SetDefault("cache.redis_url", d.Cache.RedisURL)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("export.bucket", d.Export.Bucket)
	v.SetDefault("export.region", d.Export.Region)
	v.SetDefault("export.endpoint", d.Export.Endpoint)
	v.SetDefault("export.access_key", d.Export.AccessKey)
	v.SetDefault("export.secret_key", d.Export.SecretKey)
	v.SetDefault("export.presign_ttl", d.Export.PresignTTL)
	v.SetDefault("pagination.default_limit", d.Pagination.DefaultLimit)
	v.SetDefault("pagination.max_limit", d.Pagination.MaxLimit)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.format", d.Log.Format)
}

// Bind prepares v for Load: defaults, env prefix and key replacer. Flags bound by the caller take
// precedence over env, which takes precedence over the file.
func Bind(v *viper.Viper) {
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// LoadDotEnv loads .env from dir when present. Existing environment variables win.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the config file at path, or compliancekit.yml in the workspace when path is empty,
// then applies environment overrides and validates the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path == "" {
		path = filepath.Join(v.GetString("workspace"), FileName)
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Server.BasePath = "/" + strings.Trim(strings.TrimSpace(c.Server.BasePath), "/")
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	c.Generator.Source = strings.ToLower(strings.TrimSpace(c.Generator.Source))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	for i := range c.Webhooks {
		if c.Webhooks[i].TimeoutSeconds <= 0 {
			c.Webhooks[i].TimeoutSeconds = 5
		}
	}
}
