package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/hay-kot/criterio"
	"github.com/rs/zerolog"
)

// Validate reports every invalid setting as criterio field errors.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		c.validateServer(),
		c.validateDatabase(),
		c.validateGenerator(),
		c.validateStores(),
		c.validateLog(),
		c.validateWebhooks(),
	)
}

func (c *Config) validateServer() error {
	var errs criterio.FieldErrorsBuilder
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = errs.Append("server.addr", fmt.Errorf("is required"))
	}
	if c.Server.ReadTimeout < 0 {
		errs = errs.Append("server.read_timeout", fmt.Errorf("must not be negative"))
	}
	if c.Server.WriteTimeout < 0 {
		errs = errs.Append("server.write_timeout", fmt.Errorf("must not be negative"))
	}
	if c.Pagination.DefaultLimit <= 0 {
		errs = errs.Append("pagination.default_limit", fmt.Errorf("must be positive"))
	}
	if c.Pagination.MaxLimit < c.Pagination.DefaultLimit {
		errs = errs.Append("pagination.max_limit", fmt.Errorf("must be at least default_limit (%d)", c.Pagination.DefaultLimit))
	}
	return errs.ToError()
}

func (c *Config) validateDatabase() error {
	var errs criterio.FieldErrorsBuilder
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.DSN == "" {
			errs = errs.Append("database.dsn", fmt.Errorf("is required for postgres"))
		}
	default:
		errs = errs.Append("database.driver", fmt.Errorf("must be sqlite or postgres, got %q", c.Database.Driver))
	}
	return errs.ToError()
}

func (c *Config) validateGenerator() error {
	var errs criterio.FieldErrorsBuilder
	switch c.Generator.Source {
	case SourceRules:
	case SourceRemote:
		if err := checkURL(c.Generator.RemoteURL, "http", "https"); err != nil {
			errs = errs.Append("generator.remote_url", err)
		}
	case SourceLLM:
		provider, model, ok := strings.Cut(c.Generator.Model, ":")
		if !ok || model == "" || !slices.Contains([]string{"anthropic", "openai"}, provider) {
			errs = errs.Append("generator.model", fmt.Errorf("must be anthropic:<model> or openai:<model>"))
		}
	default:
		errs = errs.Append("generator.source", fmt.Errorf("must be rules, remote or llm, got %q", c.Generator.Source))
	}
	if c.Generator.Timeout < 0 {
		errs = errs.Append("generator.timeout", fmt.Errorf("must not be negative"))
	}
	return errs.ToError()
}

func (c *Config) validateStores() error {
	var errs criterio.FieldErrorsBuilder
	if c.Cache.RedisURL != "" {
		if err := checkURL(c.Cache.RedisURL, "redis", "rediss"); err != nil {
			errs = errs.Append("cache.redis_url", err)
		}
	}
	if c.Export.Bucket != "" {
		if c.Export.Region == "" {
			errs = errs.Append("export.region", fmt.Errorf("is required when bucket is set"))
		}
		if (c.Export.AccessKey == "") != (c.Export.SecretKey == "") {
			errs = errs.Append("export.secret_key", fmt.Errorf("access_key and secret_key must be set together"))
		}
		if c.Export.Endpoint != "" {
			if err := checkURL(c.Export.Endpoint, "http", "https"); err != nil {
				errs = errs.Append("export.endpoint", err)
			}
		}
	}
	return errs.ToError()
}

func (c *Config) validateLog() error {
	var errs criterio.FieldErrorsBuilder
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = errs.Append("log.level", fmt.Errorf("unknown level %q", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = errs.Append("log.format", fmt.Errorf("must be json or console"))
	}
	return errs.ToError()
}

func (c *Config) validateWebhooks() error {
	var errs criterio.FieldErrorsBuilder
	for i, wh := range c.Webhooks {
		if err := checkURL(wh.URL, "http", "https"); err != nil {
			errs = errs.Append(fmt.Sprintf("webhooks[%d].url", i), err)
		}
		for j, evt := range wh.Events {
			if strings.TrimSpace(evt) == "" {
				errs = errs.Append(fmt.Sprintf("webhooks[%d].events[%d]", i, j), fmt.Errorf("must not be empty"))
			}
		}
	}
	return errs.ToError()
}

func checkURL(raw string, schemes ...string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if !slices.Contains(schemes, u.Scheme) || u.Host == "" {
		return fmt.Errorf("must be a %s url", strings.Join(schemes, " or "))
	}
	return nil
}
