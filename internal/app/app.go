// Package app wires configuration into a ready engine and HTTP handler.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"compliancekit/internal/cache"
	"compliancekit/internal/checklist"
	"compliancekit/internal/config"
	"compliancekit/internal/db"
	"compliancekit/internal/engine"
	"compliancekit/internal/export"
	"compliancekit/internal/generator"
	"compliancekit/internal/llm"
	"compliancekit/internal/migrate"
	"compliancekit/internal/notify"
	"compliancekit/internal/server"
)

// App holds the long-lived resources built from a Config.
type App struct {
	Config *config.Config
	Log    zerolog.Logger
	DB     *sql.DB
	Engine *engine.Engine
	// Rules is the rule table behind the rules source and the function endpoint.
	Rules *checklist.RuleSet

	closers []func() error
}

// Build opens the store, applies migrations and assembles the engine with the configured checklist
// source, cache and archive. The caller must Close the returned App.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	conn, err := db.Open(db.Config{Driver: cfg.Database.Driver, Workspace: cfg.Workspace, DSN: cfg.Database.DSN})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &App{Config: cfg, Log: log, DB: conn, closers: []func() error{conn.Close}}

	version, err := migrate.Migrate(ctx, conn, cfg.Database.Driver)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Debug().Int64("version", version).Str("driver", cfg.Database.Driver).Msg("database ready")

	rules, err := LoadRules(cfg.Generator)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Rules = rules
	src, err := sourceFor(cfg.Generator, rules)
	if err != nil {
		a.Close()
		return nil, err
	}

	e := engine.New(conn, cfg.Database.Driver)
	e.Source = src
	e.Log = log
	e.DefaultLimit = cfg.Pagination.DefaultLimit
	e.MaxLimit = cfg.Pagination.MaxLimit

	if cfg.Cache.RedisURL != "" {
		rdb, err := cache.Connect(ctx, cfg.Cache.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("checklist cache disabled")
		} else {
			c := cache.NewChecklistCache(rdb, cfg.Cache.TTL)
			e.Cache = c
			a.closers = append(a.closers, c.Close)
		}
	}

	if cfg.Export.Bucket != "" {
		archiver, err := export.NewS3Archiver(ctx, export.S3Config{
			Bucket:     cfg.Export.Bucket,
			Region:     cfg.Export.Region,
			Endpoint:   cfg.Export.Endpoint,
			AccessKey:  cfg.Export.AccessKey,
			SecretKey:  cfg.Export.SecretKey,
			PresignTTL: cfg.Export.PresignTTL,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("archive storage: %w", err)
		}
		e.Archiver = archiver
	}

	a.Engine = e
	log.Info().Str("source", e.SourceName()).Bool("cache", e.Cache != nil).Bool("archive", e.Archiver != nil).Msg("engine ready")
	return a, nil
}

// LoadRules returns the operator rule file when one is configured, else the embedded rule set.
func LoadRules(cfg config.GeneratorConfig) (*checklist.RuleSet, error) {
	if cfg.RulesFile == "" {
		return checklist.Default(), nil
	}
	return checklist.Load(cfg.RulesFile)
}

// NewSource selects the checklist source named by cfg.Source.
func NewSource(cfg config.GeneratorConfig) (checklist.Source, error) {
	rules, err := LoadRules(cfg)
	if err != nil {
		return nil, err
	}
	return sourceFor(cfg, rules)
}

func sourceFor(cfg config.GeneratorConfig, rules *checklist.RuleSet) (checklist.Source, error) {
	switch cfg.Source {
	case "", config.SourceRules:
		return checklist.NewRuleSource(rules), nil
	case config.SourceRemote:
		if cfg.RemoteURL == "" {
			return nil, errors.New("generator.remote_url is required for the remote source")
		}
		return generator.NewRemote(cfg.RemoteURL, cfg.FunctionName, cfg.RemoteToken, cfg.Timeout), nil
	case config.SourceLLM:
		p, err := llm.NewProvider(cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("llm source: %w", err)
		}
		return generator.NewLLM(p, ""), nil
	default:
		return nil, fmt.Errorf("unknown checklist source %q", cfg.Source)
	}
}

// Handler builds the HTTP API for the app's engine.
func (a *App) Handler() (http.Handler, error) {
	return server.New(server.Config{
		Engine:   a.Engine,
		BasePath: a.Config.Server.BasePath,
		Auth: server.AuthConfig{
			JWTSecret:             a.Config.Auth.JWTSecret,
			TokenTTL:              a.Config.Auth.TokenTTL,
			DevLogin:              a.Config.Auth.DevLogin,
			AllowLegacyUserHeader: a.Config.Auth.AllowLegacyUserHeader,
		},
		Log:             a.Log,
		Rules:           a.Rules,
		StrictSelection: a.Config.Generator.StrictSelection,
	})
}

// Webhooks returns a dispatcher for the enabled hooks, or nil when there are none.
func (a *App) Webhooks() *notify.Dispatcher {
	d := notify.New(a.Engine.Repo, a.Config.Webhooks, a.Log)
	if d.Len() == 0 {
		return nil
	}
	return d
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
