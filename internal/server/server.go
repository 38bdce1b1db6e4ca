package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"compliancekit/internal/checklist"
	"compliancekit/internal/domain"
	"compliancekit/internal/engine"
	"compliancekit/internal/logutil"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	BasePath string
	Auth     AuthConfig
	Log      zerolog.Logger

	// Catalog restricts selections when StrictSelection is set. Zero value means the built-in catalog.
	Catalog         checklist.Catalog
	StrictSelection bool

	// Rules backs the function endpoint. Nil means the embedded rule set.
	Rules *checklist.RuleSet
}

type output[T any] struct {
	Body T
}

func respond[T any](v T) *output[T] {
	return &output[T]{Body: v}
}

type handlers struct {
	engine  *engine.Engine
	cfg     Config
	log     zerolog.Logger
	catalog checklist.Catalog
	rules   checklist.RuleSource
}

// New returns an HTTP handler exposing the compliance API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, errors.New("server: engine is required")
	}
	basePath := strings.Trim(cfg.BasePath, "/")
	if basePath == "" {
		basePath = "v0"
	}
	basePath = "/" + basePath
	catalog := cfg.Catalog
	if len(catalog.CompanyTypes) == 0 {
		catalog = checklist.DefaultCatalog()
	}
	h := &handlers{
		engine:  cfg.Engine,
		cfg:     cfg,
		log:     cfg.Log,
		catalog: catalog,
		rules:   checklist.NewRuleSource(cfg.Rules),
	}

	installErrorModel()

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(logutil.AccessLog(cfg.Log))
	router.Use(middleware.Recoverer)
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine, cfg.Log))
	api := humachi.New(router, apiConfig(basePath))
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerMe(group)
	registerDevAuth(group, cfg.Auth)
	registerOptions(group, h)
	registerChecklists(group, h)
	registerReminders(group, h)
	registerFunctions(group, h)
	registerEvents(group, h)
	registerAPIKeys(group, h)
	markPublic(api.OpenAPI(), "health", "dev-login")

	return router, nil
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*output[map[string]string], error) {
		return respond(map[string]string{"status": "ok"}), nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*output[WhoAmIResponse], error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, errUnauthenticated()
		}
		return respond(WhoAmIResponse{UserID: p.UserID, Source: p.Source}), nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	if !authCfg.DevLogin {
		return
	}
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest
	}) (*output[DevLoginResponse], error) {
		user := strings.TrimSpace(input.Body.UserID)
		if user == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id is required", nil)
		}
		ttl := authCfg.TokenTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		now := time.Now().UTC()
		token, err := SignToken(authCfg.JWTSecret, user, ttl, now)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return respond(DevLoginResponse{Token: token, ExpiresAt: now.Add(ttl).Format(time.RFC3339)}), nil
	})
}

func registerOptions(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-options",
		Method:      http.MethodGet,
		Path:        "/options",
		Summary:     "Selectable company types, jurisdictions and industries",
	}, func(ctx context.Context, _ *struct{}) (*output[OptionsResponse], error) {
		return respond(OptionsResponse{
			CompanyTypes:    h.catalog.CompanyTypes,
			Jurisdictions:   h.catalog.Jurisdictions,
			Industries:      h.catalog.Industries,
			Priorities:      domain.Priorities,
			Source:          h.engine.SourceName(),
			StrictSelection: h.cfg.StrictSelection,
		}), nil
	})
}
