package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"compliancekit/internal/engine"
)

const tokenIssuer = "compliancekit"

// Credential sources reported by /me.
const (
	SourceJWT          = "jwt"
	SourceAPIKey       = "api_key"
	SourceLegacyHeader = "legacy_header"
)

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	DevLogin  bool
	// AllowLegacyUserHeader trusts X-User-Id when no other credential is sent. Local use only.
	AllowLegacyUserHeader bool
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Source string
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.UserID != ""
}

// ownerFromContext returns the caller's user id. Engine calls receive it explicitly.
func ownerFromContext(ctx context.Context) (string, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok {
		return p.UserID, nil
	}
	return "", errUnauthenticated()
}

func errUnauthenticated() huma.StatusError {
	return newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

// SignToken mints an HS256 token whose subject is the user id.
func SignToken(secret, userID string, ttl time.Duration, now time.Time) (string, error) {
	switch {
	case strings.TrimSpace(secret) == "":
		return "", errors.New("jwt secret not configured")
	case strings.TrimSpace(userID) == "":
		return "", errors.New("user id required")
	}
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// authenticateJWT verifies signature, expiry and issuer and returns the subject.
func authenticateJWT(token, secret string) (Principal, error) {
	if strings.TrimSpace(secret) == "" {
		return Principal{}, errors.New("jwt secret not configured")
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return Principal{}, err
	}
	if claims.Subject == "" {
		return Principal{}, errors.New("token has no subject")
	}
	return Principal{UserID: claims.Subject, Source: SourceJWT}, nil
}

// errBadCredentials marks credentials that were sent but rejected.
var errBadCredentials = errors.New("invalid credentials")

type authenticator struct {
	cfg    AuthConfig
	engine *engine.Engine
	log    zerolog.Logger
}

// principal resolves the caller from, in order, a bearer token, an API key or the legacy header.
// It returns a zero Principal and no error when the request carries no credentials.
func (a authenticator) principal(req *http.Request) (Principal, error) {
	if authz := strings.TrimSpace(req.Header.Get("Authorization")); authz != "" {
		scheme, token, ok := strings.Cut(authz, " ")
		token = strings.TrimSpace(token)
		if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
			return Principal{}, errBadCredentials
		}
		p, err := authenticateJWT(token, a.cfg.JWTSecret)
		if err != nil {
			a.log.Debug().Err(err).Msg("bearer token rejected")
			return Principal{}, errBadCredentials
		}
		return p, nil
	}
	if key := strings.TrimSpace(req.Header.Get("X-Api-Key")); key != "" {
		owner, err := a.engine.ResolveAPIKey(req.Context(), key)
		var aerr engine.AuthError
		switch {
		case errors.As(err, &aerr):
			return Principal{}, errBadCredentials
		case err != nil:
			return Principal{}, fmt.Errorf("resolve api key: %w", err)
		}
		return Principal{UserID: owner, Source: SourceAPIKey}, nil
	}
	if user := strings.TrimSpace(req.Header.Get("X-User-Id")); user != "" && a.cfg.AllowLegacyUserHeader {
		a.log.Warn().Str("user_id", user).Msg("unauthenticated X-User-Id header accepted")
		return Principal{UserID: user, Source: SourceLegacyHeader}, nil
	}
	return Principal{}, nil
}

// newAuthMiddleware rejects requests under basePath that lack valid credentials, except public paths.
func newAuthMiddleware(basePath string, cfg AuthConfig, e *engine.Engine, log zerolog.Logger) func(http.Handler) http.Handler {
	a := authenticator{cfg: cfg, engine: e, log: log}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !strings.HasPrefix(req.URL.Path, basePath) || publicPath(basePath, req.URL.Path, cfg.DevLogin) {
				next.ServeHTTP(w, req)
				return
			}
			p, err := a.principal(req)
			switch {
			case errors.Is(err, errBadCredentials):
				writeError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
			case err != nil:
				log.Error().Err(err).Msg("authentication failed")
				writeError(w, newAPIError(http.StatusInternalServerError, "persistence_error", "store failure", nil))
			case p.UserID == "":
				writeError(w, errUnauthenticated())
			default:
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), p)))
			}
		})
	}
}

// writeError renders err outside huma, in the same envelope huma handlers use.
func writeError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}
