// Package middleware implements the HTTP-layer cross-cutting concerns
// consumed by internal/api: Bearer JWT authentication (spec.md §6 Auth,
// the identity service issuing tokens is external per Non-goals — this
// middleware only verifies signature/claims and extracts subject/admin)
// and structured request logging.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"

	"github.com/toolforge/agentgraph/internal/apperr"
)

type contextKey string

const claimsKey contextKey = "claims"

// Claims is the subset of a verified bearer token this service cares
// about, generalized from kadirpekel-hector's pkg/auth.Claims shape down
// to the two fields spec.md §6 Auth needs: who the caller is, and whether
// they're an admin.
type Claims struct {
	Subject string
	Admin   bool
}

// Validator verifies bearer tokens against an external identity
// provider's JWKS endpoint, auto-refreshing keys on the same
// cache-with-refresh-interval pattern as kadirpekel-hector's
// pkg/auth.JWTValidator.
type Validator struct {
	jwksURL string
	cache   *jwk.Cache
}

// NewValidator registers jwksURL for background refresh and performs an
// initial fetch so misconfiguration fails at startup rather than on the
// first request.
func NewValidator(ctx context.Context, jwksURL string) (*Validator, error) {
	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, apperr.Wrap(apperr.KindInfrastructure, "register jwks url", err)
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, apperr.Wrap(apperr.KindInfrastructure, "fetch jwks", err)
	}
	return &Validator{jwksURL: jwksURL, cache: cache}, nil
}

func (v *Validator) validate(ctx context.Context, tokenString string) (Claims, error) {
	keyset, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return Claims{}, apperr.Wrap(apperr.KindInfrastructure, "fetch jwks", err)
	}

	token, err := jwt.Parse([]byte(tokenString), jwt.WithKeySet(keyset), jwt.WithValidate(true))
	if err != nil {
		return Claims{}, apperr.Wrap(apperr.KindAuthentication, "invalid bearer token", err)
	}

	claims := Claims{Subject: token.Subject()}
	if admin, ok := token.Get("admin"); ok {
		if b, ok := admin.(bool); ok {
			claims.Admin = b
		}
	}
	return claims, nil
}

// Auth extracts and verifies the Authorization header, rejecting the
// request with KindAuthentication on failure and otherwise stashing
// Claims in the request context for handlers to read via ClaimsFromContext.
func Auth(v *Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token := strings.TrimPrefix(header, "Bearer ")
			if header == "" || token == header {
				WriteError(w, apperr.New(apperr.KindAuthentication, "missing or malformed Authorization header"))
				return
			}

			claims, err := v.validate(r.Context(), token)
			if err != nil {
				WriteError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the Claims stashed by Auth, or the zero value
// and false if the request was never authenticated.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(claimsKey).(Claims)
	return c, ok
}

// Logging records method, path, status, and latency for every request,
// following the teacher-adjacent pack's "don't wrap ResponseWriter for
// SSE routes" caution (kadirpekel-hector's pkg/server.loggingMiddleware)
// by capturing status through a thin wrapper instead of buffering body.
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the underlying ResponseWriter's http.Flusher when
// present, so SSE streaming handlers work unchanged through this wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
