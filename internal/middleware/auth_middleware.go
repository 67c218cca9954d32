package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/locolive/socialgraph/internal/auth"
	"github.com/locolive/socialgraph/internal/domain"
	"github.com/locolive/socialgraph/pkg/response"
	"go.uber.org/zap"
)

type contextKey string

const (
	ClaimsKey contextKey = "claims"
	UserKey   contextKey = "user"
)

// Hydrator resolves session claims to a local user record
type Hydrator interface {
	Hydrate(ctx context.Context, claims domain.Claims) (*domain.User, error)
}

// AuthMiddleware validates the bearer token against each verifier in turn and
// stores the session claims in the request context.
func AuthMiddleware(verifiers ...auth.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
				response.Unauthorized(w, "invalid authorization header format")
				return
			}

			var lastErr error = auth.ErrInvalidToken
			for _, v := range verifiers {
				claims, err := v.Verify(r.Context(), parts[1])
				if err != nil {
					lastErr = err
					continue
				}
				ctx := context.WithValue(r.Context(), ClaimsKey, claims)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if errors.Is(lastErr, auth.ErrExpiredToken) {
				response.Unauthorized(w, "token has expired")
				return
			}
			response.Unauthorized(w, "invalid token")
		})
	}
}

// HydrationMiddleware makes sure an authenticated caller has a complete local
// record before any handler runs.
func HydrationMiddleware(identity Hydrator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetClaims(r.Context())
			if !ok {
				response.Unauthorized(w, "not authenticated")
				return
			}

			user, err := identity.Hydrate(r.Context(), *claims)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrNotAuthenticated):
				response.Unauthorized(w, "not authenticated")
				return
			default:
				logger.Error("identity hydration failed",
					zap.String("user_id", claims.Subject), zap.Error(err))
				response.ServiceUnavailable(w, "identity provider unavailable")
				return
			}

			setStateUserID(r.Context(), user.ID)
			ctx := context.WithValue(r.Context(), UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClaims extracts the session claims from context
func GetClaims(ctx context.Context) (*domain.Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*domain.Claims)
	return claims, ok && claims != nil
}

// GetUser extracts the hydrated caller from context
func GetUser(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(UserKey).(*domain.User)
	return user, ok && user != nil
}

// GetUserID extracts the caller's id from context
func GetUserID(ctx context.Context) (string, bool) {
	if user, ok := GetUser(ctx); ok {
		return user.ID, true
	}
	if claims, ok := GetClaims(ctx); ok {
		return claims.Subject, true
	}
	return "", false
}
