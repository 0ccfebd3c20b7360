package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/taskguard/taskguard-go/internal/crypto"
	"github.com/taskguard/taskguard-go/internal/model"
	"github.com/taskguard/taskguard-go/internal/service"
)

type contextKey string

const (
	userKey   contextKey = "user"
	claimsKey contextKey = "claims"
)

// unauthenticatedMessage is the single message for every 401 so the body
// never tells a caller why their token was refused.
const unauthenticatedMessage = "Could not validate credentials"

// Authenticator resolves a bearer token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, *crypto.Claims, error)
}

// Authenticate returns middleware that requires a valid Bearer token and
// stores the resolved user in the request context.
func Authenticate(auth Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return authenticate(auth, logger, true)
}

// OptionalAuthenticate is Authenticate for routes that also serve anonymous
// callers. A request without an Authorization header passes through; a
// request with a bad token is still refused.
func OptionalAuthenticate(auth Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return authenticate(auth, logger, false)
}

func authenticate(auth Authenticator, logger *slog.Logger, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				if !required {
					next.ServeHTTP(w, r)
					return
				}
				writeUnauthorized(w)
				return
			}

			token, found := cutBearer(authHeader)
			if !found || token == "" {
				writeUnauthorized(w)
				return
			}

			user, claims, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				if !errors.Is(err, service.ErrUnauthenticated) {
					logger.ErrorContext(r.Context(), "identity lookup failed", "error", err)
					writeJSONError(w, http.StatusInternalServerError, "internal server error")
					return
				}
				writeUnauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			ctx = context.WithValue(ctx, claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// cutBearer strips a case-insensitive "Bearer " scheme.
func cutBearer(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

// UserFromContext extracts the authenticated user from the request context.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userKey).(*model.User)
	return user, ok && user != nil
}

// ClaimsFromContext extracts the verified token claims from the request context.
func ClaimsFromContext(ctx context.Context) (*crypto.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*crypto.Claims)
	return claims, ok && claims != nil
}

// ContextWithUser stores user in ctx the way Authenticate does.
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeJSONError(w, http.StatusUnauthorized, unauthenticatedMessage)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
