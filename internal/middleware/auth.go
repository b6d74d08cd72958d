// Package middleware provides HTTP middleware for the canvas API
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/canvas/internal/app/domain/user"
	apperrors "github.com/R3E-Network/canvas/internal/errors"
	"github.com/R3E-Network/canvas/internal/httputil"
	"github.com/R3E-Network/canvas/internal/logging"
)

type userContextKey struct{}

// Authenticator resolves an access token to an active user.
type Authenticator interface {
	CurrentUser(ctx context.Context, accessToken string) (user.User, error)
}

// AuthMiddleware provides JWT authentication
type AuthMiddleware struct {
	auth      Authenticator
	logger    *logging.Logger
	skipPaths map[string]bool
}

// NewAuthMiddleware creates a new authentication middleware. Requests to
// skipPaths pass through without a token.
func NewAuthMiddleware(auth Authenticator, logger *logging.Logger, skipPaths []string) *AuthMiddleware {
	skip := make(map[string]bool)
	for _, path := range skipPaths {
		skip[path] = true
	}
	if logger == nil {
		logger = logging.NewDefault("auth-middleware")
	}

	return &AuthMiddleware{
		auth:      auth,
		logger:    logger,
		skipPaths: skip,
	}
}

// Handler returns the middleware handler
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token, err := bearerToken(r)
		if err != nil {
			m.respondError(w, r, err)
			return
		}

		u, err := m.auth.CurrentUser(r.Context(), token)
		if err != nil {
			m.respondError(w, r, err)
			return
		}

		ctx := WithUser(r.Context(), u)
		m.logger.WithContext(ctx).Debug("Authentication successful")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", apperrors.Unauthorized("Not authenticated")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.Unauthorized("Invalid Authorization header format")
	}
	return strings.TrimSpace(parts[1]), nil
}

// respondError sends an error response
func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteError(w, r, m.logger, err)

	m.logger.LogSecurityEvent(r.Context(), "authentication_failed", map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"reason": err.Error(),
	})
}

// WithUser stores the authenticated user and tags the logging context.
func WithUser(ctx context.Context, u user.User) context.Context {
	ctx = context.WithValue(ctx, userContextKey{}, u)
	ctx = logging.WithUserID(ctx, u.ID)
	return logging.WithRole(ctx, string(u.Role))
}

// UserFrom returns the authenticated user, if any.
func UserFrom(ctx context.Context) (user.User, bool) {
	u, ok := ctx.Value(userContextKey{}).(user.User)
	return u, ok
}

// RequireRole rejects authenticated users whose role is not listed.
func RequireRole(logger *logging.Logger, roles ...user.Role) mux.MiddlewareFunc {
	allowed := make(map[user.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := UserFrom(r.Context())
			if !ok {
				httputil.WriteError(w, r, logger, apperrors.Unauthorized(""))
				return
			}
			if !allowed[u.Role] {
				if logger != nil {
					logger.LogSecurityEvent(r.Context(), "forbidden", map[string]interface{}{
						"path": r.URL.Path,
						"role": string(u.Role),
					})
				}
				httputil.WriteError(w, r, logger, apperrors.Forbidden("Insufficient permissions"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
