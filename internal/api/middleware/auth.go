package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Togather-Foundation/rsvp/internal/api/problem"
	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
	"github.com/rs/zerolog"
)

// AuthMethod records how a request proved its identity.
type AuthMethod string

const (
	AuthBearer AuthMethod = "bearer"
	AuthCookie AuthMethod = "cookie"
)

// Authenticator resolves a session token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*users.User, error)
}

type contextKeyAuth string

const (
	userKey       contextKeyAuth = "user"
	authMethodKey contextKeyAuth = "authMethod"
)

// RequireAuth rejects requests without a live session. The token is read from
// the Authorization header first and the session cookie second.
func RequireAuth(authn Authenticator, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authn == nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", problem.ErrUnauthorized, env)
				return
			}

			token, method := tokenFromRequest(r)
			if token == "" {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized",
					errors.New("you need to log in to perform this action"), env)
				return
			}

			user, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				status, title := http.StatusUnauthorized, "Unauthorized"
				if !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrMissingToken) && !errors.Is(err, users.ErrSessionExpired) {
					status, title = http.StatusInternalServerError, "Server error"
				}
				problem.Write(w, r, status, problem.TypeUnauthorized, title, err, env)
				return
			}

			ctx := ContextWithUser(r.Context(), user, method)
			logger := zerolog.Ctx(ctx).With().Str("user_id", user.ID).Logger()
			ctx = logger.WithContext(ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request) (string, AuthMethod) {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		token, err := auth.TokenFromHeader(header)
		if err != nil {
			return "", ""
		}
		return token, AuthBearer
	}
	if cookie, err := r.Cookie(auth.CookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
		return strings.TrimSpace(cookie.Value), AuthCookie
	}
	return "", ""
}

// ContextWithUser stores the authenticated user on ctx.
func ContextWithUser(ctx context.Context, user *users.User, method AuthMethod) context.Context {
	ctx = context.WithValue(ctx, userKey, user)
	return context.WithValue(ctx, authMethodKey, method)
}

// UserFromContext returns the authenticated user, or nil.
func UserFromContext(ctx context.Context) *users.User {
	if user, ok := ctx.Value(userKey).(*users.User); ok {
		return user
	}
	return nil
}

// UserID returns the authenticated user's id, or "".
func UserID(ctx context.Context) string {
	if user := UserFromContext(ctx); user != nil {
		return user.ID
	}
	return ""
}

// AuthMethodFromContext returns how the request authenticated, or "".
func AuthMethodFromContext(ctx context.Context) AuthMethod {
	method, _ := ctx.Value(authMethodKey).(AuthMethod)
	return method
}
