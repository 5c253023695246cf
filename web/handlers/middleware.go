// Package handlers provides the HTTP handlers and middleware for the
// Angel AI web API.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/funecosystem/angel-ai/internal/services"
	"github.com/funecosystem/angel-ai/pkg/types"
	"golang.org/x/time/rate"
)

type contextKey string

const userContextKey contextKey = "angel-user"

// SessionCookie is the cookie carrying the session token for browser
// clients; API clients send it as a Bearer token instead.
const SessionCookie = "angel_session"

// UserFromContext returns the authenticated user attached by RequireUser.
func UserFromContext(ctx context.Context) (*types.User, bool) {
	user, ok := ctx.Value(userContextKey).(*types.User)
	return user, ok
}

// sessionToken pulls the token from the Authorization header or the
// session cookie.
func sessionToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// RequireUser is middleware that resolves the session token to a user
// and attaches it to the request context. Requests without a valid
// session get 401.
func RequireUser(next http.Handler, authService *services.AuthService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}

		user, err := authService.CurrentUser(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired session")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin is middleware that rejects non-admin users. It must run
// inside RequireUser.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok || !user.IsAdmin {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimiter wraps a rate.Limiter for HTTP middleware.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a new rate limiter.
// reqPerSec is the sustained rate, burst is the maximum burst size.
func NewRateLimiter(reqPerSec float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Every(time.Duration(1000.0/reqPerSec)*time.Millisecond), burst),
	}
}

// RateLimitMiddleware enforces rate limiting on HTTP requests.
func RateLimitMiddleware(next http.Handler, rl *RateLimiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
