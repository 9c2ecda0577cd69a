// Package middleware contains HTTP middleware for the Forge API.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are designed to be composed using a middleware stack approach.
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cvforge/forge/internal/auth"
	"github.com/cvforge/forge/internal/domain"
	"github.com/cvforge/forge/internal/handler"
	"github.com/cvforge/forge/internal/service"
	"github.com/cvforge/forge/internal/session"
)

// =============================================================================
// Configuration Constants
// =============================================================================

// Session cookie settings live in the session package so handlers can
// use them without importing middleware. Re-exported here because most
// callers reach for middleware.SessionCookieName.
const (
	SessionCookieName   = session.CookieName
	SessionCookiePath   = session.CookiePath
	SessionCookieMaxAge = session.CookieMaxAge
)

// =============================================================================
// Context Helpers
// =============================================================================

// GetUser retrieves the authenticated user from the request context.
//
// Returns nil if no user is authenticated (request passed through WithUser
// but no valid session was found).
func GetUser(ctx context.Context) *domain.User {
	return auth.GetUser(ctx)
}

// =============================================================================
// Auth Middleware Configuration
// =============================================================================

// AuthMiddleware provides authentication middleware functionality.
//
// This struct holds dependencies needed by auth middleware functions.
// Create one instance and use its methods as middleware.
type AuthMiddleware struct {
	userService service.UserService
	logger      *slog.Logger
	isSecure    bool // Whether to set Secure flag on cookies (true in production)
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
func NewAuthMiddleware(userService service.UserService, logger *slog.Logger, isSecure bool) *AuthMiddleware {
	return &AuthMiddleware{
		userService: userService,
		logger:      logger,
		isSecure:    isSecure,
	}
}

// =============================================================================
// WithUser Middleware
// =============================================================================

// WithUser is middleware that attempts to load the user from the session cookie.
//
// This middleware:
// 1. Checks for a session cookie
// 2. If found, validates the session and loads the user
// 3. Stores the user in the request context
// 4. Continues to the next handler regardless of authentication status
//
// Use this middleware on routes that work both authenticated and
// unauthenticated. The user can be retrieved in handlers using:
//
//	user := middleware.GetUser(r.Context())
func (m *AuthMiddleware) WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Get session cookie
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil {
			// No cookie found - continue without user
			next.ServeHTTP(w, r)
			return
		}

		// Validate session and get user
		user, err := m.userService.GetBySessionToken(r.Context(), cookie.Value)
		if err != nil {
			// Invalid or expired session - clear the cookie and continue
			clearSessionCookie(w, m.isSecure)
			next.ServeHTTP(w, r)
			return
		}

		// Set user in context
		ctx := auth.SetUser(r.Context(), user)
		r = r.WithContext(ctx)

		// Call next handler with user in context
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// RequireUser Middleware
// =============================================================================

// RequireUser is middleware that requires an authenticated user.
//
// Unauthenticated requests receive a 401 JSON error.
//
// IMPORTANT: This middleware must be used AFTER WithUser in the middleware chain.
//
// Usage:
//
//	mux.Handle("GET /api/documents", authMw.WithUser(authMw.RequireUser(listHandler)))
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetUser(r.Context())
		if user == nil {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// RequireEmailVerified Middleware
// =============================================================================

// RequireEmailVerified is middleware that requires the user's email to be verified.
//
// IMPORTANT: Use this AFTER RequireUser in the middleware chain.
func (m *AuthMiddleware) RequireEmailVerified(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Get user from context (should exist because RequireUser ran first)
		user := GetUser(r.Context())
		if user == nil {
			// This shouldn't happen if RequireUser is used before this middleware
			m.logger.Error("RequireEmailVerified called without user in context")
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}

		// Check if email is verified
		if !user.EmailVerified {
			err := domain.Forbidden("", "Email verification required")
			handler.ErrorResponse(w, r, m.logger, err)
			return
		}

		// Email is verified - continue to next handler
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Cookie Helpers
// =============================================================================

// SetSessionCookie sets the session cookie on the response.
//
// Cookie Settings:
// - HttpOnly: true - Prevents JavaScript access (XSS protection)
// - Secure: configurable - Set true in production (HTTPS only)
// - SameSite: Lax - Prevents CSRF while allowing normal navigation
// - Path: / - Cookie sent with all requests
// - MaxAge: 7 days - Matches session duration
func SetSessionCookie(w http.ResponseWriter, token string, isSecure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     SessionCookiePath,
		MaxAge:   SessionCookieMaxAge,
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie removes the session cookie from the client.
//
// This is done by setting MaxAge to -1, which tells the browser to delete
// the cookie immediately.
func clearSessionCookie(w http.ResponseWriter, isSecure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     SessionCookiePath,
		MaxAge:   -1, // Delete immediately
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie is the exported version for use in logout handlers.
func ClearSessionCookie(w http.ResponseWriter, isSecure bool) {
	clearSessionCookie(w, isSecure)
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
//
// Example:
//
//	stack := Stack(loggingMw, authMw.WithUser, authMw.RequireUser)
//	mux.Handle("GET /api/documents", stack(listHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// =============================================================================
// Compile-time checks
// =============================================================================

// Ensure middleware functions have correct signature
var (
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).WithUser
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireUser
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireEmailVerified
)
