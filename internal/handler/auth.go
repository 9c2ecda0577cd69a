// Package handler contains the HTTP handlers for the Forge JSON API.
//
// This file implements authentication endpoints.
//
// Routes:
//   - POST /api/auth/register            -> Register
//   - POST /api/auth/login               -> Login
//   - POST /api/auth/logout              -> Logout
//   - POST /api/auth/verify-email        -> VerifyEmail
//   - POST /api/auth/resend-verification -> ResendVerification
//   - GET  /api/auth/me                  -> Me
//
// Registration, login, verify-email, and resend-verification are public.
// Logout and me require a session.
package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cvforge/forge/internal/auth"
	"github.com/cvforge/forge/internal/domain"
	"github.com/cvforge/forge/internal/email"
	"github.com/cvforge/forge/internal/service"
	"github.com/cvforge/forge/internal/session"
)

// AuthHandler handles authentication requests.
type AuthHandler struct {
	userService service.UserService
	email       email.EmailService
	logger      *slog.Logger
	isSecure    bool
}

// NewAuthHandler creates a new AuthHandler.
// emailService may be nil when SMTP is not configured; verification
// emails are then skipped.
func NewAuthHandler(userService service.UserService, emailService email.EmailService, logger *slog.Logger, isSecure bool) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		email:       emailService,
		logger:      logger,
		isSecure:    isSecure,
	}
}

// RegisterRoutes registers auth routes on the provided mux.
// requireUser wraps the routes that need a session.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.HandleFunc("POST /api/auth/register", h.Register)
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.HandleFunc("POST /api/auth/verify-email", h.VerifyEmail)
	mux.HandleFunc("POST /api/auth/resend-verification", h.ResendVerification)
	mux.Handle("POST /api/auth/logout", requireUser(http.HandlerFunc(h.Logout)))
	mux.Handle("GET /api/auth/me", requireUser(http.HandlerFunc(h.Me)))
}

// userResponse is the wire shape for a user. The password hash never
// leaves the service layer.
type userResponse struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	Name               string    `json:"name"`
	Plan               string    `json:"plan"`
	SubscriptionStatus string    `json:"subscription_status"`
	EmailVerified      bool      `json:"email_verified"`
	CreatedAt          time.Time `json:"created_at"`
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{
		ID:                 u.ID.String(),
		Email:              u.Email,
		Name:               u.Name,
		Plan:               string(u.EffectivePlan()),
		SubscriptionStatus: string(u.SubscriptionStatus),
		EmailVerified:      u.EmailVerified,
		CreatedAt:          u.CreatedAt,
	}
}

// Register creates a new account and sends a verification email.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	const op = "handler.auth.register"

	var req struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		Name       string `json:"name"`
		InviteCode string `json:"invite_code"`
	}
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	user, err := h.userService.Register(r.Context(), domain.RegisterParams{
		Email:      req.Email,
		Password:   req.Password,
		Name:       req.Name,
		InviteCode: req.InviteCode,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	// Verification email delivery is best effort. The account exists
	// either way; the user can request a resend.
	if err := h.sendVerificationEmail(r, user); err != nil {
		h.logger.Error("failed to send verification email", "error", err, "user_id", user.ID)
	}

	writeJSON(w, http.StatusCreated, map[string]any{"user": toUserResponse(user)})
}

// Login authenticates a user and sets the session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	const op = "handler.auth.login"

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	result, err := h.userService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.setSessionCookie(w, result.Token)
	writeJSON(w, http.StatusOK, map[string]any{"user": toUserResponse(result.User)})
}

// Logout invalidates the current session and clears the cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(session.CookieName)
	if err == nil && cookie.Value != "" {
		if err := h.userService.Logout(r.Context(), cookie.Value); err != nil {
			h.logger.Warn("failed to delete session", "error", err)
		}
	}

	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": toUserResponse(user)})
}

// VerifyEmail consumes a verification token and marks the account verified.
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	const op = "handler.auth.verify_email"

	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "token is required"))
		return
	}

	if err := h.userService.VerifyEmail(r.Context(), req.Token); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"verified": true})
}

// ResendVerification issues a fresh verification token and emails it.
// The response is the same whether or not the address has an account,
// so the endpoint cannot be used to enumerate emails.
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	const op = "handler.auth.resend_verification"

	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	result, err := h.userService.ResendVerificationEmail(r.Context(), req.Email)
	if err != nil {
		h.logger.Info("resend verification skipped", "error", err)
	} else if h.email != nil {
		user, uerr := h.userService.GetByID(r.Context(), result.UserID)
		if uerr != nil {
			h.logger.Error("failed to load user for resend", "error", uerr, "user_id", result.UserID)
		} else if serr := h.email.SendVerificationEmail(r.Context(), user.Email, user.DisplayName(), result.Token); serr != nil {
			h.logger.Error("failed to resend verification email", "error", serr, "user_id", user.ID)
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"message": "If that address has an account, a verification email is on its way.",
	})
}

// setSessionCookie and clearSessionCookie mirror the middleware cookie
// settings. The session package holds the shared constants so the two
// packages cannot drift apart.
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    token,
		Path:     session.CookiePath,
		MaxAge:   session.CookieMaxAge,
		HttpOnly: true,
		Secure:   h.isSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     session.CookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.isSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) sendVerificationEmail(r *http.Request, user *domain.User) error {
	if h.email == nil {
		return nil
	}
	result, err := h.userService.CreateEmailVerificationToken(r.Context(), user.ID)
	if err != nil {
		return err
	}
	return h.email.SendVerificationEmail(r.Context(), user.Email, user.DisplayName(), result.Token)
}
