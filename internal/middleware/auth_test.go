package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/cvforge/forge/internal/domain"
	"github.com/cvforge/forge/internal/session"
)

// =============================================================================
// Mock UserService Implementation
// =============================================================================

// mockUserService implements the service.UserService interface for testing.
type mockUserService struct {
	GetBySessionTokenFunc func(ctx context.Context, token string) (*domain.User, error)
	LogoutFunc            func(ctx context.Context, token string) error
}

func (m *mockUserService) Register(ctx context.Context, params domain.RegisterParams) (*domain.User, error) {
	return nil, errors.New("not implemented")
}

func (m *mockUserService) Login(ctx context.Context, email, password string) (*domain.LoginResult, error) {
	return nil, errors.New("not implemented")
}

func (m *mockUserService) Logout(ctx context.Context, token string) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, token)
	}
	return nil
}

func (m *mockUserService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return nil, errors.New("not implemented")
}

func (m *mockUserService) GetBySessionToken(ctx context.Context, token string) (*domain.User, error) {
	if m.GetBySessionTokenFunc != nil {
		return m.GetBySessionTokenFunc(ctx, token)
	}
	return nil, errors.New("not implemented")
}

func (m *mockUserService) DeleteExpiredSessions(ctx context.Context) error {
	return errors.New("not implemented")
}

func (m *mockUserService) CreateEmailVerificationToken(ctx context.Context, userID uuid.UUID) (*domain.EmailVerificationResult, error) {
	return nil, errors.New("not implemented")
}

func (m *mockUserService) VerifyEmail(ctx context.Context, token string) error {
	return errors.New("not implemented")
}

func (m *mockUserService) ResendVerificationEmail(ctx context.Context, email string) (*domain.EmailVerificationResult, error) {
	return nil, errors.New("not implemented")
}

func (m *mockUserService) DeleteExpiredEmailVerificationTokens(ctx context.Context) error {
	return nil
}

func (m *mockUserService) UpdateStripeCustomer(ctx context.Context, userID uuid.UUID, stripeCustomerID string) error {
	return nil
}

func (m *mockUserService) UpdateSubscription(ctx context.Context, userID uuid.UUID, status, plan, subscriptionID string) error {
	return nil
}

func (m *mockUserService) GetByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*domain.User, error) {
	return nil, errors.New("not implemented")
}

// =============================================================================
// Test Helpers
// =============================================================================

// newTestLogger creates a logger that only reports errors during tests.
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// newTestAuthMiddleware creates an AuthMiddleware with mock service for testing.
func newTestAuthMiddleware(mock *mockUserService) *AuthMiddleware {
	return NewAuthMiddleware(mock, newTestLogger(), false)
}

// =============================================================================
// WithUser Middleware Tests
// =============================================================================

func TestWithUser_NoCookie_ContinuesWithoutUser(t *testing.T) {
	mock := &mockUserService{}
	mw := newTestAuthMiddleware(mock)

	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true

		if user := GetUser(r.Context()); user != nil {
			t.Errorf("expected nil user, got %+v", user)
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/documents", nil)
	rec := httptest.NewRecorder()

	mw.WithUser(handler).ServeHTTP(rec, req)

	if !handlerCalled {
		t.Error("handler was not called")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestWithUser_ValidCookie_SetsUserInContext(t *testing.T) {
	expectedUser := &domain.User{
		ID:    uuid.New(),
		Email: "test@example.com",
		Name:  "Test User",
	}

	mock := &mockUserService{
		GetBySessionTokenFunc: func(ctx context.Context, token string) (*domain.User, error) {
			if token != "valid-token-123" {
				t.Errorf("GetBySessionToken called with token = %q, want %q", token, "valid-token-123")
			}
			return expectedUser, nil
		},
	}
	mw := newTestAuthMiddleware(mock)

	var capturedUser *domain.User
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedUser = GetUser(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/documents", nil)
	req.AddCookie(&http.Cookie{
		Name:  session.CookieName,
		Value: "valid-token-123",
	})
	rec := httptest.NewRecorder()

	mw.WithUser(handler).ServeHTTP(rec, req)

	if capturedUser == nil {
		t.Fatal("user not set in context")
	}
	if capturedUser.ID != expectedUser.ID {
		t.Errorf("user.ID = %v, want %v", capturedUser.ID, expectedUser.ID)
	}
	if capturedUser.Email != expectedUser.Email {
		t.Errorf("user.Email = %q, want %q", capturedUser.Email, expectedUser.Email)
	}
}

func TestWithUser_InvalidCookie_ClearsAndContinues(t *testing.T) {
	mock := &mockUserService{
		GetBySessionTokenFunc: func(ctx context.Context, token string) (*domain.User, error) {
			return nil, domain.Unauthorized("test", "invalid session")
		},
	}
	mw := newTestAuthMiddleware(mock)

	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true

		if user := GetUser(r.Context()); user != nil {
			t.Errorf("expected nil user, got %+v", user)
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/documents", nil)
	req.AddCookie(&http.Cookie{
		Name:  session.CookieName,
		Value: "invalid-token",
	})
	rec := httptest.NewRecorder()

	mw.WithUser(handler).ServeHTTP(rec, req)

	if !handlerCalled {
		t.Error("handler was not called")
	}

	// Verify cookie was cleared (MaxAge=-1)
	cookieCleared := false
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == session.CookieName && cookie.MaxAge == -1 {
			cookieCleared = true
		}
	}
	if !cookieCleared {
		t.Error("invalid session cookie was not cleared")
	}
}

// =============================================================================
// RequireUser Middleware Tests
// =============================================================================

func TestRequireUser_NoUser_Returns401(t *testing.T) {
	mock := &mockUserService{}
	mw := newTestAuthMiddleware(mock)

	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	})

	req := httptest.NewRequest("GET", "/api/documents", nil)
	rec := httptest.NewRecorder()

	mw.RequireUser(handler).ServeHTTP(rec, req)

	if handlerCalled {
		t.Error("handler should not be called for unauthenticated request")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if !strings.Contains(rec.Body.String(), domain.EUNAUTHORIZED) {
		t.Errorf("expected %s code in body, got: %s", domain.EUNAUTHORIZED, rec.Body.String())
	}
}

func TestRequireUser_WithUser_CallsHandler(t *testing.T) {
	user := &domain.User{
		ID:    uuid.New(),
		Email: "test@example.com",
	}
	mock := &mockUserService{
		GetBySessionTokenFunc: func(ctx context.Context, token string) (*domain.User, error) {
			return user, nil
		},
	}
	mw := newTestAuthMiddleware(mock)

	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/documents", nil)
	req.AddCookie(&http.Cookie{
		Name:  session.CookieName,
		Value: "valid-token",
	})
	rec := httptest.NewRecorder()

	// RequireUser depends on WithUser running first
	mw.WithUser(mw.RequireUser(handler)).ServeHTTP(rec, req)

	if !handlerCalled {
		t.Error("handler was not called for authenticated request")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusOK)
	}
}

// =============================================================================
// RequireEmailVerified Middleware Tests
// =============================================================================

func TestRequireEmailVerified_Unverified_Returns403(t *testing.T) {
	user := &domain.User{
		ID:            uuid.New(),
		Email:         "test@example.com",
		EmailVerified: false,
	}
	mock := &mockUserService{
		GetBySessionTokenFunc: func(ctx context.Context, token string) (*domain.User, error) {
			return user, nil
		},
	}
	mw := newTestAuthMiddleware(mock)

	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	})

	req := httptest.NewRequest("POST", "/api/documents", nil)
	req.AddCookie(&http.Cookie{
		Name:  session.CookieName,
		Value: "valid-token",
	})
	rec := httptest.NewRecorder()

	mw.WithUser(mw.RequireEmailVerified(handler)).ServeHTTP(rec, req)

	if handlerCalled {
		t.Error("handler should not be called for unverified user")
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if !strings.Contains(rec.Body.String(), "verification") {
		t.Errorf("expected verification message, got: %s", rec.Body.String())
	}
}

func TestRequireEmailVerified_Verified_CallsHandler(t *testing.T) {
	user := &domain.User{
		ID:            uuid.New(),
		Email:         "test@example.com",
		EmailVerified: true,
	}
	mock := &mockUserService{
		GetBySessionTokenFunc: func(ctx context.Context, token string) (*domain.User, error) {
			return user, nil
		},
	}
	mw := newTestAuthMiddleware(mock)

	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/api/documents", nil)
	req.AddCookie(&http.Cookie{
		Name:  session.CookieName,
		Value: "valid-token",
	})
	rec := httptest.NewRecorder()

	mw.WithUser(mw.RequireEmailVerified(handler)).ServeHTTP(rec, req)

	if !handlerCalled {
		t.Error("handler was not called for verified user")
	}
}

// =============================================================================
// Stack Tests
// =============================================================================

func TestStack_AppliesMiddlewareInOrder(t *testing.T) {
	var order []string

	mk := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	})

	stack := Stack(mk("first"), mk("second"), mk("third"))
	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()

	stack(handler).ServeHTTP(rec, req)

	want := []string{"first", "second", "third", "handler"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d = %q, want %q", i, order[i], want[i])
		}
	}
}
