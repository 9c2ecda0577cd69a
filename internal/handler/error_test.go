package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/cvforge/forge/internal/domain"
)

// =============================================================================
// Error Response Tests - Security Focus
// =============================================================================

func TestErrorResponse_InternalErrorHidesDetails(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Create an internal error wrapping a database error
	dbErr := &mockDatabaseError{message: "pq: relation \"documents\" does not exist"}
	internalErr := domain.Internal(dbErr, "document.list", "Database query failed")

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(w, r, logger, internalErr)
	})

	req := httptest.NewRequest("GET", "/api/documents", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}

	body := rec.Body.String()

	// Should NOT contain database error details
	if strings.Contains(body, "pq:") {
		t.Errorf("response exposes database error: %s", body)
	}
	if strings.Contains(body, "relation") {
		t.Errorf("response exposes database schema: %s", body)
	}
	if strings.Contains(body, "document.list") {
		t.Errorf("response exposes internal operation: %s", body)
	}

	// Should return generic message
	if !strings.Contains(body, "internal error") {
		t.Errorf("response should contain generic internal error message, got: %s", body)
	}
}

func TestErrorResponse_UnwrappedErrorReturnsGeneric(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Create a raw error (not a domain.Error)
	rawErr := &mockDatabaseError{message: "FATAL: password authentication failed for user \"postgres\""}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(w, r, logger, rawErr)
	})

	req := httptest.NewRequest("GET", "/api/documents", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}

	body := rec.Body.String()

	if strings.Contains(body, "FATAL") {
		t.Errorf("response exposes raw error: %s", body)
	}
	if strings.Contains(body, "password") {
		t.Errorf("response exposes password-related error: %s", body)
	}
	if strings.Contains(body, "postgres") {
		t.Errorf("response exposes database user: %s", body)
	}
}

func TestErrorResponse_NotFoundDoesNotExposeInternals(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	notFoundErr := domain.NotFound("documentRepository.Get", "document", "550e8400-e29b-41d4-a716-446655440000")

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(w, r, logger, notFoundErr)
	})

	req := httptest.NewRequest("GET", "/api/documents/550e8400-e29b-41d4-a716-446655440000", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	body := rec.Body.String()

	// Should NOT contain internal operation name
	if strings.Contains(body, "Repository") {
		t.Errorf("response exposes repository name: %s", body)
	}
	if !strings.Contains(body, "not found") {
		t.Errorf("response should indicate resource not found: %s", body)
	}
}

func TestValidationErrorResponse_DoesNotExposeOperationName(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ve := domain.NewValidationError("UserService.Register", "email", "Email is required")

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ValidationErrorResponse(w, r, logger, ve)
	})

	req := httptest.NewRequest("POST", "/api/auth/register", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	body := rec.Body.String()

	if strings.Contains(body, "UserService") {
		t.Errorf("response exposes internal operation name: %s", body)
	}
	if !strings.Contains(body, "Validation failed") {
		t.Errorf("response should contain user-friendly message, got: %s", body)
	}
	if !strings.Contains(body, "Email is required") {
		t.Errorf("response should contain field message: %s", body)
	}
}

// =============================================================================
// Quota Payload Tests
// =============================================================================

func TestErrorResponse_QuotaExceededPayload(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	quotaErr := domain.QuotaExceeded("entitlement.check", domain.CategoryCV, 3, 3)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(w, r, logger, quotaErr)
	})

	req := httptest.NewRequest("POST", "/api/documents", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	var payload struct {
		Error struct {
			Code     string `json:"code"`
			Message  string `json:"message"`
			Category string `json:"category"`
			Used     int    `json:"used"`
			Limit    int    `json:"limit"`
			Upgrade  string `json:"upgrade"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}

	if payload.Error.Code != domain.EQUOTA {
		t.Errorf("expected code %s, got %s", domain.EQUOTA, payload.Error.Code)
	}
	if payload.Error.Category != "cv" {
		t.Errorf("expected category cv, got %s", payload.Error.Category)
	}
	if payload.Error.Used != 3 || payload.Error.Limit != 3 {
		t.Errorf("expected used=3 limit=3, got used=%d limit=%d", payload.Error.Used, payload.Error.Limit)
	}
	if payload.Error.Upgrade == "" {
		t.Errorf("quota payload should include an upgrade path")
	}
	if !strings.Contains(payload.Error.Message, "Upgrade") {
		t.Errorf("quota message should prompt an upgrade, got: %s", payload.Error.Message)
	}
}

func TestErrorResponse_QuotaExceededLetterMessage(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	quotaErr := domain.QuotaExceeded("entitlement.check", domain.CategoryLetter, 3, 3)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(w, r, logger, quotaErr)
	})

	req := httptest.NewRequest("POST", "/api/documents", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), "cover letters") {
		t.Errorf("letter quota message should name cover letters: %s", rec.Body.String())
	}
}

// =============================================================================
// Status Code Mapping Tests
// =============================================================================

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{domain.EINVALID, http.StatusBadRequest},
		{domain.EUNAUTHORIZED, http.StatusUnauthorized},
		{domain.EPAYMENT, http.StatusPaymentRequired},
		{domain.EFORBIDDEN, http.StatusForbidden},
		{domain.ENOTFOUND, http.StatusNotFound},
		{domain.ECONFLICT, http.StatusConflict},
		{domain.ETOOLARGE, http.StatusRequestEntityTooLarge},
		{domain.ERATELIMIT, http.StatusTooManyRequests},
		{domain.EQUOTA, http.StatusTooManyRequests},
		{domain.EUNAVAILABLE, http.StatusServiceUnavailable},
		{domain.EINTERNAL, http.StatusInternalServerError},
		{"bogus", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := ErrorCodeToHTTPStatus(tt.code); got != tt.status {
			t.Errorf("ErrorCodeToHTTPStatus(%s) = %d, want %d", tt.code, got, tt.status)
		}
	}
}

// mockDatabaseError simulates a database error for testing
type mockDatabaseError struct {
	message string
}

func (e *mockDatabaseError) Error() string {
	return e.message
}
