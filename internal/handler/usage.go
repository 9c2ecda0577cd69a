// Package handler contains the HTTP handlers for the Forge JSON API.
//
// This file implements usage endpoints: the current cycle's counters
// against plan limits, and the append-only usage event history.
//
// Routes (all require a session):
//   - GET /api/usage        -> Summary
//   - GET /api/usage/events -> Events
package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cvforge/forge/internal/auth"
	"github.com/cvforge/forge/internal/domain"
	"github.com/cvforge/forge/internal/service"
)

// UsageHandler handles usage reporting requests.
type UsageHandler struct {
	entitlements service.EntitlementService
	logger       *slog.Logger
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(entitlements service.EntitlementService, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{
		entitlements: entitlements,
		logger:       logger,
	}
}

// RegisterRoutes registers usage routes on the provided mux behind the
// session middleware.
func (h *UsageHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("GET /api/usage", requireUser(http.HandlerFunc(h.Summary)))
	mux.Handle("GET /api/usage/events", requireUser(http.HandlerFunc(h.Events)))
}

// Summary reports the current cycle's counters, limits, and the next
// reset time for the authenticated user's effective plan.
func (h *UsageHandler) Summary(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	summary, err := h.entitlements.GetUsageSummary(r.Context(), user.ID, user.EffectivePlan())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"plan":  string(user.EffectivePlan()),
		"usage": summary,
	})
}

// usageEventResponse is the wire shape for one usage event.
type usageEventResponse struct {
	ID          string    `json:"id"`
	Category    string    `json:"category"`
	ResourceRef string    `json:"resource_ref"`
	CreatedAt   time.Time `json:"created_at"`
}

// Events returns the user's usage history, newest first.
//
// Query parameters:
//   - category: comma-separated filter (cv, letter)
//   - since:    RFC 3339 lower bound on event time
//   - limit:    page size, default 50, max 200
func (h *UsageHandler) Events(w http.ResponseWriter, r *http.Request) {
	const op = "handler.usage.events"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	categories, err := parseCategories(r, op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			ErrorResponse(w, r, h.logger, domain.Invalid(op, "since must be an RFC 3339 timestamp"))
			return
		}
	}

	limit := int32(50)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			ErrorResponse(w, r, h.logger, domain.Invalid(op, "limit must be between 1 and 200"))
			return
		}
		limit = int32(n)
	}

	events, err := h.entitlements.ListEvents(r.Context(), user.ID, categories, since, limit)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	out := make([]usageEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, usageEventResponse{
			ID:          e.ID.String(),
			Category:    string(e.Category),
			ResourceRef: e.ResourceRef,
			CreatedAt:   e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}
