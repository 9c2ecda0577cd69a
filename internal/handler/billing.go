// Package handler contains the HTTP handlers for the Forge JSON API.
//
// This file implements billing endpoints backed by Stripe Checkout and
// the Stripe customer portal.
//
// Routes (all require a session):
//   - GET  /api/billing            -> Subscription
//   - POST /api/billing/checkout   -> Checkout
//   - POST /api/billing/portal     -> Portal
//   - POST /api/billing/cancel     -> Cancel
//   - POST /api/billing/reactivate -> Reactivate
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/cvforge/forge/internal/auth"
	"github.com/cvforge/forge/internal/billing"
	"github.com/cvforge/forge/internal/domain"
	"github.com/cvforge/forge/internal/service"
)

// BillingHandler handles subscription management requests.
type BillingHandler struct {
	billing     billing.Service
	userService service.UserService
	baseURL     string
	logger      *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
// billingService may be nil when Stripe is not configured; the routes
// then answer 503.
func NewBillingHandler(billingService billing.Service, userService service.UserService, baseURL string, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		billing:     billingService,
		userService: userService,
		baseURL:     baseURL,
		logger:      logger,
	}
}

// RegisterRoutes registers billing routes on the provided mux behind
// the session middleware.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("GET /api/billing", requireUser(http.HandlerFunc(h.Subscription)))
	mux.Handle("POST /api/billing/checkout", requireUser(http.HandlerFunc(h.Checkout)))
	mux.Handle("POST /api/billing/portal", requireUser(http.HandlerFunc(h.Portal)))
	mux.Handle("POST /api/billing/cancel", requireUser(http.HandlerFunc(h.Cancel)))
	mux.Handle("POST /api/billing/reactivate", requireUser(http.HandlerFunc(h.Reactivate)))
}

func (h *BillingHandler) configured(w http.ResponseWriter, r *http.Request, op string) bool {
	if h.billing == nil {
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.EUNAVAILABLE, op, "Billing is not configured"))
		return false
	}
	return true
}

// Subscription reports the user's current plan and subscription state.
func (h *BillingHandler) Subscription(w http.ResponseWriter, r *http.Request) {
	const op = "handler.billing.subscription"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	resp := map[string]any{
		"plan":           string(user.EffectivePlan()),
		"status":         string(user.SubscriptionStatus),
		"has_customer":   user.StripeCustomerID != "",
		"subscription":   nil,
		"cancel_pending": false,
	}

	if h.billing != nil && user.SubscriptionID != "" {
		sub, err := h.billing.GetSubscription(user.SubscriptionID)
		if err != nil {
			h.logger.Warn("failed to fetch stripe subscription", "error", err, "user_id", user.ID)
		} else {
			resp["cancel_pending"] = sub.CancelAtPeriodEnd
			resp["subscription"] = map[string]any{
				"id":                 sub.ID,
				"status":             string(sub.Status),
				"current_period_end": time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Checkout starts a Stripe Checkout session for a plan upgrade and
// returns the hosted payment page URL.
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	const op = "handler.billing.checkout"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	if !h.configured(w, r, op) {
		return
	}

	var req struct {
		Plan     string `json:"plan"`
		Interval string `json:"interval"`
	}
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if req.Interval == "" {
		req.Interval = "monthly"
	}

	priceID, err := h.billing.PriceIDFor(domain.PlanID(req.Plan), req.Interval)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, err.Error()))
		return
	}

	customerID := user.StripeCustomerID
	if customerID == "" {
		customerID, err = h.billing.CreateCustomer(user.Email, user.Name)
		if err != nil {
			ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Failed to create billing customer"))
			return
		}
		if err := h.userService.UpdateStripeCustomer(r.Context(), user.ID, customerID); err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}
	}

	successURL := h.baseURL + "/billing?checkout=success"
	cancelURL := h.baseURL + "/billing?checkout=canceled"
	url, err := h.billing.CreateCheckoutSession(customerID, priceID, successURL, cancelURL)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Failed to create checkout session"))
		return
	}

	h.logger.Info("checkout session created", "user_id", user.ID, "plan", req.Plan, "interval", req.Interval)
	writeJSON(w, http.StatusOK, map[string]any{"url": url})
}

// Portal returns a Stripe customer portal URL for self-service billing
// management.
func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	const op = "handler.billing.portal"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	if !h.configured(w, r, op) {
		return
	}
	if user.StripeCustomerID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "No billing account exists yet"))
		return
	}

	url, err := h.billing.CreatePortalSession(user.StripeCustomerID, h.baseURL+"/billing")
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Failed to create portal session"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": url})
}

// Cancel schedules the subscription to end at the period boundary.
// Access continues until then; the plan falls back to free afterwards.
func (h *BillingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	const op = "handler.billing.cancel"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	if !h.configured(w, r, op) {
		return
	}
	if user.SubscriptionID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "No active subscription to cancel"))
		return
	}

	if err := h.billing.CancelSubscription(user.SubscriptionID); err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Failed to cancel subscription"))
		return
	}

	h.logger.Info("subscription cancellation scheduled", "user_id", user.ID, "subscription_id", user.SubscriptionID)
	writeJSON(w, http.StatusOK, map[string]any{"canceled": true})
}

// Reactivate undoes a pending cancellation before the period ends.
func (h *BillingHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	const op = "handler.billing.reactivate"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	if !h.configured(w, r, op) {
		return
	}
	if user.SubscriptionID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "No subscription to reactivate"))
		return
	}

	if err := h.billing.ReactivateSubscription(user.SubscriptionID); err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Failed to reactivate subscription"))
		return
	}

	h.logger.Info("subscription reactivated", "user_id", user.ID, "subscription_id", user.SubscriptionID)
	writeJSON(w, http.StatusOK, map[string]any{"reactivated": true})
}
