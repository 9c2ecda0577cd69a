// Package billing provides Stripe billing integration for subscription management.
package billing

import (
	"fmt"

	"github.com/stripe/stripe-go/v79"
	billingportalsession "github.com/stripe/stripe-go/v79/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/subscription"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/cvforge/forge/internal/domain"
)

// Service defines the interface for billing operations.
type Service interface {
	// CreateCustomer creates a new Stripe customer for the given email.
	CreateCustomer(email, name string) (string, error)

	// CreateCheckoutSession creates a Stripe Checkout session for subscribing.
	// Returns the checkout URL to redirect the user to.
	CreateCheckoutSession(customerID, priceID, successURL, cancelURL string) (string, error)

	// CreatePortalSession creates a Stripe Customer Portal session.
	// Returns the portal URL to redirect the user to.
	CreatePortalSession(customerID, returnURL string) (string, error)

	// GetSubscription retrieves a Stripe subscription by ID.
	GetSubscription(subscriptionID string) (*stripe.Subscription, error)

	// CancelSubscription sets a subscription to cancel at period end.
	CancelSubscription(subscriptionID string) error

	// ReactivateSubscription removes the cancel_at_period_end flag.
	ReactivateSubscription(subscriptionID string) error

	// VerifyWebhookSignature verifies the Stripe webhook signature and returns the event.
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)

	// PlanForPriceID returns the plan for a given Stripe price ID, or
	// PlanFree when the price is not part of the catalog.
	PlanForPriceID(priceID string) domain.PlanID

	// PriceIDFor returns the Stripe price ID for a plan and interval
	// ("monthly" or "yearly"), or an error for unsellable combinations.
	PriceIDFor(plan domain.PlanID, interval string) (string, error)
}

// PriceConfig holds the Stripe price IDs for each paid plan.
type PriceConfig struct {
	StarterMonthlyPriceID string
	StarterYearlyPriceID  string
	ProMonthlyPriceID     string
	ProYearlyPriceID      string
	PremiumMonthlyPriceID string
	PremiumYearlyPriceID  string
}

// stripeService is the concrete implementation of Service.
type stripeService struct {
	webhookSecret string
	prices        PriceConfig
	priceToPlan   map[string]domain.PlanID
}

// NewStripeService creates a new Stripe billing service.
//
// The secretKey is used to authenticate Stripe API calls.
// The webhookSecret is used to verify incoming webhook signatures.
// The prices configure which Stripe price IDs map to which plans.
func NewStripeService(secretKey, webhookSecret string, prices PriceConfig) Service {
	stripe.Key = secretKey

	priceToPlan := make(map[string]domain.PlanID)
	for priceID, plan := range map[string]domain.PlanID{
		prices.StarterMonthlyPriceID: domain.PlanStarter,
		prices.StarterYearlyPriceID:  domain.PlanStarter,
		prices.ProMonthlyPriceID:     domain.PlanPro,
		prices.ProYearlyPriceID:      domain.PlanPro,
		prices.PremiumMonthlyPriceID: domain.PlanPremium,
		prices.PremiumYearlyPriceID:  domain.PlanPremium,
	} {
		if priceID != "" {
			priceToPlan[priceID] = plan
		}
	}

	return &stripeService{
		webhookSecret: webhookSecret,
		prices:        prices,
		priceToPlan:   priceToPlan,
	}
}

func (s *stripeService) CreateCustomer(email, name string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	c, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	return c.ID, nil
}

func (s *stripeService) CreateCheckoutSession(customerID, priceID, successURL, cancelURL string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(customerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) CreatePortalSession(customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	sess, err := billingportalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create portal session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) GetSubscription(subscriptionID string) (*stripe.Subscription, error) {
	sub, err := subscription.Get(subscriptionID, nil)
	if err != nil {
		return nil, fmt.Errorf("stripe get subscription: %w", err)
	}
	return sub, nil
}

func (s *stripeService) CancelSubscription(subscriptionID string) error {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	_, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return fmt.Errorf("stripe cancel subscription: %w", err)
	}
	return nil
}

func (s *stripeService) ReactivateSubscription(subscriptionID string) error {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(false),
	}
	_, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return fmt.Errorf("stripe reactivate subscription: %w", err)
	}
	return nil
}

func (s *stripeService) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("stripe webhook signature verification failed: %w", err)
	}
	return event, nil
}

func (s *stripeService) PlanForPriceID(priceID string) domain.PlanID {
	if plan, ok := s.priceToPlan[priceID]; ok {
		return plan
	}
	return domain.PlanFree
}

func (s *stripeService) PriceIDFor(plan domain.PlanID, interval string) (string, error) {
	var priceID string
	switch {
	case plan == domain.PlanStarter && interval == "monthly":
		priceID = s.prices.StarterMonthlyPriceID
	case plan == domain.PlanStarter && interval == "yearly":
		priceID = s.prices.StarterYearlyPriceID
	case plan == domain.PlanPro && interval == "monthly":
		priceID = s.prices.ProMonthlyPriceID
	case plan == domain.PlanPro && interval == "yearly":
		priceID = s.prices.ProYearlyPriceID
	case plan == domain.PlanPremium && interval == "monthly":
		priceID = s.prices.PremiumMonthlyPriceID
	case plan == domain.PlanPremium && interval == "yearly":
		priceID = s.prices.PremiumYearlyPriceID
	default:
		return "", fmt.Errorf("no price for plan %s with interval %s", plan, interval)
	}
	if priceID == "" {
		return "", fmt.Errorf("price for plan %s with interval %s is not configured", plan, interval)
	}
	return priceID, nil
}
