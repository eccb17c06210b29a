// Package billing integrates Stripe subscriptions: hosted checkout,
// the customer portal, and the webhook that drives the local
// subscription status.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v81"
	portalsession "github.com/stripe/stripe-go/v81/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/webhook"

	"casacore/internal/core"
)

var ErrNotConfigured = errors.New("billing is not configured")

type Config struct {
	APIKey        string
	WebhookSecret string
	PriceID       string
	SuccessURL    string
	CancelURL     string
	ReturnURL     string
}

// Service wraps the Stripe API surface this system uses. A zero-key
// config produces a service whose operations all fail with
// ErrNotConfigured, so callers need no nil checks.
type Service struct {
	config Config
}

func NewService(config Config) *Service {
	if config.APIKey != "" {
		stripe.Key = config.APIKey
	}
	return &Service{config: config}
}

func (s *Service) Configured() bool {
	return s.config.APIKey != ""
}

// CreateCheckoutSession starts a subscription checkout for the given
// email and returns the hosted payment page URL.
func (s *Service) CreateCheckoutSession(ctx context.Context, email string) (string, error) {
	if !s.Configured() {
		return "", ErrNotConfigured
	}

	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		CustomerEmail: stripe.String(email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.config.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(s.config.SuccessURL),
		CancelURL:  stripe.String(s.config.CancelURL),
	}
	params.Context = ctx

	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create checkout session: %w", err)
	}

	slog.InfoContext(ctx, "Created checkout session",
		"session_id", sess.ID,
		"email", email)

	return sess.URL, nil
}

// CreatePortalSession opens the customer portal for an existing Stripe
// customer and returns its URL.
func (s *Service) CreatePortalSession(ctx context.Context, customerID string) (string, error) {
	if !s.Configured() {
		return "", ErrNotConfigured
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(s.config.ReturnURL),
	}
	params.Context = ctx

	sess, err := portalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create portal session: %w", err)
	}

	slog.InfoContext(ctx, "Created portal session",
		"session_id", sess.ID,
		"customer_id", customerID)

	return sess.URL, nil
}

// VerifyWebhook checks the Stripe signature and parses the event. An
// invalid signature is an error; the payload is never trusted without it.
func (s *Service) VerifyWebhook(payload []byte, signature string) (stripe.Event, error) {
	if !s.Configured() {
		return stripe.Event{}, ErrNotConfigured
	}

	event, err := webhook.ConstructEvent(payload, signature, s.config.WebhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("stripe: verify webhook signature: %w", err)
	}
	return event, nil
}

// SubscriptionStatusForEvent maps a webhook event type to the local
// subscription status it implies. The bool is false for events that do
// not change the status.
func SubscriptionStatusForEvent(eventType stripe.EventType) (core.SubscriptionStatus, bool) {
	switch eventType {
	case "checkout.session.completed", "invoice.paid":
		return core.SubscriptionActive, true
	case "customer.subscription.deleted", "invoice.payment_failed":
		return core.SubscriptionExpired, true
	default:
		return "", false
	}
}
