package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v81"

	"casacore/internal/core"
)

func TestSubscriptionStatusForEvent(t *testing.T) {
	tests := []struct {
		eventType stripe.EventType
		want      core.SubscriptionStatus
		changes   bool
	}{
		{"checkout.session.completed", core.SubscriptionActive, true},
		{"invoice.paid", core.SubscriptionActive, true},
		{"customer.subscription.deleted", core.SubscriptionExpired, true},
		{"invoice.payment_failed", core.SubscriptionExpired, true},
		{"customer.subscription.updated", "", false},
		{"payment_intent.created", "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			got, changes := SubscriptionStatusForEvent(tt.eventType)
			if changes != tt.changes {
				t.Fatalf("SubscriptionStatusForEvent(%s) changes = %v, want %v", tt.eventType, changes, tt.changes)
			}
			if got != tt.want {
				t.Errorf("SubscriptionStatusForEvent(%s) = %s, want %s", tt.eventType, got, tt.want)
			}
		})
	}
}

func TestService_NotConfigured(t *testing.T) {
	svc := NewService(Config{})
	ctx := context.Background()

	if svc.Configured() {
		t.Error("empty config should not report as configured")
	}
	if _, err := svc.CreateCheckoutSession(ctx, "user@example.com"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("CreateCheckoutSession() error = %v, want ErrNotConfigured", err)
	}
	if _, err := svc.CreatePortalSession(ctx, "cus_123"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("CreatePortalSession() error = %v, want ErrNotConfigured", err)
	}
	if _, err := svc.VerifyWebhook([]byte(`{}`), "sig"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("VerifyWebhook() error = %v, want ErrNotConfigured", err)
	}
}
