package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"casacore/internal/billing"
)

// Stripe recommends capping webhook bodies at 64KB.
const maxWebhookBody = 65536

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	url, err := s.billing.CreateCheckoutSession(r.Context(), req.Email)
	if err != nil {
		writeBillingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handlePortal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID string `json:"customer_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CustomerID == "" {
		writeError(w, http.StatusBadRequest, "customer_id is required")
		return
	}

	url, err := s.billing.CreatePortalSession(r.Context(), req.CustomerID)
	if err != nil {
		writeBillingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// handleBillingWebhook applies subscription transitions from verified
// Stripe events. Unrecognized event types are acknowledged and ignored so
// Stripe does not retry them forever.
func (s *Server) handleBillingWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read webhook body")
		return
	}

	event, err := s.billing.VerifyWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, billing.ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, "billing is not configured")
			return
		}
		slog.WarnContext(r.Context(), "Webhook signature rejected", "error", err)
		writeError(w, http.StatusBadRequest, "invalid webhook signature")
		return
	}

	status, changes := billing.SubscriptionStatusForEvent(event.Type)
	if changes {
		if err := s.ledger.SetSubscriptionStatus(r.Context(), status); err != nil {
			slog.ErrorContext(r.Context(), "Failed to apply subscription status",
				"event_type", event.Type, "status", status, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		slog.InfoContext(r.Context(), "Subscription status updated",
			"event_type", event.Type, "status", status)
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func writeBillingError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, billing.ErrNotConfigured) {
		writeError(w, http.StatusServiceUnavailable, "billing is not configured")
		return
	}
	slog.ErrorContext(r.Context(), "Billing request failed", "error", err)
	writeError(w, http.StatusBadGateway, "billing provider error")
}
