package billing

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/trainhub/trainhub-server/internal/models"
)

const webhookBodyLimit = 1024 * 1024 // 1 MiB

// WebhookHandler verifies and dispatches incoming payment provider
// webhook events.
type WebhookHandler struct {
	secret string
	sync   *Synchronizer
}

type webhookErrorResponse struct {
	Error string `json:"error"`
}

type webhookReceivedResponse struct {
	Received bool `json:"received"`
}

func NewWebhookHandler(secret string, sync *Synchronizer) *WebhookHandler {
	return &WebhookHandler{secret: secret, sync: sync}
}

// ServeHTTP verifies the event signature and applies the event to the
// ledger. Signature failures are 400; processing failures are 500 so the
// provider redelivers. Authentic events with undecodable payloads are
// logged and acked, since redelivery can never fix them.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, webhookErrorResponse{Error: "method not allowed"})
		return
	}
	if strings.TrimSpace(h.secret) == "" {
		writeJSON(w, http.StatusServiceUnavailable, webhookErrorResponse{Error: "webhook secret not configured"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, webhookErrorResponse{Error: "failed to read request body"})
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		writeJSON(w, http.StatusBadRequest, webhookErrorResponse{Error: "missing signature"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, h.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, webhookErrorResponse{Error: "invalid signature"})
		return
	}

	if err := h.handleEvent(r, &event); err != nil {
		log.Error().Err(err).
			Str("event_id", event.ID).
			Str("type", string(event.Type)).
			Msg("Webhook processing failed")
		writeJSON(w, http.StatusInternalServerError, webhookErrorResponse{Error: "processing failed"})
		return
	}

	writeJSON(w, http.StatusOK, webhookReceivedResponse{Received: true})
}

func (h *WebhookHandler) handleEvent(r *http.Request, event *stripe.Event) error {
	ctx := r.Context()

	switch event.Type {
	case "checkout.session.completed":
		var session CheckoutSession
		if !decodePayload(event, &session) {
			return nil
		}
		return h.sync.HandleCheckoutCompleted(ctx, session)

	case "invoice.payment_succeeded":
		inv, ok := decodeInvoice(event)
		if !ok {
			return nil
		}
		return h.sync.HandleInvoicePaid(ctx, inv)

	case "invoice.payment_failed":
		inv, ok := decodeInvoice(event)
		if !ok {
			return nil
		}
		return h.sync.HandleInvoiceFailed(ctx, inv)

	case "customer.subscription.updated":
		var sub SubscriptionEvent
		if !decodePayload(event, &sub) {
			return nil
		}
		return h.sync.HandleSubscriptionUpdated(ctx, sub)

	case "customer.subscription.deleted":
		var sub SubscriptionEvent
		if !decodePayload(event, &sub) {
			return nil
		}
		return h.sync.HandleSubscriptionDeleted(ctx, sub)

	default:
		log.Info().
			Str("type", string(event.Type)).
			Str("event_id", event.ID).
			Msg("Webhook ignored (unhandled type)")
		return nil
	}
}

// decodePayload unmarshals an event payload. A payload that fails to
// decode will fail on every redelivery too, so it is reported as a
// dropped event rather than an error.
func decodePayload(event *stripe.Event, v interface{}) bool {
	if err := json.Unmarshal(event.Data.Raw, v); err != nil {
		log.Error().Err(err).
			Str("event_id", event.ID).
			Str("type", string(event.Type)).
			Msg("Webhook payload undecodable, dropping event")
		return false
	}
	return true
}

func decodeInvoice(event *stripe.Event) (InvoiceEvent, bool) {
	var inv InvoiceEvent
	if !decodePayload(event, &inv) {
		return inv, false
	}
	var vars models.Variables
	if err := json.Unmarshal(event.Data.Raw, &vars); err == nil {
		inv.Raw = vars
	}
	return inv, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Int("status", status).Msg("Failed to encode webhook response")
	}
}
