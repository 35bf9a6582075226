package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/trainhub/trainhub-server/internal/models"
	"github.com/trainhub/trainhub-server/internal/storage"
)

// CheckoutSession is a minimal representation of a Stripe
// checkout.session event payload.
type CheckoutSession struct {
	ID           string            `json:"id"`
	Mode         string            `json:"mode"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// SubscriptionEvent is a minimal representation of a Stripe subscription
// event payload.
type SubscriptionEvent struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
}

// InvoiceEvent is a minimal representation of a Stripe invoice event
// payload. The subscription reference moved under parent in newer API
// versions; both shapes are accepted.
type InvoiceEvent struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
	AmountPaid   int64  `json:"amount_paid"`
	AmountDue    int64  `json:"amount_due"`
	Currency     string `json:"currency"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`

	Raw models.Variables `json:"-"`
}

// SubscriptionRef returns the provider subscription reference from
// whichever payload shape carries it.
func (e *InvoiceEvent) SubscriptionRef() string {
	if ref := strings.TrimSpace(e.Subscription); ref != "" {
		return ref
	}
	return strings.TrimSpace(e.Parent.SubscriptionDetails.Subscription)
}

// Synchronizer applies provider events to the subscription ledger. Event
// payloads only identify the subscription; the state written to the
// ledger is always re-fetched from the provider.
type Synchronizer struct {
	store    storage.Store
	provider Provider
}

func NewSynchronizer(store storage.Store, provider Provider) *Synchronizer {
	return &Synchronizer{store: store, provider: provider}
}

// HandleCheckoutCompleted upserts the ledger row for a completed hosted
// checkout. The tenant comes from the session metadata stamped at
// session creation.
func (s *Synchronizer) HandleCheckoutCompleted(ctx context.Context, session CheckoutSession) error {
	if session.Mode != "" && session.Mode != "subscription" {
		log.Info().Str("session_id", session.ID).Str("mode", session.Mode).
			Msg("Checkout session ignored (not a subscription)")
		return nil
	}

	tenantID, err := uuid.Parse(strings.TrimSpace(session.Metadata["tenant_id"]))
	if err != nil {
		log.Error().Str("session_id", session.ID).
			Msg("Checkout session has no tenant metadata, ignoring")
		return nil
	}

	ref := strings.TrimSpace(session.Subscription)
	if ref == "" {
		log.Error().Str("session_id", session.ID).
			Msg("Checkout session has no subscription reference, ignoring")
		return nil
	}

	ps, err := s.provider.RetrieveSubscription(ctx, ref)
	if err != nil {
		return err
	}

	sub := &models.Subscription{
		ID:       uuid.New(),
		TenantID: tenantID,
	}
	s.applyProviderState(ctx, sub, ps)

	if err := s.store.UpsertSubscriptionByProviderRef(ctx, sub); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}

	log.Info().
		Str("tenant_id", tenantID.String()).
		Str("provider_ref", ref).
		Str("status", string(sub.Status)).
		Msg("Subscription synchronized from checkout")

	return nil
}

// HandleInvoicePaid appends a paid invoice to the log and refreshes the
// subscription row from the provider. A missing row is an error so the
// provider retries after the checkout event lands.
func (s *Synchronizer) HandleInvoicePaid(ctx context.Context, inv InvoiceEvent) error {
	ref := inv.SubscriptionRef()
	if ref == "" {
		log.Info().Str("invoice_ref", inv.ID).
			Msg("Invoice without subscription reference, ignoring")
		return nil
	}

	sub, err := s.store.GetSubscriptionByProviderRef(ctx, ref)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no subscription for provider ref %s yet", ref)
		}
		return fmt.Errorf("get subscription: %w", err)
	}

	inserted, err := s.store.CreateInvoice(ctx, &models.Invoice{
		ID:                 uuid.New(),
		TenantID:           sub.TenantID,
		SubscriptionID:     &sub.ID,
		ProviderInvoiceRef: inv.ID,
		AmountCents:        inv.AmountPaid,
		Currency:           inv.Currency,
		Status:             models.InvoicePaid,
		Raw:                inv.Raw,
	})
	if err != nil {
		return fmt.Errorf("record invoice: %w", err)
	}
	if !inserted {
		log.Info().Str("invoice_ref", inv.ID).Msg("Invoice already recorded")
	}

	ps, err := s.provider.RetrieveSubscription(ctx, ref)
	if err != nil {
		return err
	}
	s.applyProviderState(ctx, sub, ps)
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}

	log.Info().
		Str("tenant_id", sub.TenantID.String()).
		Str("invoice_ref", inv.ID).
		Str("status", string(sub.Status)).
		Msg("Paid invoice recorded")

	return nil
}

// HandleInvoiceFailed appends a failed invoice and marks the
// subscription past due. Unknown subscription references are skipped.
func (s *Synchronizer) HandleInvoiceFailed(ctx context.Context, inv InvoiceEvent) error {
	ref := inv.SubscriptionRef()
	if ref == "" {
		log.Info().Str("invoice_ref", inv.ID).
			Msg("Invoice without subscription reference, ignoring")
		return nil
	}

	sub, err := s.store.GetSubscriptionByProviderRef(ctx, ref)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Warn().Str("provider_ref", ref).Str("invoice_ref", inv.ID).
				Msg("Failed invoice for unknown subscription, skipping")
			return nil
		}
		return fmt.Errorf("get subscription: %w", err)
	}

	if _, err := s.store.CreateInvoice(ctx, &models.Invoice{
		ID:                 uuid.New(),
		TenantID:           sub.TenantID,
		SubscriptionID:     &sub.ID,
		ProviderInvoiceRef: inv.ID,
		AmountCents:        inv.AmountDue,
		Currency:           inv.Currency,
		Status:             models.InvoiceFailed,
		Raw:                inv.Raw,
	}); err != nil {
		return fmt.Errorf("record invoice: %w", err)
	}

	sub.Status = models.SubscriptionPastDue
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}

	log.Warn().
		Str("tenant_id", sub.TenantID.String()).
		Str("invoice_ref", inv.ID).
		Msg("Payment failed, subscription past due")

	return nil
}

// HandleSubscriptionUpdated refreshes a known subscription row from the
// provider.
func (s *Synchronizer) HandleSubscriptionUpdated(ctx context.Context, ev SubscriptionEvent) error {
	sub, err := s.store.GetSubscriptionByProviderRef(ctx, ev.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Info().Str("provider_ref", ev.ID).
				Msg("Update for unknown subscription, ignoring")
			return nil
		}
		return fmt.Errorf("get subscription: %w", err)
	}

	ps, err := s.provider.RetrieveSubscription(ctx, ev.ID)
	if err != nil {
		return err
	}
	s.applyProviderState(ctx, sub, ps)
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}

	log.Info().
		Str("tenant_id", sub.TenantID.String()).
		Str("status", string(sub.Status)).
		Msg("Subscription synchronized")

	return nil
}

// HandleSubscriptionDeleted marks a known subscription canceled.
func (s *Synchronizer) HandleSubscriptionDeleted(ctx context.Context, ev SubscriptionEvent) error {
	sub, err := s.store.GetSubscriptionByProviderRef(ctx, ev.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Info().Str("provider_ref", ev.ID).
				Msg("Deletion of unknown subscription, ignoring")
			return nil
		}
		return fmt.Errorf("get subscription: %w", err)
	}

	sub.Status = models.SubscriptionCanceled
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}

	log.Info().
		Str("tenant_id", sub.TenantID.String()).
		Str("provider_ref", ev.ID).
		Msg("Subscription canceled")

	return nil
}

func (s *Synchronizer) applyProviderState(ctx context.Context, sub *models.Subscription, ps *ProviderSubscription) {
	ref := ps.Ref
	sub.ProviderSubscriptionRef = &ref
	sub.Status = mapProviderStatus(ps.Status)
	sub.CancelAtPeriodEnd = ps.CancelAtPeriodEnd

	if ps.PriceRef != "" {
		priceRef := ps.PriceRef
		sub.ProviderPriceRef = &priceRef
		if plan, err := s.store.GetPlanByPriceRef(ctx, ps.PriceRef); err == nil {
			planID := plan.ID
			sub.PlanID = &planID
		} else if !errors.Is(err, storage.ErrNotFound) {
			log.Warn().Err(err).Str("price_ref", ps.PriceRef).Msg("Plan lookup failed")
		}
	}
	if !ps.PeriodStart.IsZero() {
		start := ps.PeriodStart
		sub.CurrentPeriodStart = &start
	}
	if !ps.PeriodEnd.IsZero() {
		end := ps.PeriodEnd
		sub.CurrentPeriodEnd = &end
	}
}

func mapProviderStatus(status string) models.SubscriptionStatus {
	switch status {
	case "active", "trialing":
		return models.SubscriptionActive
	case "past_due", "unpaid", "incomplete":
		return models.SubscriptionPastDue
	case "canceled", "incomplete_expired":
		return models.SubscriptionCanceled
	default:
		log.Warn().Str("status", status).Msg("Unknown provider subscription status")
		return models.SubscriptionPastDue
	}
}
