package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/trainhub/trainhub-server/internal/apperr"
	"github.com/trainhub/trainhub-server/internal/models"
	"github.com/trainhub/trainhub-server/internal/storage"
)

// CheckoutResult is the outcome of starting a subscription. Exactly one
// of RedirectURL (paid plan, checkout pending) or Subscription (free
// plan, activated immediately) is set.
type CheckoutResult struct {
	RedirectURL  string               `json:"url,omitempty"`
	Subscription *models.Subscription `json:"subscription,omitempty"`
}

// Orchestrator drives the checkout and cancellation flows against the
// subscription ledger and the payment provider.
type Orchestrator struct {
	store      storage.Store
	provider   Provider
	successURL string
	cancelURL  string
}

func NewOrchestrator(store storage.Store, provider Provider, successURL, cancelURL string) *Orchestrator {
	return &Orchestrator{
		store:      store,
		provider:   provider,
		successURL: successURL,
		cancelURL:  cancelURL,
	}
}

// StartSubscription begins a subscription to the named plan for a tenant.
// Free plans activate immediately; paid plans get a hosted checkout URL
// and no ledger row until the provider confirms completion.
func (o *Orchestrator) StartSubscription(ctx context.Context, tenantID uuid.UUID, planCode string) (*CheckoutResult, error) {
	tenant, err := o.store.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: tenant %s", apperr.ErrNotFound, tenantID)
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}

	plan, err := o.store.GetPlanByCode(ctx, planCode)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown plan %q", apperr.ErrInvalidInput, planCode)
		}
		return nil, fmt.Errorf("get plan: %w", err)
	}

	if err := o.ensureNoActiveSubscription(ctx, tenant.ID); err != nil {
		return nil, err
	}

	if plan.Code == models.PlanCodeFree {
		sub, err := o.activateFreePlan(ctx, tenant, plan)
		if err != nil {
			return nil, err
		}
		return &CheckoutResult{Subscription: sub}, nil
	}

	if plan.PriceRef == "" {
		return nil, fmt.Errorf("%w: plan %q has no provider price", apperr.ErrInvalidInput, planCode)
	}

	url, err := o.provider.CreateCheckoutSession(ctx, CheckoutParams{
		PriceRef:      plan.PriceRef,
		SuccessURL:    o.successURL,
		CancelURL:     o.cancelURL,
		CustomerEmail: tenant.ContactEmail,
		Metadata: map[string]string{
			"tenant_id": tenant.ID.String(),
			"plan":      plan.Code,
		},
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("tenant_id", tenant.ID.String()).
		Str("plan", plan.Code).
		Msg("Checkout session created")

	return &CheckoutResult{RedirectURL: url}, nil
}

// ensureNoActiveSubscription rejects a new checkout while the tenant
// holds an active subscription, for free and paid plans alike. Without
// the paid-path check a completed checkout would land a second active
// ledger row next to an active free one.
func (o *Orchestrator) ensureNoActiveSubscription(ctx context.Context, tenantID uuid.UUID) error {
	existing, err := o.store.GetSubscriptionByTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("get subscription: %w", err)
	}
	if existing.Status == models.SubscriptionActive {
		return fmt.Errorf("%w: tenant already has an active subscription", apperr.ErrConflict)
	}
	return nil
}

func (o *Orchestrator) activateFreePlan(ctx context.Context, tenant *models.Tenant, plan *models.Plan) (*models.Subscription, error) {
	planID := plan.ID
	sub := &models.Subscription{
		ID:       uuid.New(),
		TenantID: tenant.ID,
		PlanID:   &planID,
		Status:   models.SubscriptionActive,
	}
	if err := o.store.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	log.Info().
		Str("tenant_id", tenant.ID.String()).
		Str("subscription_id", sub.ID.String()).
		Msg("Free plan activated")

	return sub, nil
}

// CancelSubscription requests cancellation at period end through the
// provider. The ledger row is not touched here; the provider's
// subsequent webhook carries the authoritative state change.
func (o *Orchestrator) CancelSubscription(ctx context.Context, tenantID, subscriptionID uuid.UUID) error {
	sub, err := o.store.GetSubscription(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: subscription %s", apperr.ErrNotFound, subscriptionID)
		}
		return fmt.Errorf("get subscription: %w", err)
	}
	if sub.TenantID != tenantID {
		return fmt.Errorf("%w: subscription belongs to another tenant", apperr.ErrForbidden)
	}
	if sub.ProviderSubscriptionRef == nil || *sub.ProviderSubscriptionRef == "" {
		return fmt.Errorf("%w: subscription has no provider reference", apperr.ErrInvalidInput)
	}

	if err := o.provider.CancelAtPeriodEnd(ctx, *sub.ProviderSubscriptionRef); err != nil {
		return err
	}

	log.Info().
		Str("tenant_id", tenantID.String()).
		Str("subscription_id", subscriptionID.String()).
		Msg("Cancellation requested at period end")

	return nil
}

// CurrentSubscription returns the tenant's subscription row, or nil when
// the tenant has never completed a checkout.
func (o *Orchestrator) CurrentSubscription(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error) {
	sub, err := o.store.GetSubscriptionByTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}
