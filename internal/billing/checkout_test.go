package billing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainhub/trainhub-server/internal/apperr"
	"github.com/trainhub/trainhub-server/internal/models"
	"github.com/trainhub/trainhub-server/internal/storage"
)

// fakeProvider records calls and plays back canned answers.
type fakeProvider struct {
	checkoutURL  string
	checkoutErr  error
	canceledRefs []string
	cancelErr    error
	subscription *ProviderSubscription
	retrieveErr  error

	lastCheckout CheckoutParams
}

func (p *fakeProvider) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error) {
	p.lastCheckout = params
	return p.checkoutURL, p.checkoutErr
}

func (p *fakeProvider) CancelAtPeriodEnd(ctx context.Context, ref string) error {
	p.canceledRefs = append(p.canceledRefs, ref)
	return p.cancelErr
}

func (p *fakeProvider) RetrieveSubscription(ctx context.Context, ref string) (*ProviderSubscription, error) {
	if p.retrieveErr != nil {
		return nil, p.retrieveErr
	}
	return p.subscription, nil
}

func seedBillingTenant(t *testing.T, store *storage.MemoryStore) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{Name: "acme", ContactEmail: "billing@acme.com"}
	require.NoError(t, store.CreateTenant(context.Background(), tenant))
	return tenant
}

func seedPlans(store *storage.MemoryStore) {
	store.AddPlan(&models.Plan{Code: models.PlanCodeFree, Name: "Free"})
	store.AddPlan(&models.Plan{Code: "pro", Name: "Pro", PriceRef: "price_pro_123", AmountCents: 4900, Currency: "eur"})
}

func TestStartSubscriptionFreePlanActivatesImmediately(t *testing.T) {
	store := storage.NewMemoryStore()
	seedPlans(store)
	tenant := seedBillingTenant(t, store)
	provider := &fakeProvider{}
	orch := NewOrchestrator(store, provider, "https://ok", "https://cancel")

	result, err := orch.StartSubscription(context.Background(), tenant.ID, models.PlanCodeFree)
	require.NoError(t, err)
	require.NotNil(t, result.Subscription)
	assert.Empty(t, result.RedirectURL)
	assert.Equal(t, models.SubscriptionActive, result.Subscription.Status)
	assert.Nil(t, result.Subscription.CurrentPeriodEnd)
	assert.Nil(t, result.Subscription.ProviderSubscriptionRef)

	// No provider round trip for the free path.
	assert.Empty(t, provider.lastCheckout.PriceRef)
}

func TestStartSubscriptionFreePlanConflictsWithActive(t *testing.T) {
	store := storage.NewMemoryStore()
	seedPlans(store)
	tenant := seedBillingTenant(t, store)
	orch := NewOrchestrator(store, &fakeProvider{}, "https://ok", "https://cancel")

	_, err := orch.StartSubscription(context.Background(), tenant.ID, models.PlanCodeFree)
	require.NoError(t, err)

	_, err = orch.StartSubscription(context.Background(), tenant.ID, models.PlanCodeFree)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestStartSubscriptionPaidPlanConflictsWithActive(t *testing.T) {
	store := storage.NewMemoryStore()
	seedPlans(store)
	tenant := seedBillingTenant(t, store)
	provider := &fakeProvider{checkoutURL: "https://checkout.example/cs_123"}
	orch := NewOrchestrator(store, provider, "https://ok", "https://cancel")

	_, err := orch.StartSubscription(context.Background(), tenant.ID, models.PlanCodeFree)
	require.NoError(t, err)

	// An active free plan blocks a paid checkout just like another free
	// activation would; no provider session gets created.
	_, err = orch.StartSubscription(context.Background(), tenant.ID, "pro")
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Empty(t, provider.lastCheckout.PriceRef)
}

func TestStartSubscriptionAfterCancellation(t *testing.T) {
	store := storage.NewMemoryStore()
	seedPlans(store)
	tenant := seedBillingTenant(t, store)
	provider := &fakeProvider{checkoutURL: "https://checkout.example/cs_456"}
	orch := NewOrchestrator(store, provider, "https://ok", "https://cancel")

	result, err := orch.StartSubscription(context.Background(), tenant.ID, models.PlanCodeFree)
	require.NoError(t, err)

	sub := result.Subscription
	sub.Status = models.SubscriptionCanceled
	require.NoError(t, store.UpdateSubscription(context.Background(), sub))

	paid, err := orch.StartSubscription(context.Background(), tenant.ID, "pro")
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/cs_456", paid.RedirectURL)
}

func TestStartSubscriptionUnknownPlan(t *testing.T) {
	store := storage.NewMemoryStore()
	seedPlans(store)
	tenant := seedBillingTenant(t, store)
	orch := NewOrchestrator(store, &fakeProvider{}, "https://ok", "https://cancel")

	_, err := orch.StartSubscription(context.Background(), tenant.ID, "enterprise")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestStartSubscriptionUnknownTenant(t *testing.T) {
	store := storage.NewMemoryStore()
	seedPlans(store)
	orch := NewOrchestrator(store, &fakeProvider{}, "https://ok", "https://cancel")

	_, err := orch.StartSubscription(context.Background(), uuid.New(), models.PlanCodeFree)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStartSubscriptionPaidPlanReturnsCheckoutURL(t *testing.T) {
	store := storage.NewMemoryStore()
	seedPlans(store)
	tenant := seedBillingTenant(t, store)
	provider := &fakeProvider{checkoutURL: "https://checkout.example/cs_123"}
	orch := NewOrchestrator(store, provider, "https://ok", "https://cancel")

	result, err := orch.StartSubscription(context.Background(), tenant.ID, "pro")
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/cs_123", result.RedirectURL)
	assert.Nil(t, result.Subscription)

	assert.Equal(t, "price_pro_123", provider.lastCheckout.PriceRef)
	assert.Equal(t, tenant.ID.String(), provider.lastCheckout.Metadata["tenant_id"])
	assert.Equal(t, "pro", provider.lastCheckout.Metadata["plan"])

	// No ledger row until the provider confirms completion.
	_, err = store.GetSubscriptionByTenant(context.Background(), tenant.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCancelSubscription(t *testing.T) {
	store := storage.NewMemoryStore()
	tenant := seedBillingTenant(t, store)
	other := seedBillingTenant(t, store)

	ref := "sub_abc"
	sub := &models.Subscription{
		TenantID:                tenant.ID,
		Status:                  models.SubscriptionActive,
		ProviderSubscriptionRef: &ref,
	}
	require.NoError(t, store.CreateSubscription(context.Background(), sub))

	provider := &fakeProvider{}
	orch := NewOrchestrator(store, provider, "https://ok", "https://cancel")

	// Another tenant cannot cancel it.
	err := orch.CancelSubscription(context.Background(), other.ID, sub.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	assert.Empty(t, provider.canceledRefs)

	require.NoError(t, orch.CancelSubscription(context.Background(), tenant.ID, sub.ID))
	assert.Equal(t, []string{"sub_abc"}, provider.canceledRefs)

	// The ledger row is untouched; the webhook carries the state change.
	stored, err := store.GetSubscription(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionActive, stored.Status)
	assert.False(t, stored.CancelAtPeriodEnd)
}

func TestCancelSubscriptionWithoutProviderRef(t *testing.T) {
	store := storage.NewMemoryStore()
	tenant := seedBillingTenant(t, store)

	sub := &models.Subscription{TenantID: tenant.ID, Status: models.SubscriptionActive}
	require.NoError(t, store.CreateSubscription(context.Background(), sub))

	orch := NewOrchestrator(store, &fakeProvider{}, "https://ok", "https://cancel")
	err := orch.CancelSubscription(context.Background(), tenant.ID, sub.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestCurrentSubscriptionNilWhenAbsent(t *testing.T) {
	store := storage.NewMemoryStore()
	tenant := seedBillingTenant(t, store)
	orch := NewOrchestrator(store, &fakeProvider{}, "https://ok", "https://cancel")

	sub, err := orch.CurrentSubscription(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.Nil(t, sub)
}
