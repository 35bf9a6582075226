package models

import (
	"time"

	"github.com/google/uuid"
)

// Plan codes with special handling.
const PlanCodeFree = "free"

// Plan is a catalog entry mapping an internal plan code to a payment
// provider price reference. Reference data, not tenant-scoped.
type Plan struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	Code        string `json:"code" db:"code"`
	Name        string `json:"name" db:"name"`
	PriceRef    string `json:"priceRef,omitempty" db:"price_ref"`
	AmountCents int64  `json:"amountCents" db:"amount_cents"`
	Currency    string `json:"currency" db:"currency"`
}

// Subscription statuses. The ledger never hard-deletes a subscription;
// cancellation is the canceled status.
type SubscriptionStatus string

const (
	SubscriptionPendingCheckout SubscriptionStatus = "pending_checkout"
	SubscriptionActive          SubscriptionStatus = "active"
	SubscriptionPastDue         SubscriptionStatus = "past_due"
	SubscriptionCanceled        SubscriptionStatus = "canceled"
)

// Subscription is the durable ledger of a tenant's billing state. At most
// one subscription exists per tenant at a time. Created by the checkout
// orchestrator (free path) or the webhook synchronizer (paid path); all
// later transitions come from provider events.
type Subscription struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	TenantID uuid.UUID  `json:"tenantId" db:"tenant_id"`
	PlanID   *uuid.UUID `json:"planId,omitempty" db:"plan_id"`

	Status SubscriptionStatus `json:"status" db:"status"`

	// Provider references are nil until a paid flow completes.
	ProviderSubscriptionRef *string `json:"providerSubscriptionRef,omitempty" db:"provider_subscription_ref"`
	ProviderPriceRef        *string `json:"providerPriceRef,omitempty" db:"provider_price_ref"`

	// Period bounds are nil for non-expiring free plans.
	CurrentPeriodStart *time.Time `json:"currentPeriodStart,omitempty" db:"current_period_start"`
	CurrentPeriodEnd   *time.Time `json:"currentPeriodEnd,omitempty" db:"current_period_end"`

	CancelAtPeriodEnd bool `json:"cancelAtPeriodEnd" db:"cancel_at_period_end"`
}

// Invoice statuses.
const (
	InvoicePaid   = "paid"
	InvoiceFailed = "failed"
)

// Invoice is one entry of the append-only payment log. Created by the
// webhook synchronizer, never mutated.
type Invoice struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	TenantID       uuid.UUID  `json:"tenantId" db:"tenant_id"`
	SubscriptionID *uuid.UUID `json:"subscriptionId,omitempty" db:"subscription_id"`

	ProviderInvoiceRef string `json:"providerInvoiceRef" db:"provider_invoice_ref"`

	AmountCents int64  `json:"amountCents" db:"amount_cents"`
	Currency    string `json:"currency" db:"currency"`
	Status      string `json:"status" db:"status"`

	// Raw provider payload, retained for audit.
	Raw Variables `json:"raw,omitempty" db:"raw"`
}
