package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
	stripesub "github.com/stripe/stripe-go/v82/subscription"

	"github.com/trainhub/trainhub-server/internal/apperr"
)

// CheckoutParams describes a hosted checkout session to create.
type CheckoutParams struct {
	PriceRef      string
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
	Metadata      map[string]string
}

// ProviderSubscription is the provider's authoritative view of a
// subscription, reduced to the fields the ledger tracks.
type ProviderSubscription struct {
	Ref               string
	Status            string
	PriceRef          string
	CancelAtPeriodEnd bool
	PeriodStart       time.Time
	PeriodEnd         time.Time
}

// Provider is the payment backend. The ledger never trusts webhook
// payloads for subscription state; it re-fetches through this interface.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error)
	CancelAtPeriodEnd(ctx context.Context, subscriptionRef string) error
	RetrieveSubscription(ctx context.Context, subscriptionRef string) (*ProviderSubscription, error)
}

// StripeProvider implements Provider against the Stripe API.
type StripeProvider struct {
	createSession      func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	getSubscription    func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	updateSubscription func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
}

// NewStripeProvider sets the global Stripe key and returns a provider
// bound to the real Stripe client functions.
func NewStripeProvider(secretKey string) *StripeProvider {
	stripe.Key = strings.TrimSpace(secretKey)
	return &StripeProvider{
		createSession:      stripesession.New,
		getSubscription:    stripesub.Get,
		updateSubscription: stripesub.Update,
	}
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error) {
	sessionParams := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(params.PriceRef),
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: params.Metadata,
	}
	if params.CustomerEmail != "" {
		sessionParams.CustomerEmail = stripe.String(params.CustomerEmail)
	}
	sessionParams.Context = ctx

	session, err := p.createSession(sessionParams)
	if err != nil || session == nil || strings.TrimSpace(session.URL) == "" {
		return "", fmt.Errorf("%w: create checkout session: %v", apperr.ErrExternalProvider, err)
	}
	return session.URL, nil
}

func (p *StripeProvider) CancelAtPeriodEnd(ctx context.Context, subscriptionRef string) error {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Context = ctx
	if _, err := p.updateSubscription(subscriptionRef, params); err != nil {
		return fmt.Errorf("%w: cancel subscription %s: %v", apperr.ErrExternalProvider, subscriptionRef, err)
	}
	return nil
}

func (p *StripeProvider) RetrieveSubscription(ctx context.Context, subscriptionRef string) (*ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := p.getSubscription(subscriptionRef, params)
	if err != nil || sub == nil {
		return nil, fmt.Errorf("%w: retrieve subscription %s: %v", apperr.ErrExternalProvider, subscriptionRef, err)
	}

	out := &ProviderSubscription{
		Ref:               sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			out.PriceRef = item.Price.ID
		}
		if item.CurrentPeriodStart > 0 {
			out.PeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		}
		if item.CurrentPeriodEnd > 0 {
			out.PeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
		}
	}
	return out, nil
}
