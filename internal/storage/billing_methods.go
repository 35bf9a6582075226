package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trainhub/trainhub-server/internal/models"
)

// ========== Plan methods ==========

const planColumns = `id, created_at, updated_at, code, name, price_ref, amount_cents, currency`

func scanPlan(row interface{ Scan(...interface{}) error }) (*models.Plan, error) {
	plan := &models.Plan{}
	err := row.Scan(
		&plan.ID, &plan.CreatedAt, &plan.UpdatedAt, &plan.Code, &plan.Name,
		&plan.PriceRef, &plan.AmountCents, &plan.Currency,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return plan, err
}

// GetPlanByCode gets a plan by its reference code
func (s *PostgresStore) GetPlanByCode(ctx context.Context, code string) (*models.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE code = $1`
	return scanPlan(s.getDB().QueryRowContext(ctx, query, code))
}

// GetPlanByPriceRef gets a plan by its provider price reference
func (s *PostgresStore) GetPlanByPriceRef(ctx context.Context, priceRef string) (*models.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE price_ref = $1`
	return scanPlan(s.getDB().QueryRowContext(ctx, query, priceRef))
}

// ListPlans lists all catalog plans
func (s *PostgresStore) ListPlans(ctx context.Context) ([]*models.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans ORDER BY amount_cents ASC`

	rows, err := s.getDB().QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []*models.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}

	return plans, rows.Err()
}

// ========== Subscription methods ==========

const subscriptionColumns = `id, created_at, updated_at, tenant_id, plan_id, status,
               provider_subscription_ref, provider_price_ref,
               current_period_start, current_period_end, cancel_at_period_end`

func scanSubscription(row interface{ Scan(...interface{}) error }) (*models.Subscription, error) {
	sub := &models.Subscription{}
	err := row.Scan(
		&sub.ID, &sub.CreatedAt, &sub.UpdatedAt, &sub.TenantID, &sub.PlanID,
		&sub.Status, &sub.ProviderSubscriptionRef, &sub.ProviderPriceRef,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CancelAtPeriodEnd,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return sub, err
}

// CreateSubscription creates a new subscription
func (s *PostgresStore) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}

	now := time.Now()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	query := `
        INSERT INTO subscriptions (
            id, created_at, updated_at, tenant_id, plan_id, status,
            provider_subscription_ref, provider_price_ref,
            current_period_start, current_period_end, cancel_at_period_end
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
        )`

	_, err := s.getDB().ExecContext(ctx, query,
		sub.ID, sub.CreatedAt, sub.UpdatedAt, sub.TenantID, sub.PlanID,
		sub.Status, sub.ProviderSubscriptionRef, sub.ProviderPriceRef,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// GetSubscription gets a subscription by ID
func (s *PostgresStore) GetSubscription(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	return scanSubscription(s.getDB().QueryRowContext(ctx, query, id))
}

// GetSubscriptionByTenant gets a tenant's newest non-canceled subscription,
// falling back to the newest row of any status.
func (s *PostgresStore) GetSubscriptionByTenant(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
        WHERE tenant_id = $1
        ORDER BY (status <> 'canceled') DESC, created_at DESC
        LIMIT 1`
	return scanSubscription(s.getDB().QueryRowContext(ctx, query, tenantID))
}

// GetSubscriptionByProviderRef gets a subscription by provider subscription reference
func (s *PostgresStore) GetSubscriptionByProviderRef(ctx context.Context, ref string) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE provider_subscription_ref = $1`
	return scanSubscription(s.getDB().QueryRowContext(ctx, query, ref))
}

// UpdateSubscription updates a subscription
func (s *PostgresStore) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	sub.UpdatedAt = time.Now()

	query := `
        UPDATE subscriptions SET
            updated_at = $2, plan_id = $3, status = $4,
            provider_subscription_ref = $5, provider_price_ref = $6,
            current_period_start = $7, current_period_end = $8,
            cancel_at_period_end = $9
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		sub.ID, sub.UpdatedAt, sub.PlanID, sub.Status,
		sub.ProviderSubscriptionRef, sub.ProviderPriceRef,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd,
	)

	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// UpsertSubscriptionByProviderRef inserts the subscription or, when a row
// with the same provider subscription reference already exists, overwrites
// its state. Duplicate webhook deliveries converge on one row.
func (s *PostgresStore) UpsertSubscriptionByProviderRef(ctx context.Context, sub *models.Subscription) error {
	if sub.ProviderSubscriptionRef == nil || *sub.ProviderSubscriptionRef == "" {
		return fmt.Errorf("%w: missing provider subscription ref", ErrInvalidData)
	}

	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}

	now := time.Now()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now

	query := `
        INSERT INTO subscriptions (
            id, created_at, updated_at, tenant_id, plan_id, status,
            provider_subscription_ref, provider_price_ref,
            current_period_start, current_period_end, cancel_at_period_end
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
        )
        ON CONFLICT (provider_subscription_ref) DO UPDATE SET
            updated_at = EXCLUDED.updated_at,
            plan_id = EXCLUDED.plan_id,
            status = EXCLUDED.status,
            provider_price_ref = EXCLUDED.provider_price_ref,
            current_period_start = EXCLUDED.current_period_start,
            current_period_end = EXCLUDED.current_period_end,
            cancel_at_period_end = EXCLUDED.cancel_at_period_end`

	_, err := s.getDB().ExecContext(ctx, query,
		sub.ID, sub.CreatedAt, sub.UpdatedAt, sub.TenantID, sub.PlanID,
		sub.Status, sub.ProviderSubscriptionRef, sub.ProviderPriceRef,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd,
	)

	return err
}

// ========== Invoice methods ==========

// CreateInvoice appends an invoice to the payment log. The append is keyed
// on the provider invoice reference; a duplicate delivery is a no-op and
// returns false.
func (s *PostgresStore) CreateInvoice(ctx context.Context, invoice *models.Invoice) (bool, error) {
	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	invoice.CreatedAt = time.Now()

	query := `
        INSERT INTO invoices (
            id, created_at, tenant_id, subscription_id, provider_invoice_ref,
            amount_cents, currency, status, raw
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9
        )
        ON CONFLICT (provider_invoice_ref) DO NOTHING`

	result, err := s.getDB().ExecContext(ctx, query,
		invoice.ID, invoice.CreatedAt, invoice.TenantID, invoice.SubscriptionID,
		invoice.ProviderInvoiceRef, invoice.AmountCents, invoice.Currency,
		invoice.Status, invoice.Raw,
	)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}

// ListInvoices lists a tenant's invoices, newest first
func (s *PostgresStore) ListInvoices(ctx context.Context, tenantID uuid.UUID, page Page) ([]*models.Invoice, int64, error) {
	var count int64
	err := s.getDB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM invoices WHERE tenant_id = $1`, tenantID,
	).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	limit, offset := page.LimitOffset()
	query := fmt.Sprintf(`
        SELECT id, created_at, tenant_id, subscription_id, provider_invoice_ref,
               amount_cents, currency, status, raw
        FROM invoices
        WHERE tenant_id = $1
        ORDER BY created_at DESC
        LIMIT %d OFFSET %d`, limit, offset)

	rows, err := s.getDB().QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var invoices []*models.Invoice
	for rows.Next() {
		invoice := &models.Invoice{}
		err := rows.Scan(
			&invoice.ID, &invoice.CreatedAt, &invoice.TenantID, &invoice.SubscriptionID,
			&invoice.ProviderInvoiceRef, &invoice.AmountCents, &invoice.Currency,
			&invoice.Status, &invoice.Raw,
		)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, invoice)
	}

	return invoices, count, rows.Err()
}
