// Package guard enforces row-level multi-tenancy on every data operation.
// All resource access goes through a Scope; there is no direct handler path
// to storage for tenant-owned records.
package guard

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/trainhub/trainhub-server/internal/apperr"
	"github.com/trainhub/trainhub-server/internal/auth"
	"github.com/trainhub/trainhub-server/internal/storage"
)

// Record is a stored entity the guard can scope to a tenant.
type Record interface {
	RecordID() uuid.UUID
	RecordTenant() uuid.UUID
	SetRecordTenant(uuid.UUID)
}

// Repository is the generic storage collaborator a Scope delegates to.
type Repository[T Record] interface {
	Find(ctx context.Context, filters storage.Filters, page storage.Page) ([]T, int64, error)
	FindOne(ctx context.Context, id uuid.UUID) (T, error)
	Create(ctx context.Context, record T) error
	Update(ctx context.Context, record T) error
	Delete(ctx context.Context, id uuid.UUID) error
	Count(ctx context.Context, filters storage.Filters) (int64, error)
}

// CreateCheck validates cross-entity references on create, after the tenant
// reference has been stamped.
type CreateCheck[T Record] func(ctx context.Context, ident auth.Identity, record T) error

// Meta is pagination metadata computed from the filtered set size.
type Meta struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"pageSize"`
	PageCount int   `json:"pageCount"`
	Total     int64 `json:"total"`
}

// MetaFor computes pagination metadata for a filtered result set.
func MetaFor(page storage.Page, total int64) Meta {
	page = page.Normalize()
	pageCount := int(total) / page.PageSize
	if int(total)%page.PageSize != 0 {
		pageCount++
	}
	return Meta{
		Page:      page.Page,
		PageSize:  page.PageSize,
		PageCount: pageCount,
		Total:     total,
	}
}

// Scope wraps a repository with tenant scoping and ownership checks.
type Scope[T Record] struct {
	repo           Repository[T]
	tenantResource bool
	createCheck    CreateCheck[T]
}

// Option configures a Scope.
type Option[T Record] func(*Scope[T])

// WithTenantResource marks the scope as guarding the tenant resource itself:
// create is open (self-registration) and ownership means "id equals the
// resolved tenant id".
func WithTenantResource[T Record]() Option[T] {
	return func(s *Scope[T]) { s.tenantResource = true }
}

// WithCreateCheck installs a cross-entity reference validation hook.
func WithCreateCheck[T Record](check CreateCheck[T]) Option[T] {
	return func(s *Scope[T]) { s.createCheck = check }
}

// NewScope creates a tenant-scoped view over a repository.
func NewScope[T Record](repo Repository[T], opts ...Option[T]) *Scope[T] {
	s := &Scope[T]{repo: repo}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// owner derives the owning tenant of a record. For the tenant resource the
// record id is the owner.
func (s *Scope[T]) owner(record T) uuid.UUID {
	if s.tenantResource {
		return record.RecordID()
	}
	return record.RecordTenant()
}

func (s *Scope[T]) scopeFilters(filters storage.Filters, tenantID uuid.UUID) storage.Filters {
	field := "tenant_id"
	if s.tenantResource {
		field = "id"
	}
	// The tenant condition is appended last and unconditionally; caller
	// filters can narrow the tenant's own data but never widen it.
	return filters.Where(field, storage.OpEq, tenantID)
}

// List returns the caller tenant's records matching the filters.
func (s *Scope[T]) List(ctx context.Context, ident auth.Identity, filters storage.Filters, page storage.Page) ([]T, Meta, error) {
	if !ident.HasTenant() {
		return nil, Meta{}, apperr.ErrUnauthenticated
	}

	records, total, err := s.repo.Find(ctx, s.scopeFilters(filters, ident.TenantID), page)
	if err != nil {
		return nil, Meta{}, err
	}

	return records, MetaFor(page, total), nil
}

// Count counts the caller tenant's records matching the filters.
func (s *Scope[T]) Count(ctx context.Context, ident auth.Identity, filters storage.Filters) (int64, error) {
	if !ident.HasTenant() {
		return 0, apperr.ErrUnauthenticated
	}

	return s.repo.Count(ctx, s.scopeFilters(filters, ident.TenantID))
}

// GetOne fetches a record by id. A record owned by another tenant is
// indistinguishable from an absent one.
func (s *Scope[T]) GetOne(ctx context.Context, ident auth.Identity, id uuid.UUID) (T, error) {
	var zero T

	if !ident.HasTenant() {
		return zero, apperr.ErrUnauthenticated
	}

	record, err := s.repo.FindOne(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return zero, apperr.ErrNotFound
		}
		return zero, err
	}

	if s.owner(record) != ident.TenantID {
		return zero, apperr.ErrNotFound
	}

	return record, nil
}

// Create stores a new record for the caller's tenant. Any caller-supplied
// tenant reference is overwritten with the resolved tenant before the write.
// Creating the tenant resource itself is permitted without a prior tenant.
func (s *Scope[T]) Create(ctx context.Context, ident auth.Identity, record T) error {
	if s.tenantResource {
		return s.repo.Create(ctx, record)
	}

	if !ident.HasTenant() {
		return apperr.ErrUnauthenticated
	}

	record.SetRecordTenant(ident.TenantID)

	if s.createCheck != nil {
		if err := s.createCheck(ctx, ident, record); err != nil {
			return err
		}
	}

	return s.repo.Create(ctx, record)
}

// Update overwrites a record after verifying ownership against the stored
// row, then re-stamps the tenant reference before delegating the write.
func (s *Scope[T]) Update(ctx context.Context, ident auth.Identity, record T) error {
	if !ident.HasTenant() {
		return apperr.ErrUnauthenticated
	}

	existing, err := s.repo.FindOne(ctx, record.RecordID())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.ErrNotFound
		}
		return err
	}

	if s.owner(existing) != ident.TenantID {
		return apperr.ErrForbidden
	}

	record.SetRecordTenant(ident.TenantID)

	return s.repo.Update(ctx, record)
}

// Delete removes a record after the same ownership check as Update.
func (s *Scope[T]) Delete(ctx context.Context, ident auth.Identity, id uuid.UUID) error {
	if !ident.HasTenant() {
		return apperr.ErrUnauthenticated
	}

	existing, err := s.repo.FindOne(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.ErrNotFound
		}
		return err
	}

	if s.owner(existing) != ident.TenantID {
		return apperr.ErrForbidden
	}

	return s.repo.Delete(ctx, id)
}

// wrapInput tags an error as invalid input with context.
func wrapInput(msg string) error {
	return fmt.Errorf("%w: %s", apperr.ErrInvalidInput, msg)
}
