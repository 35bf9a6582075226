package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/trainhub/trainhub-server/internal/models"
)

// Typed repository adapters over Store. They exist so the authorization
// guard can stay generic over one small interface per resource kind.

// TrainingRepo adapts Store to the training resource.
type TrainingRepo struct{ S Store }

func (r TrainingRepo) Find(ctx context.Context, filters Filters, page Page) ([]*models.Training, int64, error) {
	return r.S.ListTrainings(ctx, filters, page)
}

func (r TrainingRepo) FindOne(ctx context.Context, id uuid.UUID) (*models.Training, error) {
	return r.S.GetTraining(ctx, id)
}

func (r TrainingRepo) Create(ctx context.Context, record *models.Training) error {
	return r.S.CreateTraining(ctx, record)
}

func (r TrainingRepo) Update(ctx context.Context, record *models.Training) error {
	return r.S.UpdateTraining(ctx, record)
}

func (r TrainingRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.S.DeleteTraining(ctx, id)
}

func (r TrainingRepo) Count(ctx context.Context, filters Filters) (int64, error) {
	return r.S.CountTrainings(ctx, filters)
}

// AssignmentRepo adapts Store to the assignment resource.
type AssignmentRepo struct{ S Store }

func (r AssignmentRepo) Find(ctx context.Context, filters Filters, page Page) ([]*models.Assignment, int64, error) {
	return r.S.ListAssignments(ctx, filters, page)
}

func (r AssignmentRepo) FindOne(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	return r.S.GetAssignment(ctx, id)
}

func (r AssignmentRepo) Create(ctx context.Context, record *models.Assignment) error {
	return r.S.CreateAssignment(ctx, record)
}

func (r AssignmentRepo) Update(ctx context.Context, record *models.Assignment) error {
	return r.S.UpdateAssignment(ctx, record)
}

func (r AssignmentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.S.DeleteAssignment(ctx, id)
}

func (r AssignmentRepo) Count(ctx context.Context, filters Filters) (int64, error) {
	return r.S.CountAssignments(ctx, filters)
}

// UserRepo adapts Store to the user resource.
type UserRepo struct{ S Store }

func (r UserRepo) Find(ctx context.Context, filters Filters, page Page) ([]*models.User, int64, error) {
	return r.S.ListUsers(ctx, filters, page)
}

func (r UserRepo) FindOne(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.S.GetUser(ctx, id)
}

func (r UserRepo) Create(ctx context.Context, record *models.User) error {
	return r.S.CreateUser(ctx, record)
}

func (r UserRepo) Update(ctx context.Context, record *models.User) error {
	return r.S.UpdateUser(ctx, record)
}

func (r UserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.S.DeleteUser(ctx, id)
}

func (r UserRepo) Count(ctx context.Context, filters Filters) (int64, error) {
	return r.S.CountUsers(ctx, filters)
}

// TenantRepo adapts Store to the tenant resource. Listing and deleting
// tenants has no API surface; those operations are rejected outright.
type TenantRepo struct{ S Store }

func (r TenantRepo) Find(ctx context.Context, filters Filters, page Page) ([]*models.Tenant, int64, error) {
	return nil, 0, fmt.Errorf("%w: tenant listing not supported", ErrInvalidData)
}

func (r TenantRepo) FindOne(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return r.S.GetTenant(ctx, id)
}

func (r TenantRepo) Create(ctx context.Context, record *models.Tenant) error {
	return r.S.CreateTenant(ctx, record)
}

func (r TenantRepo) Update(ctx context.Context, record *models.Tenant) error {
	return r.S.UpdateTenant(ctx, record)
}

func (r TenantRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return fmt.Errorf("%w: tenant deletion not supported", ErrInvalidData)
}

func (r TenantRepo) Count(ctx context.Context, filters Filters) (int64, error) {
	return 0, fmt.Errorf("%w: tenant counting not supported", ErrInvalidData)
}
