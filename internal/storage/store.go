package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/trainhub/trainhub-server/internal/models"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidData  = errors.New("invalid data")
)

// Store defines the storage interface
type Store interface {
	// Transaction support
	BeginTx(ctx context.Context) (Store, error)
	Commit() error
	Rollback() error

	// User methods
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByResetToken(ctx context.Context, token string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
	ListUsers(ctx context.Context, filters Filters, page Page) ([]*models.User, int64, error)
	CountUsers(ctx context.Context, filters Filters) (int64, error)
	CountActiveAuthors(ctx context.Context, tenantID uuid.UUID) (int64, error)

	// Tenant methods
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	UpdateTenant(ctx context.Context, tenant *models.Tenant) error

	// Plan methods
	GetPlanByCode(ctx context.Context, code string) (*models.Plan, error)
	GetPlanByPriceRef(ctx context.Context, priceRef string) (*models.Plan, error)
	ListPlans(ctx context.Context) ([]*models.Plan, error)

	// Subscription methods
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	GetSubscription(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	GetSubscriptionByTenant(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error)
	GetSubscriptionByProviderRef(ctx context.Context, ref string) (*models.Subscription, error)
	UpdateSubscription(ctx context.Context, sub *models.Subscription) error
	UpsertSubscriptionByProviderRef(ctx context.Context, sub *models.Subscription) error

	// Invoice methods
	CreateInvoice(ctx context.Context, invoice *models.Invoice) (bool, error)
	ListInvoices(ctx context.Context, tenantID uuid.UUID, page Page) ([]*models.Invoice, int64, error)

	// Training methods
	CreateTraining(ctx context.Context, training *models.Training) error
	GetTraining(ctx context.Context, id uuid.UUID) (*models.Training, error)
	UpdateTraining(ctx context.Context, training *models.Training) error
	DeleteTraining(ctx context.Context, id uuid.UUID) error
	ListTrainings(ctx context.Context, filters Filters, page Page) ([]*models.Training, int64, error)
	CountTrainings(ctx context.Context, filters Filters) (int64, error)

	// Assignment methods
	CreateAssignment(ctx context.Context, assignment *models.Assignment) error
	GetAssignment(ctx context.Context, id uuid.UUID) (*models.Assignment, error)
	UpdateAssignment(ctx context.Context, assignment *models.Assignment) error
	DeleteAssignment(ctx context.Context, id uuid.UUID) error
	ListAssignments(ctx context.Context, filters Filters, page Page) ([]*models.Assignment, int64, error)
	CountAssignments(ctx context.Context, filters Filters) (int64, error)

	// Escalation notifier methods
	ListDueAssignmentNotices(ctx context.Context, horizon time.Time) ([]*AssignmentNotice, error)
	SetAssignmentNotifiedSeverity(ctx context.Context, id uuid.UUID, severity models.Severity) error

	// Close the store
	Close() error
}

// AssignmentNotice is an assignment joined with the contact data the
// escalation notifier needs to send a notification.
type AssignmentNotice struct {
	models.Assignment

	StudentEmail       string `json:"studentEmail"`
	StudentFullName    string `json:"studentFullName"`
	TrainingTitle      string `json:"trainingTitle"`
	TenantContactEmail string `json:"tenantContactEmail"`
}
