package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trainhub/trainhub-server/internal/models"
)

// MemoryStore is an in-memory Store used in tests and local development.
// Transactions are no-ops: every write is applied immediately.
type MemoryStore struct {
	mu sync.RWMutex

	tenants       map[uuid.UUID]*models.Tenant
	users         map[uuid.UUID]*models.User
	plans         map[uuid.UUID]*models.Plan
	subscriptions map[uuid.UUID]*models.Subscription
	invoices      map[uuid.UUID]*models.Invoice
	trainings     map[uuid.UUID]*models.Training
	assignments   map[uuid.UUID]*models.Assignment
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:       make(map[uuid.UUID]*models.Tenant),
		users:         make(map[uuid.UUID]*models.User),
		plans:         make(map[uuid.UUID]*models.Plan),
		subscriptions: make(map[uuid.UUID]*models.Subscription),
		invoices:      make(map[uuid.UUID]*models.Invoice),
		trainings:     make(map[uuid.UUID]*models.Training),
		assignments:   make(map[uuid.UUID]*models.Assignment),
	}
}

// BeginTx returns the store itself; memory writes are immediate.
func (s *MemoryStore) BeginTx(ctx context.Context) (Store, error) { return s, nil }

// Commit is a no-op.
func (s *MemoryStore) Commit() error { return nil }

// Rollback is a no-op.
func (s *MemoryStore) Rollback() error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func stamp(id *uuid.UUID, created, updated *time.Time) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	now := time.Now()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

func matchCond(value interface{}, c Cond) bool {
	switch c.Op {
	case OpNull:
		return isNilValue(value)
	case OpNotNul:
		return !isNilValue(value)
	}

	switch v := value.(type) {
	case time.Time:
		other, ok := c.Value.(time.Time)
		if !ok {
			return false
		}
		switch c.Op {
		case OpEq:
			return v.Equal(other)
		case OpNeq:
			return !v.Equal(other)
		case OpLt:
			return v.Before(other)
		case OpLte:
			return !v.After(other)
		case OpGt:
			return v.After(other)
		case OpGte:
			return !v.Before(other)
		}
		return false
	default:
		switch c.Op {
		case OpEq:
			return value == c.Value
		case OpNeq:
			return value != c.Value
		}
		return false
	}
}

func isNilValue(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case *time.Time:
		return v == nil
	default:
		return false
	}
}

func paginate[T any](items []T, page Page) []T {
	limit, offset := page.LimitOffset()
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// ========== Tenant methods ==========

func (s *MemoryStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp(&tenant.ID, &tenant.CreatedAt, &tenant.UpdatedAt)
	tenant.IsActive = true
	cp := *tenant
	s.tenants[tenant.ID] = &cp
	return nil
}

func (s *MemoryStore) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenant, ok := s.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tenant
	return &cp, nil
}

func (s *MemoryStore) UpdateTenant(ctx context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[tenant.ID]; !ok {
		return ErrNotFound
	}
	tenant.UpdatedAt = time.Now()
	cp := *tenant
	s.tenants[tenant.ID] = &cp
	return nil
}

// ========== User methods ==========

func (s *MemoryStore) userField(u *models.User, field string) interface{} {
	switch field {
	case "tenant_id":
		return u.TenantID
	case "email":
		return u.Email
	case "role":
		return u.Role
	case "blocked":
		return u.Blocked
	default:
		return nil
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == user.Email {
			return ErrDuplicateKey
		}
	}
	stamp(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Email == email {
			cp := *user
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetUserByResetToken(ctx context.Context, token string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.ResetPasswordToken != nil && *user.ResetPasswordToken == token {
			cp := *user
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return ErrNotFound
	}
	user.UpdatedAt = time.Now()
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *MemoryStore) ListUsers(ctx context.Context, filters Filters, page Page) ([]*models.User, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.User
	for _, user := range s.users {
		ok := true
		for _, c := range filters {
			if !matchCond(s.userField(user, c.Field), c) {
				ok = false
				break
			}
		}
		if ok {
			cp := *user
			matched = append(matched, &cp)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	return paginate(matched, page), total, nil
}

func (s *MemoryStore) CountUsers(ctx context.Context, filters Filters) (int64, error) {
	_, total, err := s.ListUsers(ctx, filters, Page{Page: 1, PageSize: 1})
	return total, err
}

func (s *MemoryStore) CountActiveAuthors(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, user := range s.users {
		if user.TenantID == tenantID && user.Role == models.RoleAuthor && !user.Blocked {
			count++
		}
	}
	return count, nil
}

// ========== Plan methods ==========

func (s *MemoryStore) AddPlan(plan *models.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp(&plan.ID, &plan.CreatedAt, &plan.UpdatedAt)
	cp := *plan
	s.plans[plan.ID] = &cp
}

func (s *MemoryStore) GetPlanByCode(ctx context.Context, code string) (*models.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, plan := range s.plans {
		if plan.Code == code {
			cp := *plan
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetPlanByPriceRef(ctx context.Context, priceRef string) (*models.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, plan := range s.plans {
		if plan.PriceRef == priceRef {
			cp := *plan
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListPlans(ctx context.Context) ([]*models.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var plans []*models.Plan
	for _, plan := range s.plans {
		cp := *plan
		plans = append(plans, &cp)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].AmountCents < plans[j].AmountCents })
	return plans, nil
}

// ========== Subscription methods ==========

func (s *MemoryStore) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	cp := *sub
	s.subscriptions[sub.ID] = &cp
	return nil
}

func (s *MemoryStore) GetSubscription(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

func (s *MemoryStore) GetSubscriptionByTenant(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *models.Subscription
	for _, sub := range s.subscriptions {
		if sub.TenantID != tenantID {
			continue
		}
		if best == nil {
			best = sub
			continue
		}
		bestCanceled := best.Status == models.SubscriptionCanceled
		subCanceled := sub.Status == models.SubscriptionCanceled
		if bestCanceled != subCanceled {
			if bestCanceled {
				best = sub
			}
			continue
		}
		if sub.CreatedAt.After(best.CreatedAt) {
			best = sub
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (s *MemoryStore) GetSubscriptionByProviderRef(ctx context.Context, ref string) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subscriptions {
		if sub.ProviderSubscriptionRef != nil && *sub.ProviderSubscriptionRef == ref {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscriptions[sub.ID]; !ok {
		return ErrNotFound
	}
	sub.UpdatedAt = time.Now()
	cp := *sub
	s.subscriptions[sub.ID] = &cp
	return nil
}

func (s *MemoryStore) UpsertSubscriptionByProviderRef(ctx context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.ProviderSubscriptionRef == nil || *sub.ProviderSubscriptionRef == "" {
		return ErrInvalidData
	}

	for id, existing := range s.subscriptions {
		if existing.ProviderSubscriptionRef != nil &&
			*existing.ProviderSubscriptionRef == *sub.ProviderSubscriptionRef {
			cp := *sub
			cp.ID = id
			cp.CreatedAt = existing.CreatedAt
			cp.UpdatedAt = time.Now()
			s.subscriptions[id] = &cp
			sub.ID = id
			return nil
		}
	}

	stamp(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	cp := *sub
	s.subscriptions[sub.ID] = &cp
	return nil
}

// ========== Invoice methods ==========

func (s *MemoryStore) CreateInvoice(ctx context.Context, invoice *models.Invoice) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.invoices {
		if existing.ProviderInvoiceRef == invoice.ProviderInvoiceRef {
			return false, nil
		}
	}

	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	invoice.CreatedAt = time.Now()
	cp := *invoice
	s.invoices[invoice.ID] = &cp
	return true, nil
}

func (s *MemoryStore) ListInvoices(ctx context.Context, tenantID uuid.UUID, page Page) ([]*models.Invoice, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Invoice
	for _, invoice := range s.invoices {
		if invoice.TenantID == tenantID {
			cp := *invoice
			matched = append(matched, &cp)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := int64(len(matched))
	return paginate(matched, page), total, nil
}

// ========== Training methods ==========

func (s *MemoryStore) trainingField(t *models.Training, field string) interface{} {
	switch field {
	case "tenant_id":
		return t.TenantID
	case "title":
		return t.Title
	default:
		return nil
	}
}

func (s *MemoryStore) CreateTraining(ctx context.Context, training *models.Training) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp(&training.ID, &training.CreatedAt, &training.UpdatedAt)
	cp := *training
	s.trainings[training.ID] = &cp
	return nil
}

func (s *MemoryStore) GetTraining(ctx context.Context, id uuid.UUID) (*models.Training, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	training, ok := s.trainings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *training
	return &cp, nil
}

func (s *MemoryStore) UpdateTraining(ctx context.Context, training *models.Training) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.trainings[training.ID]; !ok {
		return ErrNotFound
	}
	training.UpdatedAt = time.Now()
	cp := *training
	s.trainings[training.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteTraining(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.trainings[id]; !ok {
		return ErrNotFound
	}
	delete(s.trainings, id)
	return nil
}

func (s *MemoryStore) ListTrainings(ctx context.Context, filters Filters, page Page) ([]*models.Training, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Training
	for _, training := range s.trainings {
		ok := true
		for _, c := range filters {
			if !matchCond(s.trainingField(training, c.Field), c) {
				ok = false
				break
			}
		}
		if ok {
			cp := *training
			matched = append(matched, &cp)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := int64(len(matched))
	return paginate(matched, page), total, nil
}

func (s *MemoryStore) CountTrainings(ctx context.Context, filters Filters) (int64, error) {
	_, total, err := s.ListTrainings(ctx, filters, Page{Page: 1, PageSize: 1})
	return total, err
}

// ========== Assignment methods ==========

func (s *MemoryStore) assignmentField(a *models.Assignment, field string) interface{} {
	switch field {
	case "tenant_id":
		return a.TenantID
	case "student_id":
		return a.StudentID
	case "training_id":
		return a.TrainingID
	case "due_date":
		return a.DueDate
	case "completed_at":
		return a.CompletedAt
	default:
		return nil
	}
}

func (s *MemoryStore) CreateAssignment(ctx context.Context, assignment *models.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp(&assignment.ID, &assignment.CreatedAt, &assignment.UpdatedAt)
	cp := *assignment
	s.assignments[assignment.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAssignment(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assignment, ok := s.assignments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *assignment
	return &cp, nil
}

func (s *MemoryStore) UpdateAssignment(ctx context.Context, assignment *models.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assignments[assignment.ID]; !ok {
		return ErrNotFound
	}
	assignment.UpdatedAt = time.Now()
	cp := *assignment
	s.assignments[assignment.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteAssignment(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assignments[id]; !ok {
		return ErrNotFound
	}
	delete(s.assignments, id)
	return nil
}

func (s *MemoryStore) ListAssignments(ctx context.Context, filters Filters, page Page) ([]*models.Assignment, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Assignment
	for _, assignment := range s.assignments {
		ok := true
		for _, c := range filters {
			if !matchCond(s.assignmentField(assignment, c.Field), c) {
				ok = false
				break
			}
		}
		if ok {
			cp := *assignment
			matched = append(matched, &cp)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].DueDate.Before(matched[j].DueDate)
	})
	total := int64(len(matched))
	return paginate(matched, page), total, nil
}

func (s *MemoryStore) CountAssignments(ctx context.Context, filters Filters) (int64, error) {
	_, total, err := s.ListAssignments(ctx, filters, Page{Page: 1, PageSize: 1})
	return total, err
}

func (s *MemoryStore) ListDueAssignmentNotices(ctx context.Context, horizon time.Time) ([]*AssignmentNotice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var notices []*AssignmentNotice
	for _, assignment := range s.assignments {
		if assignment.CompletedAt != nil || assignment.DueDate.After(horizon) {
			continue
		}

		notice := &AssignmentNotice{Assignment: *assignment}
		if student, ok := s.users[assignment.StudentID]; ok {
			notice.StudentEmail = student.Email
			notice.StudentFullName = student.FullName
		}
		if training, ok := s.trainings[assignment.TrainingID]; ok {
			notice.TrainingTitle = training.Title
		}
		if tenant, ok := s.tenants[assignment.TenantID]; ok {
			notice.TenantContactEmail = tenant.ContactEmail
		}
		notices = append(notices, notice)
	}

	sort.Slice(notices, func(i, j int) bool {
		return notices[i].DueDate.Before(notices[j].DueDate)
	})
	return notices, nil
}

func (s *MemoryStore) SetAssignmentNotifiedSeverity(ctx context.Context, id uuid.UUID, severity models.Severity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	assignment, ok := s.assignments[id]
	if !ok {
		return ErrNotFound
	}
	sev := severity
	assignment.NotifiedSeverity = &sev
	assignment.UpdatedAt = time.Now()
	return nil
}
