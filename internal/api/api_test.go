package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainhub/trainhub-server/internal/auth"
	"github.com/trainhub/trainhub-server/internal/billing"
	"github.com/trainhub/trainhub-server/internal/config"
	"github.com/trainhub/trainhub-server/internal/mailer"
	"github.com/trainhub/trainhub-server/internal/models"
	"github.com/trainhub/trainhub-server/internal/storage"
	"github.com/trainhub/trainhub-server/pkg/crypto"
)

// fakeProvider is a canned payment backend for handler tests.
type fakeProvider struct {
	checkoutURL  string
	canceledRefs []string
}

func (p *fakeProvider) CreateCheckoutSession(ctx context.Context, params billing.CheckoutParams) (string, error) {
	return p.checkoutURL, nil
}

func (p *fakeProvider) CancelAtPeriodEnd(ctx context.Context, ref string) error {
	p.canceledRefs = append(p.canceledRefs, ref)
	return nil
}

func (p *fakeProvider) RetrieveSubscription(ctx context.Context, ref string) (*billing.ProviderSubscription, error) {
	return &billing.ProviderSubscription{Ref: ref, Status: "active"}, nil
}

// recordingMailer captures outbound messages.
type recordingMailer struct {
	sent []mailer.Message
}

func (m *recordingMailer) Send(ctx context.Context, msg mailer.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

type apiFixture struct {
	store    *storage.MemoryStore
	provider *fakeProvider
	mail     *recordingMailer
	jwt      *auth.JWTManager
	router   http.Handler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{Name: "trainhub-server", Version: "test"},
		JWT: config.JWTConfig{
			Secret:          "test-secret",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 24 * time.Hour,
		},
		Stripe: config.StripeConfig{
			SuccessURL: "https://app.example.com/billing/success",
			CancelURL:  "https://app.example.com/billing/cancel",
		},
		Mail: config.MailConfig{
			Provider:          "log",
			TemplateRef:       "training-escalation",
			InviteTemplateRef: "user-invite",
		},
	}

	store := storage.NewMemoryStore()
	store.AddPlan(&models.Plan{Code: models.PlanCodeFree, Name: "Free"})
	store.AddPlan(&models.Plan{Code: "pro", Name: "Pro", PriceRef: "price_pro_123", AmountCents: 4900, Currency: "eur"})

	provider := &fakeProvider{checkoutURL: "https://checkout.example.com/c/cs_test_123"}
	orchestrator := billing.NewOrchestrator(store, provider, cfg.Stripe.SuccessURL, cfg.Stripe.CancelURL)
	webhook := billing.NewWebhookHandler("whsec_test", billing.NewSynchronizer(store, provider))

	mail := &recordingMailer{}
	server := NewRESTServer(cfg, store, mail, orchestrator, webhook)

	return &apiFixture{
		store:    store,
		provider: provider,
		mail:     mail,
		jwt:      auth.NewJWTManager(&cfg.JWT),
		router:   server.Router(),
	}
}

func (f *apiFixture) seedTenant(t *testing.T, name string) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{Name: name, ContactEmail: name + "@example.com", IsActive: true}
	require.NoError(t, f.store.CreateTenant(context.Background(), tenant))
	return tenant
}

func (f *apiFixture) seedUser(t *testing.T, tenant *models.Tenant, email, role, password string) *models.User {
	t.Helper()
	hash, err := crypto.HashPassword(password)
	require.NoError(t, err)
	user := &models.User{
		Email:        email,
		FullName:     "Test " + role,
		PasswordHash: hash,
		Role:         role,
		Confirmed:    true,
		TenantID:     tenant.ID,
	}
	require.NoError(t, f.store.CreateUser(context.Background(), user))
	return user
}

func (f *apiFixture) token(t *testing.T, user *models.User) string {
	t.Helper()
	access, _, err := f.jwt.GenerateTokenPair(user)
	require.NoError(t, err)
	return access
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleHealth(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/health", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "trainhub-server", body["name"])
}

func TestHandleLogin(t *testing.T) {
	f := newAPIFixture(t)
	tenant := f.seedTenant(t, "acme")
	f.seedUser(t, tenant, "author@acme.com", models.RoleAuthor, "correct-horse-1")

	t.Run("valid credentials", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"email":    "author@acme.com",
			"password": "correct-horse-1",
		})

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.NotEmpty(t, body["access_token"])
		assert.NotEmpty(t, body["refresh_token"])
		assert.Equal(t, "Bearer", body["token_type"])
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"email":    "author@acme.com",
			"password": "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown email", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"email":    "nobody@acme.com",
			"password": "correct-horse-1",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("blocked account", func(t *testing.T) {
		blocked := f.seedUser(t, tenant, "blocked@acme.com", models.RoleStudent, "correct-horse-1")
		blocked.Blocked = true
		require.NoError(t, f.store.UpdateUser(context.Background(), blocked))

		rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"email":    "blocked@acme.com",
			"password": "correct-horse-1",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unconfirmed account", func(t *testing.T) {
		pending := f.seedUser(t, tenant, "pending@acme.com", models.RoleStudent, "correct-horse-1")
		pending.Confirmed = false
		require.NoError(t, f.store.UpdateUser(context.Background(), pending))

		rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"email":    "pending@acme.com",
			"password": "correct-horse-1",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestHandleRegister(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"tenantName":   "Globex",
		"contactEmail": "office@globex.com",
		"email":        "owner@globex.com",
		"password":     "super-secret-1",
		"fullName":     "Hank Scorpio",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["access_token"])

	user, err := f.store.GetUserByEmail(context.Background(), "owner@globex.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAuthor, user.Role)
	assert.True(t, user.Confirmed)

	sub, err := f.store.GetSubscriptionByTenant(context.Background(), user.TenantID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionActive, sub.Status)
	assert.Nil(t, sub.ProviderSubscriptionRef)
}

func TestHandleRegisterDuplicateEmail(t *testing.T) {
	f := newAPIFixture(t)
	tenant := f.seedTenant(t, "acme")
	f.seedUser(t, tenant, "taken@acme.com", models.RoleAuthor, "correct-horse-1")

	rec := f.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"tenantName":   "Other Co",
		"contactEmail": "office@other.com",
		"email":        "taken@acme.com",
		"password":     "super-secret-1",
		"fullName":     "Someone Else",
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleListUsersTenantIsolation(t *testing.T) {
	f := newAPIFixture(t)
	acme := f.seedTenant(t, "acme")
	globex := f.seedTenant(t, "globex")
	acmeAuthor := f.seedUser(t, acme, "author@acme.com", models.RoleAuthor, "pw-pw-pw-pw")
	f.seedUser(t, acme, "student@acme.com", models.RoleStudent, "pw-pw-pw-pw")
	f.seedUser(t, globex, "author@globex.com", models.RoleAuthor, "pw-pw-pw-pw")

	rec := f.do(t, http.MethodGet, "/api/v1/users", f.token(t, acmeAuthor), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	data := body["data"].([]interface{})
	require.Len(t, data, 2)
	for _, raw := range data {
		user := raw.(map[string]interface{})
		assert.Equal(t, acme.ID.String(), user["tenantId"])
	}
}

func TestHandleListUsersRequiresAuth(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/users", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleCreateUser(t *testing.T) {
	f := newAPIFixture(t)
	tenant := f.seedTenant(t, "acme")
	author := f.seedUser(t, tenant, "author@acme.com", models.RoleAuthor, "pw-pw-pw-pw")
	student := f.seedUser(t, tenant, "student@acme.com", models.RoleStudent, "pw-pw-pw-pw")

	t.Run("author invites a student", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/users", f.token(t, author), map[string]string{
			"email":    "new@acme.com",
			"fullName": "New Student",
		})

		require.Equal(t, http.StatusCreated, rec.Code)

		created, err := f.store.GetUserByEmail(context.Background(), "new@acme.com")
		require.NoError(t, err)
		assert.Equal(t, models.RoleStudent, created.Role)
		assert.Equal(t, tenant.ID, created.TenantID)
		assert.False(t, created.Confirmed)
		require.NotNil(t, created.ResetPasswordToken)

		require.Len(t, f.mail.sent, 1)
		invite := f.mail.sent[0]
		assert.Equal(t, "new@acme.com", invite.To)
		assert.Equal(t, "user-invite", invite.TemplateRef)
		assert.Equal(t, *created.ResetPasswordToken, invite.Variables["resetCode"])
	})

	t.Run("student cannot invite", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/users", f.token(t, student), map[string]string{
			"email":    "sneaky@acme.com",
			"fullName": "Sneaky",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestHandleUpdateUserLastAuthorProtection(t *testing.T) {
	f := newAPIFixture(t)
	tenant := f.seedTenant(t, "acme")
	author := f.seedUser(t, tenant, "author@acme.com", models.RoleAuthor, "pw-pw-pw-pw")
	token := f.token(t, author)

	demote := map[string]interface{}{
		"fullName": author.FullName,
		"role":     models.RoleStudent,
		"blocked":  false,
	}

	rec := f.do(t, http.MethodPut, "/api/v1/users/"+author.ID.String(), token, demote)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// A second active author lifts the protection.
	f.seedUser(t, tenant, "second@acme.com", models.RoleAuthor, "pw-pw-pw-pw")

	rec = f.do(t, http.MethodPut, "/api/v1/users/"+author.ID.String(), token, demote)
	require.Equal(t, http.StatusOK, rec.Code)

	updated, err := f.store.GetUser(context.Background(), author.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, updated.Role)
}

func TestHandleDeleteUserLastAuthorProtection(t *testing.T) {
	f := newAPIFixture(t)
	tenant := f.seedTenant(t, "acme")
	author := f.seedUser(t, tenant, "author@acme.com", models.RoleAuthor, "pw-pw-pw-pw")
	student := f.seedUser(t, tenant, "student@acme.com", models.RoleStudent, "pw-pw-pw-pw")
	token := f.token(t, author)

	rec := f.do(t, http.MethodDelete, "/api/v1/users/"+author.ID.String(), token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/v1/users/"+student.ID.String(), token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, err := f.store.GetUser(context.Background(), student.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTrainingHandlers(t *testing.T) {
	f := newAPIFixture(t)
	acme := f.seedTenant(t, "acme")
	globex := f.seedTenant(t, "globex")
	author := f.seedUser(t, acme, "author@acme.com", models.RoleAuthor, "pw-pw-pw-pw")
	student := f.seedUser(t, acme, "student@acme.com", models.RoleStudent, "pw-pw-pw-pw")
	outsider := f.seedUser(t, globex, "author@globex.com", models.RoleAuthor, "pw-pw-pw-pw")

	t.Run("student cannot create", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/trainings", f.token(t, student), map[string]interface{}{
			"title": "Fire Safety",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	var trainingID string
	t.Run("author creates", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/trainings", f.token(t, author), map[string]interface{}{
			"title":       "Fire Safety",
			"description": "Annual fire safety refresher",
			"validMonths": 12,
		})

		require.Equal(t, http.StatusCreated, rec.Code)
		body := decodeBody(t, rec)
		trainingID = body["id"].(string)
		assert.Equal(t, acme.ID.String(), body["tenantId"])
	})

	t.Run("students can read", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/trainings/"+trainingID, f.token(t, student), nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("foreign tenant sees nothing", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/trainings/"+trainingID, f.token(t, outsider), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = f.do(t, http.MethodGet, "/api/v1/trainings", f.token(t, outsider), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Empty(t, body["data"])
	})
}

func TestAssignmentHandlers(t *testing.T) {
	f := newAPIFixture(t)
	acme := f.seedTenant(t, "acme")
	globex := f.seedTenant(t, "globex")
	author := f.seedUser(t, acme, "author@acme.com", models.RoleAuthor, "pw-pw-pw-pw")
	student := f.seedUser(t, acme, "student@acme.com", models.RoleStudent, "pw-pw-pw-pw")
	foreignStudent := f.seedUser(t, globex, "student@globex.com", models.RoleStudent, "pw-pw-pw-pw")
	token := f.token(t, author)

	training := &models.Training{Title: "First Aid", ValidMonths: 24}
	training.TenantID = acme.ID
	require.NoError(t, f.store.CreateTraining(context.Background(), training))

	dueDate := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)

	t.Run("foreign student rejected", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/assignments", token, map[string]interface{}{
			"studentId":  foreignStudent.ID,
			"trainingId": training.ID,
			"dueDate":    dueDate,
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unknown training rejected", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/assignments", token, map[string]interface{}{
			"studentId":  student.ID,
			"trainingId": uuid.New(),
			"dueDate":    dueDate,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	var assignmentID uuid.UUID
	t.Run("valid create", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/assignments", token, map[string]interface{}{
			"studentId":  student.ID,
			"trainingId": training.ID,
			"dueDate":    dueDate,
		})

		require.Equal(t, http.StatusCreated, rec.Code)
		body := decodeBody(t, rec)
		var err error
		assignmentID, err = uuid.Parse(body["id"].(string))
		require.NoError(t, err)
	})

	t.Run("due date change clears notification marker", func(t *testing.T) {
		require.NoError(t, f.store.SetAssignmentNotifiedSeverity(context.Background(), assignmentID, models.SeverityHigh))

		rec := f.do(t, http.MethodPut, "/api/v1/assignments/"+assignmentID.String(), token, map[string]interface{}{
			"dueDate": dueDate.AddDate(0, 2, 0),
		})

		require.Equal(t, http.StatusOK, rec.Code)
		updated, err := f.store.GetAssignment(context.Background(), assignmentID)
		require.NoError(t, err)
		assert.Nil(t, updated.NotifiedSeverity)
	})

	t.Run("completed filter", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/assignments?completed=false", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Len(t, body["data"], 1)

		rec = f.do(t, http.MethodGet, "/api/v1/assignments?completed=true", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body = decodeBody(t, rec)
		assert.Empty(t, body["data"])
	})
}

func TestTenantHandlers(t *testing.T) {
	f := newAPIFixture(t)
	tenant := f.seedTenant(t, "acme")
	author := f.seedUser(t, tenant, "author@acme.com", models.RoleAuthor, "pw-pw-pw-pw")
	student := f.seedUser(t, tenant, "student@acme.com", models.RoleStudent, "pw-pw-pw-pw")

	t.Run("get own tenant", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/tenant", f.token(t, student), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, tenant.ID.String(), body["id"])
	})

	t.Run("student cannot update", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, "/api/v1/tenant", f.token(t, student), map[string]string{
			"name":         "Acme Renamed",
			"contactEmail": "new@acme.com",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("author updates", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, "/api/v1/tenant", f.token(t, author), map[string]string{
			"name":         "Acme Renamed",
			"contactEmail": "new@acme.com",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		updated, err := f.store.GetTenant(context.Background(), tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, "Acme Renamed", updated.Name)
	})
}

func TestBillingHandlers(t *testing.T) {
	f := newAPIFixture(t)
	tenant := f.seedTenant(t, "acme")
	author := f.seedUser(t, tenant, "author@acme.com", models.RoleAuthor, "pw-pw-pw-pw")
	student := f.seedUser(t, tenant, "student@acme.com", models.RoleStudent, "pw-pw-pw-pw")
	token := f.token(t, author)

	t.Run("subscription is null before checkout", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/billing/subscription", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Nil(t, body["subscription"])
	})

	t.Run("student cannot start checkout", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/billing/checkout", f.token(t, student), map[string]string{
			"plan": "pro",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("paid plan returns checkout url without a ledger row", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/billing/checkout", token, map[string]string{
			"plan": "pro",
		})

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, f.provider.checkoutURL, body["url"])

		_, err := f.store.GetSubscriptionByTenant(context.Background(), tenant.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("free plan activates immediately", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/billing/checkout", token, map[string]string{
			"plan": models.PlanCodeFree,
		})

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		sub := body["subscription"].(map[string]interface{})
		assert.Equal(t, string(models.SubscriptionActive), sub["status"])
	})

	t.Run("invoice log", func(t *testing.T) {
		other := f.seedTenant(t, "globex")
		_, err := f.store.CreateInvoice(context.Background(), &models.Invoice{
			TenantID:           tenant.ID,
			ProviderInvoiceRef: "in_1",
			AmountCents:        4900,
			Currency:           "eur",
			Status:             models.InvoicePaid,
		})
		require.NoError(t, err)
		_, err = f.store.CreateInvoice(context.Background(), &models.Invoice{
			TenantID:           other.ID,
			ProviderInvoiceRef: "in_2",
			AmountCents:        9900,
			Currency:           "eur",
			Status:             models.InvoicePaid,
		})
		require.NoError(t, err)

		rec := f.do(t, http.MethodGet, "/api/v1/billing/invoices", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		data := body["data"].([]interface{})
		require.Len(t, data, 1)
		invoice := data[0].(map[string]interface{})
		assert.Equal(t, "in_1", invoice["providerInvoiceRef"])

		rec = f.do(t, http.MethodGet, "/api/v1/billing/invoices", f.token(t, student), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("plan catalog", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/plans", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Len(t, body["data"], 2)
	})
}
