package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainhub/trainhub-server/internal/mailer"
	"github.com/trainhub/trainhub-server/internal/models"
	"github.com/trainhub/trainhub-server/internal/storage"
)

// recordingMailer captures sent messages and can fail selected recipients.
type recordingMailer struct {
	mu      sync.Mutex
	sent    []mailer.Message
	failFor map[string]error
}

func (m *recordingMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failFor[msg.To]; ok {
		return err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) messages() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message(nil), m.sent...)
}

type fixture struct {
	store  *storage.MemoryStore
	mail   *recordingMailer
	now    time.Time
	tenant *models.Tenant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store: storage.NewMemoryStore(),
		mail:  &recordingMailer{failFor: map[string]error{}},
		now:   time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC),
	}
	f.tenant = &models.Tenant{Name: "acme", ContactEmail: "hr@acme.com"}
	require.NoError(t, f.store.CreateTenant(context.Background(), f.tenant))
	return f
}

func (f *fixture) notifier() *EscalationNotifier {
	n := New(f.store, f.mail, "training-escalation")
	n.now = func() time.Time { return f.now }
	return n
}

func (f *fixture) addStudent(t *testing.T, email string) *models.User {
	t.Helper()
	user := &models.User{Email: email, FullName: "Student " + email, Role: models.RoleStudent, TenantID: f.tenant.ID}
	require.NoError(t, f.store.CreateUser(context.Background(), user))
	return user
}

func (f *fixture) addAssignment(t *testing.T, student *models.User, due time.Time, notified *models.Severity) *models.Assignment {
	t.Helper()

	training := &models.Training{Title: "Fire Safety"}
	training.TenantID = f.tenant.ID
	require.NoError(t, f.store.CreateTraining(context.Background(), training))

	assignment := &models.Assignment{
		StudentID:        student.ID,
		TrainingID:       training.ID,
		DueDate:          due,
		NotifiedSeverity: notified,
	}
	assignment.TenantID = f.tenant.ID
	require.NoError(t, f.store.CreateAssignment(context.Background(), assignment))
	return assignment
}

func severityPtr(s models.Severity) *models.Severity { return &s }

func TestRunOnceNotifiesNewTier(t *testing.T) {
	f := newFixture(t)
	student := f.addStudent(t, "alice@acme.com")
	due := f.now.AddDate(0, 0, 7) // HIGH
	assignment := f.addAssignment(t, student, due, nil)

	require.NoError(t, f.notifier().RunOnce(context.Background()))

	msgs := f.mail.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "alice@acme.com", msgs[0].To)
	assert.Equal(t, "hr@acme.com", msgs[0].Bcc)
	assert.Equal(t, "training-escalation", msgs[0].TemplateRef)
	assert.Equal(t, "Fire Safety", msgs[0].Variables["trainingTitle"])
	assert.Equal(t, string(models.SeverityHigh), msgs[0].Variables["severity"])
	assert.Equal(t, due.Format("02. 01. 2006"), msgs[0].Variables["trainingDueDate"])

	stored, err := f.store.GetAssignment(context.Background(), assignment.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.NotifiedSeverity)
	assert.Equal(t, models.SeverityHigh, *stored.NotifiedSeverity)
}

func TestRunOnceSkipsTenantWithoutContactEmail(t *testing.T) {
	f := newFixture(t)
	f.tenant.ContactEmail = ""
	require.NoError(t, f.store.UpdateTenant(context.Background(), f.tenant))

	student := f.addStudent(t, "alice@acme.com")
	assignment := f.addAssignment(t, student, f.now.AddDate(0, 0, -1), nil)

	require.NoError(t, f.notifier().RunOnce(context.Background()))

	// Nothing goes out without a Bcc recipient, and the marker does not
	// advance so a later fix re-triggers the notification.
	assert.Empty(t, f.mail.messages())
	stored, err := f.store.GetAssignment(context.Background(), assignment.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.NotifiedSeverity)
}

func TestRunOnceSkipsAlreadyNotifiedTier(t *testing.T) {
	f := newFixture(t)
	student := f.addStudent(t, "alice@acme.com")
	f.addAssignment(t, student, f.now.AddDate(0, 2, 0), severityPtr(models.SeverityMedium))

	require.NoError(t, f.notifier().RunOnce(context.Background()))
	assert.Empty(t, f.mail.messages())
}

func TestRunOnceNotifiesOnTierCrossing(t *testing.T) {
	f := newFixture(t)
	student := f.addStudent(t, "alice@acme.com")
	// Notified at MEDIUM, now inside the one-month window.
	assignment := f.addAssignment(t, student, f.now.AddDate(0, 0, 10), severityPtr(models.SeverityMedium))

	require.NoError(t, f.notifier().RunOnce(context.Background()))

	msgs := f.mail.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, string(models.SeverityHigh), msgs[0].Variables["severity"])

	stored, err := f.store.GetAssignment(context.Background(), assignment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SeverityHigh, *stored.NotifiedSeverity)
}

func TestRunOnceIgnoresCompletedAndDistantAssignments(t *testing.T) {
	f := newFixture(t)
	student := f.addStudent(t, "alice@acme.com")

	completed := f.addAssignment(t, student, f.now.Add(-time.Hour), nil)
	done := f.now.Add(-24 * time.Hour)
	completed.CompletedAt = &done
	require.NoError(t, f.store.UpdateAssignment(context.Background(), completed))

	f.addAssignment(t, student, f.now.AddDate(0, 6, 0), nil) // beyond horizon

	require.NoError(t, f.notifier().RunOnce(context.Background()))
	assert.Empty(t, f.mail.messages())
}

func TestRunOnceSkipsStudentWithoutEmail(t *testing.T) {
	f := newFixture(t)
	student := f.addStudent(t, "alice@acme.com")
	orphan := f.addAssignment(t, student, f.now.Add(-time.Hour), nil)

	// Student record disappears between assignment and scan.
	require.NoError(t, f.store.DeleteUser(context.Background(), student.ID))

	require.NoError(t, f.notifier().RunOnce(context.Background()))
	assert.Empty(t, f.mail.messages())

	stored, err := f.store.GetAssignment(context.Background(), orphan.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.NotifiedSeverity)
}

func TestRunOnceIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	failing := f.addStudent(t, "bounce@acme.com")
	fine := f.addStudent(t, "alice@acme.com")

	f.mail.failFor["bounce@acme.com"] = errors.New("smtp unavailable")

	failedAssignment := f.addAssignment(t, failing, f.now.Add(-time.Hour), nil)
	f.addAssignment(t, fine, f.now.Add(-time.Hour), nil)

	require.NoError(t, f.notifier().RunOnce(context.Background()))

	msgs := f.mail.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "alice@acme.com", msgs[0].To)

	// The failed record keeps no marker, so the next run retries it.
	stored, err := f.store.GetAssignment(context.Background(), failedAssignment.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.NotifiedSeverity)
}

func TestRunCollapsesConcurrentTriggers(t *testing.T) {
	f := newFixture(t)
	student := f.addStudent(t, "alice@acme.com")
	f.addAssignment(t, student, f.now.Add(-time.Hour), nil)

	n := f.notifier()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = n.Run(context.Background())
		}()
	}
	wg.Wait()

	// Overlapping triggers share runs; the dedupe marker keeps any
	// follow-up run from re-sending.
	assert.Len(t, f.mail.messages(), 1)
}
