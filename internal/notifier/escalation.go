package notifier

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/trainhub/trainhub-server/internal/mailer"
	"github.com/trainhub/trainhub-server/internal/models"
	"github.com/trainhub/trainhub-server/internal/storage"
)

// noticeHorizonMonths bounds the scan to assignments due within the
// lowest severity tier that still notifies.
const noticeHorizonMonths = 3

const dueDateFormat = "02. 01. 2006"

// EscalationNotifier scans open assignments and emails students whose
// due date crossed into a new severity tier. Each assignment remembers
// the last tier it was notified at, so a tier is announced once.
type EscalationNotifier struct {
	store       storage.Store
	mailer      mailer.Mailer
	templateRef string

	group singleflight.Group
	now   func() time.Time
}

func New(store storage.Store, m mailer.Mailer, templateRef string) *EscalationNotifier {
	return &EscalationNotifier{
		store:       store,
		mailer:      m,
		templateRef: templateRef,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one scan, collapsing concurrent invocations into a
// single run.
func (n *EscalationNotifier) Run(ctx context.Context) error {
	_, err, _ := n.group.Do("escalation", func() (interface{}, error) {
		return nil, n.RunOnce(ctx)
	})
	return err
}

// RunOnce scans once and dispatches notifications. A failing record is
// logged and skipped; the scan keeps going.
func (n *EscalationNotifier) RunOnce(ctx context.Context) error {
	now := n.now()
	horizon := now.AddDate(0, noticeHorizonMonths, 0)

	notices, err := n.store.ListDueAssignmentNotices(ctx, horizon)
	if err != nil {
		log.Error().Err(err).Msg("Escalation scan failed")
		return err
	}

	var sent, skipped, failed int
	for _, notice := range notices {
		severity := models.ComputeSeverity(notice.DueDate, now)
		if notice.NotifiedSeverity != nil && *notice.NotifiedSeverity == severity {
			skipped++
			continue
		}

		// Both recipients must be addressable: the student and the
		// tenant contact on Bcc.
		if notice.StudentEmail == "" || notice.TenantContactEmail == "" {
			log.Warn().
				Str("assignment_id", notice.ID.String()).
				Msg("Assignment notice has no recipient email, skipping")
			skipped++
			continue
		}

		if err := n.notify(ctx, notice, severity); err != nil {
			log.Error().Err(err).
				Str("assignment_id", notice.ID.String()).
				Str("severity", string(severity)).
				Msg("Escalation notification failed")
			failed++
			continue
		}
		sent++
	}

	log.Info().
		Int("scanned", len(notices)).
		Int("sent", sent).
		Int("skipped", skipped).
		Int("failed", failed).
		Msg("Escalation scan complete")

	return nil
}

// notify sends the email first and persists the marker after, so a
// crashed run re-sends rather than silently dropping a tier.
func (n *EscalationNotifier) notify(ctx context.Context, notice *storage.AssignmentNotice, severity models.Severity) error {
	msg := mailer.Message{
		To:          notice.StudentEmail,
		Bcc:         notice.TenantContactEmail,
		TemplateRef: n.templateRef,
		Variables: map[string]string{
			"studentFullName": notice.StudentFullName,
			"trainingTitle":   notice.TrainingTitle,
			"trainingDueDate": notice.DueDate.Format(dueDateFormat),
			"severity":        string(severity),
		},
	}
	if err := n.mailer.Send(ctx, msg); err != nil {
		return err
	}
	return n.store.SetAssignmentNotifiedSeverity(ctx, notice.ID, severity)
}
