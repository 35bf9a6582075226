package models

import (
	"time"

	"github.com/google/uuid"
)

// Training is a tenant-owned training template assignments reference.
type Training struct {
	TenantModel

	Title       string `json:"title" db:"title"`
	Description string `json:"description" db:"description"`

	ValidMonths int `json:"validMonths" db:"valid_months"`
}

// Severity classifies the urgency of an unmet assignment due date.
type Severity string

const (
	SeverityLow     Severity = "LOW"
	SeverityMedium  Severity = "MEDIUM"
	SeverityHigh    Severity = "HIGH"
	SeverityOverdue Severity = "OVERDUE"
)

// ComputeSeverity classifies a due date relative to now: OVERDUE when in the
// past, HIGH within one month, MEDIUM within three months, LOW beyond that.
func ComputeSeverity(dueDate, now time.Time) Severity {
	switch {
	case dueDate.Before(now):
		return SeverityOverdue
	case !dueDate.After(now.AddDate(0, 1, 0)):
		return SeverityHigh
	case !dueDate.After(now.AddDate(0, 3, 0)):
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Assignment links a student to a training with a due date. The escalation
// notifier owns NotifiedSeverity; everything else is normal CRUD under the
// tenant guard.
type Assignment struct {
	TenantModel

	StudentID  uuid.UUID `json:"studentId" db:"student_id"`
	TrainingID uuid.UUID `json:"trainingId" db:"training_id"`

	DueDate     time.Time  `json:"dueDate" db:"due_date"`
	CompletedAt *time.Time `json:"completedAt,omitempty" db:"completed_at"`

	// Last severity a notification went out at, nil before the first one.
	NotifiedSeverity *Severity `json:"notifiedSeverity,omitempty" db:"notified_severity"`
}
