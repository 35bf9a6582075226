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

// ========== Training methods ==========

var trainingFilterColumns = map[string]string{
	"tenant_id": "tenant_id",
	"title":     "title",
}

// CreateTraining creates a new training
func (s *PostgresStore) CreateTraining(ctx context.Context, training *models.Training) error {
	if training.ID == uuid.Nil {
		training.ID = uuid.New()
	}

	now := time.Now()
	training.CreatedAt = now
	training.UpdatedAt = now

	query := `
        INSERT INTO trainings (
            id, created_at, updated_at, tenant_id, title, description, valid_months
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7
        )`

	_, err := s.getDB().ExecContext(ctx, query,
		training.ID, training.CreatedAt, training.UpdatedAt, training.TenantID,
		training.Title, training.Description, training.ValidMonths,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// GetTraining gets a training by ID
func (s *PostgresStore) GetTraining(ctx context.Context, id uuid.UUID) (*models.Training, error) {
	query := `
        SELECT id, created_at, updated_at, tenant_id, title, description, valid_months
        FROM trainings
        WHERE id = $1`

	training := &models.Training{}
	err := s.getDB().QueryRowContext(ctx, query, id).Scan(
		&training.ID, &training.CreatedAt, &training.UpdatedAt, &training.TenantID,
		&training.Title, &training.Description, &training.ValidMonths,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	return training, err
}

// UpdateTraining updates a training
func (s *PostgresStore) UpdateTraining(ctx context.Context, training *models.Training) error {
	training.UpdatedAt = time.Now()

	query := `
        UPDATE trainings SET
            updated_at = $2, tenant_id = $3, title = $4, description = $5, valid_months = $6
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		training.ID, training.UpdatedAt, training.TenantID,
		training.Title, training.Description, training.ValidMonths,
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

// DeleteTraining deletes a training
func (s *PostgresStore) DeleteTraining(ctx context.Context, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx, "DELETE FROM trainings WHERE id = $1", id)
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

// ListTrainings lists trainings matching the filters
func (s *PostgresStore) ListTrainings(ctx context.Context, filters Filters, page Page) ([]*models.Training, int64, error) {
	where, args, err := buildWhere(filters, trainingFilterColumns)
	if err != nil {
		return nil, 0, err
	}

	var count int64
	err = s.getDB().QueryRowContext(ctx, `SELECT COUNT(*) FROM trainings`+where, args...).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	limit, offset := page.LimitOffset()
	query := `
        SELECT id, created_at, updated_at, tenant_id, title, description, valid_months
        FROM trainings` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var trainings []*models.Training
	for rows.Next() {
		training := &models.Training{}
		err := rows.Scan(
			&training.ID, &training.CreatedAt, &training.UpdatedAt, &training.TenantID,
			&training.Title, &training.Description, &training.ValidMonths,
		)
		if err != nil {
			return nil, 0, err
		}
		trainings = append(trainings, training)
	}

	return trainings, count, rows.Err()
}

// CountTrainings counts trainings matching the filters
func (s *PostgresStore) CountTrainings(ctx context.Context, filters Filters) (int64, error) {
	where, args, err := buildWhere(filters, trainingFilterColumns)
	if err != nil {
		return 0, err
	}

	var count int64
	err = s.getDB().QueryRowContext(ctx, `SELECT COUNT(*) FROM trainings`+where, args...).Scan(&count)
	return count, err
}

// ========== Assignment methods ==========

const assignmentColumns = `id, created_at, updated_at, tenant_id, student_id, training_id,
               due_date, completed_at, notified_severity`

var assignmentFilterColumns = map[string]string{
	"tenant_id":    "tenant_id",
	"student_id":   "student_id",
	"training_id":  "training_id",
	"due_date":     "due_date",
	"completed_at": "completed_at",
}

func scanAssignment(row interface{ Scan(...interface{}) error }) (*models.Assignment, error) {
	assignment := &models.Assignment{}
	err := row.Scan(
		&assignment.ID, &assignment.CreatedAt, &assignment.UpdatedAt,
		&assignment.TenantID, &assignment.StudentID, &assignment.TrainingID,
		&assignment.DueDate, &assignment.CompletedAt, &assignment.NotifiedSeverity,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return assignment, err
}

// CreateAssignment creates a new assignment
func (s *PostgresStore) CreateAssignment(ctx context.Context, assignment *models.Assignment) error {
	if assignment.ID == uuid.Nil {
		assignment.ID = uuid.New()
	}

	now := time.Now()
	assignment.CreatedAt = now
	assignment.UpdatedAt = now

	query := `
        INSERT INTO assignments (
            id, created_at, updated_at, tenant_id, student_id, training_id,
            due_date, completed_at, notified_severity
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9
        )`

	_, err := s.getDB().ExecContext(ctx, query,
		assignment.ID, assignment.CreatedAt, assignment.UpdatedAt,
		assignment.TenantID, assignment.StudentID, assignment.TrainingID,
		assignment.DueDate, assignment.CompletedAt, assignment.NotifiedSeverity,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// GetAssignment gets an assignment by ID
func (s *PostgresStore) GetAssignment(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id = $1`
	return scanAssignment(s.getDB().QueryRowContext(ctx, query, id))
}

// UpdateAssignment updates an assignment
func (s *PostgresStore) UpdateAssignment(ctx context.Context, assignment *models.Assignment) error {
	assignment.UpdatedAt = time.Now()

	query := `
        UPDATE assignments SET
            updated_at = $2, tenant_id = $3, student_id = $4, training_id = $5,
            due_date = $6, completed_at = $7, notified_severity = $8
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		assignment.ID, assignment.UpdatedAt, assignment.TenantID,
		assignment.StudentID, assignment.TrainingID, assignment.DueDate,
		assignment.CompletedAt, assignment.NotifiedSeverity,
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

// DeleteAssignment deletes an assignment
func (s *PostgresStore) DeleteAssignment(ctx context.Context, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx, "DELETE FROM assignments WHERE id = $1", id)
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

// ListAssignments lists assignments matching the filters
func (s *PostgresStore) ListAssignments(ctx context.Context, filters Filters, page Page) ([]*models.Assignment, int64, error) {
	where, args, err := buildWhere(filters, assignmentFilterColumns)
	if err != nil {
		return nil, 0, err
	}

	var count int64
	err = s.getDB().QueryRowContext(ctx, `SELECT COUNT(*) FROM assignments`+where, args...).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	limit, offset := page.LimitOffset()
	query := `SELECT ` + assignmentColumns + ` FROM assignments` + where +
		fmt.Sprintf(` ORDER BY due_date ASC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var assignments []*models.Assignment
	for rows.Next() {
		assignment, err := scanAssignment(rows)
		if err != nil {
			return nil, 0, err
		}
		assignments = append(assignments, assignment)
	}

	return assignments, count, rows.Err()
}

// CountAssignments counts assignments matching the filters
func (s *PostgresStore) CountAssignments(ctx context.Context, filters Filters) (int64, error) {
	where, args, err := buildWhere(filters, assignmentFilterColumns)
	if err != nil {
		return 0, err
	}

	var count int64
	err = s.getDB().QueryRowContext(ctx, `SELECT COUNT(*) FROM assignments`+where, args...).Scan(&count)
	return count, err
}

// ListDueAssignmentNotices returns incomplete assignments due before the
// horizon (including already-overdue ones), joined with the student, training
// and tenant contact data the notifier needs.
func (s *PostgresStore) ListDueAssignmentNotices(ctx context.Context, horizon time.Time) ([]*AssignmentNotice, error) {
	query := `
        SELECT a.id, a.created_at, a.updated_at, a.tenant_id, a.student_id,
               a.training_id, a.due_date, a.completed_at, a.notified_severity,
               COALESCE(u.email, ''), COALESCE(u.full_name, ''),
               COALESCE(tr.title, ''), COALESCE(t.contact_email, '')
        FROM assignments a
        LEFT JOIN users u ON u.id = a.student_id
        LEFT JOIN trainings tr ON tr.id = a.training_id
        LEFT JOIN tenants t ON t.id = a.tenant_id
        WHERE a.completed_at IS NULL AND a.due_date <= $1
        ORDER BY a.due_date ASC`

	rows, err := s.getDB().QueryContext(ctx, query, horizon)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notices []*AssignmentNotice
	for rows.Next() {
		notice := &AssignmentNotice{}
		err := rows.Scan(
			&notice.ID, &notice.CreatedAt, &notice.UpdatedAt, &notice.TenantID,
			&notice.StudentID, &notice.TrainingID, &notice.DueDate,
			&notice.CompletedAt, &notice.NotifiedSeverity,
			&notice.StudentEmail, &notice.StudentFullName,
			&notice.TrainingTitle, &notice.TenantContactEmail,
		)
		if err != nil {
			return nil, err
		}
		notices = append(notices, notice)
	}

	return notices, rows.Err()
}

// SetAssignmentNotifiedSeverity persists the severity marker after a
// notification went out.
func (s *PostgresStore) SetAssignmentNotifiedSeverity(ctx context.Context, id uuid.UUID, severity models.Severity) error {
	result, err := s.getDB().ExecContext(ctx,
		`UPDATE assignments SET notified_severity = $2, updated_at = $3 WHERE id = $1`,
		id, severity, time.Now(),
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
