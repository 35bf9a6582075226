package guard

import (
	"context"
	"errors"
	"fmt"

	"github.com/trainhub/trainhub-server/internal/apperr"
	"github.com/trainhub/trainhub-server/internal/auth"
	"github.com/trainhub/trainhub-server/internal/models"
	"github.com/trainhub/trainhub-server/internal/storage"
)

// AssignmentCreateCheck validates the cross-entity references of a new
// assignment: the student must exist, not be blocked and belong to the
// caller's tenant; the training must belong to the caller's tenant. A
// violation rejects the create, never a partial write.
func AssignmentCreateCheck(store storage.Store) CreateCheck[*models.Assignment] {
	return func(ctx context.Context, ident auth.Identity, a *models.Assignment) error {
		student, err := store.GetUser(ctx, a.StudentID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return wrapInput("student not found")
			}
			return err
		}
		if student.Blocked {
			return wrapInput("cannot assign training to a blocked user")
		}
		if student.TenantID != ident.TenantID {
			return fmt.Errorf("%w: student does not belong to your tenant", apperr.ErrForbidden)
		}

		training, err := store.GetTraining(ctx, a.TrainingID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return wrapInput("training not found")
			}
			return err
		}
		if training.TenantID != ident.TenantID {
			return fmt.Errorf("%w: cannot assign a training from a different tenant", apperr.ErrForbidden)
		}

		return nil
	}
}
