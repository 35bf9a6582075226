package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/trainhub/trainhub-server/internal/auth"
	"github.com/trainhub/trainhub-server/internal/models"
	"github.com/trainhub/trainhub-server/internal/storage"
)

// HandleListAssignments lists the caller tenant's assignments
func (s *RESTServer) HandleListAssignments(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFrom(r.Context())

	var filters storage.Filters
	if raw := r.URL.Query().Get("studentId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid studentId filter")
			return
		}
		filters = filters.Where("student_id", storage.OpEq, id)
	}
	if raw := r.URL.Query().Get("trainingId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid trainingId filter")
			return
		}
		filters = filters.Where("training_id", storage.OpEq, id)
	}
	switch r.URL.Query().Get("completed") {
	case "true":
		filters = filters.Where("completed_at", storage.OpNotNul, nil)
	case "false":
		filters = filters.Where("completed_at", storage.OpNull, nil)
	}

	assignments, meta, err := s.assignments.List(r.Context(), ident, filters, parsePage(r))
	if err != nil {
		s.respondAppError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"data": assignments,
		"meta": meta,
	})
}

// HandleCreateAssignment assigns a training to a student
func (s *RESTServer) HandleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.requireAuthor(w, r)
	if !ok {
		return
	}

	var req struct {
		StudentID  uuid.UUID `json:"studentId" validate:"required"`
		TrainingID uuid.UUID `json:"trainingId" validate:"required"`
		DueDate    time.Time `json:"dueDate" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	assignment := &models.Assignment{
		StudentID:  req.StudentID,
		TrainingID: req.TrainingID,
		DueDate:    req.DueDate,
	}

	if err := s.assignments.Create(r.Context(), ident, assignment); err != nil {
		s.respondAppError(w, err)
		return
	}

	s.respondJSON(w, http.StatusCreated, assignment)
}

// HandleGetAssignment gets an assignment
func (s *RESTServer) HandleGetAssignment(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFrom(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid assignment id")
		return
	}

	assignment, err := s.assignments.GetOne(r.Context(), ident, id)
	if err != nil {
		s.respondAppError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, assignment)
}

// HandleUpdateAssignment updates an assignment's due date or completion.
// Changing the due date clears the notification marker so the escalation
// notifier re-evaluates the new date from scratch.
func (s *RESTServer) HandleUpdateAssignment(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.requireAuthor(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid assignment id")
		return
	}

	var req struct {
		DueDate     time.Time  `json:"dueDate" validate:"required"`
		CompletedAt *time.Time `json:"completedAt"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	assignment, err := s.assignments.GetOne(r.Context(), ident, id)
	if err != nil {
		s.respondAppError(w, err)
		return
	}

	if !assignment.DueDate.Equal(req.DueDate) {
		assignment.NotifiedSeverity = nil
	}
	assignment.DueDate = req.DueDate
	assignment.CompletedAt = req.CompletedAt

	if err := s.assignments.Update(r.Context(), ident, assignment); err != nil {
		s.respondAppError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, assignment)
}

// HandleDeleteAssignment deletes an assignment
func (s *RESTServer) HandleDeleteAssignment(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.requireAuthor(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid assignment id")
		return
	}

	if err := s.assignments.Delete(r.Context(), ident, id); err != nil {
		s.respondAppError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
