package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/trainhub/trainhub-server/internal/auth"
	"github.com/trainhub/trainhub-server/internal/models"
	"github.com/trainhub/trainhub-server/internal/storage"
)

// HandleListTrainings lists the caller tenant's trainings
func (s *RESTServer) HandleListTrainings(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFrom(r.Context())

	var filters storage.Filters
	if title := r.URL.Query().Get("title"); title != "" {
		filters = filters.Where("title", storage.OpEq, title)
	}

	trainings, meta, err := s.trainings.List(r.Context(), ident, filters, parsePage(r))
	if err != nil {
		s.respondAppError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"data": trainings,
		"meta": meta,
	})
}

// HandleCreateTraining creates a training
func (s *RESTServer) HandleCreateTraining(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.requireAuthor(w, r)
	if !ok {
		return
	}

	var req struct {
		Title       string `json:"title" validate:"required,min=2,max=200"`
		Description string `json:"description"`
		ValidMonths int    `json:"validMonths" validate:"min=0"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	training := &models.Training{
		Title:       req.Title,
		Description: req.Description,
		ValidMonths: req.ValidMonths,
	}

	if err := s.trainings.Create(r.Context(), ident, training); err != nil {
		s.respondAppError(w, err)
		return
	}

	s.respondJSON(w, http.StatusCreated, training)
}

// HandleGetTraining gets a training
func (s *RESTServer) HandleGetTraining(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFrom(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid training id")
		return
	}

	training, err := s.trainings.GetOne(r.Context(), ident, id)
	if err != nil {
		s.respondAppError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, training)
}

// HandleUpdateTraining updates a training
func (s *RESTServer) HandleUpdateTraining(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.requireAuthor(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid training id")
		return
	}

	var req struct {
		Title       string `json:"title" validate:"required,min=2,max=200"`
		Description string `json:"description"`
		ValidMonths int    `json:"validMonths" validate:"min=0"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	training, err := s.trainings.GetOne(r.Context(), ident, id)
	if err != nil {
		s.respondAppError(w, err)
		return
	}

	training.Title = req.Title
	training.Description = req.Description
	training.ValidMonths = req.ValidMonths

	if err := s.trainings.Update(r.Context(), ident, training); err != nil {
		s.respondAppError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, training)
}

// HandleDeleteTraining deletes a training
func (s *RESTServer) HandleDeleteTraining(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.requireAuthor(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid training id")
		return
	}

	if err := s.trainings.Delete(r.Context(), ident, id); err != nil {
		s.respondAppError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
