package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/trainhub/trainhub-server/internal/auth"
	"github.com/trainhub/trainhub-server/internal/models"
	"github.com/trainhub/trainhub-server/internal/storage"
	"github.com/trainhub/trainhub-server/pkg/crypto"
)

// HandleListUsers lists the caller tenant's users
func (s *RESTServer) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFrom(r.Context())

	var filters storage.Filters
	if role := r.URL.Query().Get("role"); role != "" {
		filters = filters.Where("role", storage.OpEq, role)
	}

	users, meta, err := s.users.List(r.Context(), ident, filters, parsePage(r))
	if err != nil {
		s.respondAppError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"data": users,
		"meta": meta,
	})
}

// HandleCreateUser invites a new user into the caller's tenant. The user
// gets a generated password and an emailed reset code to set their own.
func (s *RESTServer) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.requireAuthor(w, r)
	if !ok {
		return
	}

	var req struct {
		Email    string `json:"email" validate:"required,email"`
		FullName string `json:"fullName" validate:"required"`
		Role     string `json:"role" validate:"omitempty,oneof=author student"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Role == "" {
		req.Role = models.RoleStudent
	}

	password, err := crypto.GeneratePassword()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to generate password")
		return
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to process password")
		return
	}

	resetCode, err := crypto.GenerateRandomString(32)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to generate reset code")
		return
	}

	user := &models.User{
		Email:              req.Email,
		FullName:           req.FullName,
		PasswordHash:       hash,
		Role:               req.Role,
		Confirmed:          false,
		ResetPasswordToken: &resetCode,
	}

	if err := s.users.Create(r.Context(), ident, user); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, "email already registered")
			return
		}
		s.respondAppError(w, err)
		return
	}

	s.sendInviteMail(user, resetCode)

	s.respondJSON(w, http.StatusCreated, user)
}

// HandleGetCurrentUser gets the authenticated user
func (s *RESTServer) HandleGetCurrentUser(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFrom(r.Context())
	if ident.Anonymous() {
		s.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	user, err := s.store.GetUser(r.Context(), ident.UserID)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	s.respondJSON(w, http.StatusOK, user)
}

// HandleGetUser gets a user
func (s *RESTServer) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFrom(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	user, err := s.users.GetOne(r.Context(), ident, id)
	if err != nil {
		s.respondAppError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, user)
}

// HandleUpdateUser updates a user. Blocking or demoting the last active
// author of a tenant is rejected so a tenant can never lock itself out.
func (s *RESTServer) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.requireAuthor(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req struct {
		FullName string `json:"fullName" validate:"required"`
		Role     string `json:"role" validate:"required,oneof=author student"`
		Blocked  bool   `json:"blocked"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.users.GetOne(r.Context(), ident, id)
	if err != nil {
		s.respondAppError(w, err)
		return
	}

	losesAuthor := user.IsAuthor() && !user.Blocked && (req.Blocked || req.Role != models.RoleAuthor)
	if losesAuthor {
		if ok, err := s.isLastActiveAuthor(r, ident.TenantID); err != nil {
			s.respondError(w, http.StatusInternalServerError, "failed to check tenant authors")
			return
		} else if ok {
			s.respondError(w, http.StatusConflict, "cannot block or demote the last active author")
			return
		}
	}

	user.FullName = req.FullName
	user.Role = req.Role
	user.Blocked = req.Blocked

	if err := s.users.Update(r.Context(), ident, user); err != nil {
		s.respondAppError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, user)
}

// HandleDeleteUser deletes a user, with the same last-author protection as
// update.
func (s *RESTServer) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.requireAuthor(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	user, err := s.users.GetOne(r.Context(), ident, id)
	if err != nil {
		s.respondAppError(w, err)
		return
	}

	if user.IsAuthor() && !user.Blocked {
		if ok, err := s.isLastActiveAuthor(r, ident.TenantID); err != nil {
			s.respondError(w, http.StatusInternalServerError, "failed to check tenant authors")
			return
		} else if ok {
			s.respondError(w, http.StatusConflict, "cannot delete the last active author")
			return
		}
	}

	if err := s.users.Delete(r.Context(), ident, id); err != nil {
		s.respondAppError(w, err)
		return
	}

	log.Info().Str("user_id", id.String()).Msg("User deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (s *RESTServer) isLastActiveAuthor(r *http.Request, tenantID uuid.UUID) (bool, error) {
	count, err := s.store.CountActiveAuthors(r.Context(), tenantID)
	if err != nil {
		return false, err
	}
	return count <= 1, nil
}
