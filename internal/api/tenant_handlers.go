package api

import (
	"encoding/json"
	"net/http"

	"github.com/trainhub/trainhub-server/internal/auth"
)

// HandleGetTenant returns the caller's own tenant
func (s *RESTServer) HandleGetTenant(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFrom(r.Context())

	tenant, err := s.tenants.GetOne(r.Context(), ident, ident.TenantID)
	if err != nil {
		s.respondAppError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, tenant)
}

// HandleUpdateTenant updates the caller's own tenant
func (s *RESTServer) HandleUpdateTenant(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.requireAuthor(w, r)
	if !ok {
		return
	}

	var req struct {
		Name         string `json:"name" validate:"required,min=2,max=100"`
		ContactEmail string `json:"contactEmail" validate:"required,email"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	tenant, err := s.tenants.GetOne(r.Context(), ident, ident.TenantID)
	if err != nil {
		s.respondAppError(w, err)
		return
	}

	tenant.Name = req.Name
	tenant.ContactEmail = req.ContactEmail

	if err := s.tenants.Update(r.Context(), ident, tenant); err != nil {
		s.respondAppError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, tenant)
}
