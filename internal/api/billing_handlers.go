package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/trainhub/trainhub-server/internal/guard"
)

// HandleListPlans lists the plan catalog
func (s *RESTServer) HandleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.store.ListPlans(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list plans")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"data": plans,
	})
}

// HandleCheckout starts a subscription to the requested plan. Free plans
// come back as an activated subscription, paid plans as a hosted checkout
// URL.
func (s *RESTServer) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.requireAuthor(w, r)
	if !ok {
		return
	}

	var req struct {
		Plan string `json:"plan" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.billing.StartSubscription(r.Context(), ident.TenantID, req.Plan)
	if err != nil {
		s.respondAppError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, result)
}

// HandleCancelSubscription requests cancellation at period end
func (s *RESTServer) HandleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.requireAuthor(w, r)
	if !ok {
		return
	}

	var req struct {
		SubscriptionID uuid.UUID `json:"subscriptionId" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.billing.CancelSubscription(r.Context(), ident.TenantID, req.SubscriptionID); err != nil {
		s.respondAppError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "cancellation_requested",
	})
}

// HandleListInvoices lists the tenant's payment log for audit
func (s *RESTServer) HandleListInvoices(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.requireAuthor(w, r)
	if !ok {
		return
	}

	page := parsePage(r)
	invoices, total, err := s.store.ListInvoices(r.Context(), ident.TenantID, page)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list invoices")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"data": invoices,
		"meta": guard.MetaFor(page, total),
	})
}

// HandleGetSubscription returns the tenant's subscription, or null when no
// checkout ever completed
func (s *RESTServer) HandleGetSubscription(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.requireTenant(w, r)
	if !ok {
		return
	}

	sub, err := s.billing.CurrentSubscription(r.Context(), ident.TenantID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load subscription")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"subscription": sub,
	})
}
