package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/trainhub/trainhub-server/internal/mailer"
	"github.com/trainhub/trainhub-server/internal/models"
	"github.com/trainhub/trainhub-server/internal/storage"
	"github.com/trainhub/trainhub-server/pkg/crypto"
)

// HandleHealth reports service health
func (s *RESTServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"name":    s.config.Server.Name,
		"version": s.config.Server.Version,
	})
}

// HandleLogin handles user login
func (s *RESTServer) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if !s.auth.VerifyPassword(req.Password, user.PasswordHash) {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if user.Blocked {
		s.respondError(w, http.StatusForbidden, "account is blocked")
		return
	}
	if !user.Confirmed {
		s.respondError(w, http.StatusForbidden, "account is not confirmed")
		return
	}

	now := time.Now().UTC()
	user.LastLoginAt = &now
	if err := s.store.UpdateUser(r.Context(), user); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("Failed to record login time")
	}

	s.respondTokens(w, http.StatusOK, user)
}

// HandleRefresh handles token refresh
func (s *RESTServer) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, err := s.auth.ParseRefreshToken(req.RefreshToken)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	user, err := s.store.GetUser(r.Context(), userID)
	if err != nil || user.Blocked {
		s.respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	s.respondTokens(w, http.StatusOK, user)
}

// HandleRegister registers a new tenant with its first author user and a
// free subscription, in one transaction.
func (s *RESTServer) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantName   string `json:"tenantName" validate:"required,min=2,max=100"`
		ContactEmail string `json:"contactEmail" validate:"required,email"`
		Email        string `json:"email" validate:"required,email"`
		Password     string `json:"password" validate:"required,min=8"`
		FullName     string `json:"fullName" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to process password")
		return
	}

	ctx := r.Context()
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to start registration")
		return
	}
	defer tx.Rollback()

	tenant := &models.Tenant{
		Name:         req.TenantName,
		ContactEmail: req.ContactEmail,
		IsActive:     true,
	}
	if err := tx.CreateTenant(ctx, tenant); err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to create tenant")
		return
	}

	user := &models.User{
		Email:        req.Email,
		FullName:     req.FullName,
		PasswordHash: hash,
		Role:         models.RoleAuthor,
		Confirmed:    true,
		TenantID:     tenant.ID,
	}
	if err := tx.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, "email already registered")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	// A free subscription is part of registration, so a fresh tenant is
	// usable before any checkout.
	plan, err := tx.GetPlanByCode(ctx, models.PlanCodeFree)
	if err != nil {
		log.Warn().Err(err).Msg("Free plan not configured, registering without subscription")
	} else {
		planID := plan.ID
		sub := &models.Subscription{
			TenantID: tenant.ID,
			PlanID:   &planID,
			Status:   models.SubscriptionActive,
		}
		if err := tx.CreateSubscription(ctx, sub); err != nil {
			s.respondError(w, http.StatusInternalServerError, "failed to create subscription")
			return
		}
	}

	if err := tx.Commit(); err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to complete registration")
		return
	}

	log.Info().
		Str("tenant_id", tenant.ID.String()).
		Str("user_id", user.ID.String()).
		Msg("Tenant registered")

	s.respondTokens(w, http.StatusCreated, user)
}

// HandleResetPassword consumes a reset code and sets a new password.
func (s *RESTServer) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code     string `json:"code" validate:"required"`
		Password string `json:"password" validate:"required,min=8"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.store.GetUserByResetToken(r.Context(), req.Code)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid or expired reset code")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to process password")
		return
	}

	user.PasswordHash = hash
	user.ResetPasswordToken = nil
	user.Confirmed = true
	if err := s.store.UpdateUser(r.Context(), user); err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to update password")
		return
	}

	s.respondTokens(w, http.StatusOK, user)
}

// respondTokens issues a token pair for the user.
func (s *RESTServer) respondTokens(w http.ResponseWriter, status int, user *models.User) {
	accessToken, refreshToken, err := s.auth.GenerateTokenPair(user)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to generate tokens")
		return
	}

	s.respondJSON(w, status, map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    int(s.config.JWT.AccessTokenTTL.Seconds()),
		"token_type":    "Bearer",
		"user":          user,
	})
}

// sendInviteMail emails the invite with a reset code to a newly created
// user. Failures are logged, not surfaced; the code stays valid.
func (s *RESTServer) sendInviteMail(user *models.User, resetCode string) {
	ctx, cancel := contextWithMailTimeout()
	defer cancel()

	err := s.mailer.Send(ctx, mailer.Message{
		To:          user.Email,
		TemplateRef: s.config.Mail.InviteTemplateRef,
		Variables: map[string]string{
			"fullName":  user.FullName,
			"resetCode": resetCode,
		},
	})
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID.String()).Msg("Failed to send invite email")
	}
}

// contextWithMailTimeout bounds outbound mail sends that run outside the
// request lifecycle.
func contextWithMailTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}
