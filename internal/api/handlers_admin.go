package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/nutrition-bot/internal/analytics"
	"github.com/nutrition-bot/internal/models"
	"github.com/nutrition-bot/internal/service"
	"github.com/nutrition-bot/internal/types"
)

// parseUserID reads the {id} path variable
func parseUserID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// handleGetUser handles GET /api/users/{id}
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "User ID must be a positive integer", nil)
		return
	}

	user, err := s.deps.Users.GetUser(r.Context(), userID)
	if err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}

	respondJSON(w, http.StatusOK, user)
}

// handleGetLimits handles GET /api/users/{id}/limits
func (s *Server) handleGetLimits(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "User ID must be a positive integer", nil)
		return
	}

	limits := s.deps.Limits.EvaluateLimits(r.Context(), userID, s.deps.Now())
	respondJSON(w, http.StatusOK, limits)
}

// handleGetStreak handles GET /api/users/{id}/streak
func (s *Server) handleGetStreak(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "User ID must be a positive integer", nil)
		return
	}

	respondJSON(w, http.StatusOK, s.deps.Users.GetStreak(r.Context(), userID))
}

// handleActivatePromo handles POST /api/users/{id}/promo
func (s *Server) handleActivatePromo(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "User ID must be a positive integer", nil)
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Code is required", nil)
		return
	}

	ctx := analytics.WithPlatform(r.Context(), types.PlatformAdmin)
	activated := s.deps.Trial.ActivateByPromoCode(ctx, userID, req.Code)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"activated": activated,
		"limits":    s.deps.Limits.EvaluateLimits(ctx, userID, s.deps.Now()),
	})
}

// handleRecordPayment handles POST /api/payments
func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req service.RecordPaymentInput
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.UserID <= 0 || req.PlanID <= 0 || strings.TrimSpace(req.ChargeID) == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "userId, planId and chargeId are required", nil)
		return
	}

	ctx := analytics.WithPlatform(r.Context(), types.PlatformAdmin)
	if !s.deps.Payments.RecordPayment(ctx, &req) {
		respondError(w, http.StatusUnprocessableEntity, ErrCodeInvalidInput, "Payment was not recorded", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"recorded": true})
}

// handleListPlans handles GET /api/plans?promo=CODE
func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	promo := service.NormalizePromoCode(r.URL.Query().Get("promo"))

	var (
		plans []*models.SubscriptionPlan
		err   error
	)
	if promo != "" {
		plans, err = s.deps.Plans.ListByPromoCode(r.Context(), promo)
	} else {
		plans, err = s.deps.Plans.List(r.Context())
	}
	if err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"plans": plans,
		"count": len(plans),
	})
}
