package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hirepath/assess-backend/internal/middleware"
	"github.com/hirepath/assess-backend/internal/model"
	"github.com/hirepath/assess-backend/internal/response"
	"github.com/hirepath/assess-backend/internal/service"
	"github.com/hirepath/assess-backend/internal/validator"
	"github.com/rs/zerolog"
)

// EntitlementHandler handles entitlement and credit endpoints.
type EntitlementHandler struct {
	entitlementService *service.EntitlementService
	log                zerolog.Logger
}

// NewEntitlementHandler creates a new EntitlementHandler.
func NewEntitlementHandler(entitlementService *service.EntitlementService, log zerolog.Logger) *EntitlementHandler {
	return &EntitlementHandler{
		entitlementService: entitlementService,
		log:                log.With().Str("component", "entitlement_handler").Logger(),
	}
}

// GetMyEntitlement godoc
// GET /api/v1/entitlements/me
// Returns the caller's quota usage, credit balance and score statistics.
func (h *EntitlementHandler) GetMyEntitlement(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	ent, err := h.entitlementService.Get(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Get entitlement failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, ent)
}

// CheckEligibility godoc
// GET /api/v1/entitlements/me/eligibility?kind=SKILLS_TEST
// Advisory preview of whether a session of the given kind could start now.
func (h *EntitlementHandler) CheckEligibility(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	kind := model.AssessmentKind(c.DefaultQuery("kind", string(model.KindSkillsTest)))
	if kind != model.KindSkillsTest && kind != model.KindMockInterview {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	el, err := h.entitlementService.CheckEligibility(c.Request.Context(), userID, kind)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Eligibility check failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, el)
}

// GrantCredits godoc
// POST /api/v1/internal/users/:user_id/credits
// Internal endpoint for the payment pipeline; idempotent by request id.
func (h *EntitlementHandler) GrantCredits(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.GrantCreditsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	applied, err := h.entitlementService.GrantCredits(c.Request.Context(), userID, &req)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Grant credits failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"applied": applied})
}
