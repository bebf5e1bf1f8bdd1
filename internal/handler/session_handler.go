package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hirepath/assess-backend/internal/middleware"
	"github.com/hirepath/assess-backend/internal/model"
	"github.com/hirepath/assess-backend/internal/repository"
	"github.com/hirepath/assess-backend/internal/response"
	"github.com/hirepath/assess-backend/internal/service"
	"github.com/hirepath/assess-backend/internal/validator"
	"github.com/rs/zerolog"
)

// SessionHandler handles candidate-facing assessment session endpoints.
type SessionHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.SessionService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "session_handler").Logger(),
	}
}

// CreateSession godoc
// POST /api/v1/sessions
// Provisions questions, consumes one entitlement unit and starts the clock.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	detail, err := h.sessionService.Create(c.Request.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrEntitlementExhausted):
			response.Fail(c, http.StatusPaymentRequired, response.ErrEntitlementExhausted)
		case errors.Is(err, service.ErrNoQuestions):
			response.Fail(c, http.StatusServiceUnavailable, response.ErrNoQuestions)
		default:
			h.log.Error().Err(err).Str("user_id", userID).Msg("Create session failed")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusCreated, detail)
}

// ListSessions godoc
// GET /api/v1/sessions
// Returns the caller's sessions, newest first.
func (h *SessionHandler) ListSessions(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessions, err := h.sessionService.ListByUser(c.Request.Context(), userID, parseLimit(c))
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("List sessions failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if sessions == nil {
		sessions = []model.AssessmentSession{}
	}
	response.Success(c, http.StatusOK, gin.H{"sessions": sessions})
}

// GetSession godoc
// GET /api/v1/sessions/:session_id
// Returns redacted questions while the session runs, the full result once it
// reaches a scored terminal state.
func (h *SessionHandler) GetSession(c *gin.Context) {
	userID, sessionID, ok := h.sessionScope(c)
	if !ok {
		return
	}

	detail, err := h.sessionService.Get(c.Request.Context(), userID, sessionID)
	if err != nil {
		h.failSessionError(c, err, userID)
		return
	}

	response.Success(c, http.StatusOK, detail)
}

// GetRemainingTime godoc
// GET /api/v1/sessions/:session_id/time
// Lightweight remaining-time poll backed by the Redis start-instant mirror.
func (h *SessionHandler) GetRemainingTime(c *gin.Context) {
	userID, sessionID, ok := h.sessionScope(c)
	if !ok {
		return
	}

	remaining, err := h.sessionService.Remaining(c.Request.Context(), userID, sessionID)
	if err != nil {
		h.failSessionError(c, err, userID)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"remaining_seconds": remaining})
}

// SubmitAnswer godoc
// POST /api/v1/sessions/:session_id/questions/:question_id/answer
// Records and scores one answer. Sub-scores stay hidden until completion.
func (h *SessionHandler) SubmitAnswer(c *gin.Context) {
	userID, sessionID, ok := h.sessionScope(c)
	if !ok {
		return
	}

	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ack, err := h.sessionService.SubmitAnswer(c.Request.Context(), userID, sessionID, questionID, &req)
	if err != nil {
		h.failSessionError(c, err, userID)
		return
	}

	response.Success(c, http.StatusOK, ack)
}

// ReportViolation godoc
// POST /api/v1/sessions/:session_id/violations
// Counts one proctoring violation; the ack reports whether the session was
// terminated as a result.
func (h *SessionHandler) ReportViolation(c *gin.Context) {
	userID, sessionID, ok := h.sessionScope(c)
	if !ok {
		return
	}

	var req model.ReportViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ack, err := h.sessionService.ReportViolation(c.Request.Context(), userID, sessionID, model.ViolationType(req.Type))
	if err != nil {
		h.failSessionError(c, err, userID)
		return
	}

	response.Success(c, http.StatusOK, ack)
}

// ListViolations godoc
// GET /api/v1/sessions/:session_id/violations
// Returns the session's itemized violation audit log.
func (h *SessionHandler) ListViolations(c *gin.Context) {
	userID, sessionID, ok := h.sessionScope(c)
	if !ok {
		return
	}

	events, err := h.sessionService.Violations(c.Request.Context(), userID, sessionID)
	if err != nil {
		h.failSessionError(c, err, userID)
		return
	}

	if events == nil {
		events = []model.ViolationEvent{}
	}
	response.Success(c, http.StatusOK, gin.H{"violations": events})
}

// CompleteSession godoc
// POST /api/v1/sessions/:session_id/complete
// Finalizes the session and returns the scored result. Idempotent for
// already-finished sessions.
func (h *SessionHandler) CompleteSession(c *gin.Context) {
	userID, sessionID, ok := h.sessionScope(c)
	if !ok {
		return
	}

	result, err := h.sessionService.Complete(c.Request.Context(), userID, sessionID)
	if err != nil {
		h.failSessionError(c, err, userID)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// CancelSession godoc
// POST /api/v1/sessions/:session_id/cancel
// Abandons an in-progress session without producing a score.
func (h *SessionHandler) CancelSession(c *gin.Context) {
	userID, sessionID, ok := h.sessionScope(c)
	if !ok {
		return
	}

	if err := h.sessionService.Cancel(c.Request.Context(), userID, sessionID); err != nil {
		h.failSessionError(c, err, userID)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "cancelled"})
}

// sessionScope extracts the authenticated user and the session id path param.
func (h *SessionHandler) sessionScope(c *gin.Context) (string, uuid.UUID, bool) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return "", uuid.Nil, false
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return "", uuid.Nil, false
	}
	return userID, sessionID, true
}

// failSessionError maps service sentinels onto API error codes.
func (h *SessionHandler) failSessionError(c *gin.Context, err error, userID string) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotSessionOwner):
		response.Fail(c, http.StatusForbidden, response.ErrNotSessionOwner)
	case errors.Is(err, service.ErrQuestionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrSessionExpired):
		response.Fail(c, http.StatusConflict, response.ErrSessionExpired)
	case errors.Is(err, service.ErrSessionTerminated):
		response.Fail(c, http.StatusConflict, response.ErrSessionTerminated)
	case errors.Is(err, service.ErrSessionNotActive):
		response.Fail(c, http.StatusConflict, response.ErrSessionNotActive)
	default:
		h.log.Error().Err(err).Str("user_id", userID).Msg("Session operation failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

func parseLimit(c *gin.Context) int {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		for _, ch := range raw {
			if ch < '0' || ch > '9' {
				return 0
			}
			limit = limit*10 + int(ch-'0')
			if limit > 1000 {
				return 0
			}
		}
	}
	return limit
}
