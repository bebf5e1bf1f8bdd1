package service

import (
	"context"
	"time"

	"github.com/hirepath/assess-backend/internal/model"
	"github.com/rs/zerolog"
)

// EntitlementStore is the entitlement persistence surface the service needs.
// Consumption itself happens inside session creation's transaction and is not
// exposed here.
type EntitlementStore interface {
	GetOrCreate(ctx context.Context, userID string) (*model.Entitlement, error)
	GrantCredits(ctx context.Context, userID, requestID string, count int) (bool, error)
	RecordResult(ctx context.Context, userID string, score float64, at time.Time) error
}

// EntitlementService answers eligibility questions and applies credit grants.
// Eligibility reads are advisory; the binding check is the guarded consume
// inside session creation.
type EntitlementService struct {
	store              EntitlementStore
	freeTestQuota      int
	freeInterviewQuota int
	log                zerolog.Logger
}

// NewEntitlementService creates a new EntitlementService.
func NewEntitlementService(store EntitlementStore, freeTestQuota, freeInterviewQuota int, log zerolog.Logger) *EntitlementService {
	return &EntitlementService{
		store:              store,
		freeTestQuota:      freeTestQuota,
		freeInterviewQuota: freeInterviewQuota,
		log:                log.With().Str("component", "entitlement").Logger(),
	}
}

// FreeQuota returns the lifetime free quota for an assessment kind.
func (s *EntitlementService) FreeQuota(kind model.AssessmentKind) int {
	if kind == model.KindMockInterview {
		return s.freeInterviewQuota
	}
	return s.freeTestQuota
}

// Get retrieves a user's entitlement record, creating it on first contact.
func (s *EntitlementService) Get(ctx context.Context, userID string) (*model.Entitlement, error) {
	return s.store.GetOrCreate(ctx, userID)
}

// CheckEligibility reports whether the user could start a session of the
// given kind right now. A true answer can still lose the race to a concurrent
// session creation; callers must treat it as a preview.
func (s *EntitlementService) CheckEligibility(ctx context.Context, userID string, kind model.AssessmentKind) (*model.Eligibility, error) {
	ent, err := s.store.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	quota := s.FreeQuota(kind)
	used := ent.FreeTestsUsed
	if kind == model.KindMockInterview {
		used = ent.FreeInterviewsUsed
	}

	freeRemaining := quota - used
	if freeRemaining < 0 {
		freeRemaining = 0
	}

	el := &model.Eligibility{
		Allowed:       freeRemaining > 0 || ent.CreditBalance > 0,
		FreeRemaining: freeRemaining,
		CreditBalance: ent.CreditBalance,
	}
	if !el.Allowed {
		el.Reason = "free quota exhausted and no credits remaining"
	}
	return el, nil
}

// GrantCredits applies an idempotent credit grant. Returns whether the grant
// was newly applied; false means the request id was a replay.
func (s *EntitlementService) GrantCredits(ctx context.Context, userID string, req *model.GrantCreditsRequest) (bool, error) {
	applied, err := s.store.GrantCredits(ctx, userID, req.RequestID, req.Count)
	if err != nil {
		return false, err
	}
	if applied {
		s.log.Info().Str("user_id", userID).Str("request_id", req.RequestID).
			Int("credits", req.Count).Msg("Credits granted")
	} else {
		s.log.Info().Str("user_id", userID).Str("request_id", req.RequestID).
			Msg("Duplicate credit grant ignored")
	}
	return applied, nil
}

// RecordResult folds a completed session's score into the user's statistics.
func (s *EntitlementService) RecordResult(ctx context.Context, userID string, score float64, at time.Time) error {
	return s.store.RecordResult(ctx, userID, score, at)
}
