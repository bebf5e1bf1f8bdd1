package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hirepath/assess-backend/internal/model"
	"github.com/hirepath/assess-backend/internal/textgen"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrNotSessionOwner   = errors.New("session belongs to another user")
	ErrSessionNotActive  = errors.New("session is not active")
	ErrSessionExpired    = errors.New("session time has expired")
	ErrSessionTerminated = errors.New("session was terminated for integrity violations")
	ErrQuestionNotFound  = errors.New("question not found in session")
	ErrNoQuestions       = errors.New("no questions could be provisioned")
)

const (
	expiredFeedback    = "Time expired before the session was completed. Answered questions were scored; unanswered questions count as zero."
	terminatedFeedback = "The session was terminated after repeated integrity violations. Answered questions were scored; unanswered questions count as zero."
	fallbackFeedback   = "Overall feedback could not be generated for this session. Per-question feedback is available below."
)

// SessionStore is the session persistence surface the orchestrator needs.
type SessionStore interface {
	CreateWithEntitlement(ctx context.Context, s *model.AssessmentSession, questions []model.Question, freeQuota int) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.AssessmentSession, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]model.AssessmentSession, error)
	Finalize(ctx context.Context, id uuid.UUID, status model.SessionStatus, score *float64, feedback *string, degraded bool) (bool, error)
}

// QuestionStore is the question persistence surface the orchestrator needs.
type QuestionStore interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Question, error)
	GetBySession(ctx context.Context, sessionID, questionID uuid.UUID) (*model.Question, error)
	SaveResult(ctx context.Context, q *model.Question) error
}

// Provisioner assembles a session's question set.
type Provisioner interface {
	Provision(ctx context.Context, p ProvisionParams) ([]model.Question, int, error)
}

// Scorer evaluates one submitted answer.
type Scorer interface {
	ScoreCoding(ctx context.Context, q *model.Question, language, code string) ScoreOutcome
	ScoreOpenEnded(ctx context.Context, q *model.Question, answer string) ScoreOutcome
}

// ViolationLog reads the itemized violation audit trail.
type ViolationLog interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.ViolationEvent, error)
}

// SessionDetail is the caller-facing view of one session: redacted questions
// while it runs, the full result once it reaches a scored terminal state.
type SessionDetail struct {
	Session          *model.AssessmentSession     `json:"session"`
	Questions        []model.QuestionForCandidate `json:"questions,omitempty"`
	Result           *model.SessionResult         `json:"result,omitempty"`
	RemainingSeconds int                          `json:"remaining_seconds"`
}

// SubmitAck acknowledges a recorded answer. Sub-scores stay server-side until
// the session ends.
type SubmitAck struct {
	QuestionID       uuid.UUID `json:"question_id"`
	Answered         bool      `json:"answered"`
	RemainingSeconds int       `json:"remaining_seconds"`
}

// SessionService orchestrates the session lifecycle: entitlement-gated
// creation, answer intake and scoring, violation handling, and the transition
// into exactly one terminal state. All state-changing operations on a session
// serialize on a per-session lock, and every deadline decision derives from
// the persisted start instant and the service clock.
type SessionService struct {
	sessions     SessionStore
	questions    QuestionStore
	provisioner  Provisioner
	scorer       Scorer
	integrity    *IntegrityService
	entitlements *EntitlementService
	violations   ViolationLog
	startCache   StartInstantCache
	gen          textgen.Generator
	genTimeout   time.Duration

	defaultQuestions int
	maxQuestions     int

	clock Clock
	locks *sessionLocks
	log   zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	sessions SessionStore,
	questions QuestionStore,
	provisioner Provisioner,
	scorer Scorer,
	integrity *IntegrityService,
	entitlements *EntitlementService,
	violations ViolationLog,
	startCache StartInstantCache,
	gen textgen.Generator,
	genTimeout time.Duration,
	defaultQuestions, maxQuestions int,
	clock Clock,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		sessions:         sessions,
		questions:        questions,
		provisioner:      provisioner,
		scorer:           scorer,
		integrity:        integrity,
		entitlements:     entitlements,
		violations:       violations,
		startCache:       startCache,
		gen:              gen,
		genTimeout:       genTimeout,
		defaultQuestions: defaultQuestions,
		maxQuestions:     maxQuestions,
		clock:            clock,
		locks:            newSessionLocks(),
		log:              log.With().Str("component", "session").Logger(),
	}
}

// Create provisions questions, then consumes one entitlement unit and starts
// the clock atomically. Provisioning happens before the entitlement is
// touched so a failed draw never costs the user anything; the consume, the
// session insert and the start instant all ride in one transaction, so two
// concurrent creates can never both spend the last unit and a spent unit
// always has a running session.
func (s *SessionService) Create(ctx context.Context, userID string, req *model.CreateSessionRequest) (*SessionDetail, error) {
	count := req.TotalQuestions
	if count <= 0 {
		count = s.defaultQuestions
	}
	if count > s.maxQuestions {
		count = s.maxQuestions
	}

	questions, shortfall, err := s.provisioner.Provision(ctx, ProvisionParams{
		Kind:       model.AssessmentKind(req.Kind),
		Category:   model.AssessmentCategory(req.Category),
		Difficulty: model.Difficulty(req.Difficulty),
		Role:       req.TargetRole,
		Company:    req.TargetCompany,
		Language:   req.Language,
		Count:      count,
	})
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	now := s.clock()
	session := &model.AssessmentSession{
		UserID:                userID,
		Kind:                  model.AssessmentKind(req.Kind),
		Category:              model.AssessmentCategory(req.Category),
		Difficulty:            model.Difficulty(req.Difficulty),
		TargetRole:            req.TargetRole,
		TargetCompany:         req.TargetCompany,
		Language:              req.Language,
		Status:                model.SessionStatusInProgress,
		StartedAt:             now,
		AllottedSeconds:       req.DurationSeconds,
		ProvisioningShortfall: shortfall,
	}

	freeQuota := s.entitlements.FreeQuota(session.Kind)
	if err := s.sessions.CreateWithEntitlement(ctx, session, questions, freeQuota); err != nil {
		return nil, err
	}

	s.startCache.Set(ctx, session.ID, StartEntry{
		UserID:          userID,
		StartedAt:       now,
		AllottedSeconds: session.AllottedSeconds,
	})

	s.log.Info().Str("session_id", session.ID.String()).Str("user_id", userID).
		Str("kind", string(session.Kind)).Int("questions", len(questions)).
		Int("shortfall", shortfall).Msg("Session started")

	return &SessionDetail{
		Session:          session,
		Questions:        redact(questions),
		RemainingSeconds: session.AllottedSeconds,
	}, nil
}

// Get returns the session view appropriate to its state, lazily expiring it
// first if the deadline has passed.
func (s *SessionService) Get(ctx context.Context, userID string, sessionID uuid.UUID) (*SessionDetail, error) {
	release := s.locks.Acquire(sessionID)
	defer release()

	session, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Status == model.SessionStatusInProgress && IsExpired(session.StartedAt, session.AllottedSeconds, s.clock()) {
		if session, err = s.expire(ctx, session); err != nil {
			return nil, err
		}
	}

	questions, err := s.questions.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	detail := &SessionDetail{Session: session}
	if session.Status.Terminal() {
		// Cancellation discards nothing: already-scored answers stay
		// inspectable, only the overall score stays null.
		detail.Result = buildResult(session, questions)
		return detail, nil
	}

	detail.Questions = redact(questions)
	detail.RemainingSeconds = int(Remaining(session.StartedAt, session.AllottedSeconds, s.clock()).Seconds())
	return detail, nil
}

// Remaining answers time polls from the cache mirror when possible, falling
// back to (and re-healing from) the database row.
func (s *SessionService) Remaining(ctx context.Context, userID string, sessionID uuid.UUID) (int, error) {
	if entry, ok := s.startCache.Get(ctx, sessionID); ok {
		if entry.UserID != userID {
			return 0, ErrNotSessionOwner
		}
		return int(Remaining(entry.StartedAt, entry.AllottedSeconds, s.clock()).Seconds()), nil
	}

	session, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return 0, err
	}
	if session.Status != model.SessionStatusInProgress {
		return 0, nil
	}

	s.startCache.Set(ctx, sessionID, StartEntry{
		UserID:          session.UserID,
		StartedAt:       session.StartedAt,
		AllottedSeconds: session.AllottedSeconds,
	})
	return int(Remaining(session.StartedAt, session.AllottedSeconds, s.clock()).Seconds()), nil
}

// SubmitAnswer records and scores one answer. Scoring happens inline; the
// result is persisted with the answer but not revealed until the session
// ends.
func (s *SessionService) SubmitAnswer(ctx context.Context, userID string, sessionID, questionID uuid.UUID, req *model.SubmitAnswerRequest) (*SubmitAck, error) {
	release := s.locks.Acquire(sessionID)
	defer release()

	session, err := s.loadActive(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	question, err := s.questions.GetBySession(ctx, sessionID, questionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, err
	}

	var outcome ScoreOutcome
	if question.Type.Coding() {
		language := session.Language
		if language == "" {
			language = "python"
		}
		if req.Code == "" {
			outcome = ScoreOutcome{SubScore: 0, Feedback: "No code was submitted for this question."}
		} else {
			outcome = s.scorer.ScoreCoding(ctx, question, language, req.Code)
		}
	} else {
		outcome = s.scorer.ScoreOpenEnded(ctx, question, req.AnswerText)
	}

	if req.AnswerText != "" {
		question.AnswerText = &req.AnswerText
	}
	if req.Code != "" {
		question.SubmittedCode = &req.Code
	}
	question.TimeSpentSeconds = req.TimeSpentSeconds
	question.SubScore = &outcome.SubScore
	question.Feedback = &outcome.Feedback
	question.Degraded = outcome.Degraded
	question.ManualReview = outcome.ManualReview

	if err := s.questions.SaveResult(ctx, question); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The session left IN_PROGRESS between our load and the write.
			return nil, ErrSessionNotActive
		}
		return nil, err
	}

	return &SubmitAck{
		QuestionID:       questionID,
		Answered:         true,
		RemainingSeconds: int(Remaining(session.StartedAt, session.AllottedSeconds, s.clock()).Seconds()),
	}, nil
}

// ReportViolation counts one proctoring violation and terminates the session
// if the report pushed it over the threshold.
func (s *SessionService) ReportViolation(ctx context.Context, userID string, sessionID uuid.UUID, vtype model.ViolationType) (*model.ViolationAck, error) {
	release := s.locks.Acquire(sessionID)
	defer release()

	if _, err := s.loadActive(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	count, err := s.integrity.Record(ctx, sessionID, vtype)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotActive
		}
		return nil, err
	}

	ack := &model.ViolationAck{ViolationCount: count}
	if s.integrity.ShouldTerminate(count) {
		// Penalized but non-discarded: whatever was scored so far stands,
		// unanswered questions count as zero.
		questions, err := s.questions.ListBySession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		overall := WeightedOverall(questions)
		feedback := terminatedFeedback

		applied, err := s.sessions.Finalize(ctx, sessionID, model.SessionStatusTerminatedIntegrity, &overall, &feedback, anyDegraded(questions))
		if err != nil {
			return nil, err
		}
		if applied {
			s.startCache.Delete(ctx, sessionID)
			s.log.Warn().Str("session_id", sessionID.String()).Int("violation_count", count).
				Float64("overall_score", overall).Msg("Session terminated for integrity violations")
		}
		ack.Terminated = true
	}
	return ack, nil
}

// Complete scores the session and finalizes it as COMPLETED. Calling it on an
// already-finalized session returns the persisted result unchanged, except
// CANCELLED, which has no result to return.
func (s *SessionService) Complete(ctx context.Context, userID string, sessionID uuid.UUID) (*model.SessionResult, error) {
	release := s.locks.Acquire(sessionID)
	defer release()

	session, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Status.Terminal() {
		if session.Status == model.SessionStatusCancelled {
			return nil, ErrSessionNotActive
		}
		questions, err := s.questions.ListBySession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return buildResult(session, questions), nil
	}
	if session.Status != model.SessionStatusInProgress {
		return nil, ErrSessionNotActive
	}

	if IsExpired(session.StartedAt, session.AllottedSeconds, s.clock()) {
		if session, err = s.expire(ctx, session); err != nil {
			return nil, err
		}
		questions, err := s.questions.ListBySession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return buildResult(session, questions), nil
	}

	questions, err := s.questions.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	overall := WeightedOverall(questions)
	degraded := anyDegraded(questions)
	feedback, fbDegraded := s.overallFeedback(ctx, session, questions, overall)
	degraded = degraded || fbDegraded

	applied, err := s.sessions.Finalize(ctx, sessionID, model.SessionStatusCompleted, &overall, &feedback, degraded)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Lost a race to another finalizer; report whatever won.
		if session, err = s.sessions.GetByID(ctx, sessionID); err != nil {
			return nil, err
		}
		return buildResult(session, questions), nil
	}

	s.startCache.Delete(ctx, sessionID)

	if err := s.entitlements.RecordResult(ctx, userID, overall, s.clock()); err != nil {
		// Statistics are best-effort; the result itself is already durable.
		s.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Failed to record result statistics")
	}

	s.log.Info().Str("session_id", sessionID.String()).Float64("overall_score", overall).
		Bool("degraded", degraded).Msg("Session completed")

	session.Status = model.SessionStatusCompleted
	session.OverallScore = &overall
	session.OverallFeedback = &feedback
	session.FeedbackDegraded = degraded
	return buildResult(session, questions), nil
}

// Cancel abandons an in-progress session. No score is produced and the
// consumed entitlement is not refunded. Cancelling an already-cancelled
// session is a no-op.
func (s *SessionService) Cancel(ctx context.Context, userID string, sessionID uuid.UUID) error {
	release := s.locks.Acquire(sessionID)
	defer release()

	session, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return err
	}

	if session.Status == model.SessionStatusCancelled {
		return nil
	}
	if session.Status.Terminal() {
		return ErrSessionNotActive
	}
	if session.Status == model.SessionStatusInProgress && IsExpired(session.StartedAt, session.AllottedSeconds, s.clock()) {
		_, err = s.expire(ctx, session)
		if err != nil {
			return err
		}
		return ErrSessionExpired
	}

	applied, err := s.sessions.Finalize(ctx, sessionID, model.SessionStatusCancelled, nil, nil, false)
	if err != nil {
		return err
	}
	if !applied {
		return ErrSessionNotActive
	}

	s.startCache.Delete(ctx, sessionID)
	s.log.Info().Str("session_id", sessionID.String()).Msg("Session cancelled")
	return nil
}

// ListByUser returns the user's sessions, newest first.
func (s *SessionService) ListByUser(ctx context.Context, userID string, limit int) ([]model.AssessmentSession, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.sessions.ListByUser(ctx, userID, limit)
}

// VerifyOwner checks the session exists and belongs to the user. Used by the
// monitor stream before subscribing.
func (s *SessionService) VerifyOwner(ctx context.Context, userID string, sessionID uuid.UUID) error {
	_, err := s.load(ctx, userID, sessionID)
	return err
}

// Violations returns a session's itemized violation log.
func (s *SessionService) Violations(ctx context.Context, userID string, sessionID uuid.UUID) ([]model.ViolationEvent, error) {
	if _, err := s.load(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.violations.ListBySession(ctx, sessionID)
}

// load fetches a session and verifies ownership.
func (s *SessionService) load(ctx context.Context, userID string, sessionID uuid.UUID) (*model.AssessmentSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrNotSessionOwner
	}
	return session, nil
}

// loadActive fetches an owned session that must still accept candidate
// actions, lazily expiring it when the deadline has passed.
func (s *SessionService) loadActive(ctx context.Context, userID string, sessionID uuid.UUID) (*model.AssessmentSession, error) {
	session, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	switch session.Status {
	case model.SessionStatusExpired:
		return nil, ErrSessionExpired
	case model.SessionStatusTerminatedIntegrity:
		return nil, ErrSessionTerminated
	case model.SessionStatusInProgress:
	default:
		return nil, ErrSessionNotActive
	}

	if IsExpired(session.StartedAt, session.AllottedSeconds, s.clock()) {
		if _, err := s.expire(ctx, session); err != nil {
			return nil, err
		}
		return nil, ErrSessionExpired
	}
	return session, nil
}

// expire finalizes a deadline-passed session as EXPIRED with a partial
// aggregate: answered questions keep their scores, unanswered ones count as
// zero.
func (s *SessionService) expire(ctx context.Context, session *model.AssessmentSession) (*model.AssessmentSession, error) {
	questions, err := s.questions.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	overall := WeightedOverall(questions)
	feedback := expiredFeedback
	applied, err := s.sessions.Finalize(ctx, session.ID, model.SessionStatusExpired, &overall, &feedback, anyDegraded(questions))
	if err != nil {
		return nil, err
	}
	if !applied {
		// Someone else finalized first; their terminal state wins.
		return s.sessions.GetByID(ctx, session.ID)
	}

	s.startCache.Delete(ctx, session.ID)
	s.log.Info().Str("session_id", session.ID.String()).Float64("overall_score", overall).
		Msg("Session expired")

	session.Status = model.SessionStatusExpired
	session.OverallScore = &overall
	session.OverallFeedback = &feedback
	session.FeedbackDegraded = anyDegraded(questions)
	return session, nil
}

// overallFeedback generates end-of-session feedback, degrading to the fixed
// fallback when generation fails.
func (s *SessionService) overallFeedback(ctx context.Context, session *model.AssessmentSession, questions []model.Question, overall float64) (string, bool) {
	subScores := make([]float64, 0, len(questions))
	for _, q := range questions {
		if q.SubScore != nil {
			subScores = append(subScores, *q.SubScore)
		} else {
			subScores = append(subScores, 0)
		}
	}

	genCtx, cancel := context.WithTimeout(ctx, s.genTimeout)
	defer cancel()

	raw, err := s.gen.Generate(genCtx, textgen.BuildOverallFeedbackPrompt(string(session.Kind), session.TargetRole, overall, subScores))
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("Overall feedback generation failed, degrading")
		return fallbackFeedback, true
	}
	return raw, false
}

func redact(questions []model.Question) []model.QuestionForCandidate {
	out := make([]model.QuestionForCandidate, 0, len(questions))
	for i := range questions {
		out = append(out, questions[i].ForCandidate())
	}
	return out
}

func anyDegraded(questions []model.Question) bool {
	for _, q := range questions {
		if q.Degraded {
			return true
		}
	}
	return false
}

func buildResult(s *model.AssessmentSession, questions []model.Question) *model.SessionResult {
	res := &model.SessionResult{
		SessionID:        s.ID,
		Status:           s.Status,
		OverallScore:     s.OverallScore,
		FeedbackDegraded: s.FeedbackDegraded,
	}
	if s.OverallFeedback != nil {
		res.OverallFeedback = *s.OverallFeedback
	}
	for _, q := range questions {
		res.Questions = append(res.Questions, model.QuestionResult{
			QuestionID:   q.ID,
			Ordinal:      q.Ordinal,
			SubScore:     q.SubScore,
			Feedback:     q.Feedback,
			Degraded:     q.Degraded,
			ManualReview: q.ManualReview,
		})
	}
	return res
}
