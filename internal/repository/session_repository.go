package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hirepath/assess-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// violationColumns maps violation types to their counter columns. Using a
// fixed map keeps column names out of caller control.
var violationColumns = map[model.ViolationType]string{
	model.ViolationTabSwitch:       "tab_switch_count",
	model.ViolationCopyAttempt:     "copy_attempt_count",
	model.ViolationPasteAttempt:    "paste_attempt_count",
	model.ViolationBlockedShortcut: "blocked_shortcut_count",
	model.ViolationContextMenu:     "context_menu_count",
}

// SessionRepository handles assessment session data access.
type SessionRepository struct {
	pool    *pgxpool.Pool
	entRepo *EntitlementRepository
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool, entRepo *EntitlementRepository) *SessionRepository {
	return &SessionRepository{pool: pool, entRepo: entRepo}
}

const sessionColumns = `id, user_id, kind, category, difficulty, target_role, target_company, language,
	 status, started_at, finished_at, allotted_seconds,
	 violation_count, tab_switch_count, copy_attempt_count, paste_attempt_count,
	 blocked_shortcut_count, context_menu_count,
	 overall_score, overall_feedback, feedback_degraded, provisioning_shortfall, created_at`

func scanSession(row pgx.Row) (*model.AssessmentSession, error) {
	s := &model.AssessmentSession{}
	err := row.Scan(&s.ID, &s.UserID, &s.Kind, &s.Category, &s.Difficulty, &s.TargetRole, &s.TargetCompany, &s.Language,
		&s.Status, &s.StartedAt, &s.FinishedAt, &s.AllottedSeconds,
		&s.ViolationCount, &s.TabSwitchCount, &s.CopyAttemptCount, &s.PasteAttemptCount,
		&s.BlockedShortcutCount, &s.ContextMenuCount,
		&s.OverallScore, &s.OverallFeedback, &s.FeedbackDegraded, &s.ProvisioningShortfall, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// CreateWithEntitlement persists a new session plus its provisioned questions
// after consuming one entitlement unit, all inside a single transaction. The
// session is inserted with the status and start instant the caller set, so a
// spent unit always has a running session. If the entitlement cannot be
// consumed the whole creation rolls back and ErrEntitlementExhausted is
// returned.
func (r *SessionRepository) CreateWithEntitlement(ctx context.Context, s *model.AssessmentSession, questions []model.Question, freeQuota int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := r.entRepo.ConsumeTx(ctx, tx, s.UserID, s.Kind, freeQuota); err != nil {
		return err
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO assessment_sessions
		 (user_id, kind, category, difficulty, target_role, target_company, language,
		  status, started_at, allotted_seconds, provisioning_shortfall)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, created_at`,
		s.UserID, s.Kind, s.Category, s.Difficulty, s.TargetRole, s.TargetCompany, s.Language,
		s.Status, s.StartedAt, s.AllottedSeconds, s.ProvisioningShortfall,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	for i := range questions {
		q := &questions[i]
		q.SessionID = s.ID
		err = tx.QueryRow(ctx,
			`INSERT INTO questions
			 (session_id, ordinal, prompt, question_type, difficulty, weight, test_cases, hints)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING id`,
			q.SessionID, q.Ordinal, q.Prompt, q.Type, q.Difficulty, q.Weight, q.TestCases, q.Hints,
		).Scan(&q.ID)
		if err != nil {
			return fmt.Errorf("insert question %d: %w", q.Ordinal, err)
		}
	}

	return tx.Commit(ctx)
}

// GetByID retrieves a session.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.AssessmentSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM assessment_sessions WHERE id = $1`, id))
}

// ListByUser retrieves a user's sessions, newest first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]model.AssessmentSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM assessment_sessions
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.AssessmentSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// Finalize moves an IN_PROGRESS session into a terminal state with its
// aggregate result. The status guard makes terminal states sticky: a second
// finalize attempt affects zero rows and reports false.
func (r *SessionRepository) Finalize(ctx context.Context, id uuid.UUID, status model.SessionStatus, score *float64, feedback *string, degraded bool) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE assessment_sessions
		 SET status = $2, overall_score = $3, overall_feedback = $4,
		     feedback_degraded = $5, finished_at = NOW()
		 WHERE id = $1 AND status = $6`,
		id, status, score, feedback, degraded, model.SessionStatusInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// IncrementViolation bumps the total and per-type counters for an
// IN_PROGRESS session and returns the new total. Terminal sessions are left
// untouched (pgx.ErrNoRows).
func (r *SessionRepository) IncrementViolation(ctx context.Context, id uuid.UUID, vtype model.ViolationType) (int, error) {
	column, ok := violationColumns[vtype]
	if !ok {
		return 0, fmt.Errorf("unknown violation type %q", vtype)
	}

	var count int
	err := r.pool.QueryRow(ctx,
		`UPDATE assessment_sessions
		 SET violation_count = violation_count + 1,
		     `+column+` = `+column+` + 1
		 WHERE id = $1 AND status = $2
		 RETURNING violation_count`,
		id, model.SessionStatusInProgress,
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
