package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hirepath/assess-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrEntitlementExhausted is returned when a consume attempt finds neither
// free quota nor purchased credit.
var ErrEntitlementExhausted = errors.New("entitlement exhausted")

// EntitlementRepository handles entitlement data access.
type EntitlementRepository struct {
	pool *pgxpool.Pool
}

// NewEntitlementRepository creates a new EntitlementRepository.
func NewEntitlementRepository(pool *pgxpool.Pool) *EntitlementRepository {
	return &EntitlementRepository{pool: pool}
}

const entitlementColumns = `user_id, free_tests_used, free_interviews_used, credit_balance,
	 sessions_completed, average_score, best_score, last_session_at`

func scanEntitlement(row pgx.Row) (*model.Entitlement, error) {
	e := &model.Entitlement{}
	err := row.Scan(&e.UserID, &e.FreeTestsUsed, &e.FreeInterviewsUsed, &e.CreditBalance,
		&e.SessionsCompleted, &e.AverageScore, &e.BestScore, &e.LastSessionAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetOrCreate retrieves a user's entitlement record, creating a zeroed row on
// first contact.
func (r *EntitlementRepository) GetOrCreate(ctx context.Context, userID string) (*model.Entitlement, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO entitlements (user_id) VALUES ($1)
		 ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return nil, err
	}
	return scanEntitlement(r.pool.QueryRow(ctx,
		`SELECT `+entitlementColumns+` FROM entitlements WHERE user_id = $1`, userID))
}

// ConsumeTx decrements one unit of entitlement for the given assessment kind
// inside the caller's transaction: free quota first, then purchased credit.
// Each UPDATE carries its own guard so concurrent consumers can never
// double-spend the last unit. Returns ErrEntitlementExhausted when neither
// guard matches.
func (r *EntitlementRepository) ConsumeTx(ctx context.Context, tx pgx.Tx, userID string, kind model.AssessmentKind, freeQuota int) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO entitlements (user_id) VALUES ($1)
		 ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return err
	}

	freeColumn := "free_tests_used"
	if kind == model.KindMockInterview {
		freeColumn = "free_interviews_used"
	}

	tag, err := tx.Exec(ctx,
		`UPDATE entitlements SET `+freeColumn+` = `+freeColumn+` + 1
		 WHERE user_id = $1 AND `+freeColumn+` < $2`, userID, freeQuota)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	tag, err = tx.Exec(ctx,
		`UPDATE entitlements SET credit_balance = credit_balance - 1
		 WHERE user_id = $1 AND credit_balance > 0`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntitlementExhausted
	}
	return nil
}

// GrantCredits adds purchased credits, idempotent by request id: a replayed
// request id is a no-op. Returns whether the grant was applied.
func (r *EntitlementRepository) GrantCredits(ctx context.Context, userID, requestID string, count int) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO credit_grants (request_id, user_id, credits)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (request_id) DO NOTHING`, requestID, userID, count)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		// Replay: the grant was already applied.
		return false, tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO entitlements (user_id, credit_balance) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET credit_balance = entitlements.credit_balance + $2`,
		userID, count)
	if err != nil {
		return false, err
	}

	return true, tx.Commit(ctx)
}

// RecordResult folds a completed session's overall score into the user's
// running statistics.
func (r *EntitlementRepository) RecordResult(ctx context.Context, userID string, score float64, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE entitlements
		 SET average_score = (average_score * sessions_completed + $2) / (sessions_completed + 1),
		     sessions_completed = sessions_completed + 1,
		     best_score = GREATEST(best_score, $2),
		     last_session_at = $3
		 WHERE user_id = $1`, userID, score, at)
	return err
}
