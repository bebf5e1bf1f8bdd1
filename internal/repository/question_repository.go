package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/hirepath/assess-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

const questionColumns = `id, session_id, ordinal, prompt, question_type, difficulty, weight,
	 test_cases, hints, answer_text, submitted_code, time_spent_seconds, answered_at,
	 sub_score, feedback, degraded, manual_review`

func scanQuestion(row pgx.Row) (*model.Question, error) {
	q := &model.Question{}
	err := row.Scan(&q.ID, &q.SessionID, &q.Ordinal, &q.Prompt, &q.Type, &q.Difficulty, &q.Weight,
		&q.TestCases, &q.Hints, &q.AnswerText, &q.SubmittedCode, &q.TimeSpentSeconds, &q.AnsweredAt,
		&q.SubScore, &q.Feedback, &q.Degraded, &q.ManualReview)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// ListBySession retrieves all questions for a session in ordinal order.
// Ordinals are fixed at provisioning, so the result is stable across calls.
func (r *QuestionRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+`
		 FROM questions WHERE session_id = $1
		 ORDER BY ordinal`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}
	return questions, rows.Err()
}

// GetBySession retrieves one question, scoped to its session to prevent
// cross-session probing.
func (r *QuestionRepository) GetBySession(ctx context.Context, sessionID, questionID uuid.UUID) (*model.Question, error) {
	return scanQuestion(r.pool.QueryRow(ctx,
		`SELECT `+questionColumns+`
		 FROM questions WHERE id = $1 AND session_id = $2`, questionID, sessionID))
}

// SaveResult writes the candidate response and scoring outcome for one
// question. The join guard rejects late writes once the session has left
// IN_PROGRESS.
func (r *QuestionRepository) SaveResult(ctx context.Context, q *model.Question) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE questions AS q
		 SET answer_text = $3, submitted_code = $4, time_spent_seconds = $5,
		     answered_at = NOW(), sub_score = $6, feedback = $7, degraded = $8, manual_review = $9
		 FROM assessment_sessions AS s
		 WHERE q.id = $1 AND q.session_id = $2 AND s.id = q.session_id AND s.status = $10`,
		q.ID, q.SessionID, q.AnswerText, q.SubmittedCode, q.TimeSpentSeconds,
		q.SubScore, q.Feedback, q.Degraded, q.ManualReview, model.SessionStatusInProgress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
