package repository

import (
	"context"

	"github.com/hirepath/assess-backend/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BankRepository handles curated question bank data access.
type BankRepository struct {
	pool *pgxpool.Pool
}

// NewBankRepository creates a new BankRepository.
func NewBankRepository(pool *pgxpool.Pool) *BankRepository {
	return &BankRepository{pool: pool}
}

// ListByTier retrieves bank questions for (kind, category, difficulty).
// CategoryMixed matches every category.
func (r *BankRepository) ListByTier(ctx context.Context, kind model.AssessmentKind, category model.AssessmentCategory, difficulty model.Difficulty) ([]model.BankQuestion, error) {
	query := `SELECT id, kind, category, difficulty, question_type, prompt, weight,
	          test_cases, hints, sample_answer, language, created_at
	          FROM bank_questions
	          WHERE kind = $1 AND difficulty = $2`
	args := []any{kind, difficulty}

	if category != model.CategoryMixed {
		args = append(args, category)
		query += ` AND category = $3`
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.BankQuestion
	for rows.Next() {
		var q model.BankQuestion
		if err := rows.Scan(&q.ID, &q.Kind, &q.Category, &q.Difficulty, &q.Type, &q.Prompt, &q.Weight,
			&q.TestCases, &q.Hints, &q.SampleAnswer, &q.Language, &q.CreatedAt); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Insert adds a curated question to the bank.
func (r *BankRepository) Insert(ctx context.Context, q *model.BankQuestion) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO bank_questions
		 (kind, category, difficulty, question_type, prompt, weight, test_cases, hints, sample_answer, language)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at`,
		q.Kind, q.Category, q.Difficulty, q.Type, q.Prompt, q.Weight, q.TestCases, q.Hints, q.SampleAnswer, q.Language,
	).Scan(&q.ID, &q.CreatedAt)
}
