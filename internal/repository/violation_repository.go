package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/hirepath/assess-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ViolationRepository handles the itemized violation log. Counter updates
// live on the session row; this table is the per-event audit trail, written
// in batches by the violation worker.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// BulkInsert writes a batch of violation events via COPY.
func (r *ViolationRepository) BulkInsert(ctx context.Context, events []model.ViolationEvent) error {
	rows := make([][]interface{}, 0, len(events))
	for _, e := range events {
		rows = append(rows, []interface{}{e.SessionID, e.Type, e.RecordedAt})
	}

	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"violation_events"},
		[]string{"session_id", "violation_type", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// Insert writes a single violation event. Fallback path when a bulk insert
// fails.
func (r *ViolationRepository) Insert(ctx context.Context, e *model.ViolationEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO violation_events (session_id, violation_type, recorded_at)
		 VALUES ($1, $2, $3)`,
		e.SessionID, e.Type, e.RecordedAt)
	return err
}

// ListBySession retrieves a session's violation log in recording order.
func (r *ViolationRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.ViolationEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, violation_type, recorded_at
		 FROM violation_events
		 WHERE session_id = $1
		 ORDER BY recorded_at`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.ViolationEvent
	for rows.Next() {
		var e model.ViolationEvent
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Type, &e.RecordedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
