package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MonitorRepository provides data access for the live quiz monitor.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// ViolationCounts returns the number of recorded violations per attempt in the given quiz.
func (r *MonitorRepository) ViolationCounts(ctx context.Context, quizID uuid.UUID) (map[uuid.UUID]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT attempt_id, COUNT(*)
		 FROM attempt_violations
		 WHERE quiz_id = $1
		 GROUP BY attempt_id`,
		quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int64)
	for rows.Next() {
		var id uuid.UUID
		var count int64
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		counts[id] = count
	}
	return counts, rows.Err()
}

// InsertViolation stores one violation row.
func (r *MonitorRepository) InsertViolation(ctx context.Context, v ViolationRow) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_violations (attempt_id, quiz_id, reason, warning_count, recorded_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		v.AttemptID, v.QuizID, v.Reason, v.WarningCount, v.RecordedAt,
	)
	return err
}

// CopyViolations bulk-inserts rows with the COPY protocol.
func (r *MonitorRepository) CopyViolations(ctx context.Context, rows []ViolationRow) error {
	src := make([][]any, len(rows))
	for i, v := range rows {
		src[i] = v.Values()
	}
	_, err := r.pool.CopyFrom(ctx, pgx.Identifier{"attempt_violations"}, ViolationColumns, pgx.CopyFromRows(src))
	return err
}
