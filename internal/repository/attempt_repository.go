package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const attemptColumns = `id, quiz_id, student_id, started_at, deadline, finished_at,
	status, score, correct, auto, blocked_reason, answers`

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// GetByID retrieves an attempt by its UUID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.AttemptRecord, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id))
}

// GetByQuizAndStudent retrieves the attempt of a student at a quiz.
func (r *AttemptRepository) GetByQuizAndStudent(ctx context.Context, quizID uuid.UUID, studentID int) (*model.AttemptRecord, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE quiz_id = $1 AND student_id = $2`,
		quizID, studentID))
}

// Create inserts a new attempt. It reports false when the student already
// has an attempt at the quiz (concurrent start).
func (r *AttemptRepository) Create(ctx context.Context, a *model.AttemptRecord) (bool, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx,
		`INSERT INTO attempts (id, quiz_id, student_id, started_at, deadline, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (quiz_id, student_id) DO NOTHING
		 RETURNING id`,
		a.ID, a.QuizID, a.StudentID, a.StartedAt, a.Deadline, model.AttemptStatusInProgress,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SaveAnswers replaces the draft of an attempt that is still in progress. It
// reports false once the attempt has been submitted.
func (r *AttemptRepository) SaveAnswers(ctx context.Context, id uuid.UUID, answers []model.Answer) (bool, error) {
	if answers == nil {
		answers = []model.Answer{}
	}
	raw, err := json.Marshal(answers)
	if err != nil {
		return false, fmt.Errorf("encode answers: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts SET answers = $1::jsonb WHERE id = $2 AND status = $3`,
		string(raw), id, model.AttemptStatusInProgress,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Complete stores the graded outcome. It reports false when the attempt was
// no longer in progress, so a submission is applied at most once.
func (r *AttemptRepository) Complete(ctx context.Context, a *model.AttemptRecord) (bool, error) {
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return false, fmt.Errorf("encode answers: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, finished_at = $2, score = $3, correct = $4,
		     auto = $5, blocked_reason = $6, answers = $7::jsonb
		 WHERE id = $8 AND status = $9`,
		model.AttemptStatusSubmitted, a.FinishedAt, a.Score, a.Correct,
		a.Auto, a.BlockedReason, string(answers),
		a.ID, model.AttemptStatusInProgress,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListByQuiz retrieves every attempt at a quiz, newest first.
func (r *AttemptRepository) ListByQuiz(ctx context.Context, quizID uuid.UUID) ([]model.AttemptRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE quiz_id = $1 ORDER BY started_at DESC`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.AttemptRecord
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

func scanAttempt(row pgx.Row) (*model.AttemptRecord, error) {
	var (
		a       model.AttemptRecord
		answers []byte
	)
	err := row.Scan(&a.ID, &a.QuizID, &a.StudentID, &a.StartedAt, &a.Deadline, &a.FinishedAt,
		&a.Status, &a.Score, &a.Correct, &a.Auto, &a.BlockedReason, &answers)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &a.Answers); err != nil {
			return nil, fmt.Errorf("decode answers of %s: %w", a.ID, err)
		}
	}
	return &a, nil
}
