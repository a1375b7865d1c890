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

// QuizRepository handles quiz and question data access.
type QuizRepository struct {
	pool *pgxpool.Pool
}

// NewQuizRepository creates a new QuizRepository.
func NewQuizRepository(pool *pgxpool.Pool) *QuizRepository {
	return &QuizRepository{pool: pool}
}

// GetByID retrieves a quiz by its UUID.
func (r *QuizRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Quiz, error) {
	q := &model.Quiz{}
	err := r.pool.QueryRow(ctx,
		`SELECT q.id, q.title, q.duration_seconds, q.status, q.created_at,
		        (SELECT COUNT(*) FROM quiz_questions qq WHERE qq.quiz_id = q.id)
		 FROM quizzes q WHERE q.id = $1`, id,
	).Scan(&q.ID, &q.Title, &q.DurationSeconds, &q.Status, &q.CreatedAt, &q.QuestionCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return q, nil
}

// ListQuestions retrieves all questions of a quiz, ordered by order_num.
func (r *QuizRepository) ListQuestions(ctx context.Context, quizID uuid.UUID) ([]model.QuizQuestion, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, question_text, question_type, options, correct_answer, order_num
		 FROM quiz_questions WHERE quiz_id = $1
		 ORDER BY order_num`, quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.QuizQuestion
	for rows.Next() {
		var (
			q       model.QuizQuestion
			options []byte
		)
		if err := rows.Scan(&q.ID, &q.QuestionText, &q.QuestionType, &options, &q.CorrectAnswer, &q.OrderNum); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(options, &q.Options); err != nil {
			return nil, fmt.Errorf("decode options of %s: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Create inserts a quiz and its questions in one transaction.
func (r *QuizRepository) Create(ctx context.Context, quiz *model.Quiz, questions []model.QuizQuestion) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO quizzes (id, title, duration_seconds, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		quiz.ID, quiz.Title, quiz.DurationSeconds, quiz.Status,
	).Scan(&quiz.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}

	batch := &pgx.Batch{}
	for _, q := range questions {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return fmt.Errorf("encode options of %s: %w", q.ID, err)
		}
		batch.Queue(
			`INSERT INTO quiz_questions (id, quiz_id, question_text, question_type, options, correct_answer, order_num)
			 VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)`,
			q.ID, quiz.ID, q.QuestionText, q.QuestionType, string(options), q.CorrectAnswer, q.OrderNum,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert questions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	quiz.QuestionCount = len(questions)
	return nil
}
