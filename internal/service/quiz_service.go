package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// Quiz authoring errors.
var (
	ErrMissingOptions     = errors.New("single-choice question needs at least two options")
	ErrDuplicateOption    = errors.New("option IDs must be unique within a question")
	ErrCorrectNotAnOption = errors.New("correct answer must be one of the option IDs")
	ErrUnexpectedOptions  = errors.New("free-text question must not have options")
)

// QuizRepository persists quizzes and their answer keys.
type QuizRepository interface {
	QuizReader
	Create(ctx context.Context, quiz *model.Quiz, questions []model.QuizQuestion) error
}

// QuizService handles quiz authoring for proctors.
type QuizService struct {
	quizRepo QuizRepository
	log      zerolog.Logger
}

// NewQuizService creates a new QuizService.
func NewQuizService(quizRepo QuizRepository, log zerolog.Logger) *QuizService {
	return &QuizService{
		quizRepo: quizRepo,
		log:      log.With().Str("component", "quiz_service").Logger(),
	}
}

// Create validates the question set and stores a new quiz. Question IDs are
// assigned in order as q1, q2 and so on.
func (s *QuizService) Create(ctx context.Context, req model.CreateQuizRequest) (*model.Quiz, error) {
	questions := make([]model.QuizQuestion, 0, len(req.Questions))
	for i, q := range req.Questions {
		if err := validateQuestion(q); err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
		questions = append(questions, model.QuizQuestion{
			Question: model.Question{
				ID:           fmt.Sprintf("q%d", i+1),
				QuestionText: q.QuestionText,
				QuestionType: q.QuestionType,
				Options:      q.Options,
				OrderNum:     i + 1,
			},
			CorrectAnswer: q.CorrectAnswer,
		})
	}

	quiz := &model.Quiz{
		ID:              uuid.New(),
		Title:           req.Title,
		DurationSeconds: req.DurationSeconds,
		Status:          model.QuizStatusDraft,
	}
	if req.Publish {
		quiz.Status = model.QuizStatusPublished
	}

	if err := s.quizRepo.Create(ctx, quiz, questions); err != nil {
		return nil, fmt.Errorf("create quiz: %w", err)
	}

	s.log.Info().
		Str("quiz_id", quiz.ID.String()).
		Int("questions", len(questions)).
		Str("status", string(quiz.Status)).
		Msg("Quiz created")
	return quiz, nil
}

// GetByID returns a quiz.
func (s *QuizService) GetByID(ctx context.Context, id uuid.UUID) (*model.Quiz, error) {
	quiz, err := s.quizRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrQuizNotFound
	}
	return quiz, err
}

// Questions returns the quiz's questions including the answer key.
func (s *QuizService) Questions(ctx context.Context, id uuid.UUID) ([]model.QuizQuestion, error) {
	return s.quizRepo.ListQuestions(ctx, id)
}

func validateQuestion(q model.CreateQuestionRequest) error {
	if q.QuestionType == model.QuestionTypeFreeText {
		if len(q.Options) > 0 {
			return ErrUnexpectedOptions
		}
		return nil
	}

	if len(q.Options) < 2 {
		return ErrMissingOptions
	}
	seen := make(map[string]bool, len(q.Options))
	for _, o := range q.Options {
		if seen[o.ID] {
			return ErrDuplicateOption
		}
		seen[o.ID] = true
	}
	if !seen[q.CorrectAnswer] {
		return ErrCorrectNotAnOption
	}
	return nil
}
