package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/clock"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/monitor"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// Attempt errors. Handlers map each one to a response code.
var (
	ErrQuizNotFound     = errors.New("quiz not found")
	ErrQuizNotAvailable = errors.New("quiz is not available")
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	ErrAttemptExpired   = errors.New("attempt expired")
	ErrUnknownQuestion  = errors.New("answer refers to an unknown question")
)

// DefaultSubmitGrace is how long after the deadline a submission is still accepted.
const DefaultSubmitGrace = 2 * time.Minute

// QuizReader is the quiz lookup the attempt service needs.
type QuizReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Quiz, error)
	ListQuestions(ctx context.Context, quizID uuid.UUID) ([]model.QuizQuestion, error)
}

// AttemptRepository persists attempts.
type AttemptRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.AttemptRecord, error)
	GetByQuizAndStudent(ctx context.Context, quizID uuid.UUID, studentID int) (*model.AttemptRecord, error)
	Create(ctx context.Context, a *model.AttemptRecord) (bool, error)
	SaveAnswers(ctx context.Context, id uuid.UUID, answers []model.Answer) (bool, error)
	Complete(ctx context.Context, a *model.AttemptRecord) (bool, error)
	ListByQuiz(ctx context.Context, quizID uuid.UUID) ([]model.AttemptRecord, error)
}

// AttemptService is the authoritative side of an attempt: it owns the
// deadline, grades submissions and applies each one at most once.
type AttemptService struct {
	quizzes  QuizReader
	attempts AttemptRepository
	reporter monitor.Reporter
	grace    time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(quizzes QuizReader, attempts AttemptRepository, reporter monitor.Reporter, grace time.Duration, log zerolog.Logger) *AttemptService {
	if reporter == nil {
		reporter = monitor.Nop{}
	}
	if grace < 0 {
		grace = 0
	}
	return &AttemptService{
		quizzes:  quizzes,
		attempts: attempts,
		reporter: reporter,
		grace:    grace,
		now:      time.Now,
		log:      log.With().Str("component", "attempt_service").Logger(),
	}
}

// StartOrResume creates the student's attempt or returns the running one.
// Seconds is the full duration for a new attempt and what is left of it for
// a resumed one; the deadline never moves.
func (s *AttemptService) StartOrResume(ctx context.Context, quizID uuid.UUID, studentID int) (*model.AttemptSession, error) {
	quiz, err := s.quizzes.GetByID(ctx, quizID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("get quiz: %w", err)
	}
	if quiz.Status != model.QuizStatusPublished {
		return nil, ErrQuizNotAvailable
	}

	questions, err := s.quizzes.ListQuestions(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	existing, err := s.attempts.GetByQuizAndStudent(ctx, quizID, studentID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check existing attempt: %w", err)
	}
	if existing != nil {
		return s.resume(existing, questions)
	}

	now := s.now()
	attempt := &model.AttemptRecord{
		ID:        uuid.New(),
		QuizID:    quizID,
		StudentID: studentID,
		StartedAt: now,
		Deadline:  now.Add(time.Duration(quiz.DurationSeconds) * time.Second),
	}
	created, err := s.attempts.Create(ctx, attempt)
	if err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	if !created {
		// Concurrent start from another device won the insert.
		existing, err := s.attempts.GetByQuizAndStudent(ctx, quizID, studentID)
		if err != nil {
			return nil, fmt.Errorf("concurrent start detected, but fetch failed: %w", err)
		}
		return s.resume(existing, questions)
	}

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("quiz_id", quizID.String()).
		Int("student_id", studentID).
		Msg("Attempt started")
	metrics.AttemptsStarted.WithLabelValues("fresh").Inc()
	s.report(monitor.Event{
		Type:      monitor.EventStarted,
		AttemptID: attempt.ID.String(),
		QuizID:    quizID.String(),
		Timestamp: now.Unix(),
	})

	return &model.AttemptSession{
		AttemptID: attempt.ID.String(),
		QuizID:    quizID.String(),
		Questions: studentQuestions(questions),
		Seconds:   quiz.DurationSeconds,
	}, nil
}

func (s *AttemptService) resume(a *model.AttemptRecord, questions []model.QuizQuestion) (*model.AttemptSession, error) {
	if a.Submitted() {
		return nil, ErrAlreadySubmitted
	}
	now := s.now()
	if now.After(a.Deadline.Add(s.grace)) {
		return nil, ErrAttemptExpired
	}

	var autosaved map[string]string
	if len(a.Answers) > 0 {
		autosaved = make(map[string]string, len(a.Answers))
		for _, ans := range a.Answers {
			autosaved[ans.QuestionID] = ans.Value
		}
	}

	metrics.AttemptsStarted.WithLabelValues("resume").Inc()
	return &model.AttemptSession{
		AttemptID:        a.ID.String(),
		QuizID:           a.QuizID.String(),
		Questions:        studentQuestions(questions),
		Seconds:          clock.Remaining(a.Deadline, now),
		IsResume:         true,
		AutosavedAnswers: autosaved,
	}, nil
}

// Autosave replaces the saved draft of a running attempt. The draft is not
// graded; a resume hands it back so another device can continue.
func (s *AttemptService) Autosave(ctx context.Context, attemptID uuid.UUID, studentID int, answers []model.Answer) error {
	attempt, err := s.ownAttempt(ctx, attemptID, studentID)
	if err != nil {
		return err
	}
	if attempt.Submitted() {
		return ErrAlreadySubmitted
	}
	if s.now().After(attempt.Deadline.Add(s.grace)) {
		return ErrAttemptExpired
	}
	if err := s.checkQuestions(ctx, attempt.QuizID, answers); err != nil {
		return err
	}

	saved, err := s.attempts.SaveAnswers(ctx, attemptID, answers)
	if err != nil {
		return fmt.Errorf("save answers: %w", err)
	}
	if !saved {
		// Submitted between the read and the write.
		return ErrAlreadySubmitted
	}
	metrics.DraftsSaved.Inc()
	s.log.Debug().
		Str("attempt_id", attemptID.String()).
		Int("answers", len(answers)).
		Msg("Draft autosaved")
	return nil
}

// Submit grades and closes the attempt. A second submit for the same attempt
// gets ErrAlreadySubmitted, so clients may retry safely.
func (s *AttemptService) Submit(ctx context.Context, attemptID uuid.UUID, studentID int, req model.SubmitRequest) (*model.SubmissionResult, error) {
	attempt, err := s.ownAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if attempt.Submitted() {
		return nil, rejectSubmit("already_submitted", ErrAlreadySubmitted)
	}
	now := s.now()
	if now.After(attempt.Deadline.Add(s.grace)) {
		return nil, rejectSubmit("expired", ErrAttemptExpired)
	}

	questions, err := s.quizzes.ListQuestions(ctx, attempt.QuizID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if !knownQuestions(questions, req.Answers) {
		return nil, rejectSubmit("unknown_question", ErrUnknownQuestion)
	}

	score, correct, results := Grade(questions, req.Answers)
	attempt.FinishedAt = &now
	attempt.Score = &score
	attempt.Correct = correct
	attempt.Auto = req.Auto
	attempt.BlockedReason = req.Reason
	attempt.Answers = req.Answers

	applied, err := s.attempts.Complete(ctx, attempt)
	if err != nil {
		return nil, fmt.Errorf("complete attempt: %w", err)
	}
	if !applied {
		return nil, rejectSubmit("already_submitted", ErrAlreadySubmitted)
	}
	metrics.AttemptsGraded.WithLabelValues(strconv.FormatBool(req.Auto)).Inc()

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Int("student_id", studentID).
		Float64("score", score).
		Int("correct", correct).
		Int("total", len(questions)).
		Bool("auto", req.Auto).
		Str("reason", req.Reason).
		Msg("Attempt submitted and graded")
	s.report(monitor.Event{
		Type:      monitor.EventSubmitted,
		AttemptID: attemptID.String(),
		QuizID:    attempt.QuizID.String(),
		Reason:    req.Reason,
		Auto:      req.Auto,
		Timestamp: now.Unix(),
	})

	return &model.SubmissionResult{
		AttemptID:     attemptID.String(),
		Score:         score,
		Correct:       correct,
		Total:         len(questions),
		Questions:     results,
		BlockedReason: req.Reason,
		SubmittedAt:   now,
	}, nil
}

// ListResults returns every attempt at a quiz.
func (s *AttemptService) ListResults(ctx context.Context, quizID uuid.UUID) ([]model.AttemptRecord, error) {
	return s.attempts.ListByQuiz(ctx, quizID)
}

// ownAttempt loads an attempt of studentID. Someone else's attempt looks the
// same as a missing one.
func (s *AttemptService) ownAttempt(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.AttemptRecord, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.StudentID != studentID {
		return nil, ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *AttemptService) checkQuestions(ctx context.Context, quizID uuid.UUID, answers []model.Answer) error {
	questions, err := s.quizzes.ListQuestions(ctx, quizID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if !knownQuestions(questions, answers) {
		return ErrUnknownQuestion
	}
	return nil
}

func knownQuestions(questions []model.QuizQuestion, answers []model.Answer) bool {
	known := make(map[string]bool, len(questions))
	for _, q := range questions {
		known[q.ID] = true
	}
	for _, a := range answers {
		if !known[a.QuestionID] {
			return false
		}
	}
	return true
}

func rejectSubmit(reason string, err error) error {
	metrics.SubmitRejected.WithLabelValues(reason).Inc()
	return err
}

func (s *AttemptService) report(ev monitor.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.reporter.Report(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("type", string(ev.Type)).Msg("Monitor publish failed")
	}
}

// studentQuestions strips the answer key.
func studentQuestions(questions []model.QuizQuestion) model.QuestionSet {
	out := make(model.QuestionSet, len(questions))
	for i, q := range questions {
		out[i] = q.Question
	}
	return out
}
