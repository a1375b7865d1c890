package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// MemoryQuizRepository keeps quizzes in process memory. It backs the dev
// server when no DATABASE_URL is configured.
type MemoryQuizRepository struct {
	mu        sync.RWMutex
	quizzes   map[uuid.UUID]model.Quiz
	questions map[uuid.UUID][]model.QuizQuestion
}

// NewMemoryQuizRepository creates an empty MemoryQuizRepository.
func NewMemoryQuizRepository() *MemoryQuizRepository {
	return &MemoryQuizRepository{
		quizzes:   make(map[uuid.UUID]model.Quiz),
		questions: make(map[uuid.UUID][]model.QuizQuestion),
	}
}

func (r *MemoryQuizRepository) GetByID(_ context.Context, id uuid.UUID) (*model.Quiz, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.quizzes[id]
	if !ok {
		return nil, ErrNotFound
	}
	q.QuestionCount = len(r.questions[id])
	return &q, nil
}

func (r *MemoryQuizRepository) ListQuestions(_ context.Context, quizID uuid.UUID) ([]model.QuizQuestion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.QuizQuestion, len(r.questions[quizID]))
	copy(out, r.questions[quizID])
	return out, nil
}

func (r *MemoryQuizRepository) Create(_ context.Context, quiz *model.Quiz, questions []model.QuizQuestion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	quiz.CreatedAt = time.Now()
	quiz.QuestionCount = len(questions)
	qs := make([]model.QuizQuestion, len(questions))
	copy(qs, questions)
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].OrderNum < qs[j].OrderNum })
	r.quizzes[quiz.ID] = *quiz
	r.questions[quiz.ID] = qs
	return nil
}

type attemptKey struct {
	quizID    uuid.UUID
	studentID int
}

// MemoryAttemptRepository keeps attempts in process memory.
type MemoryAttemptRepository struct {
	mu        sync.RWMutex
	attempts  map[uuid.UUID]model.AttemptRecord
	byStudent map[attemptKey]uuid.UUID
}

// NewMemoryAttemptRepository creates an empty MemoryAttemptRepository.
func NewMemoryAttemptRepository() *MemoryAttemptRepository {
	return &MemoryAttemptRepository{
		attempts:  make(map[uuid.UUID]model.AttemptRecord),
		byStudent: make(map[attemptKey]uuid.UUID),
	}
}

func (r *MemoryAttemptRepository) GetByID(_ context.Context, id uuid.UUID) (*model.AttemptRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.attempts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (r *MemoryAttemptRepository) GetByQuizAndStudent(_ context.Context, quizID uuid.UUID, studentID int) (*model.AttemptRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byStudent[attemptKey{quizID, studentID}]
	if !ok {
		return nil, ErrNotFound
	}
	a := r.attempts[id]
	return &a, nil
}

func (r *MemoryAttemptRepository) Create(_ context.Context, a *model.AttemptRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := attemptKey{a.QuizID, a.StudentID}
	if _, exists := r.byStudent[key]; exists {
		return false, nil
	}
	a.Status = model.AttemptStatusInProgress
	r.attempts[a.ID] = *a
	r.byStudent[key] = a.ID
	return true, nil
}

func (r *MemoryAttemptRepository) SaveAnswers(_ context.Context, id uuid.UUID, answers []model.Answer) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.attempts[id]
	if !ok || cur.Status != model.AttemptStatusInProgress {
		return false, nil
	}
	cur.Answers = append([]model.Answer(nil), answers...)
	r.attempts[id] = cur
	return true, nil
}

func (r *MemoryAttemptRepository) Complete(_ context.Context, a *model.AttemptRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.attempts[a.ID]
	if !ok || cur.Status != model.AttemptStatusInProgress {
		return false, nil
	}
	done := *a
	done.Status = model.AttemptStatusSubmitted
	done.Answers = append([]model.Answer(nil), a.Answers...)
	r.attempts[a.ID] = done
	return true, nil
}

func (r *MemoryAttemptRepository) ListByQuiz(_ context.Context, quizID uuid.UUID) ([]model.AttemptRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.AttemptRecord
	for _, a := range r.attempts {
		if a.QuizID == quizID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}
