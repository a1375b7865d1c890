package model

import (
	"time"

	"github.com/google/uuid"
)

// QuizStatus enumerates the possible states of a quiz.
type QuizStatus string

const (
	QuizStatusDraft     QuizStatus = "DRAFT"
	QuizStatusPublished QuizStatus = "PUBLISHED"
	QuizStatusClosed    QuizStatus = "CLOSED"
)

// Quiz represents a quiz entity.
type Quiz struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	DurationSeconds int        `json:"duration_seconds"`
	Status          QuizStatus `json:"status"`
	QuestionCount   int        `json:"question_count"`
	CreatedAt       time.Time  `json:"created_at"`
}

// QuizQuestion is a question with its answer key. It never leaves the server.
type QuizQuestion struct {
	Question
	CorrectAnswer string `json:"-"`
}

// CreateQuizRequest is the payload for creating a new quiz.
type CreateQuizRequest struct {
	Title           string                  `json:"title" binding:"required,min=3,max=255"`
	DurationSeconds int                     `json:"duration_seconds" binding:"required,min=30,max=28800"`
	Publish         bool                    `json:"publish"`
	Questions       []CreateQuestionRequest `json:"questions" binding:"required,min=1,dive"`
}

// CreateQuestionRequest is one question of a CreateQuizRequest.
type CreateQuestionRequest struct {
	QuestionText  string       `json:"question_text" binding:"required"`
	QuestionType  QuestionType `json:"question_type" binding:"required,oneof=SINGLE_CHOICE FREE_TEXT"`
	Options       []Option     `json:"options" binding:"omitempty,dive"`
	CorrectAnswer string       `json:"correct_answer" binding:"required"`
}
