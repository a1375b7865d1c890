package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptRecord is the server's authoritative copy of an attempt.
type AttemptRecord struct {
	ID            uuid.UUID     `json:"id"`
	QuizID        uuid.UUID     `json:"quiz_id"`
	StudentID     int           `json:"student_id"`
	StartedAt     time.Time     `json:"started_at"`
	Deadline      time.Time     `json:"deadline"`
	FinishedAt    *time.Time    `json:"finished_at,omitempty"`
	Status        AttemptStatus `json:"status"`
	Score         *float64      `json:"score,omitempty"`
	Correct       int           `json:"correct"`
	Auto          bool          `json:"auto"`
	BlockedReason string        `json:"blocked_reason,omitempty"`
	Answers       []Answer      `json:"answers,omitempty"`
}

// Submitted reports whether the attempt has been graded.
func (a *AttemptRecord) Submitted() bool {
	return a.Status == AttemptStatusSubmitted
}
