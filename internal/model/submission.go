package model

import "time"

// ReasonTimeExpired is the blocking reason recorded for a timeout submission.
const ReasonTimeExpired = "time expired"

// Answer is one question/answer pair sent for grading.
type Answer struct {
	QuestionID string `json:"question_id" binding:"required"`
	Value      string `json:"value" binding:"required"`
}

// SubmitRequest is the payload of the single authoritative submit.
type SubmitRequest struct {
	AttemptID string   `json:"attempt_id"`
	Answers   []Answer `json:"answers" binding:"dive"`
	Auto      bool     `json:"auto"`
	Reason    string   `json:"reason,omitempty" binding:"max=200"`
}

// AutosaveRequest mirrors the whole in-progress draft to the server. It is
// advisory: the submit carries the answers that are graded.
type AutosaveRequest struct {
	AttemptID string   `json:"attempt_id"`
	Answers   []Answer `json:"answers" binding:"dive"`
}

// QuestionResult is the graded outcome of one question.
type QuestionResult struct {
	QuestionID string `json:"question_id"`
	Correct    bool   `json:"correct"`
}

// SubmissionResult is the graded outcome of an attempt, produced by the server.
type SubmissionResult struct {
	AttemptID     string           `json:"attempt_id"`
	Score         float64          `json:"score"`
	Correct       int              `json:"correct"`
	Total         int              `json:"total"`
	Questions     []QuestionResult `json:"questions"`
	BlockedReason string           `json:"blocked_reason,omitempty"`
	SubmittedAt   time.Time        `json:"submitted_at"`
}
