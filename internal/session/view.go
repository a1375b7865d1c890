package session

import (
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Warning is a pending strike notice the student has to acknowledge.
type Warning struct {
	Count  int
	Limit  int
	Reason string
	At     time.Time
}

// View is a read-only projection of the controller for presentation. It is
// the client's copy of the attempt: identity, status, deadline and strikes.
type View struct {
	State                State
	Status               model.AttemptStatus
	AttemptID            string
	QuizID               string
	Questions            model.QuestionSet
	Deadline             time.Time
	RemainingSeconds     int
	WarningCount         int
	StrikeLimit          int
	Warning              *Warning
	Violations           []model.ViolationRecord
	Answers              model.AnswerDraft
	CurrentQuestionIndex int
	Auto                 bool
	BlockedReason        string
	Result               *model.SubmissionResult
	// Transient holds a retry banner while the gateway is unreachable.
	Transient string
	Err       error
}

// Answered returns how many questions have a response.
func (v View) Answered() int {
	n := 0
	for _, q := range v.Questions {
		if _, ok := v.Answers[q.ID]; ok {
			n++
		}
	}
	return n
}
