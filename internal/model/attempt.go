package model

// AttemptStatus enumerates the lifecycle states of an attempt.
type AttemptStatus string

const (
	AttemptStatusNotStarted AttemptStatus = "NOT_STARTED"
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusSubmitting AttemptStatus = "SUBMITTING"
	AttemptStatusSubmitted  AttemptStatus = "SUBMITTED"
	AttemptStatusBlocked    AttemptStatus = "BLOCKED"
)

// AttemptSession is the server's answer to a start-or-resume call.
// Seconds is the full duration for a fresh attempt and the remaining
// time for a resumed one.
type AttemptSession struct {
	AttemptID        string            `json:"attempt_id"`
	QuizID           string            `json:"quiz_id"`
	Questions        QuestionSet       `json:"questions"`
	Seconds          int               `json:"seconds"`
	IsResume         bool              `json:"is_resume"`
	AutosavedAnswers map[string]string `json:"autosaved_answers,omitempty"`
}

// AnswerDraft maps question IDs to the student's current response.
// A missing key means the question is unanswered.
type AnswerDraft map[string]string

// Clone returns an independent copy of the draft.
func (d AnswerDraft) Clone() AnswerDraft {
	out := make(AnswerDraft, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
