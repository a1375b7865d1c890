package session

import (
	"errors"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// State is the controller's position in the attempt lifecycle.
type State string

const (
	StateIdle               State = "IDLE"
	StateStarting           State = "STARTING"
	StateInProgress         State = "IN_PROGRESS"
	StateAwaitingWarningAck State = "AWAITING_WARNING_ACK"
	StateBlocked            State = "BLOCKED"
	StateSubmitting         State = "SUBMITTING"
	StateSubmitted          State = "SUBMITTED"
	StateAlreadySubmitted   State = "ALREADY_SUBMITTED"
	StateAborted            State = "ABORTED"
)

// Active reports whether the attempt accepts answers.
func (s State) Active() bool {
	return s == StateInProgress || s == StateAwaitingWarningAck
}

// Terminal reports whether the controller will never change state again.
func (s State) Terminal() bool {
	switch s {
	case StateSubmitted, StateAlreadySubmitted, StateAborted:
		return true
	}
	return false
}

// Status maps the controller state onto the attempt status.
func (s State) Status() model.AttemptStatus {
	switch s {
	case StateInProgress, StateAwaitingWarningAck:
		return model.AttemptStatusInProgress
	case StateBlocked:
		return model.AttemptStatusBlocked
	case StateSubmitting:
		return model.AttemptStatusSubmitting
	case StateSubmitted, StateAlreadySubmitted:
		return model.AttemptStatusSubmitted
	default:
		return model.AttemptStatusNotStarted
	}
}

var (
	ErrNotActive       = errors.New("session: attempt is not in progress")
	ErrAlreadyStarted  = errors.New("session: attempt already started")
	ErrUnknownQuestion = errors.New("session: unknown question")
	ErrInvalidOption   = errors.New("session: value is not an option of the question")
	ErrInvalidIndex    = errors.New("session: question index out of range")
	ErrNoWarning       = errors.New("session: no warning to acknowledge")
	ErrClosed          = errors.New("session: controller closed")
)

// Trigger names what initiated a submission.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerTimeout   Trigger = "timeout"
	TriggerViolation Trigger = "violation"
)
