package model

import "time"

// Signal is a raw host event that may indicate the student left the exam.
type Signal string

const (
	SignalFocusLost        Signal = "FOCUS_LOST"
	SignalVisibilityHidden Signal = "VISIBILITY_HIDDEN"
)

// Reason returns the student-facing violation reason for a raw signal.
func (s Signal) Reason() string {
	switch s {
	case SignalFocusLost:
		return "window lost focus"
	case SignalVisibilityHidden:
		return "app or tab switched"
	default:
		return "suspicious activity"
	}
}

// ViolationRecord is one detected integrity violation.
type ViolationRecord struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}
