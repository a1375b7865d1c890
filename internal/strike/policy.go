// Package strike maps violation events to an escalating warning count.
package strike

import (
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// DefaultLimit is the strike count that disqualifies an attempt.
const DefaultLimit = 3

// Outcome is the result of recording one violation.
type Outcome int

const (
	// Ignored means the policy had already been exceeded.
	Ignored Outcome = iota
	// Warned is a recoverable warning.
	Warned
	// Exceeded is the one-time disqualification edge.
	Exceeded
)

func (o Outcome) String() string {
	switch o {
	case Warned:
		return "warned"
	case Exceeded:
		return "exceeded"
	default:
		return "ignored"
	}
}

// Policy counts violations up to a limit. It is not safe for concurrent use;
// the session controller serialises access.
type Policy struct {
	limit   int
	records []model.ViolationRecord
}

// NewPolicy creates a policy. A non-positive limit falls back to DefaultLimit.
func NewPolicy(limit int) *Policy {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Policy{limit: limit}
}

// Record registers a violation and returns the resulting outcome with the new count.
func (p *Policy) Record(reason string, at time.Time) (Outcome, int) {
	if p.Exceeded() {
		return Ignored, len(p.records)
	}
	p.records = append(p.records, model.ViolationRecord{Reason: reason, At: at})
	if len(p.records) >= p.limit {
		return Exceeded, len(p.records)
	}
	return Warned, len(p.records)
}

// Count returns the current warning count.
func (p *Policy) Count() int { return len(p.records) }

// Limit returns the configured strike limit.
func (p *Policy) Limit() int { return p.limit }

// Exceeded reports whether the policy is frozen.
func (p *Policy) Exceeded() bool { return len(p.records) >= p.limit }

// Records returns a copy of the violation record.
func (p *Policy) Records() []model.ViolationRecord {
	out := make([]model.ViolationRecord, len(p.records))
	copy(out, p.records)
	return out
}
