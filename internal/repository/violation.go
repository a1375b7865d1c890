package repository

import (
	"time"

	"github.com/google/uuid"
)

// ViolationRow is one row of attempt_violations.
type ViolationRow struct {
	AttemptID    uuid.UUID
	QuizID       uuid.UUID
	Reason       string
	WarningCount int
	RecordedAt   time.Time
}

// ViolationColumns lists the attempt_violations columns in insert order.
var ViolationColumns = []string{"attempt_id", "quiz_id", "reason", "warning_count", "recorded_at"}

// Values returns the row in ViolationColumns order.
func (v ViolationRow) Values() []any {
	return []any{v.AttemptID, v.QuizID, v.Reason, v.WarningCount, v.RecordedAt}
}
