package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ViolationCounter reports how many violations were persisted per attempt.
type ViolationCounter interface {
	ViolationCounts(ctx context.Context, quizID uuid.UUID) (map[uuid.UUID]int64, error)
}

// MonitorService builds the proctor's view of a running quiz.
type MonitorService struct {
	attempts   AttemptRepository
	violations ViolationCounter
}

// NewMonitorService creates a new MonitorService. violations may be nil when
// no database is configured; counts are then reported as zero.
func NewMonitorService(attempts AttemptRepository, violations ViolationCounter) *MonitorService {
	return &MonitorService{attempts: attempts, violations: violations}
}

// AttemptProgress is one row of the monitor table.
type AttemptProgress struct {
	AttemptID      string              `json:"attempt_id"`
	StudentID      int                 `json:"student_id"`
	Status         model.AttemptStatus `json:"status"`
	StartedAt      time.Time           `json:"started_at"`
	Score          *float64            `json:"score,omitempty"`
	Auto           bool                `json:"auto"`
	BlockedReason  string              `json:"blocked_reason,omitempty"`
	ViolationCount int64               `json:"violation_count"`
}

// MonitorStats aggregates a snapshot.
type MonitorStats struct {
	TotalJoined     int   `json:"total_joined"`
	TotalInProgress int   `json:"total_in_progress"`
	TotalSubmitted  int   `json:"total_submitted"`
	TotalViolations int64 `json:"total_violations"`
}

// MonitorSnapshot is the full state of a quiz at one instant.
type MonitorSnapshot struct {
	Stats    MonitorStats      `json:"stats"`
	Attempts []AttemptProgress `json:"attempts"`
}

// Snapshot fetches attempts and violation counts concurrently.
func (s *MonitorService) Snapshot(ctx context.Context, quizID uuid.UUID) (*MonitorSnapshot, error) {
	var (
		attempts    []model.AttemptRecord
		counts      map[uuid.UUID]int64
		attemptsErr error
		countsErr   error
		wg          sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		attempts, attemptsErr = s.attempts.ListByQuiz(ctx, quizID)
	}()

	if s.violations != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			counts, countsErr = s.violations.ViolationCounts(ctx, quizID)
		}()
	}

	wg.Wait()

	// Attempts are critical; violation counts are best-effort.
	if attemptsErr != nil {
		return nil, attemptsErr
	}
	if countsErr != nil {
		counts = nil
	}

	snap := &MonitorSnapshot{Attempts: make([]AttemptProgress, 0, len(attempts))}
	for _, a := range attempts {
		p := AttemptProgress{
			AttemptID:      a.ID.String(),
			StudentID:      a.StudentID,
			Status:         a.Status,
			StartedAt:      a.StartedAt,
			Score:          a.Score,
			Auto:           a.Auto,
			BlockedReason:  a.BlockedReason,
			ViolationCount: counts[a.ID],
		}
		snap.Attempts = append(snap.Attempts, p)

		snap.Stats.TotalJoined++
		snap.Stats.TotalViolations += p.ViolationCount
		switch a.Status {
		case model.AttemptStatusInProgress:
			snap.Stats.TotalInProgress++
		case model.AttemptStatusSubmitted:
			snap.Stats.TotalSubmitted++
		}
	}
	return snap, nil
}
