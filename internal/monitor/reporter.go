// Package monitor forwards proctoring events to the live exam monitor.
// Reporting is best-effort: a failed report never affects the attempt.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
)

// EventType distinguishes monitor events.
type EventType string

const (
	EventViolation EventType = "violation"
	EventStarted   EventType = "started"
	EventSubmitted EventType = "submitted"
)

// Event is one monitor message.
type Event struct {
	Type         EventType `json:"type"`
	AttemptID    string    `json:"attempt_id"`
	QuizID       string    `json:"quiz_id"`
	Reason       string    `json:"reason,omitempty"`
	WarningCount int       `json:"warning_count"`
	Auto         bool      `json:"auto,omitempty"`
	Timestamp    int64     `json:"timestamp"`
}

// Reporter delivers monitor events.
type Reporter interface {
	Report(ctx context.Context, ev Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Report(context.Context, Event) error { return nil }

// RedisReporter queues violations for persistence and publishes every event
// on the quiz monitor channel.
type RedisReporter struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisReporter creates a RedisReporter.
func NewRedisReporter(rdb *redis.Client, log zerolog.Logger) *RedisReporter {
	return &RedisReporter{
		rdb: rdb,
		log: log.With().Str("component", "monitor_reporter").Logger(),
	}
}

func (r *RedisReporter) Report(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pipe := r.rdb.Pipeline()
	if ev.Type == EventViolation {
		pipe.RPush(ctx, config.WorkerKey.PersistViolationsQueue, payload)
	}
	pipe.Publish(ctx, config.CacheKey.QuizMonitorChannel(ev.QuizID), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("report %s: %w", ev.Type, err)
	}

	r.log.Debug().
		Str("type", string(ev.Type)).
		Str("attempt_id", ev.AttemptID).
		Msg("Event reported")
	return nil
}
