package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/monitor"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

type memorySink struct {
	mu       sync.Mutex
	copyErr  error
	copied   []repository.ViolationRow
	inserted []repository.ViolationRow
}

func (s *memorySink) CopyViolations(_ context.Context, rows []repository.ViolationRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.copyErr != nil {
		return s.copyErr
	}
	s.copied = append(s.copied, rows...)
	return nil
}

func (s *memorySink) InsertViolation(_ context.Context, row repository.ViolationRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, row)
	return nil
}

func (s *memorySink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.copied) + len(s.inserted)
}

func violation(attemptID, quizID string) *monitor.Event {
	return &monitor.Event{
		Type:         monitor.EventViolation,
		AttemptID:    attemptID,
		QuizID:       quizID,
		Reason:       "window lost focus",
		WarningCount: 1,
		Timestamp:    time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC).Unix(),
	}
}

func TestFlushUsesBulkPath(t *testing.T) {
	sink := &memorySink{}
	w := NewViolationWorker(sink, nil, zerolog.Nop())

	quiz := uuid.NewString()
	w.flushSafe(context.Background(), []*monitor.Event{
		violation(uuid.NewString(), quiz),
		violation(uuid.NewString(), quiz),
	})

	if len(sink.copied) != 2 || len(sink.inserted) != 0 {
		t.Fatalf("copied=%d inserted=%d, want 2 and 0", len(sink.copied), len(sink.inserted))
	}
	if sink.copied[0].Reason != "window lost focus" || sink.copied[0].RecordedAt.Unix() != violation("", "").Timestamp {
		t.Fatalf("row = %+v", sink.copied[0])
	}
}

func TestFlushDropsInvalidRowsAndKeepsTheRest(t *testing.T) {
	sink := &memorySink{}
	w := NewViolationWorker(sink, nil, zerolog.Nop())

	quiz := uuid.NewString()
	w.flushSafe(context.Background(), []*monitor.Event{
		violation(uuid.NewString(), quiz),
		violation("not-a-uuid", quiz),
		violation(uuid.NewString(), quiz),
	})

	if len(sink.copied) != 0 || len(sink.inserted) != 2 {
		t.Fatalf("copied=%d inserted=%d, want 0 and 2", len(sink.copied), len(sink.inserted))
	}
}

func TestFlushFallsBackWhenCopyFails(t *testing.T) {
	sink := &memorySink{copyErr: errors.New("copy unsupported")}
	w := NewViolationWorker(sink, nil, zerolog.Nop())

	w.flushSafe(context.Background(), []*monitor.Event{violation(uuid.NewString(), uuid.NewString())})
	if len(sink.inserted) != 1 {
		t.Fatalf("inserted=%d, want 1", len(sink.inserted))
	}
}

func TestWorkerDrainsQueue(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quiz := uuid.NewString()
	for i := 0; i < 3; i++ {
		data, _ := json.Marshal(violation(uuid.NewString(), quiz))
		if err := rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data).Err(); err != nil {
			t.Fatalf("rpush: %v", err)
		}
	}

	sink := &memorySink{}
	w := NewViolationWorker(sink, rdb, zerolog.Nop())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(10 * time.Second)
	for sink.total() < 3 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	cancel()
	<-done

	if got := sink.total(); got < 3 {
		t.Fatalf("persisted %d violations, want at least 3", got)
	}
}
