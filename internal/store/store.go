// Package store persists in-progress answer drafts so an attempt can be
// repopulated after a restart. It is advisory: the server stays authoritative.
package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned by Load when no snapshot exists for the attempt.
var ErrNotFound = errors.New("store: snapshot not found")

// Snapshot is the persisted state of one attempt.
type Snapshot struct {
	Answers              map[string]string `json:"answers"`
	CurrentQuestionIndex int               `json:"current_question_index"`
	SavedAt              time.Time         `json:"saved_at"`
}

// Store is durable local persistence keyed by attempt ID.
type Store interface {
	Save(ctx context.Context, attemptID string, snap Snapshot) error
	Load(ctx context.Context, attemptID string) (Snapshot, error)
	Clear(ctx context.Context, attemptID string) error
}

// Memory is an in-process Store.
type Memory struct {
	mu    sync.Mutex
	items map[string]Snapshot
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]Snapshot)}
}

func (m *Memory) Save(ctx context.Context, attemptID string, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[attemptID] = cloneSnapshot(snap)
	return nil
}

func (m *Memory) Load(ctx context.Context, attemptID string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.items[attemptID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return cloneSnapshot(snap), nil
}

func (m *Memory) Clear(ctx context.Context, attemptID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, attemptID)
	return nil
}

func cloneSnapshot(s Snapshot) Snapshot {
	answers := make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		answers[k] = v
	}
	s.Answers = answers
	return s
}
