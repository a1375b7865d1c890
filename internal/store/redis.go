package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/config"
)

// DefaultRedisTTL bounds how long an abandoned draft stays in Redis.
const DefaultRedisTTL = 24 * time.Hour

// Redis keeps each draft as a hash of question ID to answer plus a cursor key,
// the same layout the exam server uses for autosaved answers.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis wraps an existing client. A non-positive ttl uses DefaultRedisTTL.
func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &Redis{rdb: rdb, ttl: ttl}
}

func (r *Redis) Save(ctx context.Context, attemptID string, snap Snapshot) error {
	draftKey := config.CacheKey.AttemptDraftKey(attemptID)
	cursorKey := config.CacheKey.AttemptCursorKey(attemptID)

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, draftKey)
		if len(snap.Answers) > 0 {
			fields := make(map[string]interface{}, len(snap.Answers))
			for qID, ans := range snap.Answers {
				fields[qID] = ans
			}
			pipe.HSet(ctx, draftKey, fields)
			pipe.Expire(ctx, draftKey, r.ttl)
		}
		pipe.Set(ctx, cursorKey, snap.CurrentQuestionIndex, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

func (r *Redis) Load(ctx context.Context, attemptID string) (Snapshot, error) {
	cursor, err := r.rdb.Get(ctx, config.CacheKey.AttemptCursorKey(attemptID)).Result()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load cursor: %w", err)
	}
	index, err := strconv.Atoi(cursor)
	if err != nil {
		return Snapshot{}, fmt.Errorf("invalid cursor format in redis: %w", err)
	}

	answers, err := r.rdb.HGetAll(ctx, config.CacheKey.AttemptDraftKey(attemptID)).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("load answers: %w", err)
	}
	return Snapshot{Answers: answers, CurrentQuestionIndex: index}, nil
}

func (r *Redis) Clear(ctx context.Context, attemptID string) error {
	err := r.rdb.Del(ctx,
		config.CacheKey.AttemptDraftKey(attemptID),
		config.CacheKey.AttemptCursorKey(attemptID),
	).Err()
	if err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}
