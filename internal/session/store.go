package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSnapshotNotFound is returned when no live snapshot exists for a key.
var ErrSnapshotNotFound = errors.New("session snapshot not found")

// Store persists editor snapshots keyed by assessment, question and user.
type Store interface {
	Get(ctx context.Context, key Key) (Snapshot, error)
	Put(ctx context.Context, key Key, snapshot Snapshot) error
	Delete(ctx context.Context, key Key) error
	// ListAssessment returns every snapshot of the user within the assessment, keyed by question id.
	ListAssessment(ctx context.Context, assessmentID, userID uint) (map[uint]Snapshot, error)
	// DeleteAssessment removes every snapshot of the user within the assessment.
	DeleteAssessment(ctx context.Context, assessmentID, userID uint) (int, error)
}

const scanBatch = 100

// RedisStore keeps snapshots as JSON strings with a TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore constructs a Redis backed store. A non-positive ttl uses DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// TTL returns the snapshot lifetime.
func (s *RedisStore) TTL() time.Duration {
	return s.ttl
}

func (s *RedisStore) Get(ctx context.Context, key Key) (Snapshot, error) {
	raw, err := s.client.Get(ctx, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrSnapshotNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return snapshot, nil
}

// Put writes the snapshot and refreshes its TTL. The remaining TTL is derived from
// the session start so a restored session never outlives its original window.
func (s *RedisStore) Put(ctx context.Context, key Key, snapshot Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	ttl := s.ttl
	if !snapshot.SessionStartTime.IsZero() {
		ttl = s.ttl - time.Since(snapshot.SessionStartTime)
		if ttl <= 0 {
			return s.Delete(ctx, key)
		}
	}

	if err := s.client.Set(ctx, key.String(), payload, ttl).Err(); err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := s.client.Del(ctx, key.String()).Err(); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) ListAssessment(ctx context.Context, assessmentID, userID uint) (map[uint]Snapshot, error) {
	keys, err := s.scan(ctx, assessmentID, userID)
	if err != nil {
		return nil, err
	}

	snapshots := make(map[uint]Snapshot, len(keys))
	for _, raw := range keys {
		key, ok := ParseKey(raw)
		if !ok {
			continue
		}
		snapshot, err := s.Get(ctx, key)
		if errors.Is(err, ErrSnapshotNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		snapshots[key.QuestionID] = snapshot
	}
	return snapshots, nil
}

func (s *RedisStore) DeleteAssessment(ctx context.Context, assessmentID, userID uint) (int, error) {
	keys, err := s.scan(ctx, assessmentID, userID)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	removed, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("delete assessment snapshots: %w", err)
	}
	return int(removed), nil
}

func (s *RedisStore) scan(ctx context.Context, assessmentID, userID uint) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	pattern := assessmentPattern(assessmentID, userID)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("scan snapshots: %w", err)
		}
		for _, raw := range batch {
			if key, ok := ParseKey(raw); ok && key.AssessmentID == assessmentID && key.UserID == userID {
				keys = append(keys, raw)
			}
		}
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}
