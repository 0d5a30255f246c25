package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrNotFound     = errors.New("idempotency key not found")
	ErrHashMismatch = errors.New("idempotency key body mismatch")
	ErrInProgress   = errors.New("idempotency key in progress")
)

const redisKeyPrefix = "idempotency"

// Record is a completed response replayed for retries of the same request.
type Record struct {
	Key         string
	RequestHash string
	Status      int
	Body        []byte
	ContentType string
}

// Store keeps one redis entry per idempotency key. A reservation is an
// entry without a response yet; Finalize overwrites it in place. Entries
// expire after the configured TTL in either state, so an abandoned
// reservation unblocks retries on its own.
type Store struct {
	redis redis.Cmdable
	ttl   time.Duration
}

func NewStore(rdb redis.Cmdable, ttl time.Duration) *Store {
	return &Store{redis: rdb, ttl: ttl}
}

type entry struct {
	Key         string `json:"key"`
	Hash        string `json:"hash"`
	InProgress  bool   `json:"in_progress"`
	Status      int    `json:"status"`
	Body        []byte `json:"body"`
	ContentType string `json:"content_type"`
}

// Lookup returns the stored response for key. ErrNotFound means the key was
// never reserved, ErrInProgress that the first request has not finished, and
// ErrHashMismatch that the retry carries a different method, path or body.
func (s *Store) Lookup(ctx context.Context, key, requestHash string) (*Record, error) {
	val, err := s.redis.Get(ctx, redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}

	var e entry
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		return nil, fmt.Errorf("decode idempotency entry: %w", err)
	}
	if e.Hash != requestHash {
		return nil, ErrHashMismatch
	}
	if e.InProgress {
		return nil, ErrInProgress
	}
	return &Record{
		Key:         e.Key,
		RequestHash: e.Hash,
		Status:      e.Status,
		Body:        e.Body,
		ContentType: e.ContentType,
	}, nil
}

// Reserve claims key for the current request. It returns false when another
// request already holds the key, finished or not.
func (s *Store) Reserve(ctx context.Context, key, requestHash string) (bool, error) {
	payload, err := json.Marshal(entry{Key: key, Hash: requestHash, InProgress: true})
	if err != nil {
		return false, fmt.Errorf("encode idempotency entry: %w", err)
	}
	ok, err := s.redis.SetNX(ctx, redisKey(key), payload, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return ok, nil
}

// Finalize stores the finished response under key, replacing the reservation.
func (s *Store) Finalize(ctx context.Context, key, requestHash string, status int, body []byte, contentType string) (*Record, error) {
	e := entry{
		Key:         key,
		Hash:        requestHash,
		Status:      status,
		Body:        body,
		ContentType: contentType,
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode idempotency entry: %w", err)
	}
	if err := s.redis.Set(ctx, redisKey(key), payload, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("finalize idempotency key: %w", err)
	}
	return &Record{
		Key:         e.Key,
		RequestHash: e.Hash,
		Status:      e.Status,
		Body:        e.Body,
		ContentType: e.ContentType,
	}, nil
}

// Release drops a reservation so a later retry can run the operation again.
// Used when the guarded handler never produced a replayable response.
func (s *Store) Release(ctx context.Context, key string) {
	if err := s.redis.Del(ctx, redisKey(key)).Err(); err != nil {
		zap.L().Warn("release idempotency key failed", zap.String("key", key), zap.Error(err))
	}
}

func redisKey(key string) string {
	return fmt.Sprintf("%s:%s", redisKeyPrefix, key)
}
