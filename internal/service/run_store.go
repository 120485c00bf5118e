package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/parsey/docpreview/internal/model"
	"github.com/redis/go-redis/v9"
)

const runTTL = 24 * time.Hour

// RunStore persists analysis runs and which run is current per session
type RunStore interface {
	SaveRun(ctx context.Context, rec *model.RunRecord) error
	GetRun(ctx context.Context, runID string) (*model.RunRecord, error)
	// SetCurrent makes runID current for sessionID and returns the run it
	// replaced, or "".
	SetCurrent(ctx context.Context, sessionID, runID string) (string, error)
	CurrentRun(ctx context.Context, sessionID string) (string, error)
	ClearCurrent(ctx context.Context, sessionID string) error
}

// RedisRunStore keeps run records as JSON with a 24h retention
type RedisRunStore struct {
	redis redis.Cmdable
}

func NewRedisRunStore(redisClient redis.Cmdable) *RedisRunStore {
	return &RedisRunStore{redis: redisClient}
}

func runKey(runID string) string {
	return fmt.Sprintf("run:%s", runID)
}

func currentKey(sessionID string) string {
	return fmt.Sprintf("session:%s:run", sessionID)
}

func (s *RedisRunStore) SaveRun(ctx context.Context, rec *model.RunRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, runKey(rec.ID), data, runTTL).Err()
}

func (s *RedisRunStore) GetRun(ctx context.Context, runID string) (*model.RunRecord, error) {
	data, err := s.redis.Get(ctx, runKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}

	var rec model.RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *RedisRunStore) SetCurrent(ctx context.Context, sessionID, runID string) (string, error) {
	pipe := s.redis.TxPipeline()
	prev := pipe.GetSet(ctx, currentKey(sessionID), runID)
	pipe.Expire(ctx, currentKey(sessionID), runTTL)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}

	old, err := prev.Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return old, err
}

func (s *RedisRunStore) CurrentRun(ctx context.Context, sessionID string) (string, error) {
	runID, err := s.redis.Get(ctx, currentKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return runID, err
}

func (s *RedisRunStore) ClearCurrent(ctx context.Context, sessionID string) error {
	return s.redis.Del(ctx, currentKey(sessionID)).Err()
}

// MemoryRunStore is a process-local RunStore
type MemoryRunStore struct {
	mu      sync.RWMutex
	runs    map[string][]byte
	current map[string]string
}

func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{
		runs:    make(map[string][]byte),
		current: make(map[string]string),
	}
}

// SaveRun stores a JSON copy so callers never share a record.
func (s *MemoryRunStore) SaveRun(ctx context.Context, rec *model.RunRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.runs[rec.ID] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryRunStore) GetRun(ctx context.Context, runID string) (*model.RunRecord, error) {
	s.mu.RLock()
	data, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrRunNotFound
	}

	var rec model.RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *MemoryRunStore) SetCurrent(ctx context.Context, sessionID, runID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.current[sessionID]
	s.current[sessionID] = runID
	return prev, nil
}

func (s *MemoryRunStore) CurrentRun(ctx context.Context, sessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current[sessionID], nil
}

func (s *MemoryRunStore) ClearCurrent(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.current, sessionID)
	return nil
}
