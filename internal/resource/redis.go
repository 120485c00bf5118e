package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps handle contents in Redis with an expiry, so handles that
// are never revoked still age out.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
	url   URLBuilder
}

type redisObject struct {
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

func NewRedisStore(redisClient *redis.Client, ttl time.Duration, url URLBuilder) *RedisStore {
	if url == nil {
		url = LocalURL("")
	}
	return &RedisStore{
		redis: redisClient,
		ttl:   ttlOrDefault(ttl),
		url:   url,
	}
}

func (s *RedisStore) Put(ctx context.Context, data []byte, contentType string) (Handle, error) {
	id := NewHandleID(data)

	payload, err := json.Marshal(redisObject{ContentType: contentType, Data: data})
	if err != nil {
		return Handle{}, fmt.Errorf("failed to marshal resource: %w", err)
	}

	if err := s.redis.Set(ctx, objectKey(id), payload, s.ttl).Err(); err != nil {
		return Handle{}, fmt.Errorf("failed to store resource: %w", err)
	}

	return Handle{
		ID:          id,
		URL:         s.url(id),
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Object, error) {
	data, err := s.redis.Get(ctx, objectKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var obj redisObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("failed to unmarshal resource: %w", err)
	}
	return &Object{Data: obj.Data, ContentType: obj.ContentType}, nil
}

func (s *RedisStore) Revoke(ctx context.Context, id string) error {
	deleted, err := s.redis.Del(ctx, objectKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to revoke resource: %w", err)
	}
	if deleted == 0 {
		return ErrHandleRevoked
	}
	return nil
}

func objectKey(id string) string {
	return fmt.Sprintf("resource:%s", id)
}
