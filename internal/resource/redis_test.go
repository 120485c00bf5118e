package resource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisStore(rdb, ttl, LocalURL("/api/resources")), mr
}

func TestRedisStore_PutGetRevoke(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, 10*time.Minute)

	h, err := store.Put(ctx, []byte("png bytes"), "image/png")
	if err != nil {
		t.Fatal(err)
	}
	if h.Size != 9 || h.ContentType != "image/png" {
		t.Errorf("unexpected handle %+v", h)
	}
	if ttl := mr.TTL(objectKey(h.ID)); ttl != 10*time.Minute {
		t.Errorf("expected 10m expiry, got %v", ttl)
	}

	obj, err := store.Get(ctx, h.ID)
	if err != nil {
		t.Fatal(err)
	}
	if string(obj.Data) != "png bytes" || obj.ContentType != "image/png" {
		t.Errorf("unexpected object %+v", obj)
	}

	if err := store.Revoke(ctx, h.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, h.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after revoke, got %v", err)
	}
	if err := store.Revoke(ctx, h.ID); !errors.Is(err, ErrHandleRevoked) {
		t.Errorf("expected ErrHandleRevoked on second revoke, got %v", err)
	}
}

func TestRedisStore_DefaultTTL(t *testing.T) {
	store, mr := newTestRedisStore(t, 0)

	h, err := store.Put(context.Background(), []byte("x"), "text/plain")
	if err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL(objectKey(h.ID)); ttl != time.Hour {
		t.Errorf("expected default 1h expiry, got %v", ttl)
	}
}

func TestRedisStore_ExpiredHandle(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, time.Minute)

	h, err := store.Put(ctx, []byte("x"), "text/plain")
	if err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := store.Get(ctx, h.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestRedisStore_UnknownGet(t *testing.T) {
	store, _ := newTestRedisStore(t, 0)
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
