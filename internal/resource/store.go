// Package resource issues revocable handles over preview bytes.
//
// A handle is the server-side equivalent of a browser object URL: it stays
// resolvable until it is revoked, and revoking it twice is a bug in the
// caller.
package resource

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a handle does not resolve.
	ErrNotFound = errors.New("resource not found")
	// ErrHandleRevoked is returned when a handle is revoked more than once.
	// Callers treat it as a programming error.
	ErrHandleRevoked = errors.New("resource handle already revoked")
)

// Handle references stored bytes until revoked.
type Handle struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// Object is the resolved content of a handle.
type Object struct {
	Data        []byte
	ContentType string
}

// Store defines the interface for handle storage backends
type Store interface {
	Put(ctx context.Context, data []byte, contentType string) (Handle, error)
	Get(ctx context.Context, id string) (*Object, error)
	Revoke(ctx context.Context, id string) error
}

// NewHandleID derives a content-addressed id. The uuid suffix keeps two
// uploads of identical bytes independently revocable.
func NewHandleID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8]) + "-" + uuid.New().String()
}

// URLBuilder maps a handle id to the URL the viewer loads it from.
type URLBuilder func(id string) string

// LocalURL serves handles through GET /api/resources/:id.
func LocalURL(baseURL string) URLBuilder {
	return func(id string) string {
		return baseURL + "/api/resources/" + id
	}
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return time.Hour
	}
	return ttl
}
