package resource

import (
	"context"
	"sync"
)

// MemoryStore keeps handle contents in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*Object
	url     URLBuilder

	// revoked remembers recent revocations so a repeat Revoke reports
	// ErrHandleRevoked. Oldest entries are evicted past maxRevoked.
	revoked      map[string]bool
	revokedOrder []string
	maxRevoked   int
}

const defaultMaxRevoked = 1024

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(url URLBuilder) *MemoryStore {
	if url == nil {
		url = LocalURL("")
	}
	return &MemoryStore{
		objects: make(map[string]*Object),
		url:        url,
		revoked:    make(map[string]bool),
		maxRevoked: defaultMaxRevoked,
	}
}

func (s *MemoryStore) Put(ctx context.Context, data []byte, contentType string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}

	id := NewHandleID(data)
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.objects[id] = &Object{Data: buf, ContentType: contentType}
	s.mu.Unlock()

	return Handle{
		ID:          id,
		URL:         s.url(id),
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return obj, nil
}

func (s *MemoryStore) Revoke(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[id]; !ok {
		if s.revoked[id] {
			return ErrHandleRevoked
		}
		return ErrNotFound
	}
	delete(s.objects, id)
	s.remember(id)
	return nil
}

func (s *MemoryStore) remember(id string) {
	s.revoked[id] = true
	s.revokedOrder = append(s.revokedOrder, id)
	for len(s.revokedOrder) > s.maxRevoked {
		delete(s.revoked, s.revokedOrder[0])
		s.revokedOrder = s.revokedOrder[1:]
	}
}

// Live reports how many handles are currently resolvable.
func (s *MemoryStore) Live() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
