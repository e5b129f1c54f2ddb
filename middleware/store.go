package middleware

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Store is the cache backing. Implementations must be safe for
// concurrent use. Values are opaque encoded bytes.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type memoryEntry struct {
	key        string
	value      []byte
	expiration time.Time
}

// MemoryStore is a thread-safe in-memory store with per-entry TTL and
// an LRU capacity bound. It is the default cache backing.
type MemoryStore struct {
	mu       sync.Mutex
	data     map[string]*list.Element
	order    *list.List // front = most recently used
	capacity int

	now func() time.Time
}

// NewMemoryStore creates a store holding at most capacity entries;
// capacity <= 0 means unbounded.
func NewMemoryStore(capacity int) *MemoryStore {
	return &MemoryStore{
		data:     make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
		now:      time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	ent := el.Value.(*memoryEntry)
	if s.now().After(ent.expiration) {
		s.order.Remove(el)
		delete(s.data, key)
		return nil, false, nil
	}
	s.order.MoveToFront(el)
	return ent.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp := s.now().Add(ttl)
	if el, ok := s.data[key]; ok {
		ent := el.Value.(*memoryEntry)
		ent.value = val
		ent.expiration = exp
		s.order.MoveToFront(el)
		return nil
	}
	s.data[key] = s.order.PushFront(&memoryEntry{key: key, value: val, expiration: exp})
	if s.capacity > 0 && s.order.Len() > s.capacity {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.data, oldest.Value.(*memoryEntry).key)
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.data[key]; ok {
		s.order.Remove(el)
		delete(s.data, key)
	}
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// StartCleaner periodically evicts expired entries until stop closes.
// Lazy expiry makes this optional; it only bounds memory held by keys
// that are never read again.
func (s *MemoryStore) StartCleaner(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanupExpired()
		case <-stop:
			return
		}
	}
}

func (s *MemoryStore) cleanupExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for el := s.order.Back(); el != nil; {
		prev := el.Prev()
		ent := el.Value.(*memoryEntry)
		if now.After(ent.expiration) {
			s.order.Remove(el)
			delete(s.data, ent.key)
		}
		el = prev
	}
}
