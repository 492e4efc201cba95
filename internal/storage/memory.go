package storage

import (
	"context"
	"strings"
	"sync"
)

// MemoryKV is an in-process KV with an optional byte capacity, emulating
// the size-limited platform stores the core must survive. Zero capacity
// means unlimited.
type MemoryKV struct {
	mu       sync.RWMutex
	items    map[string]string
	capacity int
	used     int
}

func NewMemoryKV(capacity int) *MemoryKV {
	return &MemoryKV{
		items:    make(map[string]string),
		capacity: capacity,
	}
}

func (s *MemoryKV) GetItem(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok, nil
}

func (s *MemoryKV) SetItem(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.used - len(s.items[key]) + len(value)
	if s.capacity > 0 && next > s.capacity {
		return ErrQuotaExceeded
	}

	s.items[key] = value
	s.used = next
	return nil
}

func (s *MemoryKV) RemoveItem(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.items[key]; ok {
		s.used -= len(v)
		delete(s.items, key)
	}
	return nil
}

func (s *MemoryKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.items {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
