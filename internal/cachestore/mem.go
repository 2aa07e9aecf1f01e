package cachestore

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemStore is a process-local [Store] backed by an expiring LRU.
type MemStore struct {
	data *expirable.LRU[string, string]
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns a MemStore holding at most capacity entries, each
// for ttl.
func NewMemStore(capacity int, ttl time.Duration) *MemStore {
	return &MemStore{data: expirable.NewLRU[string, string](capacity, nil, ttl)}
}

func (s *MemStore) Get(_ context.Context, name, key string) (string, error) {
	v, ok := s.data.Get(name + "/" + key)
	if !ok {
		return "", nil
	}
	return v, nil
}

func (s *MemStore) Set(_ context.Context, name, key string, val string) error {
	s.data.Add(name+"/"+key, val)
	return nil
}

func (s *MemStore) Purge(_ context.Context, name, key string) error {
	s.data.Remove(name + "/" + key)
	return nil
}

// Len returns the number of live entries.
func (s *MemStore) Len() int { return s.data.Len() }
