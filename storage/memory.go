package storage

import (
	"sort"
	"sync"
)

// Memory is an in-process Store.
type Memory struct {
	data   map[string]string
	mu     sync.RWMutex
	limits Limits
}

func NewMemory(opts ...Option) *Memory {
	return &Memory{
		data:   make(map[string]string),
		limits: buildLimits(opts),
	}
}

func (s *Memory) Get(key string) (string, bool, error) {
	s.mu.RLock()
	val, exists := s.data[key]
	s.mu.RUnlock()
	return val, exists, nil
}

func (s *Memory) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.limits.check(s.data, key, value); err != nil {
		return err
	}
	s.data[key] = value
	return nil
}

func (s *Memory) Delete(key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Keys returns the stored keys in sorted order.
func (s *Memory) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
