// Package storage is a small best-effort keyed string store, the local
// equivalent of a browser's localStorage. Memory keeps data for the life of
// the process; File keeps it in one JSON document.
package storage

import (
	"errors"
	"fmt"
)

var (
	ErrKeyTooLarge    = errors.New("key too large")
	ErrValueTooLarge  = errors.New("value too large")
	ErrTooManyEntries = errors.New("too many entries")
	ErrEmptyKey       = errors.New("key required")
)

// Store is a keyed string store.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// Limits bounds what a store accepts. Zero disables a limit.
type Limits struct {
	MaxKeySize   int
	MaxValueSize int
	MaxEntries   int
}

// DefaultLimits mirror the quota a browser typically grants one origin.
func DefaultLimits() Limits {
	return Limits{
		MaxKeySize:   1024,
		MaxValueSize: 5 << 20,
		MaxEntries:   10000,
	}
}

type Option func(*Limits)

func WithMaxKeySize(n int) Option {
	return func(l *Limits) { l.MaxKeySize = n }
}

func WithMaxValueSize(n int) Option {
	return func(l *Limits) { l.MaxValueSize = n }
}

func WithMaxEntries(n int) Option {
	return func(l *Limits) { l.MaxEntries = n }
}

func buildLimits(opts []Option) Limits {
	l := DefaultLimits()
	for _, opt := range opts {
		opt(&l)
	}
	return l
}

// check validates a write of key/value into data.
func (l Limits) check(data map[string]string, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if l.MaxKeySize > 0 && len(key) > l.MaxKeySize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrKeyTooLarge, len(key), l.MaxKeySize)
	}
	if l.MaxValueSize > 0 && len(value) > l.MaxValueSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrValueTooLarge, len(value), l.MaxValueSize)
	}
	if _, exists := data[key]; !exists && l.MaxEntries > 0 && len(data) >= l.MaxEntries {
		return fmt.Errorf("%w: limit %d", ErrTooManyEntries, l.MaxEntries)
	}
	return nil
}
