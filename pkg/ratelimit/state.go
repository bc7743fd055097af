// Package ratelimit paces GraphQL queries so that a client stays inside the
// platform's query budget. The budget is shared by every process using the
// same credentials, so the pacing state can live in Redis.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RedisKeyLastQuery holds the most recently reserved query slot (unix ms).
const RedisKeyLastQuery = "seer:pacer:last_query"

// The platform accepts DefaultLimit queries per DefaultWindow.
const (
	DefaultLimit  = 580
	DefaultWindow = 300 * time.Second
)

// Config describes the query budget.
type Config struct {
	// Limit is the number of queries allowed per Window. Zero disables pacing.
	Limit int `yaml:"limit"`

	// Window is the period the limit applies to.
	Window time.Duration `yaml:"window"`
}

// DefaultConfig returns the platform's budget.
func DefaultConfig() Config {
	return Config{
		Limit:  DefaultLimit,
		Window: DefaultWindow,
	}
}

// Interval returns the minimum spacing between query starts, or 0 when
// pacing is disabled.
func (c Config) Interval() time.Duration {
	if c.Limit <= 0 || c.Window <= 0 {
		return 0
	}
	return c.Window / time.Duration(c.Limit)
}

// Store keeps the pacing state.
type Store interface {
	// Reserve claims the earliest slot that is at or after now and at least
	// interval after the previously reserved slot, and returns it.
	Reserve(ctx context.Context, now time.Time, interval time.Duration) (time.Time, error)
}

// MemoryStore is a Store local to one process.
type MemoryStore struct {
	mu   sync.Mutex
	last time.Time
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Reserve implements Store.
func (s *MemoryStore) Reserve(_ context.Context, now time.Time, interval time.Duration) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := now
	if next := s.last.Add(interval); !s.last.IsZero() && next.After(slot) {
		slot = next
	}
	s.last = slot
	return slot, nil
}
