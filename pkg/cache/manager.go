package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultMaxEntryBytes bounds the size of a cached chunk.
const DefaultMaxEntryBytes = 32 << 20

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrEntryTooLarge is returned by Set for entries over the size bound.
	// Nothing is stored.
	ErrEntryTooLarge = errors.New("cache entry too large")
)

// Hash fields of a stored chunk. The body is stored as raw bytes so a
// chunk costs its own size in Redis.
const (
	fieldData        = "data"
	fieldContentType = "content_type"
	fieldStatus      = "status"
	fieldExpires     = "expires_ms"
	fieldCachedAt    = "cached_at_ms"
)

// Manager stores data chunks in Redis hashes that expire with the entry.
type Manager struct {
	redis    *redis.Client
	maxBytes int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMaxEntryBytes sets the largest chunk Set will store. n <= 0 removes
// the bound.
func WithMaxEntryBytes(n int) ManagerOption {
	return func(m *Manager) { m.maxBytes = n }
}

// NewManager creates a chunk cache on redisClient.
func NewManager(redisClient *redis.Client, opts ...ManagerOption) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	m := &Manager{
		redis:    redisClient,
		maxBytes: DefaultMaxEntryBytes,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the chunk stored under key, or ErrCacheMiss.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	fields, err := m.redis.HGetAll(ctx, key.String()).Result()
	if err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		if strings.HasPrefix(err.Error(), "WRONGTYPE") {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
		}
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	entry, err := decodeEntry(fields)
	if err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, err
	}

	// Redis expiry has millisecond precision; cover the gap.
	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	CacheSize.WithLabelValues("redis").Add(float64(len(entry.Data)))
	return entry, nil
}

// Set stores entry under key until entry.Expires. Expired entries are
// ignored; entries over the size bound return ErrEntryTooLarge.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	if entry.TTL() <= 0 {
		return nil
	}
	if m.maxBytes > 0 && len(entry.Data) > m.maxBytes {
		CacheSkipped.WithLabelValues("too_large").Inc()
		return fmt.Errorf("%w: %d bytes, limit %d", ErrEntryTooLarge, len(entry.Data), m.maxBytes)
	}

	cachedAt := entry.CachedAt
	if cachedAt.IsZero() {
		cachedAt = time.Now()
	}

	k := key.String()
	_, err := m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k,
			fieldData, entry.Data,
			fieldContentType, entry.ContentType,
			fieldStatus, entry.StatusCode,
			fieldExpires, entry.Expires.UnixMilli(),
			fieldCachedAt, cachedAt.UnixMilli(),
		)
		pipe.PExpireAt(ctx, k, entry.Expires)
		return nil
	})
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheSize.WithLabelValues("redis").Add(float64(len(entry.Data)))
	return nil
}

// Delete removes a cache entry.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func decodeEntry(fields map[string]string) (*Entry, error) {
	data, ok := fields[fieldData]
	if !ok {
		return nil, fmt.Errorf("%w: no %s field", ErrInvalidEntry, fieldData)
	}

	expires, err := strconv.ParseInt(fields[fieldExpires], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEntry, fieldExpires, err)
	}
	entry := &Entry{
		Data:        []byte(data),
		ContentType: fields[fieldContentType],
		Expires:     time.UnixMilli(expires),
	}

	if v, ok := fields[fieldStatus]; ok {
		if entry.StatusCode, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEntry, fieldStatus, err)
		}
	}
	if v, ok := fields[fieldCachedAt]; ok {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEntry, fieldCachedAt, err)
		}
		entry.CachedAt = time.UnixMilli(ms)
	}
	return entry, nil
}
