package cache

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis on DB 15 and skips the test
// when none is running. Integration tests use testcontainers instead.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewManager(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	manager := NewManager(client)
	if manager == nil {
		t.Fatal("NewManager returned nil")
	}
	if manager.redis != client {
		t.Error("Manager redis client not set correctly")
	}
	if manager.maxBytes != DefaultMaxEntryBytes {
		t.Errorf("maxBytes = %d, want %d", manager.maxBytes, DefaultMaxEntryBytes)
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil)
}

func TestManager_SetAndGet(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := ChunkKey("https://data.example.com/seg-1/00000000000.dat?sig=one")
	entry := &Entry{
		Data:        []byte{0x01, 0x02, 0x03},
		ContentType: "application/octet-stream",
		StatusCode:  200,
		Expires:     time.Now().Add(5 * time.Minute),
		CachedAt:    time.Now(),
	}

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// Re-signed URL for the same chunk hits the same entry.
	got, err := manager.Get(ctx, ChunkKey("https://data.example.com/seg-1/00000000000.dat?sig=two"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(got.Data, entry.Data) {
		t.Errorf("Data = %v, want %v", got.Data, entry.Data)
	}
	if got.ContentType != entry.ContentType {
		t.Errorf("ContentType = %q, want %q", got.ContentType, entry.ContentType)
	}
}

func TestManager_GetMiss(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)

	_, err := manager.Get(context.Background(), Key{Kind: KindChunk, ID: "missing"})
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_SetExpiredIsNoop(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := Key{Kind: KindChunk, ID: "stale"}
	entry := &Entry{Data: []byte("x"), Expires: time.Now().Add(-time.Minute)}

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if n := client.Exists(ctx, key.String()).Val(); n != 0 {
		t.Errorf("expired entry was stored")
	}
}

func TestManager_SetNil(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)

	if err := manager.Set(context.Background(), Key{ID: "x"}, nil); err == nil {
		t.Error("Set(nil) should fail")
	}
}

func TestManager_InvalidEntry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := Key{Kind: KindChunk, ID: "corrupt"}
	client.Set(ctx, key.String(), "not json", time.Minute)

	_, err := manager.Get(ctx, key)
	if !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Get() error = %v, want ErrInvalidEntry", err)
	}
}

func TestManager_StoresRawChunk(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := Key{Kind: KindChunk, ID: "raw"}
	body := []byte{0x00, 0xff, 0x10, 0x80}
	entry := &Entry{Data: body, StatusCode: 200, Expires: time.Now().Add(time.Minute)}
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	stored, err := client.HGet(ctx, key.String(), "data").Bytes()
	if err != nil {
		t.Fatalf("HGet() error = %v", err)
	}
	if !bytes.Equal(stored, body) {
		t.Errorf("stored data = %v, want %v", stored, body)
	}

	ttl := client.PTTL(ctx, key.String()).Val()
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("PTTL = %v, want (0, 1m]", ttl)
	}

	got, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", got.StatusCode)
	}
	if got.Expires.UnixMilli() != entry.Expires.UnixMilli() {
		t.Errorf("Expires = %v, want %v", got.Expires, entry.Expires)
	}
}

func TestManager_SetTooLarge(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, WithMaxEntryBytes(4))
	ctx := context.Background()

	key := Key{Kind: KindChunk, ID: "big"}
	err := manager.Set(ctx, key, &Entry{Data: []byte("12345"), Expires: time.Now().Add(time.Minute)})
	if !errors.Is(err, ErrEntryTooLarge) {
		t.Fatalf("Set() error = %v, want ErrEntryTooLarge", err)
	}
	if n := client.Exists(ctx, key.String()).Val(); n != 0 {
		t.Errorf("oversized entry was stored")
	}

	if err := manager.Set(ctx, key, &Entry{Data: []byte("1234"), Expires: time.Now().Add(time.Minute)}); err != nil {
		t.Errorf("Set() at the limit error = %v", err)
	}
}

func TestManager_UnboundedSize(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, WithMaxEntryBytes(0))

	entry := &Entry{Data: bytes.Repeat([]byte("x"), 1024), Expires: time.Now().Add(time.Minute)}
	if err := manager.Set(context.Background(), Key{Kind: KindChunk, ID: "any"}, entry); err != nil {
		t.Errorf("Set() error = %v", err)
	}
}

func TestManager_MissingFields(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	tests := []struct {
		name   string
		fields []any
	}{
		{"no data", []any{"expires_ms", time.Now().Add(time.Minute).UnixMilli()}},
		{"bad expiry", []any{"data", "x", "expires_ms", "soon"}},
		{"bad status", []any{"data", "x", "expires_ms", time.Now().Add(time.Minute).UnixMilli(), "status", "ok"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := Key{Kind: KindChunk, ID: tt.name}
			client.HSet(ctx, key.String(), tt.fields...)

			if _, err := manager.Get(ctx, key); !errors.Is(err, ErrInvalidEntry) {
				t.Errorf("Get() error = %v, want ErrInvalidEntry", err)
			}
		})
	}
}

func TestManager_Delete(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := Key{Kind: KindChunk, ID: "gone"}
	entry := &Entry{Data: []byte("x"), Expires: time.Now().Add(time.Minute)}
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() after Delete error = %v, want ErrCacheMiss", err)
	}
}
