// Package cache stores downloaded data chunks in Redis.
//
// Data chunks are immutable once written by the platform, so a chunk
// fetched once can be served from the cache by every later query and by
// every process sharing the same Redis. Chunk URLs are pre-signed and their
// query strings change between sessions; keys are therefore built from the
// URL path only (see ChunkKey).
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.ChunkKey(chunkURL)
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch the chunk, then:
//		entry, err = cache.ResponseToEntry(resp)
//		if err == nil {
//			_ = manager.Set(ctx, key, entry)
//		}
//	}
//
// # Storage
//
// Each chunk is a Redis hash holding the raw body next to its content
// type, status and timestamps, so a cached chunk costs its own size.
// Chunks larger than DefaultMaxEntryBytes (see WithMaxEntryBytes) are not
// stored; Set reports ErrEntryTooLarge and the caller uses the download
// as-is.
//
// # Expiry
//
// An entry lives until the response's Expires header, or DefaultTTL when
// the response carries none. Redis drops the key at the same time.
//
// # Metrics
//
// The cache manager exports Prometheus metrics:
//
//   - seer_cache_hits_total{layer="redis"} - Cache hits
//   - seer_cache_misses_total - Cache misses
//   - seer_cache_size_bytes{layer="redis"} - Bytes written and served
//   - seer_cache_skipped_total{reason} - Chunks not stored (too_large)
//   - seer_cache_errors_total{operation} - Cache operation errors
package cache
