// Package cache provides a Redis-backed cache for message details.
//
// Message content in a mailbox is immutable once delivered, so a detail
// fetched in one sync run can serve later runs until its TTL expires. Only
// labels drift; the TTL bounds how stale they can get.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient, 24*time.Hour)
//
//	key := cache.Key{User: "me", Format: "full", ID: "18c2f0a1b2c3d4e5"}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the provider
//	}
//
// # Decorating a fetcher
//
//	details := cache.NewCachingFetcher(gmailSource, manager, "me", "full")
//	eng := engine.New(gmailSource, details, engine.DefaultConfig())
//
// CachingFetcher is read-through. Messages that no longer exist are never
// cached, and any cache failure falls back to the wrapped fetcher.
//
// # Metrics
//
//   - mailsync_cache_hits_total{layer="redis"} - Cache hits
//   - mailsync_cache_misses_total - Cache misses
//   - mailsync_cache_size_bytes{layer="redis"} - Bytes written and read
//   - mailsync_cache_errors_total{operation} - Cache operation errors
package cache
