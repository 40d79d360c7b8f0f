// Package cache provides the pluggable cache layer used by the HTTP client
// and the robots.txt gate.
//
// # Backends
//
// Every backend implements Backend and stores opaque byte slices:
//
//   - MemoryCache: bounded LRU with per-entry TTL, process local
//   - FileCache: one file per key under a directory, TTL checked against the
//     file modification time, size-bounded with oldest-first eviction
//   - RedisCache: networked store using the server's native key expiry
//
// A TTL of NoExpiration keeps an entry until it is evicted or deleted.
// Any other TTL is measured from the moment the entry was written; an entry
// older than its TTL is reported as absent and removed on the next access.
//
// # Manager
//
// Manager picks one backend from a Kind at construction time and wraps it
// with best-effort semantics: backend errors are logged and reported as a
// miss (or as a failed write) so callers never have to treat the cache as a
// hard dependency. Typed values go through a Serializer.
//
//	m, err := cache.NewManager(cache.Config{Kind: cache.KindMemory, TTL: time.Hour})
//	key := m.GenerateKey("GET", "https://example.com/", params)
//	if body, ok := m.Get(ctx, key); ok {
//	    ...
//	}
package cache
