package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// NoExpiration keeps an entry until it is evicted or deleted.
const NoExpiration time.Duration = -1

// Backend is the contract shared by every cache implementation.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Get returns the stored value and true, or false when the key is absent
	// or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key and reports whether it was present.
	Delete(ctx context.Context, key string) (bool, error)

	// Clear removes every entry.
	Clear(ctx context.Context) error

	// Exists reports whether a fresh entry is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Stats reports item counts and backend specific details.
	Stats(ctx context.Context) (Stats, error)

	// Close releases resources held by the backend.
	Close() error
}

// Stats describes the state of a backend.
type Stats struct {
	// Backend is the backend name ("memory", "file" or "redis").
	Backend string `json:"backend"`

	// Items is the number of stored entries, including expired ones that
	// have not been purged yet.
	Items int64 `json:"items"`

	// SizeBytes is the stored payload size when the backend can report it.
	SizeBytes int64 `json:"size_bytes"`

	// Capacity is the item limit (memory) or byte budget (file). Zero means
	// unbounded or unknown.
	Capacity int64 `json:"capacity"`

	// Hits and Misses count Get outcomes since the backend was created.
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`

	// Details holds backend specific values such as the cache directory or
	// the remote server's memory usage.
	Details map[string]string `json:"details,omitempty"`
}

// HitRate returns hits / (hits + misses), or 0 when there were no lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Kind selects a backend implementation.
type Kind int

const (
	// KindMemory selects MemoryCache.
	KindMemory Kind = iota
	// KindFile selects FileCache.
	KindFile
	// KindRedis selects RedisCache.
	KindRedis
)

// String returns the configuration name of the kind.
func (k Kind) String() string {
	switch k {
	case KindMemory:
		return "memory"
	case KindFile:
		return "file"
	case KindRedis:
		return "redis"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind converts a configuration value into a Kind.
// "remote" is accepted as an alias of "redis".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "memory":
		return KindMemory, nil
	case "file", "disk":
		return KindFile, nil
	case "redis", "remote":
		return KindRedis, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownBackend, s)
	}
}

// expired reports whether an entry written at created with ttl is stale at now.
func expired(created time.Time, ttl time.Duration, now time.Time) bool {
	switch {
	case ttl < 0:
		return false
	case ttl == 0:
		return true
	}
	return now.Sub(created) > ttl
}
