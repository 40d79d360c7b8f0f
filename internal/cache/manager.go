package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is the entry lifetime used when a caller does not pick one.
const DefaultTTL = time.Hour

// Config selects and sizes the backend built by NewManager.
type Config struct {
	// Kind selects the backend.
	Kind Kind

	// TTL is the default entry lifetime.
	TTL time.Duration

	// Directory is the FileCache root.
	Directory string

	// MaxSizeMB is the FileCache byte budget in mebibytes.
	MaxSizeMB int

	// MaxItems is the MemoryCache capacity.
	MaxItems int

	// Redis locates the remote store for KindRedis.
	Redis RedisOptions
}

// Manager wraps one Backend with best-effort semantics.
// A nil *Manager is valid and behaves as an always-empty cache.
type Manager struct {
	backend    Backend
	kind       Kind
	ttl        time.Duration
	serializer Serializer
	logger     *slog.Logger
	group      singleflight.Group
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger used to report backend failures.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithSerializer replaces the JSON serializer used by GetValue and SetValue.
func WithSerializer(s Serializer) ManagerOption {
	return func(m *Manager) {
		if s != nil {
			m.serializer = s
		}
	}
}

// NewManager builds the backend described by cfg.
func NewManager(cfg Config, opts ...ManagerOption) (*Manager, error) {
	var backend Backend

	switch cfg.Kind {
	case KindMemory:
		backend = NewMemoryCache(cfg.MaxItems)
	case KindFile:
		size := cfg.MaxSizeMB
		if size <= 0 {
			size = DefaultMaxSizeMB
		}
		fc, err := NewFileCache(cfg.Directory, WithMaxSizeBytes(int64(size)*1024*1024))
		if err != nil {
			return nil, err
		}
		backend = fc
	case KindRedis:
		backend = NewRedisCache(cfg.Redis)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Kind)
	}

	m := NewManagerWithBackend(backend, opts...)
	m.kind = cfg.Kind
	if cfg.TTL != 0 {
		m.ttl = cfg.TTL
	}
	return m, nil
}

// NewManagerWithBackend wraps an existing backend.
func NewManagerWithBackend(backend Backend, opts ...ManagerOption) *Manager {
	m := &Manager{
		backend:    backend,
		kind:       -1,
		ttl:        DefaultTTL,
		serializer: JSONSerializer{},
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Kind returns the backend kind, or -1 for a custom backend.
func (m *Manager) Kind() Kind {
	if m == nil {
		return -1
	}
	return m.kind
}

// TTL returns the default entry lifetime.
func (m *Manager) TTL() time.Duration {
	if m == nil {
		return 0
	}
	return m.ttl
}

// Backend exposes the wrapped backend.
func (m *Manager) Backend() Backend {
	if m == nil {
		return nil
	}
	return m.backend
}

// Get returns the value stored under key. Backend failures count as a miss.
func (m *Manager) Get(ctx context.Context, key string) ([]byte, bool) {
	if m == nil {
		return nil, false
	}
	v, ok, err := m.backend.Get(ctx, key)
	if err != nil {
		m.logger.Warn("cache get failed, treating as miss", "key", key, "error", err)
		return nil, false
	}
	return v, ok
}

// Set stores value for ttl and reports whether the write succeeded.
func (m *Manager) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if m == nil {
		return false
	}
	if err := m.backend.Set(ctx, key, value, ttl); err != nil {
		m.logger.Warn("cache set failed", "key", key, "error", err)
		return false
	}
	return true
}

// Delete removes key.
func (m *Manager) Delete(ctx context.Context, key string) bool {
	if m == nil {
		return false
	}
	ok, err := m.backend.Delete(ctx, key)
	if err != nil {
		m.logger.Warn("cache delete failed", "key", key, "error", err)
		return false
	}
	return ok
}

// Clear empties the cache.
func (m *Manager) Clear(ctx context.Context) bool {
	if m == nil {
		return false
	}
	if err := m.backend.Clear(ctx); err != nil {
		m.logger.Warn("cache clear failed", "error", err)
		return false
	}
	return true
}

// Exists reports whether a fresh entry is stored under key.
func (m *Manager) Exists(ctx context.Context, key string) bool {
	if m == nil {
		return false
	}
	ok, err := m.backend.Exists(ctx, key)
	if err != nil {
		m.logger.Warn("cache exists failed", "key", key, "error", err)
		return false
	}
	return ok
}

// Stats returns backend statistics. Unlike the other methods it reports
// errors, since callers asking for stats want to know the backend is down.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	if m == nil {
		return Stats{Backend: "disabled"}, nil
	}
	return m.backend.Stats(ctx)
}

// GetValue decodes the entry under key into v.
func (m *Manager) GetValue(ctx context.Context, key string, v any) bool {
	data, ok := m.Get(ctx, key)
	if !ok {
		return false
	}
	if err := m.serializer.Decode(data, v); err != nil {
		m.logger.Warn("cache entry could not be decoded", "key", key, "error", err)
		return false
	}
	return true
}

// SetValue encodes v and stores it under key.
func (m *Manager) SetValue(ctx context.Context, key string, v any, ttl time.Duration) bool {
	if m == nil {
		return false
	}
	data, err := m.serializer.Encode(v)
	if err != nil {
		m.logger.Warn("cache value could not be encoded", "key", key, "error", err)
		return false
	}
	return m.Set(ctx, key, data, ttl)
}

// Close releases the backend.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	return m.backend.Close()
}

// GenerateKey derives a cache key from args. See the package level GenerateKey.
func (m *Manager) GenerateKey(args ...any) string {
	return GenerateKey(args...)
}

// GenerateKey returns a stable hex digest of args.
// Arguments are encoded as a JSON array; maps (url.Values, map[string]any and
// friends) are emitted with sorted keys, so keyword-style arguments hash the
// same regardless of insertion order.
func GenerateKey(args ...any) string {
	if args == nil {
		args = []any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		// Channels and funcs cannot be marshalled; fall back to Go syntax.
		data = fmt.Appendf(nil, "%#v", args)
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// GetOrCompute returns the cached value for key or computes, stores and
// returns it. Concurrent misses for the same key share one computation.
// Errors from compute are returned and nothing is cached.
func GetOrCompute[T any](ctx context.Context, m *Manager, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	var cached T
	if m.GetValue(ctx, key, &cached) {
		return cached, nil
	}
	if m == nil {
		return compute(ctx)
	}

	v, err, _ := m.group.Do(key, func() (any, error) {
		value, err := compute(ctx)
		if err != nil {
			return value, err
		}
		m.SetValue(ctx, key, value, ttl)
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	// A nil interface result leaves t at its zero value.
	t, _ := v.(T)
	return t, nil
}
