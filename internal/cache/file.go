package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
)

const (
	// fileExt is the suffix of every entry file.
	fileExt = ".cache"

	// DefaultMaxSizeMB is the FileCache byte budget when none is given.
	DefaultMaxSizeMB = 500

	// evictFraction is the share of files removed when over budget.
	evictFraction = 4
)

// FileCache persists each entry as one file under a directory.
// Freshness is judged by the file's modification time against the TTL
// recorded in the entry.
type FileCache struct {
	dir      string
	maxBytes int64

	// mu serializes read-check-write sequences across all keys.
	mu     sync.Mutex
	hits   uint64
	misses uint64
	now    func() time.Time
}

// FileOption configures a FileCache.
type FileOption func(*FileCache)

// WithMaxSizeBytes sets the directory byte budget. Non-positive values
// disable size eviction.
func WithMaxSizeBytes(n int64) FileOption {
	return func(c *FileCache) {
		c.maxBytes = n
	}
}

// NewFileCache creates dir if needed and returns a cache rooted there.
func NewFileCache(dir string, opts ...FileOption) (*FileCache, error) {
	if dir == "" {
		return nil, ErrNoDirectory
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &FileCache{
		dir:      dir,
		maxBytes: DefaultMaxSizeMB * 1024 * 1024,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Dir returns the cache directory.
func (c *FileCache) Dir() string {
	return c.dir
}

// path maps a key to its file. Keys may contain anything, so they are hashed.
func (c *FileCache) path(key string) string {
	sum := blake2b.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+fileExt)
}

// Get reads and validates the entry for key. Expired or unreadable entries
// are removed.
func (c *FileCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok, err := c.load(c.path(key))
	if err != nil || !ok {
		c.misses++
		return nil, false, err
	}
	c.hits++
	return e.payload, true, nil
}

// load returns the fresh envelope stored at p. Must be called with mu held.
func (c *FileCache) load(p string) (envelope, bool, error) {
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return envelope{}, false, nil
	}
	if err != nil {
		return envelope{}, false, fmt.Errorf("failed to stat cache entry: %w", err)
	}

	data, err := os.ReadFile(p) //nolint:gosec // path is derived from a hash inside the cache dir
	if err != nil {
		return envelope{}, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	e, err := unmarshalEnvelope(data)
	if err != nil {
		_ = os.Remove(p)
		return envelope{}, false, err
	}
	if expired(info.ModTime(), e.ttl, c.now()) {
		_ = os.Remove(p)
		return envelope{}, false, nil
	}
	return e, true, nil
}

// Set writes value for key. If the directory is over budget the oldest
// quarter of entries is evicted first.
func (c *FileCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxBytes > 0 {
		if err := c.evictIfOverBudget(); err != nil {
			return err
		}
	}

	data := envelope{createdAt: c.now(), ttl: ttl, payload: value}.marshal()

	tmp, err := os.CreateTemp(c.dir, "entry-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create cache entry: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path(key)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to commit cache entry: %w", err)
	}
	return nil
}

type fileInfo struct {
	path    string
	size    int64
	modTime time.Time
}

// entries lists the cache files. Must be called with mu held.
func (c *FileCache) entries() ([]fileInfo, error) {
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache directory: %w", err)
	}

	files := make([]fileInfo, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), fileExt) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue // removed concurrently by another process
		}
		files = append(files, fileInfo{
			path:    filepath.Join(c.dir, de.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}
	return files, nil
}

func (c *FileCache) evictIfOverBudget() error {
	files, err := c.entries()
	if err != nil {
		return err
	}

	var total int64
	for _, f := range files {
		total += f.size
	}
	if total <= c.maxBytes {
		return nil
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})
	n := len(files) / evictFraction
	if n == 0 {
		n = 1
	}
	for _, f := range files[:n] {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to evict cache entry: %w", err)
		}
	}
	return nil
}

// Delete removes the file for key.
func (c *FileCache) Delete(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := os.Remove(c.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return true, nil
}

// Clear removes every entry file. Other files in the directory are left alone.
func (c *FileCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	files, err := c.entries()
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to clear cache entry: %w", err)
		}
	}
	return nil
}

// Exists reports whether a fresh entry is stored for key.
func (c *FileCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok, err := c.load(c.path(key))
	return ok, err
}

// Stats reports the number and total size of entry files.
func (c *FileCache) Stats(_ context.Context) (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	files, err := c.entries()
	if err != nil {
		return Stats{}, err
	}
	var total int64
	for _, f := range files {
		total += f.size
	}
	return Stats{
		Backend:   KindFile.String(),
		Items:     int64(len(files)),
		SizeBytes: total,
		Capacity:  c.maxBytes,
		Hits:      c.hits,
		Misses:    c.misses,
		Details: map[string]string{
			"directory": c.dir,
			"size_mb":   strconv.FormatFloat(float64(total)/(1024*1024), 'f', 2, 64),
		},
	}, nil
}

// Close is a no-op.
func (c *FileCache) Close() error {
	return nil
}
