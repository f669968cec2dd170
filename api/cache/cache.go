package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// DefaultTTL is the default time-to-live for cached entries
	DefaultTTL = 24 * time.Hour

	// ErrMiss is returned by backends when a key is absent or expired
	ErrMiss = errors.New("cache miss")
)

// Backend stores encoded entries
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Clear(ctx context.Context) error
}

// Entry represents a cached item
type Entry[T any] struct {
	Value     T
	CreatedAt time.Time
}

// Cache provides a typed caching layer over a Backend.
// Keys are scoped by namespace so several caches can share one backend.
type Cache[T any] struct {
	backend   Backend
	namespace string
	ttl       time.Duration
}

// New creates a cache for values of type T in the given namespace
func New[T any](backend Backend, namespace string, ttl time.Duration) *Cache[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[T]{
		backend:   backend,
		namespace: normalizeKey(namespace),
		ttl:       ttl,
	}
}

// GetOrSet retrieves a value from cache or stores the result of fn if it doesn't exist.
// forceUpdate skips the lookup but still stores the fresh value.
func (c *Cache[T]) GetOrSet(ctx context.Context, key string, fn func() (T, error), forceUpdate bool) (T, error) {
	k := c.key(key)

	if !forceUpdate {
		if entry, err := c.load(ctx, k); err == nil {
			if time.Since(entry.CreatedAt) < c.ttl {
				return entry.Value, nil
			}
		}
	}

	value, err := fn()
	if err != nil {
		var zero T
		return zero, err
	}

	entry := Entry[T]{
		Value:     value,
		CreatedAt: time.Now(),
	}
	if err := c.save(ctx, k, entry); err != nil {
		return value, err // the value is still usable
	}

	return value, nil
}

// Clear removes all cached entries of the backend
func (c *Cache[T]) Clear(ctx context.Context) error {
	return c.backend.Clear(ctx)
}

func (c *Cache[T]) key(key string) string {
	sum := sha256.Sum256([]byte(key))
	return c.namespace + "/" + hex.EncodeToString(sum[:])
}

func (c *Cache[T]) load(ctx context.Context, key string) (*Entry[T], error) {
	b, err := c.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var entry Entry[T]
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (c *Cache[T]) save(ctx context.Context, key string, entry Entry[T]) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return err
	}
	return c.backend.Set(ctx, key, buf.Bytes(), c.ttl)
}

// normalizeKey converts a namespace into a filesystem-safe format
func normalizeKey(key string) string {
	// Replace any character that's not allowed with underscore
	normalized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '-' || r == '_' || r == '.' {
			return r
		}
		return '_'
	}, key)

	// Replace consecutive dots with a single dot
	for strings.Contains(normalized, "..") {
		normalized = strings.ReplaceAll(normalized, "..", ".")
	}

	if normalized == "" || normalized == "." {
		return "default"
	}
	return normalized
}

// FileBackend stores entries as files below a directory
type FileBackend struct {
	dir string
}

// NewFileBackend creates the directory if needed and returns a backend rooted at it
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) path(key string) string {
	return filepath.Join(b.dir, filepath.FromSlash(key)+".gob")
}

// Get implements Backend. Expiry is checked by Cache through Entry.CreatedAt.
func (b *FileBackend) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrMiss
	}
	return data, err
}

// Set implements Backend
func (b *FileBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	path := b.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Clear implements Backend
func (b *FileBackend) Clear(_ context.Context) error {
	if err := os.RemoveAll(b.dir); err != nil {
		return err
	}
	return os.MkdirAll(b.dir, 0755)
}
