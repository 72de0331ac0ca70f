package fetch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	apperrors "emicli/internal/errors"
	"emicli/internal/infrastructure"
)

// Cache stores merged run artifacts by key. A hit short-circuits all
// fetching for the run; a successful merge writes the artifact back.
// Invalidation is the caller's business: there is no TTL, only presence.
type Cache interface {
	// Get returns the artifact stored under key, or false when absent.
	Get(key string) ([]byte, bool)

	// Put stores an artifact under key, replacing any previous one.
	Put(key string, payload []byte) error
}

// FileCache keeps artifacts as files in a directory, one per key. Writes go
// to a temp file first and are renamed into place so readers never observe
// a half-written artifact.
type FileCache struct {
	dir    string
	logger *slog.Logger
}

// NewFileCache creates a file-backed cache rooted at dir.
func NewFileCache(dir string, logger *slog.Logger) *FileCache {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &FileCache{
		dir:    dir,
		logger: logger.With(slog.String("component", "fetch.cache")),
	}
}

// Get reads the artifact for key from disk.
func (c *FileCache) Get(key string) ([]byte, bool) {
	payload, err := os.ReadFile(c.artifactPath(key))
	if err != nil {
		return nil, false
	}

	c.logger.Debug("Cache artifact hit",
		slog.String("key", key),
		slog.Int("bytes", len(payload)))
	return payload, true
}

// Put writes the artifact for key, temp-then-rename.
func (c *FileCache) Put(key string, payload []byte) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return apperrors.NewStorageError("failed to create cache directory", err).
			WithContext("dir", c.dir)
	}

	target := c.artifactPath(key)

	tmp, err := os.CreateTemp(c.dir, key+".*.tmp")
	if err != nil {
		return apperrors.NewStorageError("failed to create cache temp file", err).
			WithContext("key", key)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.NewStorageError("failed to write cache artifact", err).
			WithContext("key", key)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperrors.NewStorageError("failed to close cache temp file", err).
			WithContext("key", key)
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return apperrors.NewStorageError("failed to publish cache artifact", err).
			WithContext("key", key)
	}

	c.logger.Debug("Cache artifact stored",
		slog.String("key", key),
		slog.Int("bytes", len(payload)))
	return nil
}

// artifactPath maps a key to its file. Keys are hex digests, so no escaping
// is needed; the extension reflects the unified-table CSV artifact format.
func (c *FileCache) artifactPath(key string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s.csv", key))
}

// MemoryCache is an in-process Cache for tests and cache-disabled runs that
// still want write-through behavior.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]byte)}
}

// Get returns the stored artifact for key.
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	payload, ok := c.entries[key]
	return payload, ok
}

// Put stores a copy of payload under key.
func (c *MemoryCache) Put(key string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(payload))
	copy(buf, payload)
	c.entries[key] = buf
	return nil
}

// Len reports the number of stored artifacts.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
