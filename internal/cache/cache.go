package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mikematt33/qgate/pkg/models"
)

// Cache is a disk cache of collected metrics with a TTL. Entries are keyed
// by commit, so callers must only use it for clean working trees.
type Cache struct {
	baseDir string
	ttl     time.Duration
	now     func() time.Time
}

// CacheEntry represents a cached item with metadata
type CacheEntry struct {
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Stats summarizes the cache directory.
type Stats struct {
	Entries int
	Valid   int
	Expired int
	Bytes   int64
}

// MetricsEntry is what the collector stores per key.
type MetricsEntry struct {
	Metrics      models.Metrics    `json:"metrics"`
	ToolVersions map[string]string `json:"toolVersions,omitempty"`
}

// New creates a new cache instance. An empty baseDir selects the user cache dir.
func New(baseDir string, ttl time.Duration) (*Cache, error) {
	if baseDir == "" {
		var err error
		baseDir, err = GetDefaultCachePath()
		if err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &Cache{
		baseDir: baseDir,
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.baseDir
}

// MetricsScope describes what a collection measured. Collections with equal
// scopes measure the same content with the same tools.
type MetricsScope struct {
	Root             string
	Commit           string
	Targets          []string
	Tools            string // fingerprint of the configured tool commands
	SkipCoverage     bool
	SkipSecurity     bool
	SkipDependencies bool
}

// MetricsKey returns the cache key for a scope. Target order does not matter.
func MetricsKey(s MetricsScope) string {
	sorted := append([]string(nil), s.Targets...)
	sort.Strings(sorted)
	return fmt.Sprintf("metrics|%s|%s|%s|tools=%s|cov=%t|sec=%t|deps=%t",
		s.Root, s.Commit, strings.Join(sorted, ","), s.Tools, s.SkipCoverage, s.SkipSecurity, s.SkipDependencies)
}

// GetMetrics looks up collected metrics for key.
func (c *Cache) GetMetrics(key string) (*MetricsEntry, bool, error) {
	var entry MetricsEntry
	found, err := c.Get(key, &entry)
	if err != nil || !found {
		return nil, false, err
	}
	return &entry, true, nil
}

// SetMetrics stores collected metrics under key.
func (c *Cache) SetMetrics(key string, entry *MetricsEntry) error {
	return c.Set(key, entry)
}

// Get retrieves a cached value by key
func (c *Cache) Get(key string, value interface{}) (bool, error) {
	cacheFile := c.getCacheFilePath(key)

	data, err := os.ReadFile(cacheFile)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil // Cache miss
		}
		return false, fmt.Errorf("failed to read cache file: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Key != key {
		// Invalid or colliding cache file, remove it
		_ = os.Remove(cacheFile)
		return false, nil
	}

	if c.now().After(entry.ExpiresAt) {
		_ = os.Remove(cacheFile)
		return false, nil
	}

	if err := json.Unmarshal(entry.Data, value); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached data: %w", err)
	}

	return true, nil
}

// Set stores a value in the cache with TTL
func (c *Cache) Set(key string, value interface{}) error {
	cacheFile := c.getCacheFilePath(key)

	if err := os.MkdirAll(filepath.Dir(cacheFile), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	now := c.now()
	entry := CacheEntry{
		Key:       key,
		Data:      data,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}

	entryData, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := os.WriteFile(cacheFile, entryData, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	return nil
}

// Clear removes all cached entries
func (c *Cache) Clear() error {
	return os.RemoveAll(c.baseDir)
}

// Stats returns cache statistics
func (c *Cache) Stats() (Stats, error) {
	var stats Stats

	entries, err := os.ReadDir(c.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return stats, fmt.Errorf("failed to read cache directory: %w", err)
	}

	now := c.now()
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		stats.Entries++
		stats.Bytes += info.Size()

		data, err := os.ReadFile(filepath.Join(c.baseDir, entry.Name()))
		if err != nil {
			continue
		}
		var cacheEntry CacheEntry
		if err := json.Unmarshal(data, &cacheEntry); err != nil {
			stats.Expired++
			continue
		}
		if now.Before(cacheEntry.ExpiresAt) {
			stats.Valid++
		} else {
			stats.Expired++
		}
	}

	return stats, nil
}

// getCacheFilePath generates a cache file path for a given key
func (c *Cache) getCacheFilePath(key string) string {
	// Use SHA256 hash of the key as filename to avoid filesystem issues
	hash := sha256.Sum256([]byte(key))
	filename := hex.EncodeToString(hash[:]) + ".json"
	return filepath.Join(c.baseDir, filename)
}

// GetDefaultCachePath returns the default cache directory path
func GetDefaultCachePath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user cache directory: %w", err)
	}
	return filepath.Join(dir, "qgate"), nil
}
