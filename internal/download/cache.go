package download

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mbecker/reel/internal/domain"
)

// Freshness classifies a cache entry against the configured age windows.
type Freshness int

const (
	// CacheMiss means no cached file exists.
	CacheMiss Freshness = iota
	// CacheFresh means the file is within MaxAge and served without I/O.
	CacheFresh
	// CacheStale means the file is past MaxAge but within StaleDuration:
	// usable, due for refresh.
	CacheStale
	// CacheExpired means the file is past StaleDuration and unusable.
	CacheExpired
)

// String returns a human-readable representation of the freshness
func (f Freshness) String() string {
	switch f {
	case CacheFresh:
		return "fresh"
	case CacheStale:
		return "stale"
	case CacheExpired:
		return "expired"
	default:
		return "miss"
	}
}

// CacheConfig bounds the media cache and its retry behavior.
type CacheConfig struct {
	Dir           string
	MaxAge        time.Duration
	StaleDuration time.Duration
	MaxRetries    int
	Retry         RetryPolicy
}

// Validate checks the config invariants: StaleDuration at least MaxAge and
// a non-negative retry budget.
func (c CacheConfig) Validate() error {
	if c.MaxAge <= 0 {
		return &domain.ValidationError{Field: "maxAge", Reason: "must be positive"}
	}
	if c.StaleDuration < c.MaxAge {
		return &domain.ValidationError{Field: "staleDuration", Reason: "must be at least maxAge"}
	}
	if c.MaxRetries < 0 {
		return &domain.ValidationError{Field: "maxRetries", Reason: "must not be negative"}
	}
	return nil
}

// Cache is a content-addressed disk cache for downloaded media. Files are
// named by a hash of their source URL; age is taken from file mtime.
type Cache struct {
	dir           string
	maxAge        time.Duration
	staleDuration time.Duration
}

// NewCache creates the cache directory if needed.
func NewCache(cfg CacheConfig) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, &domain.FileSystemError{Path: cfg.Dir, Err: err}
	}
	return &Cache{dir: cfg.Dir, maxAge: cfg.MaxAge, staleDuration: cfg.StaleDuration}, nil
}

// Path returns the cache file path for a URL.
func (c *Cache) Path(rawURL string) string {
	return filepath.Join(c.dir, hashURL(rawURL)+extensionOf(rawURL))
}

// Lookup classifies the cache entry for a URL and, when usable, returns a
// handle to it. The handle is zero-valued for CacheMiss and CacheExpired.
func (c *Cache) Lookup(rawURL string, now time.Time) (domain.MediaHandle, Freshness) {
	path := c.Path(rawURL)
	info, err := os.Stat(path)
	if err != nil {
		return domain.MediaHandle{}, CacheMiss
	}

	age := now.Sub(info.ModTime())
	switch {
	case age <= c.maxAge:
		return domain.MediaHandle{
			Path:      path,
			URL:       rawURL,
			Size:      info.Size(),
			FetchedAt: info.ModTime(),
			FromCache: true,
		}, CacheFresh
	case age <= c.staleDuration:
		return domain.MediaHandle{
			Path:      path,
			URL:       rawURL,
			Size:      info.Size(),
			FetchedAt: info.ModTime(),
			FromCache: true,
			Stale:     true,
		}, CacheStale
	default:
		return domain.MediaHandle{}, CacheExpired
	}
}

// Commit atomically moves a completed temp file into its cache slot and
// returns the resulting handle.
func (c *Cache) Commit(rawURL, tempPath string, now time.Time) (domain.MediaHandle, error) {
	path := c.Path(rawURL)
	if err := os.Rename(tempPath, path); err != nil {
		return domain.MediaHandle{}, &domain.FileSystemError{Path: path, Err: err}
	}
	// Refresh mtime so the age window starts now, not at temp-file creation.
	_ = os.Chtimes(path, now, now)

	info, err := os.Stat(path)
	if err != nil {
		return domain.MediaHandle{}, &domain.FileSystemError{Path: path, Err: err}
	}
	return domain.MediaHandle{
		Path:      path,
		URL:       rawURL,
		Size:      info.Size(),
		FetchedAt: now,
	}, nil
}

// TempFile creates a temp file in the cache dir for an in-progress
// transfer, so Commit's rename stays on one filesystem.
func (c *Cache) TempFile(rawURL string) (*os.File, error) {
	f, err := os.CreateTemp(c.dir, hashURL(rawURL)+".part-*")
	if err != nil {
		return nil, &domain.FileSystemError{Path: c.dir, Err: err}
	}
	return f, nil
}

func hashURL(rawURL string) string {
	normalized := strings.TrimRight(rawURL, "/")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:12])
}

// extensionOf extracts a sane file extension from the URL path, if any.
func extensionOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := filepath.Ext(u.Path)
	if len(ext) > 8 || strings.ContainsAny(ext, "/\\") {
		return ""
	}
	return ext
}
