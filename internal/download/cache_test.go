package download_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbecker/reel/internal/domain"
	"github.com/mbecker/reel/internal/download"
)

func TestCacheConfig_Validate(t *testing.T) {
	base := download.CacheConfig{
		Dir:           "/tmp/x",
		MaxAge:        time.Minute,
		StaleDuration: time.Hour,
		MaxRetries:    2,
	}

	tests := []struct {
		name    string
		mutate  func(*download.CacheConfig)
		wantErr bool
	}{
		{"valid", func(c *download.CacheConfig) {}, false},
		{"stale_equals_max_age", func(c *download.CacheConfig) { c.StaleDuration = c.MaxAge }, false},
		{"stale_below_max_age", func(c *download.CacheConfig) { c.StaleDuration = time.Second }, true},
		{"zero_max_age", func(c *download.CacheConfig) { c.MaxAge = 0 }, true},
		{"negative_retries", func(c *download.CacheConfig) { c.MaxRetries = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				var verr *domain.ValidationError
				require.ErrorAs(t, err, &verr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCache_FreshnessWindows(t *testing.T) {
	cfg := download.CacheConfig{
		Dir:           t.TempDir(),
		MaxAge:        time.Minute,
		StaleDuration: time.Hour,
	}
	cache, err := download.NewCache(cfg)
	require.NoError(t, err)

	url := "http://cdn.example/photo.jpg"
	path := cache.Path(url)
	require.NoError(t, os.WriteFile(path, []byte("cached"), 0644))

	now := time.Now()
	require.NoError(t, os.Chtimes(path, now, now))

	// Within MaxAge: fresh.
	handle, freshness := cache.Lookup(url, now.Add(30*time.Second))
	assert.Equal(t, download.CacheFresh, freshness)
	assert.True(t, handle.FromCache)
	assert.False(t, handle.Stale)

	// Past MaxAge, within StaleDuration: stale but usable.
	handle, freshness = cache.Lookup(url, now.Add(10*time.Minute))
	assert.Equal(t, download.CacheStale, freshness)
	assert.True(t, handle.Stale)

	// Past StaleDuration: unusable.
	_, freshness = cache.Lookup(url, now.Add(2*time.Hour))
	assert.Equal(t, download.CacheExpired, freshness)

	// Unknown URL: miss.
	_, freshness = cache.Lookup("http://cdn.example/other.jpg", now)
	assert.Equal(t, download.CacheMiss, freshness)
}

func TestCache_PathIsStablePerURL(t *testing.T) {
	cache, err := download.NewCache(download.CacheConfig{
		Dir:           t.TempDir(),
		MaxAge:        time.Minute,
		StaleDuration: time.Minute,
	})
	require.NoError(t, err)

	a := cache.Path("http://cdn.example/a.jpg")
	assert.Equal(t, a, cache.Path("http://cdn.example/a.jpg"))
	assert.NotEqual(t, a, cache.Path("http://cdn.example/b.jpg"))
	assert.Contains(t, a, ".jpg", "extension is preserved for player sniffing")
}
