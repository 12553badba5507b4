package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/mbecker/reel/internal/domain"
)

// StalePolicy decides what to do with a cache entry that is past MaxAge
// but within StaleDuration. The choice is explicit; there is no implicit
// default path.
type StalePolicy int

const (
	// ServeStaleRevalidate returns the stale file immediately and
	// refreshes it in the background.
	ServeStaleRevalidate StalePolicy = iota
	// BlockOnRefresh ignores the stale file and blocks on a fresh
	// download.
	BlockOnRefresh
)

const chunkSize = 32 * 1024

// Manager performs cache-aware media fetches with bounded retries,
// per-URL in-flight dedup, and chunked progress reporting.
//
// Concurrent fetches of the same URL share one network transfer via
// singleflight; every caller receives the same resulting file. A caller
// whose context is cancelled detaches early while the transfer completes
// and populates the cache silently.
type Manager struct {
	cfg      CacheConfig
	policy   StalePolicy
	cache    *Cache
	client   *http.Client
	streamer *Streamer
	logger   *slog.Logger

	group singleflight.Group

	mu        sync.Mutex
	interest  map[string]map[string]struct{} // url -> story IDs wanting progress
	abandoned map[string]struct{}            // story IDs with muted progress
	inflight  map[string]struct{}            // urls with an active transfer
	disposed  bool
}

// NewManager creates a manager over a fresh disk cache. A nil client gets
// a 60 second timeout default; a nil streamer gets a private one.
func NewManager(cfg CacheConfig, policy StalePolicy, streamer *Streamer, client *http.Client, logger *slog.Logger) (*Manager, error) {
	cache, err := NewCache(cfg)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if streamer == nil {
		streamer = NewStreamer(logger)
	}
	return &Manager{
		cfg:       cfg,
		policy:    policy,
		cache:     cache,
		client:    client,
		streamer:  streamer,
		logger:    logger,
		interest:  make(map[string]map[string]struct{}),
		abandoned: make(map[string]struct{}),
		inflight:  make(map[string]struct{}),
	}, nil
}

// Streamer returns the progress streamer fetches publish to.
func (m *Manager) Streamer() *Streamer { return m.streamer }

// Fetch returns a local file for the URL, from cache when fresh enough,
// otherwise via a deduplicated, retrying download. storyID keys the
// progress events this fetch emits.
func (m *Manager) Fetch(ctx context.Context, url, storyID string) (domain.MediaHandle, error) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return domain.MediaHandle{}, domain.ErrDisposed
	}
	// A fresh fetch renews interest in a previously abandoned story.
	delete(m.abandoned, storyID)
	m.mu.Unlock()

	handle, freshness := m.cache.Lookup(url, time.Now())
	switch freshness {
	case CacheFresh:
		return handle, nil
	case CacheStale:
		if m.policy == ServeStaleRevalidate {
			m.revalidate(url, storyID)
			return handle, nil
		}
		// BlockOnRefresh: fall through to a blocking transfer.
	}

	return m.transfer(ctx, url, storyID)
}

// Abandon mutes progress emission for a story the user navigated away
// from. The underlying transfer, if any, runs to completion and populates
// the cache silently, avoiding a wasted re-download.
func (m *Manager) Abandon(storyID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.abandoned[storyID] = struct{}{}
	for url, stories := range m.interest {
		delete(stories, storyID)
		if len(stories) == 0 {
			delete(m.interest, url)
		}
	}
}

// PrefetchItem names one media URL to warm the cache with.
type PrefetchItem struct {
	URL     string
	StoryID string
}

// Prefetch warms the cache for upcoming stories with bounded concurrency.
// Individual failures are logged and skipped; prefetching is best-effort.
func (m *Manager) Prefetch(ctx context.Context, items []PrefetchItem, limit int) error {
	if limit <= 0 {
		limit = 2
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, item := range items {
		item := item
		g.Go(func() error {
			if _, err := m.Fetch(ctx, item.URL, item.StoryID); err != nil {
				m.logger.Debug("prefetch failed", "url", item.URL, "story", item.StoryID, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Dispose clears the in-flight map without cancelling running transfers
// and stops all progress emission. Further fetches are rejected.
func (m *Manager) Dispose() {
	m.mu.Lock()
	m.disposed = true
	m.interest = make(map[string]map[string]struct{})
	urls := make([]string, 0, len(m.inflight))
	for url := range m.inflight {
		urls = append(urls, url)
	}
	m.mu.Unlock()

	for _, url := range urls {
		m.group.Forget(url)
	}
	m.streamer.Close()
}

// transfer joins (or starts) the deduplicated download for a URL and waits
// for it, detaching early if the caller's context is cancelled.
func (m *Manager) transfer(ctx context.Context, url, storyID string) (domain.MediaHandle, error) {
	m.registerInterest(url, storyID)
	defer m.unregisterInterest(url, storyID)

	ch := m.group.DoChan(url, func() (any, error) {
		return m.download(url)
	})

	select {
	case <-ctx.Done():
		// The shared transfer keeps running and fills the cache.
		return domain.MediaHandle{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.MediaHandle{}, res.Err
		}
		return res.Val.(domain.MediaHandle), nil
	}
}

// revalidate refreshes a stale entry in the background. Dedup through the
// same singleflight group means an already-running refresh is joined, not
// duplicated.
func (m *Manager) revalidate(url, storyID string) {
	m.registerInterest(url, storyID)
	go func() {
		defer m.unregisterInterest(url, storyID)
		ch := m.group.DoChan(url, func() (any, error) {
			return m.download(url)
		})
		if res := <-ch; res.Err != nil {
			m.logger.Warn("background revalidation failed", "url", url, "error", res.Err)
		}
	}()
}

// download runs the retry loop for one URL. It executes inside the
// singleflight group, at most once per URL at any time.
func (m *Manager) download(url string) (domain.MediaHandle, error) {
	m.mu.Lock()
	m.inflight[url] = struct{}{}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.inflight, url)
		m.mu.Unlock()
	}()

	attempts := m.cfg.MaxRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := m.cfg.Retry.Delay(attempt - 1)
			m.logger.Debug("retrying download", "url", url, "attempt", attempt, "delay", delay)
			time.Sleep(delay)
		}

		handle, err := m.attempt(url)
		if err == nil {
			m.publish(url, handle.Size, handle.Size, domain.DownloadCompleted, nil)
			return handle, nil
		}
		lastErr = err
		m.logger.Warn("download attempt failed", "url", url, "attempt", attempt+1, "error", err)
	}

	err := &domain.RetryExhaustedError{Attempts: attempts, LastErr: lastErr}
	m.publish(url, 0, -1, domain.DownloadFailed, err)
	return domain.MediaHandle{}, err
}

// attempt performs one HTTP transfer into a temp file and commits it to
// the cache. The request is deliberately not bound to any caller context:
// an abandoned transfer is allowed to finish and warm the cache.
func (m *Manager) attempt(url string) (domain.MediaHandle, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return domain.MediaHandle{}, &domain.NetworkError{URL: url, Err: err}
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return domain.MediaHandle{}, &domain.NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.MediaHandle{}, &domain.NetworkError{URL: url, Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)}
	}

	tmp, err := m.cache.TempFile(url)
	if err != nil {
		return domain.MediaHandle{}, err
	}
	defer os.Remove(tmp.Name())

	total := resp.ContentLength // -1 when unknown
	var downloaded int64
	buf := make([]byte, chunkSize)

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := tmp.Write(buf[:n]); writeErr != nil {
				tmp.Close()
				return domain.MediaHandle{}, &domain.FileSystemError{Path: tmp.Name(), Err: writeErr}
			}
			downloaded += int64(n)
			m.publish(url, downloaded, total, domain.DownloadInProgress, nil)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			tmp.Close()
			return domain.MediaHandle{}, &domain.NetworkError{URL: url, Err: readErr}
		}
	}

	if err := tmp.Close(); err != nil {
		return domain.MediaHandle{}, &domain.FileSystemError{Path: tmp.Name(), Err: err}
	}
	return m.cache.Commit(url, tmp.Name(), time.Now())
}

// publish fans a progress snapshot out to every story currently interested
// in this URL. Abandoned stories get nothing.
func (m *Manager) publish(url string, downloaded, total int64, status domain.DownloadStatus, cause error) {
	m.mu.Lock()
	stories := make([]string, 0, len(m.interest[url]))
	for storyID := range m.interest[url] {
		if _, gone := m.abandoned[storyID]; !gone {
			stories = append(stories, storyID)
		}
	}
	m.mu.Unlock()

	progress := 0.0
	if total > 0 {
		progress = float64(downloaded) / float64(total)
	}
	for _, storyID := range stories {
		m.streamer.Publish(domain.DownloadProgress{
			StoryID:         storyID,
			URL:             url,
			Progress:        progress,
			DownloadedBytes: downloaded,
			TotalBytes:      total,
			Status:          status,
			Err:             cause,
		})
	}
}

func (m *Manager) registerInterest(url, storyID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.interest[url] == nil {
		m.interest[url] = make(map[string]struct{})
	}
	m.interest[url][storyID] = struct{}{}
}

func (m *Manager) unregisterInterest(url, storyID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stories, ok := m.interest[url]; ok {
		delete(stories, storyID)
		if len(stories) == 0 {
			delete(m.interest, url)
		}
	}
}
