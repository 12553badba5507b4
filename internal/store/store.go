package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketViewed = []byte("viewed")
)

// viewedRecord is the persisted value for one viewed story.
type viewedRecord struct {
	ViewedAt time.Time `json:"viewed_at"`
}

// ViewedStore persists per-user view history using BoltDB.
type ViewedStore struct {
	db *bolt.DB
	mu sync.RWMutex // Protects memory cache

	// In-memory cache for hot-path reads (promoted on access)
	cache map[string][]byte
}

func NewViewedStore(dir string) (*ViewedStore, error) {
	if dir == "" {
		// Memory-only mode (no persistence)
		return &ViewedStore{cache: make(map[string][]byte)}, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, "reel.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketViewed)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &ViewedStore{db: db, cache: make(map[string][]byte)}, nil
}

func (s *ViewedStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// MarkViewed records that userID has seen storyID. The first view wins:
// marking an already-viewed story keeps the original timestamp.
func (s *ViewedStore) MarkViewed(userID, storyID string, at time.Time) error {
	key := viewedKey(userID, storyID)
	var existing viewedRecord
	if s.get(bucketViewed, key, &existing) {
		return nil
	}
	return s.set(bucketViewed, key, viewedRecord{ViewedAt: at})
}

func (s *ViewedStore) IsViewed(userID, storyID string) (bool, error) {
	var rec viewedRecord
	return s.get(bucketViewed, viewedKey(userID, storyID), &rec), nil
}

func (s *ViewedStore) ViewedAt(userID, storyID string) (time.Time, bool, error) {
	var rec viewedRecord
	if !s.get(bucketViewed, viewedKey(userID, storyID), &rec) {
		return time.Time{}, false, nil
	}
	return rec.ViewedAt, true, nil
}

// ClearUser drops all view history for one user.
func (s *ViewedStore) ClearUser(userID string) {
	s.deletePrefix(bucketViewed, userID+":")
}

func viewedKey(userID, storyID string) string {
	return userID + ":" + storyID
}

// === Generic helpers ===

func (s *ViewedStore) get(bucket []byte, key string, dest interface{}) bool {
	cacheKey := string(bucket) + ":" + key

	// Check memory cache first
	s.mu.RLock()
	if data, ok := s.cache[cacheKey]; ok {
		s.mu.RUnlock()
		return json.Unmarshal(data, dest) == nil
	}
	s.mu.RUnlock()

	if s.db == nil {
		return false
	}

	// Read from BoltDB
	var data []byte
	s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})

	if data == nil {
		return false
	}

	// Promote to memory cache
	s.mu.Lock()
	s.cache[cacheKey] = data
	s.mu.Unlock()

	return json.Unmarshal(data, dest) == nil
}

func (s *ViewedStore) set(bucket []byte, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	cacheKey := string(bucket) + ":" + key

	// Update memory cache
	s.mu.Lock()
	s.cache[cacheKey] = data
	s.mu.Unlock()

	if s.db == nil {
		return nil // Memory-only mode
	}

	// Write to BoltDB
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		return b.Put([]byte(key), data)
	})
}

func (s *ViewedStore) deletePrefix(bucket []byte, prefix string) {
	// Clear from memory cache
	s.mu.Lock()
	cachePrefix := string(bucket) + ":" + prefix
	for k := range s.cache {
		if len(k) >= len(cachePrefix) && k[:len(cachePrefix)] == cachePrefix {
			delete(s.cache, k)
		}
	}
	s.mu.Unlock()

	if s.db == nil {
		return
	}

	s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && len(k) >= len(p) && string(k[:len(p)]) == prefix; k, _ = c.Seek(p) {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
