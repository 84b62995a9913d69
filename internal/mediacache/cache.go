// Package mediacache persists decrypted attachment bytes on disk,
// keyed by message id, so the expensive bridge decrypt path runs at
// most once per message. Entries are write-once and there is no
// eviction.
package mediacache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Entry is one cached attachment. Data is stored base64-encoded in the
// entry file.
type Entry struct {
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// Cache is a file-per-id content store under a single directory.
type Cache struct {
	dir string
}

// New creates a cache rooted at dir. The directory is created lazily
// on first Put.
func New(dir string) *Cache {
	return &Cache{dir: dir}
}

func (c *Cache) entryPath(id string) string {
	return filepath.Join(c.dir, id+".json")
}

// Has reports whether an entry exists for the given message id.
func (c *Cache) Has(id string) bool {
	_, err := os.Stat(c.entryPath(id))
	return err == nil
}

// Put stores decrypted bytes for a message id. Creating the cache
// directory is idempotent; writing the same id twice is last-write-wins
// on a fixed path.
func (c *Cache) Put(id string, data []byte, mimeType string) error {
	if err := os.MkdirAll(c.dir, 0700); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	raw, err := json.Marshal(Entry{MimeType: mimeType, Data: data})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := os.WriteFile(c.entryPath(id), raw, 0600); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// Get returns the cached entry for a message id, or nil when absent.
// Entries are looked up strictly by id; the content is not verified.
func (c *Cache) Get(id string) (*Entry, error) {
	raw, err := os.ReadFile(c.entryPath(id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache entry: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &e, nil
}
