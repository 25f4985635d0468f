package preprocess

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/hupe1980/invoicemesh/core"
)

// Cache keeps recently pre-processed documents in process, keyed by content
// hash, so that re-submitting identical bytes skips rasterization.
type Cache struct {
	c   *ristretto.Cache[string, *core.Document]
	ttl time.Duration
}

// NewCache creates a ristretto-backed cache. maxCostBytes bounds the total
// size of cached page images and text.
func NewCache(maxCostBytes int64, ttl time.Duration) (*Cache, error) {
	counters := maxCostBytes / 1000 * 10 // ~10x expected items
	if counters < 100 {
		counters = 100
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, *core.Document]{
		NumCounters: counters,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c, ttl: ttl}, nil
}

// Key derives the cache key from the file bytes and declared MIME type.
func Key(fileBytes []byte, mimeType string) string {
	h := sha256.New()
	h.Write([]byte(mimeType))
	h.Write([]byte{0})
	h.Write(fileBytes)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a copy of the cached document for key.
func (c *Cache) Get(key string) (*core.Document, bool) {
	doc, ok := c.c.Get(key)
	if !ok || doc == nil {
		return nil, false
	}
	return copyDocument(doc), true
}

// Set stores doc under key. Admission is asynchronous.
func (c *Cache) Set(key string, doc *core.Document) {
	c.c.SetWithTTL(key, copyDocument(doc), documentCost(doc), c.ttl)
}

// Wait blocks until pending writes are applied.
func (c *Cache) Wait() { c.c.Wait() }

// Close shuts down the cache and releases resources.
func (c *Cache) Close() { c.c.Close() }

func documentCost(doc *core.Document) int64 {
	cost := int64(len(doc.Text)) + 1
	for _, p := range doc.Pages {
		cost += int64(len(p.Data))
	}
	return cost
}

func copyDocument(doc *core.Document) *core.Document {
	cp := *doc
	cp.Pages = append([]core.Page(nil), doc.Pages...)
	cp.Warnings = append([]string(nil), doc.Warnings...)
	return &cp
}
