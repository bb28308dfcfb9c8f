package store

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ImportDedup tracks which imported track URIs were already resolved and
// applied this session, so a re-import skips them. A Bloom filter screens the
// common miss case before the exact map lookup; the LRU bounds memory by
// evicting the oldest URIs.
type ImportDedup struct {
	uris                   map[string]struct{}
	bloom                  *bloom.BloomFilter
	lru                    *lru.Cache[string, struct{}]
	mutex                  sync.RWMutex
	maxEntries             int
	bloomFalsePositiveRate float64
}

const (
	defaultDedupEntries           = 10000
	defaultDedupFalsePositiveRate = 0.001
)

func NewImportDedup(maxEntries int, bloomFalsePositiveRate float64) *ImportDedup {
	if maxEntries < 1 {
		maxEntries = defaultDedupEntries
	}
	if bloomFalsePositiveRate <= 0 || bloomFalsePositiveRate >= 1 {
		bloomFalsePositiveRate = defaultDedupFalsePositiveRate
	}

	lruCache, _ := lru.New[string, struct{}](maxEntries)
	bloomFilter := bloom.NewWithEstimates(uint(maxEntries), bloomFalsePositiveRate)

	return &ImportDedup{
		uris:                   make(map[string]struct{}),
		bloom:                  bloomFilter,
		lru:                    lruCache,
		maxEntries:             maxEntries,
		bloomFalsePositiveRate: bloomFalsePositiveRate,
	}
}

// Has reports whether a URI was already imported.
func (d *ImportDedup) Has(uri string) bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	if !d.bloom.TestString(uri) {
		return false
	}

	_, exists := d.uris[uri]
	return exists
}

// Add records a URI as imported.
func (d *ImportDedup) Add(uri string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if _, exists := d.uris[uri]; exists {
		return
	}

	d.uris[uri] = struct{}{}
	d.bloom.AddString(uri)
	d.lru.Add(uri, struct{}{})

	if len(d.uris) > d.maxEntries {
		d.evictOldest()
	}
}

// Load clears the store and seeds it with the given URIs, e.g. from the
// target playlist's current contents.
func (d *ImportDedup) Load(uris []string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.uris = make(map[string]struct{})
	d.bloom = bloom.NewWithEstimates(uint(d.maxEntries), d.bloomFalsePositiveRate)
	d.lru.Purge()

	for _, uri := range uris {
		if uri == "" {
			continue
		}
		d.uris[uri] = struct{}{}
		d.bloom.AddString(uri)
		d.lru.Add(uri, struct{}{})
	}

	for len(d.uris) > d.maxEntries {
		d.evictOldest()
	}
}

// Size returns the number of URIs currently tracked.
func (d *ImportDedup) Size() int {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return len(d.uris)
}

func (d *ImportDedup) evictOldest() {
	oldestKey, _, ok := d.lru.GetOldest()
	if !ok {
		return
	}

	delete(d.uris, oldestKey)
	d.lru.Remove(oldestKey)
}
