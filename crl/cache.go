package crl

import (
	"container/list"
	"sync"
	"time"

	"github.com/hashicorp/revoke-core/metrics"
)

// DefaultMaxEntries is the default CRL cache bound.
const DefaultMaxEntries = 100

// DefaultSoftTTL is the default soft-expiry window.
const DefaultSoftTTL = time.Hour

type cacheRecord struct {
	issuerDN   string
	crl        *CRL
	insertedAt time.Time
	elem       *list.Element
}

// Cache is a bounded, issuer-DN-keyed store of parsed CRLs.
// Eviction is strictly by insertion order -- the least-recently-*inserted*
// entry, not the least-recently-*read* one -- which is why this is built
// on container/list rather than an access-order LRU such as
// github.com/hashicorp/golang-lru (that library is used instead for the
// unrelated signature-verification memo in internal/sigcache, where
// access-order eviction is the right fit).
type Cache struct {
	mu      sync.RWMutex
	records map[string]*cacheRecord
	order   *list.List // front = oldest insertion, back = newest
	maxSize int
	softTTL time.Duration
	now     func() time.Time
}

// NewCache constructs a Cache bounded to maxSize entries (DefaultMaxEntries
// if maxSize <= 0) with soft TTL softTTL (DefaultSoftTTL if <= 0).
func NewCache(maxSize int, softTTL time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxEntries
	}
	if softTTL <= 0 {
		softTTL = DefaultSoftTTL
	}
	return &Cache{
		records: make(map[string]*cacheRecord),
		order:   list.New(),
		maxSize: maxSize,
		softTTL: softTTL,
		now:     time.Now,
	}
}

// Put inserts or replaces the CRL cached for issuerDN. Put is idempotent
// on key: replacing an existing issuer's CRL does not change its position
// in insertion order -- a refreshed CRL for an issuer already tracked
// doesn't reset its eviction priority to "just inserted".
func (c *Cache) Put(issuerDN string, crl *CRL) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if rec, ok := c.records[issuerDN]; ok {
		rec.crl = crl
		rec.insertedAt = now
		return
	}

	elem := c.order.PushBack(issuerDN)
	c.records[issuerDN] = &cacheRecord{
		issuerDN:   issuerDN,
		crl:        crl,
		insertedAt: now,
		elem:       elem,
	}

	if c.order.Len() > c.maxSize {
		c.evictOldestLocked()
	}
}

func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key := front.Value.(string)
	c.order.Remove(front)
	delete(c.records, key)
}

// Get returns the cached CRL for issuerDN, or (nil, false) if absent or if
// its soft TTL has elapsed -- in which case the entry is removed.
func (c *Cache) Get(issuerDN string) (*CRL, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[issuerDN]
	if !ok {
		metrics.RecordCacheMiss("crl")
		return nil, false
	}
	if c.now().After(rec.insertedAt.Add(c.softTTL)) {
		c.order.Remove(rec.elem)
		delete(c.records, issuerDN)
		metrics.RecordCacheMiss("crl")
		return nil, false
	}
	metrics.RecordCacheHit("crl")
	return rec.crl, true
}

// ExpiringSoon reports whether the cached CRL for issuerDN is absent, has
// no NextUpdate, or its NextUpdate falls within thresholdSeconds of now.
func (c *Cache) ExpiringSoon(issuerDN string, thresholdSeconds int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.records[issuerDN]
	if !ok {
		return true
	}
	if rec.crl.NextUpdate == nil {
		return true
	}
	deadline := c.now().Add(time.Duration(thresholdSeconds) * time.Second)
	return !rec.crl.NextUpdate.After(deadline)
}

// RemoveExpired evicts every entry with an absent NextUpdate, or whose
// NextUpdate has passed, and returns the count evicted.
func (c *Cache) RemoveExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, rec := range c.records {
		if rec.crl.NextUpdate == nil || now.After(*rec.crl.NextUpdate) {
			c.order.Remove(rec.elem)
			delete(c.records, key)
			removed++
		}
	}
	return removed
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = make(map[string]*cacheRecord)
	c.order.Init()
}

// Issuers returns the issuer DNs currently cached, oldest insertion first.
func (c *Cache) Issuers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, c.order.Len())
	for e := c.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(string))
	}
	return out
}

// Size returns the number of cached entries.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}
