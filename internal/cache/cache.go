// Package cache is the in-memory store for hot lookups such as validated access tokens. It is best effort: entries
// may be evicted at any time, and every entry carries its own expiry so a stale hit is never returned.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	hitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fedhost_cache_hits_total",
		Help: "Number of cache lookups that found a live entry.",
	}, []string{"cache"})
	missesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fedhost_cache_misses_total",
		Help: "Number of cache lookups that found nothing or an expired entry.",
	}, []string{"cache"})
)

const (
	DefaultSize = 10_000
	DefaultTTL  = 5 * time.Minute
)

type entry[V any] struct {
	value   V
	expires time.Time
}

// Cache is an LRU with a default TTL and optional shorter per-entry lifetimes. It is safe for concurrent use.
type Cache[V any] struct {
	name string
	ttl  time.Duration
	lru  *expirable.LRU[string, entry[V]]
	hits prometheus.Counter
	miss prometheus.Counter
	now  func() time.Time
}

// New creates a cache holding at most size entries, none of which outlives ttl. name labels its metrics.
func New[V any](name string, size int, ttl time.Duration) *Cache[V] {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Cache[V]{
		name: name,
		ttl:  ttl,
		lru:  expirable.NewLRU[string, entry[V]](size, nil, ttl),
		hits: hitsTotal.WithLabelValues(name),
		miss: missesTotal.WithLabelValues(name),
		now:  time.Now,
	}
}

func (c *Cache[V]) Get(key string) (v V, ok bool) {
	e, ok := c.lru.Get(key)
	if ok && c.now().Before(e.expires) {
		c.hits.Inc()
		return e.value, true
	}
	if ok {
		c.lru.Remove(key)
	}
	c.miss.Inc()
	return v, false
}

// Set stores v for the cache's default TTL.
func (c *Cache[V]) Set(key string, v V) {
	c.SetWithTTL(key, v, c.ttl)
}

// SetWithTTL stores v for min(ttl, default TTL). A non-positive ttl stores nothing.
func (c *Cache[V]) SetWithTTL(key string, v V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ttl = min(ttl, c.ttl)
	c.lru.Add(key, entry[V]{value: v, expires: c.now().Add(ttl)})
}

func (c *Cache[V]) Delete(key string) {
	c.lru.Remove(key)
}

func (c *Cache[V]) Len() int {
	return c.lru.Len()
}

func (c *Cache[V]) TTL() time.Duration {
	return c.ttl
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	c.lru.Purge()
}
