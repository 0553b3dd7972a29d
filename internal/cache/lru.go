package cache

import (
	"container/list"
	"time"
)

// lru is a count-bounded recency list with per-entry age. It is not safe
// for concurrent use; TemplateCache guards it.
type lru[K comparable, V any] struct {
	max int
	ttl time.Duration
	ll  *list.List
	m   map[K]*list.Element
}

type lruEntry[K comparable, V any] struct {
	key      K
	value    V
	storedAt time.Time
}

func newLRU[K comparable, V any](max int, ttl time.Duration) *lru[K, V] {
	return &lru[K, V]{max: max, ttl: ttl, ll: list.New(), m: make(map[K]*list.Element)}
}

// get returns the value for k and promotes it. An entry older than ttl is
// removed and reported as expired.
func (c *lru[K, V]) get(k K, now time.Time) (v V, ok, expired bool) {
	e, found := c.m[k]
	if !found {
		return v, false, false
	}
	ent := e.Value.(*lruEntry[K, V])
	if c.isExpired(ent, now) {
		c.remove(e)
		return v, false, true
	}
	c.ll.MoveToFront(e)
	return ent.value, true, false
}

// put stores k at the front and returns the keys evicted to stay within max.
// An existing entry for k is replaced, never modified.
func (c *lru[K, V]) put(k K, v V, now time.Time) []K {
	if e, ok := c.m[k]; ok {
		c.remove(e)
	}
	c.m[k] = c.ll.PushFront(&lruEntry[K, V]{key: k, value: v, storedAt: now})
	return c.trim()
}

func (c *lru[K, V]) delete(k K) bool {
	e, ok := c.m[k]
	if ok {
		c.remove(e)
	}
	return ok
}

// sweep removes every expired entry and returns how many went.
func (c *lru[K, V]) sweep(now time.Time) int {
	if c.ttl <= 0 {
		return 0
	}
	n := 0
	for e := c.ll.Back(); e != nil; {
		prev := e.Prev()
		if c.isExpired(e.Value.(*lruEntry[K, V]), now) {
			c.remove(e)
			n++
		}
		e = prev
	}
	return n
}

// resize applies new bounds, evicting from the tail if max shrank.
func (c *lru[K, V]) resize(max int, ttl time.Duration) []K {
	c.max = max
	c.ttl = ttl
	return c.trim()
}

func (c *lru[K, V]) clear() {
	c.ll.Init()
	clear(c.m)
}

func (c *lru[K, V]) len() int { return c.ll.Len() }

func (c *lru[K, V]) trim() []K {
	var evicted []K
	for c.max > 0 && c.ll.Len() > c.max {
		tail := c.ll.Back()
		evicted = append(evicted, tail.Value.(*lruEntry[K, V]).key)
		c.remove(tail)
	}
	return evicted
}

func (c *lru[K, V]) remove(e *list.Element) {
	c.ll.Remove(e)
	delete(c.m, e.Value.(*lruEntry[K, V]).key)
}

func (c *lru[K, V]) isExpired(ent *lruEntry[K, V], now time.Time) bool {
	return c.ttl > 0 && now.Sub(ent.storedAt) >= c.ttl
}
