// Package cachehierarchy implements the Cache Hierarchy (C4): four
// independent, byte-weighted LRU caches for SST footers, repeated-value
// vectors, decoded column pages, and a write-through local copy of
// object-store files, unified behind one façade (spec.md §4.1).
//
// The LRU itself is generalized from the teacher's cache.Cache[TK,TV]
// doubly-linked-list MRU (cache/cache.go, cache/mru.go): instead of an
// item-count capacity it tracks a caller-supplied byte weight per entry
// against a byte budget, and instead of one global lock it shards entries by
// key hash the way cache/l2inmemorycache.sharded_map.go does. Each shard has
// one exclusive mutex, so a Get blocks a concurrent Get on a different key
// only when both keys hash to the same shard.
package cachehierarchy

import (
	"container/list"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// Weigher reports the estimated byte size of a key/value pair, used both to
// enforce capacity and to drive the exported byte gauge (spec.md §4.1 Weight
// functions).
type Weigher[K comparable, V any] func(key K, val V) int64

const shardCount = 16

type lruEntry[K comparable, V any] struct {
	key    K
	val    V
	weight int64
}

// lruShard owns only a lock and an index; byte-budget accounting is global
// (see WeightedLRU.used) so that a single entry up to the cache's entire
// configured capacity can be admitted regardless of which shard its key
// hashes to (spec.md §8 Law: "non-zero budget and entry weight ≤ budget" must
// round-trip — a 1/shardCount slice of the budget is not the Law's budget).
type lruShard[K comparable, V any] struct {
	mu    sync.Mutex
	ll    *list.List // MRU at front, LRU at back
	index map[K]*list.Element
}

// WeightedLRU is a byte-weighted, sharded, concurrency-safe LRU cache.
// Sharding only narrows lock contention between Gets/Puts on unrelated keys;
// the byte budget itself is tracked once, globally, via used. A Put racing
// another Put for the same key is resolved last-writer-wins under the shard
// lock, so no partial entry is ever observed (spec.md §4.1 Concurrency).
type WeightedLRU[K comparable, V any] struct {
	shards   [shardCount]*lruShard[K, V]
	weigh    Weigher[K, V]
	onEvict  func(key K, val V, weight int64)
	capacity int64
	used     atomic.Int64
}

// NewWeightedLRU returns a WeightedLRU with the given total byte capacity. A capacity of
// 0 makes the cache always-miss/ignored (spec.md §4.1 "absent caches behave as
// always-miss/ignored-put") — callers should skip constructing a tier at all
// when its configured budget is 0, per the façade in hierarchy.go.
func NewWeightedLRU[K comparable, V any](capacityBytes int64, weigh Weigher[K, V], onEvict func(key K, val V, weight int64)) *WeightedLRU[K, V] {
	c := &WeightedLRU[K, V]{weigh: weigh, onEvict: onEvict, capacity: capacityBytes}
	for i := range c.shards {
		c.shards[i] = &lruShard[K, V]{
			ll:    list.New(),
			index: make(map[K]*list.Element),
		}
	}
	return c
}

func shardFor[K comparable, V any](c *WeightedLRU[K, V], key K) *lruShard[K, V] {
	h := fnv.New32a()
	fmt.Fprintf(h, "%v", key)
	return c.shards[h.Sum32()%shardCount]
}

// Get returns the cached value for key and promotes it to MRU position on a
// hit.
func (c *WeightedLRU[K, V]) Get(key K) (V, bool) {
	s := shardFor(c, key)
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	s.ll.MoveToFront(el)
	return el.Value.(*lruEntry[K, V]).val, true
}

// Put inserts or updates key/val, then evicts LRU entries — from whichever
// shards hold them, not necessarily key's own shard — until the cache is
// back within its total byte budget. Put silently no-ops if val's weight
// exceeds the cache's entire capacity (spec.md §4.1 Error conditions).
func (c *WeightedLRU[K, V]) Put(key K, val V) {
	weight := c.weigh(key, val)
	if c.capacity <= 0 || weight > c.capacity {
		return
	}

	s := shardFor(c, key)
	s.mu.Lock()
	var delta int64
	if el, ok := s.index[key]; ok {
		old := el.Value.(*lruEntry[K, V])
		delta = weight - old.weight
		old.val = val
		old.weight = weight
		s.ll.MoveToFront(el)
	} else {
		el := s.ll.PushFront(&lruEntry[K, V]{key: key, val: val, weight: weight})
		s.index[key] = el
		delta = weight
	}
	s.mu.Unlock()

	if c.used.Add(delta) > c.capacity {
		c.evictUntilWithinBudget()
	}
}

// evictUntilWithinBudget walks the shards round-robin, evicting each one's
// LRU-back entry, until total usage is back within capacity or every shard is
// empty. This approximates global LRU ordering rather than guaranteeing it —
// an acceptable trade for never taking more than one shard's lock at a time
// (spec.md §4.1 Concurrency).
func (c *WeightedLRU[K, V]) evictUntilWithinBudget() {
	for c.used.Load() > c.capacity {
		evictedAny := false
		for _, s := range c.shards {
			s.mu.Lock()
			back := s.ll.Back()
			if back == nil {
				s.mu.Unlock()
				continue
			}
			victim := back.Value.(*lruEntry[K, V])
			s.ll.Remove(back)
			delete(s.index, victim.key)
			s.mu.Unlock()

			c.used.Add(-victim.weight)
			if c.onEvict != nil {
				c.onEvict(victim.key, victim.val, victim.weight)
			}
			evictedAny = true
			if c.used.Load() <= c.capacity {
				break
			}
		}
		if !evictedAny {
			return
		}
	}
}

// Remove explicitly evicts key, if present, reporting it through onEvict the
// same as a capacity-driven eviction. Used when a region's ownership leaves
// this datanode (spec.md §3 CacheEntry lifecycle).
func (c *WeightedLRU[K, V]) Remove(key K) {
	s := shardFor(c, key)
	s.mu.Lock()
	el, ok := s.index[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	victim := el.Value.(*lruEntry[K, V])
	s.ll.Remove(el)
	delete(s.index, key)
	s.mu.Unlock()

	c.used.Add(-victim.weight)
	if c.onEvict != nil {
		c.onEvict(victim.key, victim.val, victim.weight)
	}
}

// Bytes returns the live weight currently held across the whole cache. This
// must always agree with the exported gauge the façade maintains (spec.md
// §4.1, §8 invariant).
func (c *WeightedLRU[K, V]) Bytes() int64 {
	return c.used.Load()
}

// Len returns the number of live entries across every shard.
func (c *WeightedLRU[K, V]) Len() int {
	var total int
	for _, s := range c.shards {
		s.mu.Lock()
		total += len(s.index)
		s.mu.Unlock()
	}
	return total
}
