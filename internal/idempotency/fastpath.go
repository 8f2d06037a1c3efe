package idempotency

import (
	"container/list"
	"sync"

	"lukechampine.com/blake3"
)

// fastPathCache is a bounded in-memory LRU of scope+key -> blake3 digest,
// used to short-circuit an obvious replay storm (§8 S3: 50 repeats of the
// same request) before it ever reaches the database. It is a pure
// performance optimization: a miss here means "check the database", never
// "this key does not exist". The durable payload_hash used for the
// authoritative conflict decision (§4.3) remains SHA-256 in the canonical
// package; blake3 here is a non-cryptographic convenience digest purely
// for the in-process cache key.
type fastPathCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List
}

type fastPathEntry struct {
	cacheKey string
	digest   [32]byte
}

func newFastPathCache(capacity int) *fastPathCache {
	return &fastPathCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

func digestOf(scope, key, payloadHash string) [32]byte {
	h := blake3.New(32, nil)
	_, _ = h.Write([]byte(scope))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(key))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(payloadHash))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func cacheKeyFor(scope, key string) string { return scope + "\x00" + key }

// markSeen records that (scope, key) is now associated with payloadHash.
func (c *fastPathCache) markSeen(scope, key, payloadHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ck := cacheKeyFor(scope, key)
	entry := &fastPathEntry{cacheKey: ck, digest: digestOf(scope, key, payloadHash)}
	if elem, ok := c.entries[ck]; ok {
		elem.Value = entry
		c.order.MoveToFront(elem)
		return
	}
	elem := c.order.PushFront(entry)
	c.entries[ck] = elem
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*fastPathEntry).cacheKey)
		}
	}
}

func (c *fastPathCache) forget(scope, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ck := cacheKeyFor(scope, key)
	if elem, ok := c.entries[ck]; ok {
		c.order.Remove(elem)
		delete(c.entries, ck)
	}
}

// check returns hit=true if (scope, key) is cached; matches reports
// whether the cached digest agrees with payloadHash. Callers must still
// consult the database -- this never substitutes for the authoritative
// lookup, it only lets an obviously-identical replay skip ahead.
func (c *fastPathCache) check(scope, key, payloadHash string) (hit bool, matches bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ck := cacheKeyFor(scope, key)
	elem, ok := c.entries[ck]
	if !ok {
		return false, false
	}
	c.order.MoveToFront(elem)
	entry := elem.Value.(*fastPathEntry)
	want := digestOf(scope, key, payloadHash)
	return true, entry.digest == want
}
