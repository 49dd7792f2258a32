package prepare

import (
	"container/list"
	"sync"
	"time"

	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/models"
)

// entry is one cached frozen input with the bookkeeping the delta decision
// needs.
type entry struct {
	frozen        *models.FrozenInput
	schemaVersion string
	storedAt      time.Time
	itemCount     int
}

// Age reports how long the entry has been cached.
func (e *entry) Age() time.Duration { return time.Since(e.storedAt) }

// frozenCache is the preparation cache: TTL expiry plus LRU eviction at a
// fixed size. Safe for concurrent readers with a single writer per key.
// (go-cache covers the engine's plain TTL caches; this one also needs a
// deterministic eviction order, so it owns its own index.)
type frozenCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	items   map[string]*list.Element
	order   *list.List // front = most recently used
}

type cacheNode struct {
	key string
	ent *entry
}

func newFrozenCache(ttl time.Duration, maxSize int) *frozenCache {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &frozenCache{
		ttl:     ttl,
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get returns the live entry for key, expiring stale ones on the way.
func (c *frozenCache) Get(key string) (*entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	node := el.Value.(*cacheNode)
	if c.ttl > 0 && time.Since(node.ent.storedAt) > c.ttl {
		c.order.Remove(el)
		delete(c.items, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return node.ent, true
}

// Put stores an entry, evicting the least recently used once full.
func (c *frozenCache) Put(key string, ent *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*cacheNode).ent = ent
		c.order.MoveToFront(el)
		return
	}
	c.items[key] = c.order.PushFront(&cacheNode{key: key, ent: ent})
	for len(c.items) > c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheNode).key)
	}
}

// Remove drops a key.
func (c *frozenCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	}
}

// Len reports the live entry count.
func (c *frozenCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
