package splitting

import (
	"container/list"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/poolcard/poolcard_service/internal/domain/entities"
)

const (
	defaultCacheSize = 1024
	defaultCacheTTL  = 60 * time.Second
)

type walletSnapshot struct {
	Policy    entities.SplitPolicy
	MemberIDs []uuid.UUID
}

type cacheEntry struct {
	walletID uuid.UUID
	snap     *walletSnapshot
	expires  time.Time
}

// policyCache is a bounded LRU with TTL. Entries are also dropped
// explicitly when a wallet's policy or membership changes.
type policyCache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	order   *list.List
	items   map[uuid.UUID]*list.Element
}

func newPolicyCache(maxSize int, ttl time.Duration) *policyCache {
	return &policyCache{
		maxSize: maxSize,
		ttl:     ttl,
		order:   list.New(),
		items:   make(map[uuid.UUID]*list.Element),
	}
}

func (c *policyCache) get(walletID uuid.UUID) (*walletSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[walletID]
	if !ok {
		return nil, false
	}

	entry := elem.Value.(*cacheEntry)
	if time.Now().After(entry.expires) {
		c.order.Remove(elem)
		delete(c.items, walletID)
		return nil, false
	}

	c.order.MoveToFront(elem)
	return entry.snap, true
}

func (c *policyCache) put(walletID uuid.UUID, snap *walletSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[walletID]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.snap = snap
		entry.expires = time.Now().Add(c.ttl)
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.maxSize {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).walletID)
		}
	}

	c.items[walletID] = c.order.PushFront(&cacheEntry{
		walletID: walletID,
		snap:     snap,
		expires:  time.Now().Add(c.ttl),
	})
}

func (c *policyCache) invalidate(walletID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[walletID]; ok {
		c.order.Remove(elem)
		delete(c.items, walletID)
	}
}
