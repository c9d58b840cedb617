package index

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is the optional LRU+TTL query cache of spec §4.7: keys are
// (hash(ast), branch, hash(opts)), entries expire by wall-clock TTL and by
// LRU eviction at a configured capacity. Invalidation is by branch, via a
// generation counter bumped on every write to that branch so that stale
// entries simply miss their generation check rather than needing an
// active sweep.
type Cache struct {
	lru *expirable.LRU[string, cacheEntry]

	mu          sync.Mutex
	generation  map[string]uint64
}

type cacheEntry struct {
	generation uint64
	ids        []string
}

const (
	DefaultCacheCapacity = 1000
	DefaultCacheTTL      = 60 * time.Second
)

// NewCache returns a query cache with the given capacity and TTL.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		lru:        expirable.NewLRU[string, cacheEntry](capacity, nil, ttl),
		generation: make(map[string]uint64),
	}
}

func (c *Cache) branchGeneration(branch string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation[branch]
}

// InvalidateBranch bumps branch's generation so every cached entry for it
// (present or yet to be inserted with a stale generation) stops matching.
func (c *Cache) InvalidateBranch(branch string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation[branch]++
}

func cacheKey(branch string, clause Clause, opts SearchOptions) string {
	// encoding/json follows the clause's pointer fields, so equal ASTs
	// produce equal keys; %#v would print those pointers as addresses.
	ast, _ := json.Marshal(clause)
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%#v", ast, branch, opts)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns cached results for (branch, clause, opts), if present and
// not superseded by a branch invalidation since it was written.
func (c *Cache) Get(branch string, clause Clause, opts SearchOptions) ([]string, bool) {
	entry, ok := c.lru.Get(cacheKey(branch, clause, opts))
	if !ok {
		return nil, false
	}
	if entry.generation != c.branchGeneration(branch) {
		return nil, false
	}
	return entry.ids, true
}

// Put stores results for (branch, clause, opts) stamped with branch's
// current generation.
func (c *Cache) Put(branch string, clause Clause, opts SearchOptions, ids []string) {
	c.lru.Add(cacheKey(branch, clause, opts), cacheEntry{
		generation: c.branchGeneration(branch),
		ids:        ids,
	})
}
