package marketplace

import (
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

// listingCache memoizes public listing pages. Entries are dropped wholesale
// whenever an item enters or leaves the approved state.
type listingCache struct {
	store *cache.Cache
}

func newListingCache(ttl time.Duration) *listingCache {
	if ttl <= 0 {
		return nil
	}
	return &listingCache{store: cache.New(ttl, 2*ttl)}
}

func listingKey(params ListParams) string {
	return fmt.Sprintf("%s|%s|%s|%t|%s|%d",
		params.Type, params.Category, params.Search, params.FreeOnly, params.Cursor, params.Limit)
}

func (c *listingCache) get(key string) (*ListResult, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*ListResult), true
}

func (c *listingCache) set(key string, result *ListResult) {
	if c == nil {
		return
	}
	c.store.SetDefault(key, result)
}

func (c *listingCache) flush() {
	if c == nil {
		return
	}
	c.store.Flush()
}
