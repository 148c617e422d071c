package pagestore

import "container/list"

// DefaultCachePages is the default bound (in pages) for the committed-page
// read cache (spec §4.2 [ADDED]): 4096 pages * 4096 bytes = 16 MiB.
const DefaultCachePages = 4096

type cacheEntry struct {
	idx  Index
	page Page
}

// pageCache is a small LRU cache of recently read committed pages, keeping
// read_page sublinear in journal depth for hot pages. It holds no
// correctness weight: a cache miss or full invalidation only costs extra
// journal scanning.
type pageCache struct {
	capacity int
	ll       *list.List
	items    map[Index]*list.Element
}

func newPageCache(capacity int) *pageCache {
	if capacity <= 0 {
		capacity = DefaultCachePages
	}
	return &pageCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[Index]*list.Element),
	}
}

func (c *pageCache) get(idx Index) (Page, bool) {
	el, ok := c.items[idx]
	if !ok {
		return Page{}, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).page, true
}

func (c *pageCache) put(idx Index, p Page) {
	if el, ok := c.items[idx]; ok {
		el.Value.(*cacheEntry).page = p
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&cacheEntry{idx: idx, page: p})
	c.items[idx] = el
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).idx)
		}
	}
}

// invalidate drops all cached pages. Called wholesale on commit/sync_receive
// since either may change what "committed" means for any page index.
func (c *pageCache) invalidate() {
	c.ll = list.New()
	c.items = make(map[Index]*list.Element)
}
