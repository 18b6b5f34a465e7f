package pagesource

import (
	"sync"
	"sync/atomic"
)

// cacheFrame is an in-memory cached page, linked into the LRU list.
type cacheFrame struct {
	id   uint32
	buf  []byte
	prev *cacheFrame
	next *cacheFrame
}

// CachedConfig configures a CachedPageSource.
type CachedConfig struct {
	MaxPages int // LRU capacity (default 1024)
	// SequentialThreshold is the number of consecutive ascending GetPage
	// calls that trigger prefetch. 0 disables sequential detection.
	SequentialThreshold int
	// PrefetchDepth is how many pages ahead to pull in once the
	// sequential threshold is crossed.
	PrefetchDepth int
}

// CachedPageSource wraps a base PageSource with an LRU page cache and an
// optional sequential-access prefetch policy: once a run of consecutive
// ascending reads reaches SequentialThreshold, the next PrefetchDepth
// pages are pulled into the cache ahead of demand.
type CachedPageSource struct {
	mu       sync.Mutex
	base     PageSource
	cfg      CachedConfig
	frames   map[uint32]*cacheFrame
	head     *cacheFrame
	tail     *cacheFrame
	lastPage uint32
	runLen   int
	hits     atomic.Uint64
	misses   atomic.Uint64
}

// NewCachedPageSource wraps base in an LRU cache.
func NewCachedPageSource(base PageSource, cfg CachedConfig) *CachedPageSource {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1024
	}
	return &CachedPageSource{
		base:   base,
		cfg:    cfg,
		frames: make(map[uint32]*cacheFrame, cfg.MaxPages),
	}
}

func (c *CachedPageSource) PageSize() int       { return c.base.PageSize() }
func (c *CachedPageSource) PageCount() uint32   { return c.base.PageCount() }
func (c *CachedPageSource) DataVersion() uint64 { return c.base.DataVersion() }

// CacheHits and CacheMisses report cumulative counters, exposed for
// maintenance/diagnostic reporting.
func (c *CachedPageSource) CacheHits() uint64   { return c.hits.Load() }
func (c *CachedPageSource) CacheMisses() uint64 { return c.misses.Load() }

func (c *CachedPageSource) GetPage(n uint32) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(n)
}

func (c *CachedPageSource) getLocked(n uint32) ([]byte, error) {
	if f, ok := c.frames[n]; ok {
		c.hits.Add(1)
		c.moveToFront(f)
		c.trackSequence(n)
		return f.buf, nil
	}
	c.misses.Add(1)
	buf, err := c.base.GetPage(n)
	if err != nil {
		return nil, err
	}
	owned := make([]byte, len(buf))
	copy(owned, buf)
	f := &cacheFrame{id: n, buf: owned}
	c.insert(f)
	c.trackSequence(n)
	return f.buf, nil
}

func (c *CachedPageSource) trackSequence(n uint32) {
	if c.cfg.SequentialThreshold <= 0 {
		return
	}
	if n == c.lastPage+1 {
		c.runLen++
	} else {
		c.runLen = 1
	}
	c.lastPage = n
	if c.runLen == c.cfg.SequentialThreshold {
		c.prefetchFrom(n)
	}
}

func (c *CachedPageSource) prefetchFrom(n uint32) {
	count := c.base.PageCount()
	for i := uint32(1); i <= uint32(c.cfg.PrefetchDepth); i++ {
		target := n + i
		if target > count {
			break
		}
		if _, ok := c.frames[target]; ok {
			continue
		}
		buf, err := c.base.GetPage(target)
		if err != nil {
			break
		}
		owned := make([]byte, len(buf))
		copy(owned, buf)
		c.insert(&cacheFrame{id: target, buf: owned})
	}
}

func (c *CachedPageSource) GetPageMemory(n uint32) (PageMemory, error) {
	b, err := c.GetPage(n)
	if err != nil {
		return PageMemory{}, err
	}
	return PageMemory{Bytes: b, Owned: false}, nil
}

func (c *CachedPageSource) ReadPage(n uint32, dest []byte) error {
	b, err := c.GetPage(n)
	if err != nil {
		return err
	}
	copy(dest, b)
	return nil
}

func (c *CachedPageSource) WritePage(n uint32, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.base.WritePage(n, data); err != nil {
		return err
	}
	if f, ok := c.frames[n]; ok {
		copy(f.buf, data)
		c.moveToFront(f)
		return nil
	}
	owned := make([]byte, len(data))
	copy(owned, data)
	c.insert(&cacheFrame{id: n, buf: owned})
	return nil
}

func (c *CachedPageSource) Invalidate(n uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.frames[n]; ok {
		c.unlink(f)
		delete(c.frames, n)
	}
}

func (c *CachedPageSource) Close() error {
	return c.base.Close()
}

func (c *CachedPageSource) insert(f *cacheFrame) {
	for len(c.frames) >= c.cfg.MaxPages {
		if !c.evictOne() {
			break
		}
	}
	c.frames[f.id] = f
	c.pushFront(f)
}

func (c *CachedPageSource) evictOne() bool {
	if c.tail == nil {
		return false
	}
	victim := c.tail
	c.unlink(victim)
	delete(c.frames, victim.id)
	return true
}

func (c *CachedPageSource) pushFront(f *cacheFrame) {
	f.prev = nil
	f.next = c.head
	if c.head != nil {
		c.head.prev = f
	}
	c.head = f
	if c.tail == nil {
		c.tail = f
	}
}

func (c *CachedPageSource) unlink(f *cacheFrame) {
	if f.prev != nil {
		f.prev.next = f.next
	} else {
		c.head = f.next
	}
	if f.next != nil {
		f.next.prev = f.prev
	} else {
		c.tail = f.prev
	}
	f.prev = nil
	f.next = nil
}

func (c *CachedPageSource) moveToFront(f *cacheFrame) {
	if c.head == f {
		return
	}
	c.unlink(f)
	c.pushFront(f)
}
