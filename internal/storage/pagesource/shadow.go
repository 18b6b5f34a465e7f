package pagesource

import "sync"

// ShadowPageSource is a copy-on-write overlay used for transaction
// isolation (§4.5, §5): reads fall through to base unless the page has
// been shadowed by a prior write in this transaction, and writes never
// touch base until the transaction commits and calls WriteDirtyPagesTo.
type ShadowPageSource struct {
	mu      sync.RWMutex
	base    PageSource
	dirty   map[uint32][]byte
	pages   uint32 // logical page count, may exceed base while growing
	version uint64
}

// NewShadowPageSource creates an overlay on top of base.
func NewShadowPageSource(base PageSource) *ShadowPageSource {
	return &ShadowPageSource{
		base:  base,
		dirty: make(map[uint32][]byte),
		pages: base.PageCount(),
	}
}

func (s *ShadowPageSource) PageSize() int { return s.base.PageSize() }

func (s *ShadowPageSource) PageCount() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pages
}

func (s *ShadowPageSource) DataVersion() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *ShadowPageSource) GetPage(n uint32) ([]byte, error) {
	s.mu.RLock()
	if buf, ok := s.dirty[n]; ok {
		s.mu.RUnlock()
		return buf, nil
	}
	s.mu.RUnlock()
	if err := checkBounds(n, s.PageCount()); err != nil {
		return nil, err
	}
	return s.base.GetPage(n)
}

func (s *ShadowPageSource) GetPageMemory(n uint32) (PageMemory, error) {
	s.mu.RLock()
	if buf, ok := s.dirty[n]; ok {
		s.mu.RUnlock()
		return PageMemory{Bytes: buf, Owned: false}, nil
	}
	s.mu.RUnlock()
	return s.base.GetPageMemory(n)
}

func (s *ShadowPageSource) ReadPage(n uint32, dest []byte) error {
	b, err := s.GetPage(n)
	if err != nil {
		return err
	}
	copy(dest, b)
	return nil
}

// WritePage always shadows: the page is copied into the overlay's dirty
// map and base is left untouched until WriteDirtyPagesTo.
func (s *ShadowPageSource) WritePage(n uint32, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n == 0 {
		return &BoundsError{Page: n, Count: s.pages}
	}
	owned := make([]byte, len(data))
	copy(owned, data)
	s.dirty[n] = owned
	if n > s.pages {
		s.pages = n
	}
	s.version++
	return nil
}

func (s *ShadowPageSource) Invalidate(n uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dirty, n)
}

func (s *ShadowPageSource) Close() error { return nil }

// ClearShadow discards all shadowed pages without touching base, as on
// transaction rollback.
func (s *ShadowPageSource) ClearShadow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = make(map[uint32][]byte)
	s.pages = s.base.PageCount()
}

// Reset is an alias for ClearShadow kept for call sites that reuse one
// overlay across successive transactions.
func (s *ShadowPageSource) Reset() { s.ClearShadow() }

// DirtyPageCount reports how many pages are currently shadowed.
func (s *ShadowPageSource) DirtyPageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.dirty)
}

// WriteDirtyPagesTo flushes every shadowed page to target in ascending
// page-number order, as on transaction commit. It does not clear the
// overlay; call ClearShadow afterward once the caller is done reading
// the committed-but-still-shadowed state.
func (s *ShadowPageSource) WriteDirtyPagesTo(target PageSource) error {
	s.mu.RLock()
	pages := make([]uint32, 0, len(s.dirty))
	for n := range s.dirty {
		pages = append(pages, n)
	}
	bufs := make(map[uint32][]byte, len(s.dirty))
	for n, b := range s.dirty {
		bufs[n] = b
	}
	s.mu.RUnlock()

	sortUint32s(pages)
	for _, n := range pages {
		if err := target.WritePage(n, bufs[n]); err != nil {
			return err
		}
	}
	return nil
}

func sortUint32s(s []uint32) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
