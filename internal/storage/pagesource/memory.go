package pagesource

import "sync"

// MemoryPageSource backs storage in a growable byte buffer. Reads return a
// zero-copy slice into the backing memory; writes may grow the logical
// page count.
type MemoryPageSource struct {
	mu       sync.RWMutex
	pageSize int
	buf      []byte
	pages    uint32
	version  uint64
	closed   bool
}

// NewMemoryPageSource creates an empty in-memory source with the given
// page size and initial page count (minimum 1, for the header page).
func NewMemoryPageSource(pageSize int, initialPages uint32) *MemoryPageSource {
	if initialPages == 0 {
		initialPages = 1
	}
	return &MemoryPageSource{
		pageSize: pageSize,
		buf:      make([]byte, int(initialPages)*pageSize),
		pages:    initialPages,
	}
}

func (m *MemoryPageSource) PageSize() int      { return m.pageSize }
func (m *MemoryPageSource) PageCount() uint32  { m.mu.RLock(); defer m.mu.RUnlock(); return m.pages }
func (m *MemoryPageSource) DataVersion() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

func (m *MemoryPageSource) GetPage(n uint32) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	if err := checkBounds(n, m.pages); err != nil {
		return nil, err
	}
	off := int(n-1) * m.pageSize
	return m.buf[off : off+m.pageSize], nil
}

func (m *MemoryPageSource) GetPageMemory(n uint32) (PageMemory, error) {
	b, err := m.GetPage(n)
	if err != nil {
		return PageMemory{}, err
	}
	return PageMemory{Bytes: b, Owned: false}, nil
}

func (m *MemoryPageSource) ReadPage(n uint32, dest []byte) error {
	b, err := m.GetPage(n)
	if err != nil {
		return err
	}
	copy(dest, b)
	return nil
}

func (m *MemoryPageSource) WritePage(n uint32, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if n == 0 {
		return &BoundsError{Page: n, Count: m.pages}
	}
	if n > m.pages {
		needed := int(n) * m.pageSize
		if needed > len(m.buf) {
			grown := make([]byte, needed)
			copy(grown, m.buf)
			m.buf = grown
		}
		m.pages = n
	}
	off := int(n-1) * m.pageSize
	copy(m.buf[off:off+m.pageSize], data)
	m.version++
	return nil
}

func (m *MemoryPageSource) Invalidate(n uint32) {}

func (m *MemoryPageSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
