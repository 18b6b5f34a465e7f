//go:build !unix

package pagesource

import "fmt"

// MemoryMappedPageSource is unavailable on non-unix platforms; callers
// should fall back to FilePageSource or CachedPageSource.
type MemoryMappedPageSource struct{}

func OpenMemoryMappedPageSource(path string, pageSize int, writable bool) (*MemoryMappedPageSource, error) {
	return nil, fmt.Errorf("pagesource: memory-mapped sources are not supported on this platform")
}

func (m *MemoryMappedPageSource) PageSize() int                          { return 0 }
func (m *MemoryMappedPageSource) PageCount() uint32                      { return 0 }
func (m *MemoryMappedPageSource) DataVersion() uint64                    { return 0 }
func (m *MemoryMappedPageSource) GetPage(n uint32) ([]byte, error)       { return nil, ErrClosed }
func (m *MemoryMappedPageSource) GetPageMemory(n uint32) (PageMemory, error) {
	return PageMemory{}, ErrClosed
}
func (m *MemoryMappedPageSource) ReadPage(n uint32, dest []byte) error  { return ErrClosed }
func (m *MemoryMappedPageSource) WritePage(n uint32, data []byte) error { return ErrClosed }
func (m *MemoryMappedPageSource) Invalidate(n uint32)                   {}
func (m *MemoryMappedPageSource) Close() error                         { return nil }
