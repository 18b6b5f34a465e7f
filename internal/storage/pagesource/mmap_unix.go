//go:build unix

package pagesource

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// MemoryMappedPageSource maps the whole database file into the process
// address space via mmap(2). GetPage returns a true zero-copy slice into
// the mapping; growth requires unmapping and remapping.
type MemoryMappedPageSource struct {
	mu       sync.RWMutex
	f        *os.File
	pageSize int
	pages    uint32
	mapping  []byte
	writable bool
	version  atomic.Uint64
	closed   bool
}

// OpenMemoryMappedPageSource mmaps path. The file must already exist and
// hold a whole number of pageSize-sized pages.
func OpenMemoryMappedPageSource(path string, pageSize int, writable bool) (*MemoryMappedPageSource, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, fmt.Errorf("pagesource: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pagesource: stat %s: %w", path, err)
	}
	size := info.Size()
	if size == 0 {
		f.Close()
		return nil, fmt.Errorf("pagesource: %s is empty, cannot mmap", path)
	}
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	mapping, err := unix.Mmap(int(f.Fd()), 0, int(size), prot, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pagesource: mmap %s: %w", path, err)
	}
	return &MemoryMappedPageSource{
		f:        f,
		pageSize: pageSize,
		pages:    uint32(size / int64(pageSize)),
		mapping:  mapping,
		writable: writable,
	}, nil
}

func (m *MemoryMappedPageSource) PageSize() int      { return m.pageSize }
func (m *MemoryMappedPageSource) PageCount() uint32  { m.mu.RLock(); defer m.mu.RUnlock(); return m.pages }
func (m *MemoryMappedPageSource) DataVersion() uint64 { return m.version.Load() }

func (m *MemoryMappedPageSource) GetPage(n uint32) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	if err := checkBounds(n, m.pages); err != nil {
		return nil, err
	}
	off := int(n-1) * m.pageSize
	return m.mapping[off : off+m.pageSize], nil
}

func (m *MemoryMappedPageSource) GetPageMemory(n uint32) (PageMemory, error) {
	b, err := m.GetPage(n)
	if err != nil {
		return PageMemory{}, err
	}
	return PageMemory{Bytes: b, Owned: false}, nil
}

func (m *MemoryMappedPageSource) ReadPage(n uint32, dest []byte) error {
	b, err := m.GetPage(n)
	if err != nil {
		return err
	}
	copy(dest, b)
	return nil
}

// WritePage writes directly into the mapping. Growing the file requires
// remapping, done under the write lock.
func (m *MemoryMappedPageSource) WritePage(n uint32, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if !m.writable {
		return fmt.Errorf("pagesource: write to read-only mapping")
	}
	if n == 0 {
		return &BoundsError{Page: n, Count: m.pages}
	}
	if n > m.pages {
		if err := m.growLocked(n); err != nil {
			return err
		}
	}
	off := int(n-1) * m.pageSize
	copy(m.mapping[off:off+m.pageSize], data)
	m.version.Add(1)
	return nil
}

func (m *MemoryMappedPageSource) growLocked(n uint32) error {
	newSize := int64(n) * int64(m.pageSize)
	if err := m.f.Truncate(newSize); err != nil {
		return fmt.Errorf("pagesource: truncate: %w", err)
	}
	if err := unix.Munmap(m.mapping); err != nil {
		return fmt.Errorf("pagesource: munmap: %w", err)
	}
	prot := unix.PROT_READ | unix.PROT_WRITE
	mapping, err := unix.Mmap(int(m.f.Fd()), 0, int(newSize), prot, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("pagesource: remap: %w", err)
	}
	m.mapping = mapping
	m.pages = n
	return nil
}

func (m *MemoryMappedPageSource) Invalidate(n uint32) {}

func (m *MemoryMappedPageSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if err := unix.Munmap(m.mapping); err != nil {
		m.f.Close()
		return fmt.Errorf("pagesource: munmap: %w", err)
	}
	return m.f.Close()
}
