package pagesource

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

// FilePageSource reads a single page at a time into an internal buffer.
// Calls to GetPage all reuse the same buffer — callers that need to hold
// several page slices at once must use CachedPageSource or
// MemoryMappedPageSource instead.
type FilePageSource struct {
	mu       sync.Mutex
	f        *os.File
	pageSize int
	pages    uint32
	version  atomic.Uint64
	writable bool
	scratch  []byte
	closed   bool
}

// OpenFilePageSource opens path as a database of the given page size,
// creating the file when writable. A read-only open of an empty file
// fails; the database header is not checked here.
func OpenFilePageSource(path string, pageSize int, writable bool) (*FilePageSource, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR | os.O_CREATE
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
	if info.Size() == 0 && !writable {
		f.Close()
		return nil, fmt.Errorf("pagesource: %s is empty", path)
	}
	pages := uint32(info.Size() / int64(pageSize))
	if pages == 0 {
		pages = 1
	}
	return &FilePageSource{
		f:        f,
		pageSize: pageSize,
		pages:    pages,
		writable: writable,
		scratch:  make([]byte, pageSize),
	}, nil
}

func (s *FilePageSource) PageSize() int       { return s.pageSize }
func (s *FilePageSource) PageCount() uint32   { s.mu.Lock(); defer s.mu.Unlock(); return s.pages }
func (s *FilePageSource) DataVersion() uint64 { return s.version.Load() }

func (s *FilePageSource) GetPage(n uint32) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if err := checkBounds(n, s.pages); err != nil {
		return nil, err
	}
	off := int64(n-1) * int64(s.pageSize)
	if _, err := s.f.ReadAt(s.scratch, off); err != nil && err != io.EOF {
		return nil, fmt.Errorf("pagesource: read page %d: %w", n, err)
	}
	return s.scratch, nil
}

func (s *FilePageSource) GetPageMemory(n uint32) (PageMemory, error) {
	b, err := s.GetPage(n)
	if err != nil {
		return PageMemory{}, err
	}
	return PageMemory{Bytes: b, Owned: false}, nil
}

func (s *FilePageSource) ReadPage(n uint32, dest []byte) error {
	b, err := s.GetPage(n)
	if err != nil {
		return err
	}
	copy(dest, b)
	return nil
}

func (s *FilePageSource) WritePage(n uint32, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.writable {
		return fmt.Errorf("pagesource: write to read-only source")
	}
	if n == 0 {
		return &BoundsError{Page: n, Count: s.pages}
	}
	off := int64(n-1) * int64(s.pageSize)
	if _, err := s.f.WriteAt(data, off); err != nil {
		return fmt.Errorf("pagesource: write page %d: %w", n, err)
	}
	if n > s.pages {
		s.pages = n
	}
	s.version.Add(1)
	return nil
}

func (s *FilePageSource) Invalidate(n uint32) {}

func (s *FilePageSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.f.Close()
}
