package pagesource

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sharc-db/sharc/internal/storage/wal"
)

// WalPageSource redirects reads through a WAL frame map before falling
// through to base: any page with a committed frame in the map is served
// from the WAL file instead of the main database file, and writes are
// appended as new frames rather than touching base directly (§4.1, §6).
type WalPageSource struct {
	mu       sync.RWMutex
	base     PageSource
	walPath  string
	writer   *wal.Writer
	frameMap *wal.FrameMap
	pages    uint32
	version  atomic.Uint64
}

// OpenWalPageSource builds the initial frame map from walPath (which may
// not exist yet) and wraps base. If writer is non-nil, WritePage appends
// frames to it; a nil writer makes the source read-only over the WAL.
func OpenWalPageSource(base PageSource, walPath string, writer *wal.Writer) (*WalPageSource, error) {
	fm, err := wal.BuildFrameMap(walPath)
	if err != nil {
		return nil, fmt.Errorf("pagesource: build frame map: %w", err)
	}
	pages := base.PageCount()
	if fm.DBSize > pages {
		pages = fm.DBSize
	}
	return &WalPageSource{
		base:     base,
		walPath:  walPath,
		writer:   writer,
		frameMap: fm,
		pages:    pages,
	}, nil
}

func (w *WalPageSource) PageSize() int { return w.base.PageSize() }

func (w *WalPageSource) PageCount() uint32 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pages
}

func (w *WalPageSource) DataVersion() uint64 { return w.version.Load() }

func (w *WalPageSource) GetPage(n uint32) ([]byte, error) {
	w.mu.RLock()
	fm := w.frameMap
	w.mu.RUnlock()
	if buf, ok, err := fm.ReadPage(w.walPath, n); err != nil {
		return nil, err
	} else if ok {
		return buf, nil
	}
	return w.base.GetPage(n)
}

func (w *WalPageSource) GetPageMemory(n uint32) (PageMemory, error) {
	w.mu.RLock()
	_, inWal := w.frameMap.ByPage[n]
	w.mu.RUnlock()
	if !inWal {
		return w.base.GetPageMemory(n)
	}
	b, err := w.GetPage(n)
	if err != nil {
		return PageMemory{}, err
	}
	return PageMemory{Bytes: b, Owned: true}, nil
}

func (w *WalPageSource) ReadPage(n uint32, dest []byte) error {
	b, err := w.GetPage(n)
	if err != nil {
		return err
	}
	copy(dest, b)
	return nil
}

// WritePage appends a new frame. dbSizeAfterCommit is left 0 here — the
// transaction layer calls CommitFrame separately on the last page of a
// transaction, per the WAL's commit-frame protocol.
func (w *WalPageSource) WritePage(n uint32, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writer == nil {
		return fmt.Errorf("pagesource: wal source is read-only")
	}
	if err := w.writer.AppendFrame(n, data, 0); err != nil {
		return err
	}
	if n > w.pages {
		w.pages = n
	}
	w.version.Add(1)
	return nil
}

// CommitFrame writes the final frame of a transaction, recording the new
// database size so the frame map (after a rebuild) treats the preceding
// frames as committed.
func (w *WalPageSource) CommitFrame(n uint32, data []byte, dbSize uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writer == nil {
		return fmt.Errorf("pagesource: wal source is read-only")
	}
	if err := w.writer.AppendFrame(n, data, dbSize); err != nil {
		return err
	}
	if dbSize > w.pages {
		w.pages = dbSize
	}
	w.version.Add(1)
	return w.refreshLocked()
}

func (w *WalPageSource) refreshLocked() error {
	fm, err := wal.BuildFrameMap(w.walPath)
	if err != nil {
		return err
	}
	w.frameMap = fm
	return nil
}

// Refresh rebuilds the frame map from disk, used after an external
// checkpoint or when another writer has appended frames.
func (w *WalPageSource) Refresh() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.refreshLocked()
}

func (w *WalPageSource) Invalidate(n uint32) { w.base.Invalidate(n) }

func (w *WalPageSource) Close() error {
	if w.writer != nil {
		w.writer.Sync()
		w.writer.Close()
	}
	return w.base.Close()
}
