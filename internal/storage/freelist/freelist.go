// Package freelist implements the trunk-chained LIFO free page allocator
// (§3, §4.2): a chain of trunk pages, each holding a pointer to the next
// trunk and an array of leaf page numbers it owns outright.
package freelist

import (
	"encoding/binary"
	"fmt"

	"github.com/sharc-db/sharc/internal/storage/pagesource"
)

const (
	trunkNextOff   = 0 // uint32: next trunk page, 0 = chain end
	trunkCountOff  = 4 // uint32: number of leaf entries on this trunk
	trunkDataOff   = 8 // leaf page numbers follow, uint32 each
	trunkEntrySize = 4
)

// Capacity returns how many leaf page numbers a trunk page of pageSize
// bytes can hold: (P-8)/4.
func Capacity(pageSize int) int {
	return (pageSize - trunkDataOff) / trunkEntrySize
}

// Manager allocates and releases pages from the trunk chain rooted at a
// known page number (0 means the freelist is empty).
type Manager struct {
	src       pagesource.PageSource
	firstTrunk uint32
	freeCount uint32
}

// Open wraps src, with firstTrunk as recorded in the database header (0 =
// sentinel for "no free pages").
func Open(src pagesource.PageSource, firstTrunk uint32, freeCount uint32) *Manager {
	return &Manager{src: src, firstTrunk: firstTrunk, freeCount: freeCount}
}

// FirstTrunk and FreeCount mirror the header fields the caller persists.
func (m *Manager) FirstTrunk() uint32 { return m.firstTrunk }
func (m *Manager) FreeCount() uint32  { return m.freeCount }

// Pop removes and returns one free page, preferring a leaf entry on the
// current head trunk before consuming the trunk page itself (LIFO:
// popping drains the most recently pushed trunk first).
func (m *Manager) Pop() (uint32, error) {
	if m.firstTrunk == 0 {
		return 0, fmt.Errorf("freelist: empty")
	}
	trunkBuf, err := m.src.GetPage(m.firstTrunk)
	if err != nil {
		return 0, fmt.Errorf("freelist: read trunk %d: %w", m.firstTrunk, err)
	}
	count := binary.BigEndian.Uint32(trunkBuf[trunkCountOff:])
	next := binary.BigEndian.Uint32(trunkBuf[trunkNextOff:])

	if count == 0 {
		// Trunk holds no leaves of its own; consume the trunk page itself.
		freed := m.firstTrunk
		m.firstTrunk = next
		m.freeCount--
		return freed, nil
	}

	owned := make([]byte, len(trunkBuf))
	copy(owned, trunkBuf)
	last := count - 1
	leaf := binary.BigEndian.Uint32(owned[trunkDataOff+int(last)*trunkEntrySize:])
	binary.BigEndian.PutUint32(owned[trunkCountOff:], last)
	if err := m.src.WritePage(m.firstTrunk, owned); err != nil {
		return 0, fmt.Errorf("freelist: update trunk %d: %w", m.firstTrunk, err)
	}
	m.freeCount--
	return leaf, nil
}

// Push returns pageNum to the freelist. If the current head trunk has
// spare capacity, pageNum is appended as a leaf entry; otherwise pageNum
// itself becomes the new head trunk (with zero leaves), pointing at the
// old head.
func (m *Manager) Push(pageNum uint32) error {
	pageSize := m.src.PageSize()
	capacity := Capacity(pageSize)

	if m.firstTrunk != 0 {
		trunkBuf, err := m.src.GetPage(m.firstTrunk)
		if err != nil {
			return fmt.Errorf("freelist: read trunk %d: %w", m.firstTrunk, err)
		}
		count := binary.BigEndian.Uint32(trunkBuf[trunkCountOff:])
		if int(count) < capacity {
			owned := make([]byte, len(trunkBuf))
			copy(owned, trunkBuf)
			binary.BigEndian.PutUint32(owned[trunkDataOff+int(count)*trunkEntrySize:], pageNum)
			binary.BigEndian.PutUint32(owned[trunkCountOff:], count+1)
			if err := m.src.WritePage(m.firstTrunk, owned); err != nil {
				return fmt.Errorf("freelist: append leaf to trunk %d: %w", m.firstTrunk, err)
			}
			m.freeCount++
			return nil
		}
	}

	// Current trunk is full (or absent): pageNum becomes a new trunk.
	newTrunk := make([]byte, pageSize)
	binary.BigEndian.PutUint32(newTrunk[trunkNextOff:], m.firstTrunk)
	binary.BigEndian.PutUint32(newTrunk[trunkCountOff:], 0)
	if err := m.src.WritePage(pageNum, newTrunk); err != nil {
		return fmt.Errorf("freelist: write new trunk %d: %w", pageNum, err)
	}
	m.firstTrunk = pageNum
	m.freeCount++
	return nil
}
