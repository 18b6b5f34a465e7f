// Package btree implements table b-trees over a pagesource.PageSource,
// using the on-disk cell layout from internal/storage/format (§4.4):
// rowid-keyed leaf and interior pages with a cell-pointer array growing
// down from the page header and cell bodies growing up from the end of
// the page.
package btree

import (
	"encoding/binary"
	"fmt"

	"github.com/sharc-db/sharc/internal/storage/format"
	"github.com/sharc-db/sharc/internal/storage/record"
)

// Page wraps a raw page buffer as a table b-tree node. pageStart is 0 for
// every page except page 1, where the page body starts after the
// 100-byte database header.
type Page struct {
	buf       []byte
	pageStart int
}

func headerSize(pageType byte) int {
	if pageType == format.PageLeafTable || pageType == format.PageLeafIndex {
		return format.BTreeHeaderSizeLeaf
	}
	return format.BTreeHeaderSizeInterior
}

// Wrap interprets buf (a full page, including the 100-byte file header on
// page 1) as a b-tree page.
func Wrap(buf []byte, isPageOne bool) *Page {
	start := 0
	if isPageOne {
		start = format.HeaderSize
	}
	return &Page{buf: buf, pageStart: start}
}

func (p *Page) Type() byte { return p.buf[p.pageStart+format.BTreeOffType] }
func (p *Page) IsLeaf() bool {
	t := p.Type()
	return t == format.PageLeafTable || t == format.PageLeafIndex
}

func (p *Page) CellCount() int {
	return int(binary.BigEndian.Uint16(p.buf[p.pageStart+format.BTreeOffCellCount:]))
}

func (p *Page) setCellCount(n int) {
	binary.BigEndian.PutUint16(p.buf[p.pageStart+format.BTreeOffCellCount:], uint16(n))
}

func (p *Page) cellContentOffset() int {
	v := binary.BigEndian.Uint16(p.buf[p.pageStart+format.BTreeOffCellContent:])
	if v == 0 {
		return 65536
	}
	return int(v)
}

func (p *Page) setCellContentOffset(off int) {
	if off >= 65536 {
		off = 0
	}
	binary.BigEndian.PutUint16(p.buf[p.pageStart+format.BTreeOffCellContent:], uint16(off))
}

func (p *Page) RightChild() uint32 {
	return binary.BigEndian.Uint32(p.buf[p.pageStart+format.BTreeOffRightChild:])
}

func (p *Page) SetRightChild(pgno uint32) {
	binary.BigEndian.PutUint32(p.buf[p.pageStart+format.BTreeOffRightChild:], pgno)
}

func (p *Page) pointerArrayOffset() int {
	return p.pageStart + headerSize(p.Type())
}

func (p *Page) cellPointer(i int) int {
	off := p.pointerArrayOffset() + i*2
	return int(binary.BigEndian.Uint16(p.buf[off:]))
}

func (p *Page) setCellPointer(i, off int) {
	at := p.pointerArrayOffset() + i*2
	binary.BigEndian.PutUint16(p.buf[at:], uint16(off))
}

// Init resets buf as an empty page of the given type.
func Init(buf []byte, isPageOne bool, pageType byte) *Page {
	p := Wrap(buf, isPageOne)
	p.buf[p.pageStart+format.BTreeOffType] = pageType
	binary.BigEndian.PutUint16(p.buf[p.pageStart+format.BTreeOffFirstFreeblock:], 0)
	p.setCellCount(0)
	p.setCellContentOffset(len(buf))
	p.buf[p.pageStart+format.BTreeOffFragBytes] = 0
	if pageType == format.PageInteriorTable || pageType == format.PageInteriorIndex {
		p.SetRightChild(0)
	}
	return p
}

// TableLeafCell is a decoded leaf cell: a rowid and its record payload.
type TableLeafCell struct {
	RowID   int64
	Payload []byte // aliases the page buffer
}

// TableInteriorCell is a decoded interior cell: a left-child pointer and
// the rowid that is the largest key reachable through that child.
type TableInteriorCell struct {
	LeftChild uint32
	RowID     int64
}

// ReadLeafCell decodes the i-th cell of a leaf table page.
func (p *Page) ReadLeafCell(i int) (TableLeafCell, error) {
	off := p.cellPointer(i)
	payloadLen, n1 := record.GetVarint(p.buf[off:])
	rowid, n2 := record.GetVarint(p.buf[off+n1:])
	bodyOff := off + n1 + n2
	if bodyOff+int(payloadLen) > len(p.buf) {
		return TableLeafCell{}, fmt.Errorf("btree: leaf cell %d payload exceeds page", i)
	}
	return TableLeafCell{RowID: int64(rowid), Payload: p.buf[bodyOff : bodyOff+int(payloadLen)]}, nil
}

// ReadInteriorCell decodes the i-th cell of an interior table page.
func (p *Page) ReadInteriorCell(i int) TableInteriorCell {
	off := p.cellPointer(i)
	child := binary.BigEndian.Uint32(p.buf[off:])
	rowid, _ := record.GetVarint(p.buf[off+4:])
	return TableInteriorCell{LeftChild: child, RowID: int64(rowid)}
}

// leafCellSize returns the encoded size of a leaf cell for a payload of
// payloadLen bytes at the given rowid (no overflow support: payloads
// must fit entirely in-page, which system tables and record rows in this
// implementation always do given the page sizes in use).
func leafCellSize(rowid int64, payloadLen int) int {
	return record.VarintLen(uint64(payloadLen)) + record.VarintLen(uint64(rowid)) + payloadLen
}

// FreeSpace returns how many contiguous bytes remain between the end of
// the pointer array and the start of cell content.
func (p *Page) FreeSpace() int {
	return p.cellContentOffset() - (p.pointerArrayOffset() + p.CellCount()*2)
}

// InsertLeafCell inserts (rowid, payload) at slot index, shifting later
// pointers up. Returns false if there is not enough free space.
func (p *Page) InsertLeafCell(index int, rowid int64, payload []byte) bool {
	size := leafCellSize(rowid, len(payload))
	if p.FreeSpace() < size+2 {
		return false
	}
	newContentOff := p.cellContentOffset() - size
	off := newContentOff
	var tmp [9]byte
	w := record.PutVarint(tmp[:], uint64(len(payload)))
	copy(p.buf[off:], tmp[:w])
	off += w
	w = record.PutVarint(tmp[:], uint64(rowid))
	copy(p.buf[off:], tmp[:w])
	off += w
	copy(p.buf[off:], payload)

	p.shiftPointersUp(index)
	p.setCellPointer(index, newContentOff)
	p.setCellContentOffset(newContentOff)
	return true
}

// InsertInteriorCell inserts (leftChild, rowid) at slot index.
func (p *Page) InsertInteriorCell(index int, leftChild uint32, rowid int64) bool {
	size := 4 + record.VarintLen(uint64(rowid))
	if p.FreeSpace() < size+2 {
		return false
	}
	newContentOff := p.cellContentOffset() - size
	binary.BigEndian.PutUint32(p.buf[newContentOff:], leftChild)
	var tmp [9]byte
	w := record.PutVarint(tmp[:], uint64(rowid))
	copy(p.buf[newContentOff+4:], tmp[:w])

	p.shiftPointersUp(index)
	p.setCellPointer(index, newContentOff)
	p.setCellContentOffset(newContentOff)
	return true
}

// shiftPointersUp grows the pointer array by one slot at index, moving
// index..count-1 up by one slot, and writes the incremented cell count.
// The caller then stores the new cell's offset in slot index.
func (p *Page) shiftPointersUp(index int) {
	count := p.CellCount()
	base := p.pointerArrayOffset()
	for i := count; i > index; i-- {
		srcOff := base + (i-1)*2
		dstOff := base + i*2
		copy(p.buf[dstOff:dstOff+2], p.buf[srcOff:srcOff+2])
	}
	p.setCellCountRaw(count + 1)
}

func (p *Page) setCellCountRaw(n int) {
	binary.BigEndian.PutUint16(p.buf[p.pageStart+format.BTreeOffCellCount:], uint16(n))
}
