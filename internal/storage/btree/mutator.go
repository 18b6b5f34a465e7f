package btree

import (
	"fmt"
	"sort"

	"github.com/sharc-db/sharc/internal/storage/format"
	"github.com/sharc-db/sharc/internal/storage/freelist"
	"github.com/sharc-db/sharc/internal/storage/pagesource"
)

// Mutator performs structural modification (insert/delete) on a table
// b-tree, splitting pages and growing the tree's height as needed (§4.4).
type Mutator struct {
	src      pagesource.PageSource
	free     *freelist.Manager
	pageSize int
}

// NewMutator creates a mutator writing through src, allocating newly
// needed pages by appending (PageCount()+1) when free is nil or empty.
func NewMutator(src pagesource.PageSource, free *freelist.Manager) *Mutator {
	return &Mutator{src: src, free: free, pageSize: src.PageSize()}
}

func (m *Mutator) allocatePage() (uint32, error) {
	if m.free != nil && m.free.FreeCount() > 0 {
		return m.free.Pop()
	}
	return m.src.PageCount() + 1, nil
}

func (m *Mutator) releasePage(pgno uint32) error {
	if m.free != nil {
		return m.free.Push(pgno)
	}
	return nil
}

func (m *Mutator) loadPage(pgno uint32) (*Page, error) {
	buf, err := m.src.GetPage(pgno)
	if err != nil {
		return nil, err
	}
	owned := make([]byte, len(buf))
	copy(owned, buf)
	return Wrap(owned, pgno == 1), nil
}

func (m *Mutator) savePage(pgno uint32, p *Page) error {
	return m.src.WritePage(pgno, p.buf)
}

// Insert adds (rowid, payload) to the tree rooted at root, returning the
// (possibly new) root page number after any split-induced growth.
func (m *Mutator) Insert(root uint32, rowid int64, payload []byte) (uint32, error) {
	path, err := m.findLeafPath(root, rowid)
	if err != nil {
		return 0, err
	}
	leafPgno := path[len(path)-1]
	leaf, err := m.loadPage(leafPgno)
	if err != nil {
		return 0, err
	}
	idx := sort.Search(leaf.CellCount(), func(i int) bool {
		c, _ := leaf.ReadLeafCell(i)
		return c.RowID >= rowid
	})
	if idx < leaf.CellCount() {
		if existing, _ := leaf.ReadLeafCell(idx); existing.RowID == rowid {
			return 0, fmt.Errorf("btree: duplicate rowid %d", rowid)
		}
	}
	if leaf.InsertLeafCell(idx, rowid, payload) {
		if err := m.savePage(leafPgno, leaf); err != nil {
			return 0, err
		}
		return root, nil
	}
	return m.splitLeafAndInsert(root, path, idx, rowid, payload)
}

// findLeafPath returns the chain of page numbers from root to the leaf
// that would contain rowid.
func (m *Mutator) findLeafPath(root uint32, rowid int64) ([]uint32, error) {
	var path []uint32
	pgno := root
	for {
		path = append(path, pgno)
		p, err := m.loadPage(pgno)
		if err != nil {
			return nil, err
		}
		if p.IsLeaf() {
			return path, nil
		}
		idx := sort.Search(p.CellCount(), func(i int) bool {
			return p.ReadInteriorCell(i).RowID >= rowid
		})
		if idx < p.CellCount() {
			pgno = p.ReadInteriorCell(idx).LeftChild
		} else {
			pgno = p.RightChild()
		}
	}
}

// splitLeafAndInsert splits a full leaf, distributing its cells plus the
// new one across two pages, then propagates a divider key upward.
func (m *Mutator) splitLeafAndInsert(root uint32, path []uint32, insertIdx int, rowid int64, payload []byte) (uint32, error) {
	leafPgno := path[len(path)-1]
	leaf, err := m.loadPage(leafPgno)
	if err != nil {
		return 0, err
	}

	type entry struct {
		rowid   int64
		payload []byte
	}
	entries := make([]entry, 0, leaf.CellCount()+1)
	for i := 0; i < leaf.CellCount(); i++ {
		c, err := leaf.ReadLeafCell(i)
		if err != nil {
			return 0, err
		}
		pl := make([]byte, len(c.Payload))
		copy(pl, c.Payload)
		entries = append(entries, entry{c.RowID, pl})
	}
	ins := entry{rowid, payload}
	entries = append(entries[:insertIdx], append([]entry{ins}, entries[insertIdx:]...)...)

	mid := len(entries) / 2
	newPgno, err := m.allocatePage()
	if err != nil {
		return 0, err
	}

	leftBuf := make([]byte, m.pageSize)
	left := Init(leftBuf, leafPgno == 1, format.PageLeafTable)
	rightBuf := make([]byte, m.pageSize)
	right := Init(rightBuf, newPgno == 1, format.PageLeafTable)

	for i, e := range entries {
		if i < mid {
			if !left.InsertLeafCell(left.CellCount(), e.rowid, e.payload) {
				return 0, fmt.Errorf("btree: split still overflows left leaf")
			}
		} else {
			if !right.InsertLeafCell(right.CellCount(), e.rowid, e.payload) {
				return 0, fmt.Errorf("btree: split still overflows right leaf")
			}
		}
	}
	if err := m.savePage(leafPgno, left); err != nil {
		return 0, err
	}
	if err := m.savePage(newPgno, right); err != nil {
		return 0, err
	}

	dividerKey := entries[mid-1].rowid
	return m.insertIntoParent(root, path[:len(path)-1], leafPgno, dividerKey, newPgno)
}

// insertIntoParent propagates (leftChild already in place, dividerKey,
// rightChild) into the parent identified by the tail of parentPath,
// splitting interior pages and growing the root if necessary.
func (m *Mutator) insertIntoParent(root uint32, parentPath []uint32, leftChild uint32, dividerKey int64, rightChild uint32) (uint32, error) {
	if len(parentPath) == 0 {
		return m.growRoot(leftChild, dividerKey, rightChild)
	}
	parentPgno := parentPath[len(parentPath)-1]
	parent, err := m.loadPage(parentPgno)
	if err != nil {
		return 0, err
	}
	idx := sort.Search(parent.CellCount(), func(i int) bool {
		return parent.ReadInteriorCell(i).RowID >= dividerKey
	})
	if parent.InsertInteriorCell(idx, leftChild, dividerKey) {
		// The cell's rowid now reflects leftChild's max key; the old
		// right-neighbor pointer (whatever followed) still correctly
		// points past dividerKey, and rightChild becomes reachable via
		// the next cell over or the right-child pointer — retarget the
		// slot that used to point at leftChild alone to rightChild.
		if err := m.retargetFollowing(parent, idx, rightChild); err != nil {
			return 0, err
		}
		if err := m.savePage(parentPgno, parent); err != nil {
			return 0, err
		}
		return root, nil
	}
	return m.splitInteriorAndInsert(root, parentPath, idx, leftChild, dividerKey, rightChild)
}

// retargetFollowing fixes up the pointer immediately after the newly
// inserted divider so it refers to rightChild, since InsertInteriorCell
// only ever attaches a left-child pointer.
func (m *Mutator) retargetFollowing(p *Page, insertedIdx int, rightChild uint32) error {
	if insertedIdx+1 < p.CellCount() {
		// The next cell's left child becomes rightChild.
		off := p.cellPointer(insertedIdx + 1)
		writeUint32(p.buf, off, rightChild)
		return nil
	}
	p.SetRightChild(rightChild)
	return nil
}

func writeUint32(buf []byte, off int, v uint32) {
	buf[off] = byte(v >> 24)
	buf[off+1] = byte(v >> 16)
	buf[off+2] = byte(v >> 8)
	buf[off+3] = byte(v)
}

func (m *Mutator) splitInteriorAndInsert(root uint32, path []uint32, insertIdx int, leftChild uint32, dividerKey int64, rightChild uint32) (uint32, error) {
	pgno := path[len(path)-1]
	p, err := m.loadPage(pgno)
	if err != nil {
		return 0, err
	}

	type entry struct {
		child uint32
		key   int64
	}
	entries := make([]entry, 0, p.CellCount()+1)
	for i := 0; i < p.CellCount(); i++ {
		c := p.ReadInteriorCell(i)
		entries = append(entries, entry{c.LeftChild, c.RowID})
	}
	entries = append(entries[:insertIdx], append([]entry{{leftChild, dividerKey}}, entries[insertIdx:]...)...)
	originalRight := p.RightChild()

	// The new entry's right sibling pointer (rightChild) belongs to
	// whichever slot used to hold leftChild's old neighbor: the next
	// entry's child pointer, or the page's tail pointer if dividerKey
	// was inserted at the end.
	if insertIdx+1 < len(entries) {
		entries[insertIdx+1].child = rightChild
	} else {
		originalRight = rightChild
	}

	mid := len(entries) / 2
	pushUpKey := entries[mid].key

	newPgno, err := m.allocatePage()
	if err != nil {
		return 0, err
	}
	leftBuf := make([]byte, m.pageSize)
	left := Init(leftBuf, pgno == 1, format.PageInteriorTable)
	rightBuf := make([]byte, m.pageSize)
	right := Init(rightBuf, newPgno == 1, format.PageInteriorTable)

	for i, e := range entries {
		if i < mid {
			left.InsertInteriorCell(left.CellCount(), e.child, e.key)
		} else if i == mid {
			left.SetRightChild(e.child)
		} else {
			right.InsertInteriorCell(right.CellCount(), e.child, e.key)
		}
	}
	right.SetRightChild(originalRight)

	if err := m.savePage(pgno, left); err != nil {
		return 0, err
	}
	if err := m.savePage(newPgno, right); err != nil {
		return 0, err
	}
	return m.insertIntoParent(root, path[:len(path)-1], pgno, pushUpKey, newPgno)
}

// growRoot creates a fresh root interior page when the split propagated
// past the existing root, increasing the tree's height by one.
func (m *Mutator) growRoot(leftChild uint32, dividerKey int64, rightChild uint32) (uint32, error) {
	newRootPgno, err := m.allocatePage()
	if err != nil {
		return 0, err
	}
	buf := make([]byte, m.pageSize)
	root := Init(buf, newRootPgno == 1, format.PageInteriorTable)
	root.InsertInteriorCell(0, leftChild, dividerKey)
	root.SetRightChild(rightChild)
	if err := m.savePage(newRootPgno, root); err != nil {
		return 0, err
	}
	return newRootPgno, nil
}

// Delete removes rowid from the tree by rebuilding its leaf page without
// that cell. A leaf that becomes empty stays linked in the tree: no page
// is released to the freelist and no parent divider is adjusted.
func (m *Mutator) Delete(root uint32, rowid int64) error {
	path, err := m.findLeafPath(root, rowid)
	if err != nil {
		return err
	}
	leafPgno := path[len(path)-1]
	leaf, err := m.loadPage(leafPgno)
	if err != nil {
		return err
	}
	idx := sort.Search(leaf.CellCount(), func(i int) bool {
		c, _ := leaf.ReadLeafCell(i)
		return c.RowID >= rowid
	})
	if idx >= leaf.CellCount() {
		return fmt.Errorf("btree: rowid %d not found", rowid)
	}
	existing, _ := leaf.ReadLeafCell(idx)
	if existing.RowID != rowid {
		return fmt.Errorf("btree: rowid %d not found", rowid)
	}

	rebuilt := make([]byte, m.pageSize)
	np := Init(rebuilt, leafPgno == 1, format.PageLeafTable)
	for i := 0; i < leaf.CellCount(); i++ {
		if i == idx {
			continue
		}
		c, err := leaf.ReadLeafCell(i)
		if err != nil {
			return err
		}
		np.InsertLeafCell(np.CellCount(), c.RowID, c.Payload)
	}
	return m.savePage(leafPgno, np)
}
