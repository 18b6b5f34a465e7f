package btree

import (
	"sort"

	"github.com/sharc-db/sharc/internal/storage/pagesource"
)

// Cursor walks a table b-tree's leaf cells in rowid order.
type Cursor struct {
	src     pagesource.PageSource
	root    uint32
	stack   []frame
	current *TableLeafCell
	valid   bool
}

type frame struct {
	pgno  uint32
	index int
}

// NewCursor opens a cursor over the table b-tree rooted at root.
func NewCursor(src pagesource.PageSource, root uint32) *Cursor {
	return &Cursor{src: src, root: root}
}

func (c *Cursor) loadPage(pgno uint32) (*Page, error) {
	buf, err := c.src.GetPage(pgno)
	if err != nil {
		return nil, err
	}
	return Wrap(buf, pgno == 1), nil
}

// First positions the cursor on the smallest rowid.
func (c *Cursor) First() error {
	c.stack = c.stack[:0]
	return c.descendLeftmost(c.root)
}

func (c *Cursor) descendLeftmost(pgno uint32) error {
	for {
		p, err := c.loadPage(pgno)
		if err != nil {
			return err
		}
		if p.IsLeaf() {
			c.stack = append(c.stack, frame{pgno: pgno, index: 0})
			return c.syncCurrent()
		}
		if p.CellCount() == 0 {
			pgno = p.RightChild()
			continue
		}
		cell := p.ReadInteriorCell(0)
		c.stack = append(c.stack, frame{pgno: pgno, index: 0})
		pgno = cell.LeftChild
	}
}

func (c *Cursor) syncCurrent() error {
	if len(c.stack) == 0 {
		c.valid = false
		return nil
	}
	top := c.stack[len(c.stack)-1]
	p, err := c.loadPage(top.pgno)
	if err != nil {
		return err
	}
	if top.index >= p.CellCount() {
		c.valid = false
		return nil
	}
	cell, err := p.ReadLeafCell(top.index)
	if err != nil {
		return err
	}
	c.current = &cell
	c.valid = true
	return nil
}

// Valid reports whether Current returns a usable cell.
func (c *Cursor) Valid() bool { return c.valid }

// Current returns the cell the cursor currently points at.
func (c *Cursor) Current() TableLeafCell { return *c.current }

// Next advances the cursor to the next rowid in order.
func (c *Cursor) Next() error {
	if len(c.stack) == 0 {
		return nil
	}
	top := &c.stack[len(c.stack)-1]
	top.index++
	leaf, err := c.loadPage(top.pgno)
	if err != nil {
		return err
	}
	if top.index < leaf.CellCount() {
		return c.syncCurrent()
	}
	return c.ascendAndAdvance()
}

func (c *Cursor) ascendAndAdvance() error {
	for len(c.stack) > 1 {
		c.stack = c.stack[:len(c.stack)-1]
		top := &c.stack[len(c.stack)-1]
		p, err := c.loadPage(top.pgno)
		if err != nil {
			return err
		}
		top.index++
		if top.index < p.CellCount() {
			cell := p.ReadInteriorCell(top.index)
			return c.descendLeftmost(cell.LeftChild)
		}
		if top.index == p.CellCount() {
			return c.descendLeftmost(p.RightChild())
		}
	}
	c.stack = c.stack[:0]
	c.valid = false
	return nil
}

// Seek positions the cursor at the first cell with rowid >= key.
func (c *Cursor) Seek(key int64) error {
	c.stack = c.stack[:0]
	pgno := c.root
	for {
		p, err := c.loadPage(pgno)
		if err != nil {
			return err
		}
		if p.IsLeaf() {
			idx := sort.Search(p.CellCount(), func(i int) bool {
				cell, _ := p.ReadLeafCell(i)
				return cell.RowID >= key
			})
			c.stack = append(c.stack, frame{pgno: pgno, index: idx})
			return c.syncCurrent()
		}
		idx := sort.Search(p.CellCount(), func(i int) bool {
			return p.ReadInteriorCell(i).RowID >= key
		})
		c.stack = append(c.stack, frame{pgno: pgno, index: idx})
		if idx < p.CellCount() {
			pgno = p.ReadInteriorCell(idx).LeftChild
		} else {
			pgno = p.RightChild()
		}
	}
}

// Get fetches the record with exactly this rowid, if present.
func Get(src pagesource.PageSource, root uint32, rowid int64) ([]byte, bool, error) {
	c := NewCursor(src, root)
	if err := c.Seek(rowid); err != nil {
		return nil, false, err
	}
	if !c.Valid() || c.Current().RowID != rowid {
		return nil, false, nil
	}
	payload := c.Current().Payload
	owned := make([]byte, len(payload))
	copy(owned, payload)
	return owned, true, nil
}
