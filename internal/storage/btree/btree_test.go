package btree

import (
	"fmt"
	"testing"

	"github.com/sharc-db/sharc/internal/storage/format"
	"github.com/sharc-db/sharc/internal/storage/pagesource"
)

func newEmptyTree(t *testing.T, pageSize int) (pagesource.PageSource, uint32) {
	t.Helper()
	src := pagesource.NewMemoryPageSource(pageSize, 1)
	buf := make([]byte, pageSize)
	Init(buf, true, format.PageLeafTable)
	if err := src.WritePage(1, buf); err != nil {
		t.Fatal(err)
	}
	return src, 1
}

func TestInsertAndSeekWithinSingleLeaf(t *testing.T) {
	src, root := newEmptyTree(t, 4096)
	m := NewMutator(src, nil)

	for i := int64(1); i <= 10; i++ {
		newRoot, err := m.Insert(root, i, []byte(fmt.Sprintf("value-%d", i)))
		if err != nil {
			t.Fatal(err)
		}
		root = newRoot
	}

	c := NewCursor(src, root)
	if err := c.Seek(5); err != nil {
		t.Fatal(err)
	}
	if !c.Valid() || c.Current().RowID != 5 {
		t.Fatalf("seek(5) landed on %+v", c.Current())
	}
	if string(c.Current().Payload) != "value-5" {
		t.Fatalf("payload = %q", c.Current().Payload)
	}
}

func TestInsertTriggersSplitAndGrowth(t *testing.T) {
	src, root := newEmptyTree(t, 512) // small page forces splits quickly
	m := NewMutator(src, nil)

	const n = 200
	for i := int64(0); i < n; i++ {
		newRoot, err := m.Insert(root, i, []byte(fmt.Sprintf("row-%04d-payload", i)))
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		root = newRoot
	}

	c := NewCursor(src, root)
	if err := c.First(); err != nil {
		t.Fatal(err)
	}
	count := 0
	var last int64 = -1
	for c.Valid() {
		cur := c.Current()
		if cur.RowID <= last {
			t.Fatalf("rowids out of order: %d after %d", cur.RowID, last)
		}
		last = cur.RowID
		count++
		if err := c.Next(); err != nil {
			t.Fatal(err)
		}
	}
	if count != n {
		t.Fatalf("iterated %d cells, want %d", count, n)
	}
}

func TestDeleteRemovesRowid(t *testing.T) {
	src, root := newEmptyTree(t, 4096)
	m := NewMutator(src, nil)
	for i := int64(1); i <= 5; i++ {
		newRoot, err := m.Insert(root, i, []byte("x"))
		if err != nil {
			t.Fatal(err)
		}
		root = newRoot
	}
	if err := m.Delete(root, 3); err != nil {
		t.Fatal(err)
	}
	if _, found, err := Get(src, root, 3); err != nil || found {
		t.Fatalf("rowid 3 should be gone, found=%v err=%v", found, err)
	}
	if _, found, err := Get(src, root, 4); err != nil || !found {
		t.Fatalf("rowid 4 should remain, found=%v err=%v", found, err)
	}
}
