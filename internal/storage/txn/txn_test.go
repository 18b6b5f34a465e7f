package txn

import (
	"fmt"
	"testing"

	"github.com/sharc-db/sharc/internal/storage/pagesource"
)

func page(size int, b byte) []byte {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = b
	}
	return buf
}

func TestCommitFlushesToBase(t *testing.T) {
	base := pagesource.NewMemoryPageSource(64, 1)
	p := NewPager(base, CommitHooks{})

	tx := p.Begin()
	if err := tx.Pages().WritePage(1, page(64, 0x42)); err != nil {
		t.Fatal(err)
	}
	got, _ := base.GetPage(1)
	if got[0] == 0x42 {
		t.Fatal("base should not see the write before commit")
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	got2, _ := base.GetPage(1)
	if got2[0] != 0x42 {
		t.Fatal("base should reflect committed write")
	}
}

func TestRollbackDiscardsWrites(t *testing.T) {
	base := pagesource.NewMemoryPageSource(64, 1)
	base.WritePage(1, page(64, 0x01))
	p := NewPager(base, CommitHooks{})

	tx := p.Begin()
	tx.Pages().WritePage(1, page(64, 0xFF))
	tx.Rollback()

	got, _ := base.GetPage(1)
	if got[0] != 0x01 {
		t.Fatal("rollback must leave base untouched")
	}
}

func TestCommitHooksRunInOrder(t *testing.T) {
	base := pagesource.NewMemoryPageSource(64, 1)
	var order []string
	hooks := CommitHooks{
		BeforeFlush: func(dirty *pagesource.ShadowPageSource) error {
			order = append(order, "before")
			if dirty.DirtyPageCount() != 1 {
				return fmt.Errorf("expected 1 dirty page, got %d", dirty.DirtyPageCount())
			}
			return nil
		},
		AfterCommit: func() error {
			order = append(order, "after")
			return nil
		},
	}
	p := NewPager(base, hooks)
	tx := p.Begin()
	tx.Pages().WritePage(1, page(64, 0x07))
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != "before" || order[1] != "after" {
		t.Fatalf("hook order = %v", order)
	}
}

func TestBeginBlocksUntilPriorTransactionFinishes(t *testing.T) {
	base := pagesource.NewMemoryPageSource(64, 1)
	p := NewPager(base, CommitHooks{})
	tx1 := p.Begin()

	done := make(chan struct{})
	go func() {
		tx2 := p.Begin()
		tx2.Rollback()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second Begin should block while first transaction is open")
	default:
	}
	tx1.Rollback()
	<-done
}
