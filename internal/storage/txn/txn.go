// Package txn implements the single-writer/many-readers transaction
// model (§4.5, §5): a Pager owning the base page store, a ProxyPageSource
// every caller reads and writes through, and a ShadowPageSource overlay
// that isolates an in-flight write transaction's pages from committed
// state until Commit flushes them.
//
// What: begin/commit/rollback over a copy-on-write page overlay.
// How: callers always go through Pager.Pages(), a ProxyPageSource that
// Begin retargets at a fresh ShadowPageSource and Commit/Rollback
// retarget back at the base source.
// Why: a single writer at a time means no per-row version metadata is
// needed — the overlay alone gives atomicity and isolation.
package txn

import (
	"fmt"
	"sync"

	"github.com/sharc-db/sharc/internal/storage/pagesource"
)

// CommitHooks are called synchronously during Commit, in order.
// BeforeFlush runs before any page reaches base, and its error rolls the
// transaction back; AfterCommit runs after the flush, and its error is
// returned with the pages already in base.
type CommitHooks struct {
	// BeforeFlush runs with the shadow overlay still holding every dirty
	// page, letting a hook (e.g. HNSW auto-maintenance) inspect pending
	// writes before they reach the base store.
	BeforeFlush func(dirty *pagesource.ShadowPageSource) error
	// AfterCommit runs once dirty pages have been flushed to base and the
	// proxy retargeted back to base — used for ledger appends and
	// change-event publish.
	AfterCommit func() error
}

// Pager owns the base page store and serializes write transactions
// (single writer, many readers) behind a retargetable proxy.
type Pager struct {
	mu     sync.Mutex // held for the duration of any write transaction
	base   pagesource.PageSource
	proxy  *pagesource.ProxyPageSource
	hooks  CommitHooks
	active *Transaction
}

// NewPager wraps base. Reads through Pages() see base directly until a
// write transaction is open.
func NewPager(base pagesource.PageSource, hooks CommitHooks) *Pager {
	p := &Pager{base: base, hooks: hooks}
	p.proxy = pagesource.NewProxyPageSource(base)
	return p
}

// Pages returns the page source every reader and writer should use. Its
// target changes transparently as transactions begin and end.
func (p *Pager) Pages() pagesource.PageSource { return p.proxy }

// Transaction is a single write transaction's handle. Only one may be
// open on a Pager at a time.
type Transaction struct {
	pager  *Pager
	shadow *pagesource.ShadowPageSource
	done   bool
}

// Begin opens a write transaction, blocking until any prior transaction
// has committed or rolled back.
func (p *Pager) Begin() *Transaction {
	p.mu.Lock()
	shadow := pagesource.NewShadowPageSource(p.base)
	p.proxy.Retarget(shadow)
	tx := &Transaction{pager: p, shadow: shadow}
	p.active = tx
	return tx
}

// Commit flushes shadowed pages to the base store and runs commit hooks.
// A BeforeFlush or flush error rolls the transaction back and is
// returned; an AfterCommit error is returned after the commit has
// already taken effect.
func (tx *Transaction) Commit() error {
	if tx.done {
		return fmt.Errorf("txn: transaction already finished")
	}
	if tx.pager.hooks.BeforeFlush != nil {
		if err := tx.pager.hooks.BeforeFlush(tx.shadow); err != nil {
			tx.Rollback()
			return fmt.Errorf("txn: before-flush hook: %w", err)
		}
	}
	if err := tx.shadow.WriteDirtyPagesTo(tx.pager.base); err != nil {
		tx.Rollback()
		return fmt.Errorf("txn: flush dirty pages: %w", err)
	}
	tx.finish()
	if tx.pager.hooks.AfterCommit != nil {
		if err := tx.pager.hooks.AfterCommit(); err != nil {
			return fmt.Errorf("txn: after-commit hook: %w", err)
		}
	}
	return nil
}

// Rollback discards every shadowed page, leaving base untouched.
func (tx *Transaction) Rollback() {
	if tx.done {
		return
	}
	tx.shadow.ClearShadow()
	tx.finish()
}

func (tx *Transaction) finish() {
	tx.done = true
	tx.pager.proxy.Retarget(tx.pager.base)
	tx.pager.active = nil
	tx.pager.mu.Unlock()
}

// Pages returns the shadow-backed page source visible to this
// transaction's own writes (equivalent to pager.Pages() while open).
func (tx *Transaction) Pages() pagesource.PageSource { return tx.shadow }

// DirtyPageCount reports how many pages this transaction has modified
// so far, for diagnostics and checkpoint-size heuristics.
func (tx *Transaction) DirtyPageCount() int { return tx.shadow.DirtyPageCount() }
