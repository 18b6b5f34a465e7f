// Package catalog reads and maintains sqlite_schema (§3.1): the root
// table b-tree, always rooted at page 1, whose rows describe every other
// table, index, and system table in the database.
package catalog

import (
	"fmt"
	"sync"

	"github.com/sharc-db/sharc/internal/storage/btree"
	"github.com/sharc-db/sharc/internal/storage/freelist"
	"github.com/sharc-db/sharc/internal/storage/pagesource"
	"github.com/sharc-db/sharc/internal/storage/record"
)

const SchemaRootPage = 1

// Entry is one row of sqlite_schema.
type Entry struct {
	RowID    int64
	Type     string // "table" or "index"
	Name     string
	TblName  string
	RootPage uint32
	SQL      string
}

// Catalog caches the decoded schema table in memory and keeps the
// underlying b-tree in sync on every mutation.
type Catalog struct {
	mu      sync.RWMutex
	src     pagesource.PageSource
	free    *freelist.Manager
	byName  map[string]*Entry
	nextRow int64
}

// Load reads every row out of sqlite_schema and builds the in-memory
// index. If the schema table does not yet exist (brand-new database),
// the caller must have already initialized page 1 as an empty leaf.
func Load(src pagesource.PageSource, free *freelist.Manager) (*Catalog, error) {
	c := &Catalog{src: src, free: free, byName: make(map[string]*Entry)}
	cur := btree.NewCursor(src, SchemaRootPage)
	if err := cur.First(); err != nil {
		return nil, fmt.Errorf("catalog: scan sqlite_schema: %w", err)
	}
	for cur.Valid() {
		cell := cur.Current()
		e, err := decodeEntry(cell.RowID, cell.Payload)
		if err != nil {
			return nil, err
		}
		c.byName[e.Name] = e
		if e.RowID >= c.nextRow {
			c.nextRow = e.RowID + 1
		}
		if err := cur.Next(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func decodeEntry(rowid int64, payload []byte) (*Entry, error) {
	cols, err := record.DecodeRecord(payload)
	if err != nil {
		return nil, fmt.Errorf("catalog: decode row %d: %w", rowid, err)
	}
	if len(cols) < 5 {
		return nil, fmt.Errorf("catalog: row %d has %d columns, want 5", rowid, len(cols))
	}
	get := func(i int) string {
		if cols[i].Kind == record.KindText || cols[i].Kind == record.KindBlob {
			return string(cols[i].Bytes)
		}
		return ""
	}
	return &Entry{
		RowID:    rowid,
		Type:     get(0),
		Name:     get(1),
		TblName:  get(2),
		RootPage: uint32(cols[3].Int),
		SQL:      get(4),
	}, nil
}

func (e *Entry) encode() ([]byte, error) {
	cols := []any{e.Type, e.Name, e.TblName, int64(e.RootPage), e.SQL}
	return record.EncodeRecord(cols, nil)
}

// Lookup returns the schema entry for name, if any.
func (c *Catalog) Lookup(name string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byName[name]
	return e, ok
}

// Tables returns every entry of type "table".
func (c *Catalog) Tables() []*Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*Entry
	for _, e := range c.byName {
		if e.Type == "table" {
			out = append(out, e)
		}
	}
	return out
}

// IsSystemTable reports whether name is one of the reserved sharc system
// tables (underscore-prefixed, per §3).
func IsSystemTable(name string) bool {
	return len(name) > 0 && name[0] == '_'
}

// CreateTable allocates a root page for a new table, writes its
// sqlite_schema row, and returns the assigned root page number.
func (c *Catalog) CreateTable(name, sql string) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.byName[name]; exists {
		return 0, fmt.Errorf("catalog: table %q already exists", name)
	}
	rootPgno, err := c.allocateRoot()
	if err != nil {
		return 0, err
	}

	e := &Entry{RowID: c.nextRow, Type: "table", Name: name, TblName: name, RootPage: rootPgno, SQL: sql}
	payload, err := e.encode()
	if err != nil {
		return 0, err
	}
	mut := btree.NewMutator(c.src, c.free)
	if _, err := mut.Insert(SchemaRootPage, e.RowID, payload); err != nil {
		return 0, fmt.Errorf("catalog: insert schema row: %w", err)
	}
	c.byName[name] = e
	c.nextRow++
	return rootPgno, nil
}

func (c *Catalog) allocateRoot() (uint32, error) {
	if c.free != nil && c.free.FreeCount() > 0 {
		return c.free.Pop()
	}
	return c.src.PageCount() + 1, nil
}

// DropTable removes name's sqlite_schema row and releases its root page
// to the freelist. It does not reclaim the table's non-root pages — a
// full vacuum would be required for that, which is out of scope here.
func (c *Catalog) DropTable(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byName[name]
	if !ok {
		return fmt.Errorf("catalog: table %q not found", name)
	}
	mut := btree.NewMutator(c.src, c.free)
	if err := mut.Delete(SchemaRootPage, e.RowID); err != nil {
		return fmt.Errorf("catalog: delete schema row: %w", err)
	}
	if c.free != nil {
		if err := c.free.Push(e.RootPage); err != nil {
			return err
		}
	}
	delete(c.byName, name)
	return nil
}
