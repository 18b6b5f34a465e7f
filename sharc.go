// Package sharc wires every component — page storage, B-tree, schema
// catalog, transactions, HNSW vector search, the typed property graph,
// and the trust layer — into a single embeddable database (§2, §6).
package sharc

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sharc-db/sharc/internal/events"
	"github.com/sharc-db/sharc/internal/graph"
	"github.com/sharc-db/sharc/internal/maint"
	"github.com/sharc-db/sharc/internal/sharcerr"
	"github.com/sharc-db/sharc/internal/storage/btree"
	"github.com/sharc-db/sharc/internal/storage/catalog"
	"github.com/sharc-db/sharc/internal/storage/format"
	"github.com/sharc-db/sharc/internal/storage/freelist"
	"github.com/sharc-db/sharc/internal/storage/pagesource"
	"github.com/sharc-db/sharc/internal/storage/record"
	"github.com/sharc-db/sharc/internal/storage/txn"
	"github.com/sharc-db/sharc/internal/trust"
	"github.com/sharc-db/sharc/internal/trust/agent"
	"github.com/sharc-db/sharc/internal/trust/audit"
	"github.com/sharc-db/sharc/internal/trust/entitlement"
	"github.com/sharc-db/sharc/internal/trust/ledger"
	"github.com/sharc-db/sharc/internal/trust/reputation"
	"github.com/sharc-db/sharc/internal/trust/scope"
	"github.com/sharc-db/sharc/internal/vector/hnsw"
	"github.com/sharc-db/sharc/internal/vector/query"
)

// System table names, reserved per §6.
const (
	TableAgents    = "_sharc_agents"
	TableLedger    = "_sharc_ledger"
	TableScores    = "_sharc_scores"
	TableAudit     = "_sharc_audit"
	TableConcepts  = "_concepts"
	TableRelations = "_relations"
)

// PrefetchOptions configures CachedPageSource's sequential-access
// prefetch policy.
type PrefetchOptions struct {
	Disabled            bool `yaml:"disabled"`
	SequentialThreshold int  `yaml:"sequential_threshold"`
	PrefetchDepth       int  `yaml:"prefetch_depth"`
}

// HNSWOptions overrides per-index search parameters.
type HNSWOptions struct {
	EfSearch int `yaml:"ef_search"`
}

// OpenOptions is the configuration envelope recognized by Open (§6). It
// unmarshals directly from a YAML config file via LoadOpenOptionsYAML, so
// a deployment can check a "sharc.yaml" into its config directory instead
// of constructing the struct in code.
type OpenOptions struct {
	Writable      bool            `yaml:"writable"`
	PageCacheSize int             `yaml:"page_cache_size"` // pages, 0 disables the cache wrapper
	MemoryMapped  bool            `yaml:"memory_mapped"`
	Prefetch      PrefetchOptions `yaml:"prefetch"`
	HNSW          HNSWOptions     `yaml:"hnsw"`
}

// DefaultOpenOptions returns the defaults named in §6.
func DefaultOpenOptions() OpenOptions {
	return OpenOptions{
		Writable:      true,
		PageCacheSize: 2000,
		Prefetch: PrefetchOptions{
			SequentialThreshold: 3,
			PrefetchDepth:       4,
		},
	}
}

// vectorIndex bundles an HNSW graph with the query engine dispatching
// over it for one table.column.
type vectorIndex struct {
	mu     sync.RWMutex
	table  string
	column string
	graph  *hnsw.Graph
	engine *query.Engine
}

// vectorAttachment records that table.column's vector index must be
// kept in sync with table's rowid-keyed column at ordinal, so
// replayVectorChanges (the commit's BeforeFlush hook, §4.6) knows where
// in a row's decoded columns to find the vector to upsert.
type vectorAttachment struct {
	column  string
	ordinal int
	index   *vectorIndex
}

// rowOp distinguishes the two kinds of row change PutRow/DeleteRow
// queue for auto-maintenance replay.
type rowOp int

const (
	rowUpsert rowOp = iota
	rowDelete
)

// rowChange is one queued row mutation, replayed into every vector
// index attached to its table when the owning transaction commits.
type rowChange struct {
	table string
	rowid int64
	op    rowOp
	cols  []any
}

// Database is the embedded database handle returned by Open/Create.
type Database struct {
	mu       sync.RWMutex
	path     string
	opts     OpenOptions
	pageSize int
	closed   bool

	base         pagesource.PageSource
	pager        *txn.Pager
	freelist     *freelist.Manager
	catalog      *catalog.Catalog
	textEncoding uint32

	graph        *graph.Graph
	conceptSeq   int64
	relationSeq  int64

	vectors           map[string]*vectorIndex
	vectorAttachments map[string][]vectorAttachment
	pendingChanges    []rowChange

	agents       *agent.Registry
	ledger       *ledger.Ledger
	auditLog     *audit.Manager
	reputation   *reputation.Manager
	entitlements *entitlement.Enforcer
	bus          *events.Bus
	maint        *maint.Scheduler
}

// LoadOpenOptionsYAML reads the configuration envelope from a YAML file
// (§6's "OpenOptions config"), starting from DefaultOpenOptions so a file
// that only overrides a few fields still gets sane defaults for the rest.
func LoadOpenOptionsYAML(path string) (OpenOptions, error) {
	opts := DefaultOpenOptions()
	buf, err := os.ReadFile(path)
	if err != nil {
		return opts, sharcerr.New(sharcerr.KindFileNotFound, path, err)
	}
	if err := yaml.Unmarshal(buf, &opts); err != nil {
		return opts, fmt.Errorf("sharc: parse config %s: %w", path, err)
	}
	return opts, nil
}

func vectorKey(table, column string) string { return table + "." + column }

// hnswShadowTable names the reserved table an HNSW index's serialized
// blob lives in, one table per (table, column) per §3/§6.
func hnswShadowTable(table, column string) string {
	return "_sharc_hnsw_" + table + "_" + column
}

// Create initializes a brand-new database file (or, if path is "", an
// in-memory database) at the given page size.
func Create(path string, pageSize int) (*Database, error) {
	if pageSize == 0 {
		pageSize = format.DefaultPageSize
	}
	if !format.ValidPageSize(pageSize) {
		return nil, sharcerr.New(sharcerr.KindBadHeaderSize, fmt.Sprintf("page size %d", pageSize), nil)
	}

	var base pagesource.PageSource
	if path == "" {
		base = pagesource.NewMemoryPageSource(pageSize, 1)
	} else {
		if _, err := os.Stat(path); err == nil {
			return nil, sharcerr.New(sharcerr.KindAlreadyCommitted, path, fmt.Errorf("file already exists"))
		}
		f, err := pagesource.OpenFilePageSource(path, pageSize, true)
		if err != nil {
			return nil, sharcerr.New(sharcerr.KindFileNotFound, path, err)
		}
		base = f
	}

	buf := make([]byte, pageSize)
	hdr := format.New(pageSize)
	copy(buf, hdr.Serialize())
	btree.Init(buf, true, format.PageLeafTable)
	if err := base.WritePage(1, buf); err != nil {
		return nil, sharcerr.New(sharcerr.KindShortWrite, path, err)
	}

	return newDatabase(path, base, pageSize, DefaultOpenOptions())
}

// Open opens an existing database file at path.
func Open(path string, opts OpenOptions) (*Database, error) {
	if path == "" {
		return nil, sharcerr.New(sharcerr.KindFileNotFound, path, fmt.Errorf("Open requires a file path; use Create for an in-memory database"))
	}
	if _, err := os.Stat(path); err != nil {
		return nil, sharcerr.New(sharcerr.KindFileNotFound, path, err)
	}

	first, err := peekPageSize(path)
	if err != nil {
		return nil, err
	}

	var base pagesource.PageSource
	if opts.MemoryMapped {
		m, err := pagesource.OpenMemoryMappedPageSource(path, first, opts.Writable)
		if err != nil {
			f, ferr := pagesource.OpenFilePageSource(path, first, opts.Writable)
			if ferr != nil {
				return nil, sharcerr.New(sharcerr.KindMappingFailed, path, err)
			}
			base = f
		} else {
			base = m
		}
	} else {
		f, err := pagesource.OpenFilePageSource(path, first, opts.Writable)
		if err != nil {
			return nil, sharcerr.New(sharcerr.KindReadError, path, err)
		}
		base = f
	}

	if opts.PageCacheSize > 0 {
		cfg := pagesource.CachedConfig{MaxPages: opts.PageCacheSize}
		if !opts.Prefetch.Disabled {
			cfg.SequentialThreshold = opts.Prefetch.SequentialThreshold
			if cfg.SequentialThreshold == 0 {
				cfg.SequentialThreshold = 3
			}
			cfg.PrefetchDepth = opts.Prefetch.PrefetchDepth
			if cfg.PrefetchDepth == 0 {
				cfg.PrefetchDepth = 4
			}
		}
		base = pagesource.NewCachedPageSource(base, cfg)
	}

	return newDatabase(path, base, first, opts)
}

func peekPageSize(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, sharcerr.New(sharcerr.KindFileNotFound, path, err)
	}
	defer f.Close()
	buf := make([]byte, format.HeaderSize)
	if _, err := f.Read(buf); err != nil {
		return 0, sharcerr.New(sharcerr.KindEmptyFile, path, err)
	}
	hdr, err := format.Parse(buf)
	if err != nil {
		return 0, sharcerr.New(sharcerr.KindInvalidMagic, path, err)
	}
	return hdr.PageSizeBytes(), nil
}

func newDatabase(path string, base pagesource.PageSource, pageSize int, opts OpenOptions) (*Database, error) {
	db := &Database{
		path:              path,
		opts:              opts,
		pageSize:          pageSize,
		base:              base,
		vectors:           make(map[string]*vectorIndex),
		vectorAttachments: make(map[string][]vectorAttachment),
		agents:            agent.New(),
		ledger:            ledger.New(),
		auditLog:          audit.New(),
		reputation:        reputation.New(),
		bus:               events.New(),
		maint:             maint.New(),
	}
	db.entitlements = entitlement.New(func(agentID string) (entitlement.AgentInfo, bool) {
		id, ok := db.agents.Lookup(agentID)
		if !ok {
			return entitlement.AgentInfo{}, false
		}
		return entitlement.AgentInfo{
			AgentID:       id.AgentID,
			ReadScope:     id.ReadScope,
			WriteScope:    id.WriteScope,
			ValidityStart: id.ValidityStart,
			ValidityEnd:   id.ValidityEnd,
		}, true
	})

	hooks := txn.CommitHooks{
		BeforeFlush: db.replayVectorChanges,
		AfterCommit: func() error {
			db.bus.Publish(events.Event{Kind: events.ConceptUpdated, Type: "commit"})
			return nil
		},
	}
	db.pager = txn.NewPager(base, hooks)

	hdrBuf, err := base.GetPage(1)
	if err != nil {
		return nil, sharcerr.New(sharcerr.KindReadError, path, err)
	}
	hdr, err := format.Parse(hdrBuf)
	if err != nil {
		return nil, sharcerr.New(sharcerr.KindInvalidMagic, path, err)
	}
	db.textEncoding = hdr.TextEncoding
	db.freelist = freelist.Open(db.pager.Pages(), hdr.FreelistTrunk, hdr.FreelistCount)

	cat, err := catalog.Load(db.pager.Pages(), db.freelist)
	if err != nil {
		return nil, fmt.Errorf("sharc: load catalog: %w", err)
	}
	db.catalog = cat
	db.graph = graph.New(&graphRowStore{db: db})

	if err := db.ensureSystemTables(); err != nil {
		return nil, err
	}
	if err := db.loadGraphIndex(); err != nil {
		return nil, err
	}
	if err := db.loadTrustState(); err != nil {
		return nil, err
	}

	db.maint.Start()
	return db, nil
}

// Close stops background maintenance and releases the underlying page
// source.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return sharcerr.New(sharcerr.KindClosed, db.path, nil)
	}
	db.closed = true
	db.maint.Stop()
	return db.base.Close()
}

// Update runs fn with a fresh write transaction's page source, committing
// on success and rolling back if fn returns an error.
func (db *Database) Update(fn func(pages pagesource.PageSource) error) error {
	db.mu.RLock()
	if db.closed {
		db.mu.RUnlock()
		return sharcerr.New(sharcerr.KindClosed, db.path, nil)
	}
	db.mu.RUnlock()

	tx := db.pager.Begin()
	if err := fn(tx.Pages()); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (db *Database) ensureSystemTables() error {
	specs := []struct{ name, sql string }{
		{TableAgents, "CREATE TABLE " + TableAgents + "(agent_id TEXT PRIMARY KEY, public_key BLOB, read_scope TEXT, write_scope TEXT, validity_start INTEGER, validity_end INTEGER, signature BLOB)"},
		{TableLedger, "CREATE TABLE " + TableLedger + "(sequence INTEGER PRIMARY KEY, agent_id TEXT, operation TEXT, payload BLOB, payload_hash BLOB, prev_hash BLOB, signature BLOB)"},
		{TableScores, "CREATE TABLE " + TableScores + "(agent_id TEXT PRIMARY KEY, alpha REAL, beta REAL, last_update INTEGER)"},
		{TableAudit, "CREATE TABLE " + TableAudit + "(sequence INTEGER PRIMARY KEY, severity INTEGER, agent_id TEXT, message TEXT, prev_hash BLOB, timestamp INTEGER)"},
		{TableConcepts, "CREATE TABLE " + TableConcepts + "(id INTEGER PRIMARY KEY, key TEXT, type TEXT, data TEXT, tokens INTEGER)"},
		{TableRelations, "CREATE TABLE " + TableRelations + "(id INTEGER PRIMARY KEY, from_id INTEGER, to_id INTEGER, kind TEXT, weight REAL, data TEXT)"},
	}
	for _, s := range specs {
		if _, ok := db.catalog.Lookup(s.name); ok {
			continue
		}
		if err := db.CreateTable(s.name, s.sql); err != nil {
			return fmt.Errorf("sharc: bootstrap %s: %w", s.name, err)
		}
	}
	return nil
}

// CreateTable registers a new table in the schema catalog and initializes
// its root page as an empty leaf, all within one transaction.
func (db *Database) CreateTable(name, sql string) error {
	return db.Update(func(pages pagesource.PageSource) error {
		root, err := db.catalog.CreateTable(name, sql)
		if err != nil {
			return err
		}
		buf := make([]byte, db.pageSize)
		btree.Init(buf, root == catalog.SchemaRootPage, format.PageLeafTable)
		return pages.WritePage(root, buf)
	})
}

// DropTable removes name from the schema catalog, releasing its root
// page to the freelist.
func (db *Database) DropTable(name string) error {
	return db.Update(func(pages pagesource.PageSource) error {
		return db.catalog.DropTable(name)
	})
}

// loadGraphIndex rebuilds the in-memory adjacency index from the
// _concepts/_relations tables, and seeds the rowid sequences used by new
// inserts.
func (db *Database) loadGraphIndex() error {
	if err := db.scanTable(TableConcepts, func(rowid int64, cols []record.ColumnValue) error {
		if len(cols) < 4 {
			return nil
		}
		c := &graph.Concept{RowID: rowid, Key: db.asTextEncoded(cols[1]), Type: db.asTextEncoded(cols[2])}
		c.Data = decodeJSONMap(db.asTextEncoded(cols[3]))
		if len(cols) > 4 {
			c.Tokens = cols[4].Int
		}
		db.graph.LoadConcept(c)
		if rowid >= db.conceptSeq {
			db.conceptSeq = rowid + 1
		}
		return nil
	}); err != nil {
		return err
	}
	return db.scanTable(TableRelations, func(rowid int64, cols []record.ColumnValue) error {
		if len(cols) < 6 {
			return nil
		}
		r := &graph.Relation{RowID: rowid, From: cols[1].Int, To: cols[2].Int, Kind: db.asTextEncoded(cols[3]), Weight: cols[4].Float}
		r.Data = decodeJSONMap(db.asTextEncoded(cols[5]))
		db.graph.LoadRelation(r)
		if rowid >= db.relationSeq {
			db.relationSeq = rowid + 1
		}
		return nil
	})
}

func (db *Database) scanTable(name string, fn func(rowid int64, cols []record.ColumnValue) error) error {
	entry, ok := db.catalog.Lookup(name)
	if !ok {
		return nil
	}
	cur := btree.NewCursor(db.pager.Pages(), entry.RootPage)
	if err := cur.First(); err != nil {
		return fmt.Errorf("sharc: scan %s: %w", name, err)
	}
	for cur.Valid() {
		cell := cur.Current()
		cols, err := record.DecodeRecord(cell.Payload)
		if err != nil {
			return fmt.Errorf("sharc: decode %s row %d: %w", name, cell.RowID, err)
		}
		if err := fn(cell.RowID, cols); err != nil {
			return err
		}
		if err := cur.Next(); err != nil {
			return err
		}
	}
	return nil
}

// loadTrustState rebuilds the in-memory agent registry, ledger,
// audit log, and reputation manager from their backing system tables,
// the trust-layer counterpart of loadGraphIndex — so a reopened
// database resumes with the same agents, chain, and scores it had when
// it was last closed instead of starting over empty.
func (db *Database) loadTrustState() error {
	if err := db.scanTable(TableAgents, func(rowid int64, cols []record.ColumnValue) error {
		if len(cols) < 7 {
			return nil
		}
		id := agent.Identity{
			AgentID:       db.asTextEncoded(cols[0]),
			ReadScope:     db.asTextEncoded(cols[2]),
			WriteScope:    db.asTextEncoded(cols[3]),
			ValidityStart: cols[4].Int,
			ValidityEnd:   cols[5].Int,
		}
		if len(cols[1].Bytes) > 0 {
			x, y := elliptic.Unmarshal(elliptic.P256(), cols[1].Bytes)
			if x != nil {
				id.PublicKey = &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
			}
		}
		db.agents.Restore(id)
		return nil
	}); err != nil {
		return err
	}

	if err := db.scanTable(TableLedger, func(rowid int64, cols []record.ColumnValue) error {
		if len(cols) < 7 {
			return nil
		}
		e := &ledger.Entry{
			Sequence:  uint64(cols[0].Int),
			AgentID:   db.asTextEncoded(cols[1]),
			Operation: db.asTextEncoded(cols[2]),
			Payload:   append([]byte(nil), cols[3].Bytes...),
			Signature: append([]byte(nil), cols[6].Bytes...),
		}
		copy(e.PayloadHash[:], cols[4].Bytes)
		copy(e.PrevHash[:], cols[5].Bytes)
		db.ledger.Restore(e)
		return nil
	}); err != nil {
		return err
	}

	if err := db.scanTable(TableAudit, func(rowid int64, cols []record.ColumnValue) error {
		if len(cols) < 5 {
			return nil
		}
		e := &audit.Event{
			Sequence: uint64(cols[0].Int),
			Severity: audit.Severity(cols[1].Int),
			AgentID:  db.asTextEncoded(cols[2]),
			Message:  db.asTextEncoded(cols[3]),
		}
		copy(e.PrevHash[:], cols[4].Bytes)
		if len(cols) > 5 {
			e.Timestamp = time.Unix(0, cols[5].Int)
		}
		db.auditLog.Restore(e)
		return nil
	}); err != nil {
		return err
	}

	return db.scanTable(TableScores, func(rowid int64, cols []record.ColumnValue) error {
		if len(cols) < 4 {
			return nil
		}
		db.reputation.Restore(db.asTextEncoded(cols[0]), cols[1].Float, cols[2].Float, time.Unix(cols[3].Int, 0))
		return nil
	})
}

// agentRowID derives a stable rowid for agent_id, which is a TEXT
// primary key rather than the INTEGER one the engine's rowid-keyed
// B-tree needs — there is no column-index lookup path (§1 leaves SQL
// column parsing out of scope), so a deterministic hash of the id is
// the table's only usable key, the same role conceptSeq/relationSeq
// play for _concepts/_relations' own INTEGER PRIMARY KEY columns.
func agentRowID(agentID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(agentID))
	return int64(h.Sum64() & 0x7fffffffffffffff)
}

// persistAgent writes id's registration (including its self-attested
// signature) into _sharc_agents, so RegisterAgent survives Close/reopen
// the same way graphRowStore's writes to _concepts/_relations do.
func (db *Database) persistAgent(id agent.Identity, signature []byte) error {
	entry, ok := db.catalog.Lookup(TableAgents)
	if !ok {
		return fmt.Errorf("sharc: %s missing", TableAgents)
	}
	var pubBytes []byte
	if id.PublicKey != nil {
		pubBytes = elliptic.Marshal(elliptic.P256(), id.PublicKey.X, id.PublicKey.Y)
	}
	payload, err := record.EncodeRecord([]any{
		db.encodeText(id.AgentID), pubBytes, db.encodeText(id.ReadScope), db.encodeText(id.WriteScope),
		id.ValidityStart, id.ValidityEnd, signature,
	}, nil)
	if err != nil {
		return err
	}
	rowid := agentRowID(id.AgentID)
	return db.Update(func(pages pagesource.PageSource) error {
		mut := btree.NewMutator(pages, db.freelist)
		_, err := mut.Insert(entry.RootPage, rowid, payload)
		return err
	})
}

// persistLedgerEntry writes e into _sharc_ledger, keyed by its own
// sequence number.
func (db *Database) persistLedgerEntry(e *ledger.Entry) error {
	entry, ok := db.catalog.Lookup(TableLedger)
	if !ok {
		return fmt.Errorf("sharc: %s missing", TableLedger)
	}
	payload, err := record.EncodeRecord([]any{
		int64(e.Sequence), db.encodeText(e.AgentID), db.encodeText(e.Operation),
		e.Payload, e.PayloadHash[:], e.PrevHash[:], e.Signature,
	}, nil)
	if err != nil {
		return err
	}
	return db.Update(func(pages pagesource.PageSource) error {
		mut := btree.NewMutator(pages, db.freelist)
		_, err := mut.Insert(entry.RootPage, int64(e.Sequence), payload)
		return err
	})
}

// recordAudit appends e to the in-memory audit log and persists it to
// _sharc_audit in the same call, replacing every call site that used to
// call auditLog.Record directly and leave the event unpersisted.
func (db *Database) recordAudit(severity audit.Severity, agentID, message string) *audit.Event {
	e := db.auditLog.Record(severity, agentID, message)
	_ = db.persistAuditEvent(e)
	return e
}

func (db *Database) persistAuditEvent(e *audit.Event) error {
	entry, ok := db.catalog.Lookup(TableAudit)
	if !ok {
		return fmt.Errorf("sharc: %s missing", TableAudit)
	}
	payload, err := record.EncodeRecord([]any{
		int64(e.Sequence), int64(e.Severity), db.encodeText(e.AgentID), db.encodeText(e.Message),
		e.PrevHash[:], e.Timestamp.UnixNano(),
	}, nil)
	if err != nil {
		return err
	}
	return db.Update(func(pages pagesource.PageSource) error {
		mut := btree.NewMutator(pages, db.freelist)
		_, err := mut.Insert(entry.RootPage, int64(e.Sequence), payload)
		return err
	})
}

// persistReputation writes agentID's current decayed Beta parameters to
// _sharc_scores, overwriting whatever row was there before (unlike the
// ledger and audit log, reputation is latest-row-wins per agent rather
// than append-only).
func (db *Database) persistReputation(agentID string) error {
	alpha, beta, lastUpdate, err := db.reputation.Snapshot(agentID)
	if err != nil {
		return err
	}
	entry, ok := db.catalog.Lookup(TableScores)
	if !ok {
		return fmt.Errorf("sharc: %s missing", TableScores)
	}
	payload, err := record.EncodeRecord([]any{db.encodeText(agentID), alpha, beta, lastUpdate.Unix()}, nil)
	if err != nil {
		return err
	}
	rowid := agentRowID(agentID)
	return db.Update(func(pages pagesource.PageSource) error {
		mut := btree.NewMutator(pages, db.freelist)
		_ = mut.Delete(entry.RootPage, rowid) // ignore "not found": first observation has no prior row
		_, err := mut.Insert(entry.RootPage, rowid, payload)
		return err
	})
}

// asTextEncoded decodes a column's TEXT body through the database's
// header-declared text encoding (§3 offset 56), so a database created by
// a SQLite build configured for UTF-16 still yields correct Go strings
// instead of raw UTF-16 bytes reinterpreted as UTF-8. BLOB columns pass
// through unchanged.
func (db *Database) asTextEncoded(c record.ColumnValue) string {
	if c.Kind == record.KindBlob {
		return string(c.Bytes)
	}
	if c.Kind != record.KindText {
		return ""
	}
	s, err := format.DecodeText(c.Bytes, db.textEncoding)
	if err != nil {
		return string(c.Bytes)
	}
	return s
}

// encodeText converts s to the on-disk byte representation for the
// database's declared text encoding (§3 offset 56), the write-side
// counterpart of asTextEncoded. The result is still passed to
// EncodeRecord as a Go string (not []byte) so the record codec assigns it
// a TEXT serial type rather than BLOB — a Go string is just a byte
// sequence and happily holds non-UTF-8 content such as UTF-16 code units.
func (db *Database) encodeText(s string) string {
	b, err := format.EncodeText(s, db.textEncoding)
	if err != nil {
		return s
	}
	return string(b)
}

func decodeJSONMap(s string) map[string]any {
	if s == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

// Graph returns the typed property graph view over this database.
func (db *Database) Graph() *graph.Graph { return db.graph }

// graphRowStore adapts the graph package's persistence seam onto the
// btree-backed _concepts/_relations tables.
type graphRowStore struct {
	db *Database
}

func (s *graphRowStore) PutConcept(c *graph.Concept) (int64, error) {
	s.db.mu.Lock()
	rowid := s.db.conceptSeq
	s.db.conceptSeq++
	s.db.mu.Unlock()

	data, _ := json.Marshal(c.Data)
	payload, err := record.EncodeRecord([]any{rowid, s.db.encodeText(c.Key), s.db.encodeText(c.Type), s.db.encodeText(string(data)), c.Tokens}, nil)
	if err != nil {
		return 0, err
	}
	entry, ok := s.db.catalog.Lookup(TableConcepts)
	if !ok {
		return 0, fmt.Errorf("graph: %s missing", TableConcepts)
	}
	err = s.db.Update(func(pages pagesource.PageSource) error {
		mut := btree.NewMutator(pages, s.db.freelist)
		_, err := mut.Insert(entry.RootPage, rowid, payload)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.db.bus.Publish(events.Event{Kind: events.ConceptCreated, RowID: rowid, Type: c.Type})
	return rowid, nil
}

func (s *graphRowStore) PutRelation(r *graph.Relation) (int64, error) {
	s.db.mu.Lock()
	rowid := s.db.relationSeq
	s.db.relationSeq++
	s.db.mu.Unlock()

	data, _ := json.Marshal(r.Data)
	payload, err := record.EncodeRecord([]any{rowid, r.From, r.To, s.db.encodeText(r.Kind), r.Weight, s.db.encodeText(string(data))}, nil)
	if err != nil {
		return 0, err
	}
	entry, ok := s.db.catalog.Lookup(TableRelations)
	if !ok {
		return 0, fmt.Errorf("graph: %s missing", TableRelations)
	}
	err = s.db.Update(func(pages pagesource.PageSource) error {
		mut := btree.NewMutator(pages, s.db.freelist)
		_, err := mut.Insert(entry.RootPage, rowid, payload)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.db.bus.Publish(events.Event{Kind: events.RelationCreated, RowID: rowid, Type: r.Kind})
	return rowid, nil
}

func (s *graphRowStore) DeleteRelation(rowid int64) error {
	entry, ok := s.db.catalog.Lookup(TableRelations)
	if !ok {
		return fmt.Errorf("graph: %s missing", TableRelations)
	}
	err := s.db.Update(func(pages pagesource.PageSource) error {
		mut := btree.NewMutator(pages, s.db.freelist)
		return mut.Delete(entry.RootPage, rowid)
	})
	if err != nil {
		return err
	}
	s.db.bus.Publish(events.Event{Kind: events.RelationDeleted, RowID: rowid})
	return nil
}

// ArchiveRelation is best-effort: a "_relations_history" table is an
// optional extension most databases never create, so its absence is not
// an error.
func (s *graphRowStore) ArchiveRelation(r *graph.Relation) error {
	entry, ok := s.db.catalog.Lookup("_relations_history")
	if !ok {
		return nil
	}
	data, _ := json.Marshal(r.Data)
	payload, err := record.EncodeRecord([]any{r.RowID, r.From, r.To, s.db.encodeText(r.Kind), r.Weight, s.db.encodeText(string(data))}, nil)
	if err != nil {
		return nil
	}
	return s.db.Update(func(pages pagesource.PageSource) error {
		mut := btree.NewMutator(pages, s.db.freelist)
		_, err := mut.Insert(entry.RootPage, r.RowID, payload)
		return err
	})
}

// VectorIndex returns (loading from its shadow table if present, else
// building empty) the HNSW index over table.column, per §4.6's
// Load/Build/LoadOrBuild convenience. metric must match a previously
// persisted index's metric; a mismatch is an error rather than a silent
// rebuild (§4.6).
func (db *Database) VectorIndex(table, column string, dimensions int, metric hnsw.Metric) (*query.Engine, error) {
	key := vectorKey(table, column)
	db.mu.Lock()
	defer db.mu.Unlock()
	if vi, ok := db.vectors[key]; ok {
		if vi.graph.Metric() != metric {
			return nil, fmt.Errorf("sharc: index on %s.%s already built with metric %v, requested %v", table, column, vi.graph.Metric(), metric)
		}
		return vi.engine, nil
	}

	g, err := db.loadVectorIndexLocked(table, column)
	if err != nil {
		return nil, err
	}
	if g == nil {
		g = hnsw.New(hnsw.Config{Dimensions: dimensions, Metric: metric})
	} else if g.Metric() != metric {
		return nil, fmt.Errorf("sharc: persisted index on %s.%s has metric %v, requested %v", table, column, g.Metric(), metric)
	}
	engine := &query.Engine{Graph: g}
	vi := &vectorIndex{table: table, column: column, graph: g, engine: engine}
	db.vectors[key] = vi
	db.attachVectorIndexLocked(table, column, vi)
	return engine, nil
}

// attachVectorIndexLocked registers vi so replayVectorChanges finds it
// when a PutRow/DeleteRow call touches table (§4.6's auto-maintenance).
// The column's position within table's declared column list is the
// only thing standing in for a real column catalog (§1 leaves SQL
// column parsing out of scope), so it is picked out of the table's own
// CREATE TABLE text rather than tracked separately. db.mu is already
// held by the caller.
func (db *Database) attachVectorIndexLocked(table, column string, vi *vectorIndex) {
	entry, ok := db.catalog.Lookup(table)
	if !ok {
		return
	}
	ordinal, ok := columnOrdinal(entry.SQL, column)
	if !ok {
		return
	}
	for _, att := range db.vectorAttachments[table] {
		if att.column == column {
			return
		}
	}
	db.vectorAttachments[table] = append(db.vectorAttachments[table], vectorAttachment{column: column, ordinal: ordinal, index: vi})
}

// columnOrdinal returns column's 0-based position in sql's
// "CREATE TABLE name(...)" column list, the closest this engine gets to
// a column catalog without a real SQL parser (§1/§3.1).
func columnOrdinal(sql, column string) (int, bool) {
	open := strings.IndexByte(sql, '(')
	close := strings.LastIndexByte(sql, ')')
	if open < 0 || close <= open {
		return 0, false
	}
	for i, part := range strings.Split(sql[open+1:close], ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) > 0 && strings.EqualFold(fields[0], column) {
			return i, true
		}
	}
	return 0, false
}

// loadVectorIndexLocked reads and deserializes table.column's shadow
// blob if the shadow table exists, returning (nil, nil) when it does
// not — callers build an empty graph in that case. db.mu is already
// held by the caller.
func (db *Database) loadVectorIndexLocked(table, column string) (*hnsw.Graph, error) {
	shadow := hnswShadowTable(table, column)
	entry, ok := db.catalog.Lookup(shadow)
	if !ok {
		return nil, nil
	}
	cur := btree.NewCursor(db.pager.Pages(), entry.RootPage)
	if err := cur.First(); err != nil {
		return nil, fmt.Errorf("sharc: read hnsw shadow %s: %w", shadow, err)
	}
	if !cur.Valid() {
		return nil, nil
	}
	cell := cur.Current()
	cols, err := record.DecodeRecord(cell.Payload)
	if err != nil || len(cols) == 0 {
		return nil, fmt.Errorf("sharc: decode hnsw shadow %s: %w", shadow, err)
	}
	g, err := hnsw.Deserialize(cols[0].Bytes)
	if err != nil {
		return nil, fmt.Errorf("sharc: load hnsw index %s.%s: %w", table, column, err)
	}
	return g, nil
}

// PersistVectorIndex serializes table.column's current HNSW graph into
// its shadow table (creating the table on first use), overwriting
// whatever blob was stored there before.
func (db *Database) PersistVectorIndex(table, column string) error {
	db.mu.RLock()
	vi, ok := db.vectors[vectorKey(table, column)]
	db.mu.RUnlock()
	if !ok {
		return fmt.Errorf("sharc: no vector index on %s.%s", table, column)
	}
	vi.mu.RLock()
	blob := vi.graph.Serialize()
	vi.mu.RUnlock()

	shadow := hnswShadowTable(table, column)
	if _, ok := db.catalog.Lookup(shadow); !ok {
		if err := db.CreateTable(shadow, "CREATE TABLE "+shadow+"(blob BLOB)"); err != nil {
			return fmt.Errorf("sharc: create hnsw shadow %s: %w", shadow, err)
		}
	}
	entry, ok := db.catalog.Lookup(shadow)
	if !ok {
		return fmt.Errorf("sharc: hnsw shadow %s missing after create", shadow)
	}
	payload, err := record.EncodeRecord([]any{blob}, nil)
	if err != nil {
		return err
	}
	return db.Update(func(pages pagesource.PageSource) error {
		mut := btree.NewMutator(pages, db.freelist)
		_ = mut.Delete(entry.RootPage, 1) // ignore "not found": first persist has no prior row
		_, err := mut.Insert(entry.RootPage, 1, payload)
		return err
	})
}

// UpsertVector adds or updates a vector in table.column's HNSW index.
func (db *Database) UpsertVector(table, column string, rowid int64, vec []float32) error {
	db.mu.RLock()
	vi, ok := db.vectors[vectorKey(table, column)]
	db.mu.RUnlock()
	if !ok {
		return fmt.Errorf("sharc: no vector index on %s.%s", table, column)
	}
	vi.mu.Lock()
	defer vi.mu.Unlock()
	return vi.graph.Upsert(rowid, vec)
}

// SearchVectors runs req against table.column's index, falling back to
// the configured default EfSearch (§6's `hnsw.ef_search` option) when
// req.EfSearch is left at zero.
func (db *Database) SearchVectors(table, column string, req query.Request) ([]query.Result, query.Strategy, error) {
	db.mu.RLock()
	vi, ok := db.vectors[vectorKey(table, column)]
	db.mu.RUnlock()
	if !ok {
		return nil, query.StrategyFlatScan, fmt.Errorf("sharc: no vector index on %s.%s", table, column)
	}
	if req.EfSearch == 0 {
		req.EfSearch = db.opts.HNSW.EfSearch
	}
	vi.mu.RLock()
	defer vi.mu.RUnlock()
	return vi.engine.Search(req)
}

// DeleteVector tombstones rowid in table.column's HNSW index.
func (db *Database) DeleteVector(table, column string, rowid int64) error {
	db.mu.RLock()
	vi, ok := db.vectors[vectorKey(table, column)]
	db.mu.RUnlock()
	if !ok {
		return fmt.Errorf("sharc: no vector index on %s.%s", table, column)
	}
	vi.mu.Lock()
	defer vi.mu.Unlock()
	vi.graph.Delete(rowid)
	return nil
}

// PutRow inserts or replaces a row in table at rowid, enforcing
// agentID's write entitlement first. This is the generic write path:
// writing through PutRow, rather than driving btree.Mutator directly
// the way graphRowStore does for _concepts/_relations, is what makes
// HNSW auto-maintenance see the change (§4.6) — the write is queued
// into the committing transaction's change set and replayed into every
// vector index attached to table from the BeforeFlush commit hook, with
// no separate UpsertVector call required.
func (db *Database) PutRow(agentID, table string, rowid int64, cols []any, colNames []string) error {
	if db.entitlements != nil {
		if err := db.entitlements.EnforceWrite(agentID, table, colNames); err != nil {
			return err
		}
	}
	entry, ok := db.catalog.Lookup(table)
	if !ok {
		return fmt.Errorf("sharc: table %q not found", table)
	}
	payload, err := record.EncodeRecord(cols, nil)
	if err != nil {
		return err
	}
	return db.Update(func(pages pagesource.PageSource) error {
		mut := btree.NewMutator(pages, db.freelist)
		_ = mut.Delete(entry.RootPage, rowid) // ignore "not found": insert has no prior row
		if _, err := mut.Insert(entry.RootPage, rowid, payload); err != nil {
			return err
		}
		db.queueChange(rowChange{table: table, rowid: rowid, op: rowUpsert, cols: cols})
		return nil
	})
}

// DeleteRow removes a row from table, enforcing agentID's write
// entitlement first and tombstoning the row in any attached vector
// index the same way PutRow upserts into one (§4.6).
func (db *Database) DeleteRow(agentID, table string, rowid int64) error {
	if db.entitlements != nil {
		if err := db.entitlements.EnforceWrite(agentID, table, nil); err != nil {
			return err
		}
	}
	entry, ok := db.catalog.Lookup(table)
	if !ok {
		return fmt.Errorf("sharc: table %q not found", table)
	}
	return db.Update(func(pages pagesource.PageSource) error {
		mut := btree.NewMutator(pages, db.freelist)
		if err := mut.Delete(entry.RootPage, rowid); err != nil {
			return err
		}
		db.queueChange(rowChange{table: table, rowid: rowid, op: rowDelete})
		return nil
	})
}

func (db *Database) queueChange(ch rowChange) {
	db.mu.Lock()
	db.pendingChanges = append(db.pendingChanges, ch)
	db.mu.Unlock()
}

// replayVectorChanges is the pager's BeforeFlush commit hook (§4.6): it
// folds the committing transaction's queued row changes into every HNSW
// index attached to the table they touched, so a PutRow/DeleteRow call
// against a vector-indexed table upserts or tombstones automatically.
// It runs while the shadow overlay still holds the dirty pages; a
// rolled-back transaction never reaches it, since Rollback never calls
// BeforeFlush, so a failed write never leaves a stray queued change.
func (db *Database) replayVectorChanges(_ *pagesource.ShadowPageSource) error {
	db.mu.Lock()
	changes := db.pendingChanges
	db.pendingChanges = nil
	atts := make(map[string][]vectorAttachment, len(db.vectorAttachments))
	for table, list := range db.vectorAttachments {
		atts[table] = list
	}
	db.mu.Unlock()

	for _, ch := range changes {
		for _, att := range atts[ch.table] {
			vi := att.index
			vi.mu.Lock()
			switch ch.op {
			case rowDelete:
				vi.graph.Delete(ch.rowid)
			default:
				if vec, ok := vectorFromCols(ch.cols, att.ordinal); ok {
					if err := vi.graph.Upsert(ch.rowid, vec); err != nil {
						vi.mu.Unlock()
						return fmt.Errorf("sharc: auto-maintain %s.%s: %w", ch.table, att.column, err)
					}
				}
			}
			vi.mu.Unlock()
		}
	}
	return nil
}

// vectorFromCols extracts the vector at ordinal out of a PutRow call's
// column values, accepting either a raw []float32 or a BLOB encoded by
// encodeVectorBytes.
func vectorFromCols(cols []any, ordinal int) ([]float32, bool) {
	if ordinal < 0 || ordinal >= len(cols) {
		return nil, false
	}
	switch v := cols[ordinal].(type) {
	case []float32:
		return v, true
	case []byte:
		return decodeVectorBytes(v), true
	default:
		return nil, false
	}
}

// encodeVectorBytes packs vec as big-endian 4-byte floats, the same
// convention hnsw.Graph.Serialize uses for its own node vectors
// (serialize.go's putF32), so a BLOB vector column written this way
// round-trips through decodeVectorBytes with no precision loss.
func encodeVectorBytes(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.BigEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVectorBytes(b []byte) []float32 {
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.BigEndian.Uint32(b[4*i:]))
	}
	return vec
}

// VectorIndexSnapshot reports table.column's delta-layer observability
// state (§4.6): version, checksum, active node count, and pending
// upsert/delete counts since the last compaction.
func (db *Database) VectorIndexSnapshot(table, column string) (hnsw.Snapshot, error) {
	db.mu.RLock()
	vi, ok := db.vectors[vectorKey(table, column)]
	db.mu.RUnlock()
	if !ok {
		return hnsw.Snapshot{}, fmt.Errorf("sharc: no vector index on %s.%s", table, column)
	}
	vi.mu.RLock()
	defer vi.mu.RUnlock()
	return vi.graph.Snapshot(), nil
}

// CompactVectorIndex rebuilds table.column's HNSW graph, dropping
// tombstoned entries, then persists the compacted graph to its shadow
// table (§4.6: compaction is the point where the on-disk copy is
// expected to be brought current).
func (db *Database) CompactVectorIndex(table, column string) error {
	db.mu.RLock()
	vi, ok := db.vectors[vectorKey(table, column)]
	db.mu.RUnlock()
	if !ok {
		return fmt.Errorf("sharc: no vector index on %s.%s", table, column)
	}
	vi.mu.Lock()
	vi.graph.Compact()
	vi.mu.Unlock()
	return db.PersistVectorIndex(table, column)
}

// Agents returns the agent identity registry.
func (db *Database) Agents() *agent.Registry { return db.agents }

// Ledger returns the provenance ledger.
func (db *Database) Ledger() *ledger.Ledger { return db.ledger }

// Audit returns the audit log.
func (db *Database) Audit() *audit.Manager { return db.auditLog }

// Reputation returns the agent reputation manager.
func (db *Database) Reputation() *reputation.Manager { return db.reputation }

// Events returns the change event bus.
func (db *Database) Events() *events.Bus { return db.bus }

// Maintenance returns the background maintenance scheduler, letting
// callers register WAL checkpoint and HNSW compaction tasks.
func (db *Database) Maintenance() *maint.Scheduler { return db.maint }

// RegisterAgent verifies agentID's self-attestation and records it in
// the agent registry, persisting it to _sharc_agents so it survives
// Close/reopen (§4.9). Its read and write scope are both set to
// scopePattern with no validity window; use RegisterAgentWithPolicy for
// independently scoped read/write access or a bounded validity window.
func (db *Database) RegisterAgent(ctx context.Context, agentID string, pub *ecdsa.PublicKey, scopePattern string, signature []byte) error {
	return db.registerAgent(ctx, agent.Identity{AgentID: agentID, PublicKey: pub, ReadScope: scopePattern, WriteScope: scopePattern}, signature)
}

// RegisterAgentWithPolicy registers id (with its own read/write scope
// and validity window) rather than RegisterAgent's read-equals-write,
// unrestricted-validity convenience shape.
func (db *Database) RegisterAgentWithPolicy(ctx context.Context, id agent.Identity, signature []byte) error {
	return db.registerAgent(ctx, id, signature)
}

func (db *Database) registerAgent(ctx context.Context, id agent.Identity, signature []byte) error {
	if err := db.agents.Register(ctx, id, signature); err != nil {
		db.recordAudit(audit.Warning, id.AgentID, fmt.Sprintf("registration rejected: %v", err))
		return &sharcerr.TrustError{Kind: sharcerr.KindInvalidSignature, Agent: id.AgentID, Err: err}
	}
	if err := db.persistAgent(id, signature); err != nil {
		return fmt.Errorf("sharc: persist agent %s: %w", id.AgentID, err)
	}
	db.recordAudit(audit.Info, id.AgentID, "registered")
	return nil
}

// ScopeFor parses agentID's registered read-scope entitlement pattern,
// for callers enforcing read policy before touching a table or column.
func (db *Database) ScopeFor(agentID string) (scope.Scope, error) {
	id, ok := db.agents.Lookup(agentID)
	if !ok {
		return scope.Scope{}, &sharcerr.TrustError{Kind: sharcerr.KindUnknownAgent, Agent: agentID}
	}
	return scope.Parse(id.ReadScope), nil
}

// Entitlements returns the read/write/schema enforcement layer (§4.9)
// that QueryRows and PutRow/DeleteRow check agent access against.
func (db *Database) Entitlements() *entitlement.Enforcer { return db.entitlements }

// QueryRows scans table, enforcing agentID's read entitlement for
// columns (nil/empty means a wildcard select) before touching any row,
// then applying evaluator — if non-nil — to each row's raw payload
// before decoding it, so a row-level policy like
// entitlement.EntitlementRowEvaluator can filter rows out without every
// caller reimplementing the scan loop (§4.9's row-level access path).
func (db *Database) QueryRows(agentID, table string, columns []string, evaluator entitlement.RowAccessEvaluator, fn func(rowid int64, cols []record.ColumnValue) error) error {
	if db.entitlements != nil {
		if err := db.entitlements.Enforce(agentID, table, columns); err != nil {
			return err
		}
	}
	entry, ok := db.catalog.Lookup(table)
	if !ok {
		return fmt.Errorf("sharc: table %q not found", table)
	}
	cur := btree.NewCursor(db.pager.Pages(), entry.RootPage)
	if err := cur.First(); err != nil {
		return fmt.Errorf("sharc: scan %s: %w", table, err)
	}
	for cur.Valid() {
		cell := cur.Current()
		if evaluator != nil {
			allowed, err := evaluator.Allow(cell.RowID, cell.Payload)
			if err != nil {
				return err
			}
			if !allowed {
				if err := cur.Next(); err != nil {
					return err
				}
				continue
			}
		}
		cols, err := record.DecodeRecord(cell.Payload)
		if err != nil {
			return fmt.Errorf("sharc: decode %s row %d: %w", table, cell.RowID, err)
		}
		if err := fn(cell.RowID, cols); err != nil {
			return err
		}
		if err := cur.Next(); err != nil {
			return err
		}
	}
	return nil
}

// SignerForAgent resolves agentID's signer given its registered identity
// and (for ECDSA agents) its private key.
func (db *Database) SignerForAgent(agentID string, priv *ecdsa.PrivateKey) (trust.Signer, error) {
	id, ok := db.agents.Lookup(agentID)
	if !ok {
		return nil, &sharcerr.TrustError{Kind: sharcerr.KindUnknownAgent, Agent: agentID}
	}
	return agent.SignerFor(id, priv)
}

// AppendLedger records a signed operation, observing the agent's
// reputation and updating the audit trail. The entry and the agent's
// updated reputation are both persisted to their system tables before
// returning, so a successful append survives Close/reopen.
func (db *Database) AppendLedger(ctx context.Context, agentID, operation string, payload []byte, signer trust.Signer) (*ledger.Entry, error) {
	entry, err := db.ledger.Append(ctx, agentID, operation, payload, signer)
	if err != nil {
		db.reputation.Observe(agentID, false)
		db.recordAudit(audit.Warning, agentID, fmt.Sprintf("ledger append failed: %v", err))
		_ = db.persistReputation(agentID)
		return nil, err
	}
	db.reputation.Observe(agentID, true)
	db.recordAudit(audit.Info, agentID, fmt.Sprintf("ledger append %d: %s", entry.Sequence, operation))
	if err := db.persistLedgerEntry(entry); err != nil {
		return entry, fmt.Errorf("sharc: persist ledger entry %d: %w", entry.Sequence, err)
	}
	if err := db.persistReputation(agentID); err != nil {
		return entry, fmt.Errorf("sharc: persist reputation for %s: %w", agentID, err)
	}
	return entry, nil
}

// VerifierForAgent resolves agentID's registered identity to a
// verify-only Signer: an HMACSigner (which can also sign, since its key
// is derived rather than secret-held) for HMAC agents, or an
// ECDSAVerifier built from the registry's stored public key for ECDSA
// agents. Unlike SignerForAgent this never needs a private key, making
// it the right lookup function for VerifyLedger/VerifyIntegrity.
func (db *Database) VerifierForAgent(agentID string) (trust.Signer, error) {
	id, ok := db.agents.Lookup(agentID)
	if !ok {
		return nil, &sharcerr.TrustError{Kind: sharcerr.KindUnknownAgent, Agent: agentID}
	}
	if id.PublicKey != nil {
		return trust.NewECDSAVerifier(id.PublicKey), nil
	}
	return trust.NewHMACSigner(id.AgentID), nil
}

// VerifyLedger walks the provenance ledger's hash chain, verifying every
// entry's payload hash, chain linkage, and signature against the agent
// registry (§4.9, §8 property 6).
func (db *Database) VerifyLedger(ctx context.Context) error {
	return db.ledger.VerifyIntegrity(ctx, db.VerifierForAgent)
}
