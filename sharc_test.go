package sharc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sharc-db/sharc/internal/events"
	"github.com/sharc-db/sharc/internal/storage/format"
	"github.com/sharc-db/sharc/internal/storage/record"
	"github.com/sharc-db/sharc/internal/trust"
	"github.com/sharc-db/sharc/internal/trust/agent"
	"github.com/sharc-db/sharc/internal/trust/entitlement"
	"github.com/sharc-db/sharc/internal/vector/hnsw"
	"github.com/sharc-db/sharc/internal/vector/query"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Create("", 4096)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateBootstrapsSystemTables(t *testing.T) {
	db := newTestDB(t)
	for _, name := range []string{TableAgents, TableLedger, TableScores, TableAudit, TableConcepts, TableRelations} {
		if _, ok := db.catalog.Lookup(name); !ok {
			t.Fatalf("expected system table %q to exist", name)
		}
	}
}

func TestCreateTableAndDropTable(t *testing.T) {
	db := newTestDB(t)
	if err := db.CreateTable("widgets", "CREATE TABLE widgets(id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatal(err)
	}
	if _, ok := db.catalog.Lookup("widgets"); !ok {
		t.Fatal("expected widgets to exist after CreateTable")
	}
	if err := db.DropTable("widgets"); err != nil {
		t.Fatal(err)
	}
	if _, ok := db.catalog.Lookup("widgets"); ok {
		t.Fatal("expected widgets to be gone after DropTable")
	}
}

func TestGraphInternAndLink(t *testing.T) {
	db := newTestDB(t)
	g := db.Graph()

	alice, err := g.Intern("alice", "person", map[string]any{"age": 30})
	if err != nil {
		t.Fatal(err)
	}
	bob, err := g.Intern("bob", "person", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.Link(alice, bob, "knows", 1.0, nil); err != nil {
		t.Fatal(err)
	}

	path, err := g.ShortestPath(alice, bob, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(path) != 2 || path[0] != alice || path[1] != bob {
		t.Fatalf("ShortestPath = %v, want [%d %d]", path, alice, bob)
	}
}

func TestVectorIndexUpsertAndSearch(t *testing.T) {
	db := newTestDB(t)
	engine, err := db.VectorIndex("widgets", "embedding", 3, hnsw.MetricL2)
	if err != nil {
		t.Fatal(err)
	}
	if engine == nil {
		t.Fatal("expected non-nil query engine")
	}

	vectors := map[int64][]float32{
		1: {0, 0, 0},
		2: {1, 1, 1},
		3: {5, 5, 5},
	}
	for id, v := range vectors {
		if err := db.UpsertVector("widgets", "embedding", id, v); err != nil {
			t.Fatal(err)
		}
	}

	results, strategy, err := db.SearchVectors("widgets", "embedding", query.Request{
		Query: []float32{0, 0, 0},
		K:     1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].RowID != 1 {
		t.Fatalf("results = %+v, want rowid 1 nearest", results)
	}
	if strategy != query.StrategyHnswNearest {
		t.Fatalf("strategy = %v, want hnsw_nearest", strategy)
	}

	if err := db.CompactVectorIndex("widgets", "embedding"); err != nil {
		t.Fatal(err)
	}
}

func TestVectorIndexReloadsFromShadowTable(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.VectorIndex("widgets", "embedding", 3, hnsw.MetricL2); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertVector("widgets", "embedding", 1, []float32{0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertVector("widgets", "embedding", 2, []float32{9, 9, 9}); err != nil {
		t.Fatal(err)
	}
	if err := db.PersistVectorIndex("widgets", "embedding"); err != nil {
		t.Fatal(err)
	}

	// Drop the in-memory handle so the next VectorIndex call must load it
	// back from the `_sharc_hnsw_widgets_embedding` shadow table (§4.6).
	db.mu.Lock()
	delete(db.vectors, vectorKey("widgets", "embedding"))
	db.mu.Unlock()

	engine, err := db.VectorIndex("widgets", "embedding", 3, hnsw.MetricL2)
	if err != nil {
		t.Fatal(err)
	}
	if engine.Graph.Len() != 2 {
		t.Fatalf("reloaded graph has %d vectors, want 2", engine.Graph.Len())
	}

	if _, err := db.VectorIndex("widgets", "embedding", 3, hnsw.MetricCosine); err == nil {
		t.Fatal("expected metric mismatch against a loaded index to error")
	}
}

func TestRegisterAgentAndAppendLedger(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	signer := trust.NewHMACSigner("agent-1")
	if err := db.RegisterAgent(ctx, "agent-1", nil, "widgets.*", []byte("bogus")); err == nil {
		// HMAC-registered agents verify against SHA-256(agentID); a bogus
		// signature should be rejected rather than silently accepted.
		t.Fatal("expected registration with a bogus signature to fail")
	}

	attestation, err := signer.Sign(ctx, []byte("agent-1"))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.RegisterAgent(ctx, "agent-1", nil, "widgets.*", attestation); err != nil {
		t.Fatalf("expected registration with a valid attestation to succeed, got %v", err)
	}

	if _, err := db.AppendLedger(ctx, "agent-1", "write", []byte("payload"), signer); err != nil {
		t.Fatal(err)
	}
	if db.Ledger().Len() != 1 {
		t.Fatalf("Ledger().Len() = %d, want 1", db.Ledger().Len())
	}
	if got := db.Reputation().Score("agent-1"); got <= 0.5 {
		t.Fatalf("Score() = %v, want > 0.5 after a successful append", got)
	}

	sc, err := db.ScopeFor("agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if !sc.CanReadTable("widgets") {
		t.Fatalf("scope %+v should allow widgets", sc)
	}
}

func TestVerifyLedgerAcceptsHMACAndECDSAAgents(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	hmacSigner := trust.NewHMACSigner("hmac-agent")
	hmacAttestation, err := hmacSigner.Sign(ctx, []byte("hmac-agent"))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.RegisterAgent(ctx, "hmac-agent", nil, "widgets.*", hmacAttestation); err != nil {
		t.Fatal(err)
	}
	if _, err := db.AppendLedger(ctx, "hmac-agent", "write", []byte("hmac payload"), hmacSigner); err != nil {
		t.Fatal(err)
	}

	ecdsaSigner, err := trust.NewECDSASigner()
	if err != nil {
		t.Fatal(err)
	}
	pub := ecdsaSigner.PublicKey()
	ecdsaAttestation, err := ecdsaSigner.Sign(ctx, append(append([]byte("ecdsa-agent"), pub.X.Bytes()...), pub.Y.Bytes()...))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.RegisterAgent(ctx, "ecdsa-agent", ecdsaSigner.PublicKey(), "widgets.*", ecdsaAttestation); err != nil {
		t.Fatal(err)
	}
	if _, err := db.AppendLedger(ctx, "ecdsa-agent", "write", []byte("ecdsa payload"), ecdsaSigner); err != nil {
		t.Fatal(err)
	}

	if err := db.VerifyLedger(ctx); err != nil {
		t.Fatalf("VerifyLedger() = %v, want nil", err)
	}

	verifier, err := db.VerifierForAgent("ecdsa-agent")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := verifier.(*trust.ECDSAVerifier); !ok {
		t.Fatalf("VerifierForAgent(ecdsa-agent) = %T, want *trust.ECDSAVerifier", verifier)
	}
	if _, err := verifier.Sign(ctx, []byte("x")); err == nil {
		t.Fatal("expected a verify-only ECDSAVerifier to refuse to sign")
	}
}

func TestLoadOpenOptionsYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sharc.yaml")
	body := "page_cache_size: 512\nmemory_mapped: true\nprefetch:\n  sequential_threshold: 5\n  prefetch_depth: 8\nhnsw:\n  ef_search: 200\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	opts, err := LoadOpenOptionsYAML(path)
	if err != nil {
		t.Fatal(err)
	}
	if opts.PageCacheSize != 512 || !opts.MemoryMapped {
		t.Fatalf("opts = %+v, want overridden page_cache_size/memory_mapped", opts)
	}
	if opts.Prefetch.SequentialThreshold != 5 || opts.Prefetch.PrefetchDepth != 8 {
		t.Fatalf("opts.Prefetch = %+v, want {5 8}", opts.Prefetch)
	}
	if opts.HNSW.EfSearch != 200 {
		t.Fatalf("opts.HNSW.EfSearch = %d, want 200", opts.HNSW.EfSearch)
	}
	// Writable has no entry in the YAML body; it must retain
	// DefaultOpenOptions' true rather than zero-valuing to false.
	if !opts.Writable {
		t.Fatal("expected Writable to keep its default of true")
	}
}

func TestLoadOpenOptionsYAMLMissingFile(t *testing.T) {
	if _, err := LoadOpenOptionsYAML(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestTextEncodingRoundTripsThroughConceptStorage(t *testing.T) {
	db := newTestDB(t)
	db.textEncoding = format.EncodingUTF16LE

	const key = "résumé-目标"
	if _, err := db.Graph().Intern(key, "person", map[string]any{"note": "héllo"}); err != nil {
		t.Fatal(err)
	}
	if _, ok := db.Graph().Lookup(key); !ok {
		t.Fatal("expected concept to be interned under its original key")
	}

	// Re-read the _concepts table from scratch (as a fresh Open would),
	// exercising asTextEncoded's UTF-16LE decode path end to end instead
	// of trusting the in-memory index populated directly by Intern.
	var gotNote string
	if err := db.scanTable(TableConcepts, func(rowid int64, cols []record.ColumnValue) error {
		if db.asTextEncoded(cols[1]) != key {
			return nil
		}
		m := decodeJSONMap(db.asTextEncoded(cols[3]))
		gotNote, _ = m["note"].(string)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if gotNote != "héllo" {
		t.Fatalf("decoded note = %q, want héllo", gotNote)
	}

	if err := db.loadGraphIndex(); err != nil {
		t.Fatal(err)
	}
	if _, ok := db.Graph().Lookup(key); !ok {
		t.Fatal("expected concept to still resolve by its original key after reloading from disk")
	}
}

func TestEventsPublishedOnConceptCreation(t *testing.T) {
	db := newTestDB(t)

	var got events.Event
	received := make(chan struct{}, 1)
	db.Events().Subscribe("person", func(ev events.Event) {
		got = ev
		received <- struct{}{}
	})

	if _, err := db.Graph().Intern("carol", "person", nil); err != nil {
		t.Fatal(err)
	}

	select {
	case <-received:
	default:
		t.Fatal("expected ConceptCreated event to be published synchronously")
	}
	if got.Kind != events.ConceptCreated {
		t.Fatalf("event kind = %v, want ConceptCreated", got.Kind)
	}
}

// TestTrustStateSurvivesReopen exercises the trust layer's system-table
// persistence (§4.9): an agent registration, a ledger append, and the
// audit events both produce are all written through the B-tree the
// same way graphRowStore persists _concepts/_relations, so reopening
// the file finds the same agent, the same chain, and the same
// reputation score a fresh in-memory registry/ledger/manager would
// otherwise have lost.
func TestTrustStateSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "trust.sharc")

	db, err := Create(path, 4096)
	if err != nil {
		t.Fatal(err)
	}

	signer := trust.NewHMACSigner("agent-1")
	attestation, err := signer.Sign(ctx, []byte("agent-1"))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.RegisterAgent(ctx, "agent-1", nil, "widgets.*", attestation); err != nil {
		t.Fatal(err)
	}
	if _, err := db.AppendLedger(ctx, "agent-1", "write", []byte("payload"), signer); err != nil {
		t.Fatal(err)
	}
	wantScore := db.Reputation().Score("agent-1")
	wantAuditLen := db.Audit().Len()

	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path, DefaultOpenOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	if _, ok := reopened.Agents().Lookup("agent-1"); !ok {
		t.Fatal("expected agent-1 to survive reopen")
	}
	sc, err := reopened.ScopeFor("agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if !sc.CanReadTable("widgets") {
		t.Fatalf("scope %+v should allow widgets after reopen", sc)
	}
	if reopened.Ledger().Len() != 1 {
		t.Fatalf("Ledger().Len() after reopen = %d, want 1", reopened.Ledger().Len())
	}
	if err := reopened.VerifyLedger(ctx); err != nil {
		t.Fatalf("VerifyLedger() after reopen = %v, want nil", err)
	}
	if got := reopened.Audit().Len(); got != wantAuditLen {
		t.Fatalf("Audit().Len() after reopen = %d, want %d", got, wantAuditLen)
	}
	if got := reopened.Reputation().Score("agent-1"); got != wantScore {
		t.Fatalf("Score() after reopen = %v, want %v", got, wantScore)
	}
}

// TestPutRowAutoMaintainsVectorIndex exercises §4.6's auto-maintenance
// commit hook: a PutRow write to a vector-indexed table's embedding
// column must reach the HNSW index with no explicit UpsertVector call,
// because replayVectorChanges runs as the transaction's BeforeFlush
// hook.
func TestPutRowAutoMaintainsVectorIndex(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if err := db.CreateTable("widgets", "CREATE TABLE widgets(id INTEGER PRIMARY KEY, embedding BLOB)"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.VectorIndex("widgets", "embedding", 3, hnsw.MetricL2); err != nil {
		t.Fatal(err)
	}

	signer := trust.NewHMACSigner("writer")
	attestation, err := signer.Sign(ctx, []byte("writer"))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.RegisterAgent(ctx, "writer", nil, "widgets", attestation); err != nil {
		t.Fatal(err)
	}

	vec := []float32{1, 2, 3}
	cols := []any{int64(1), encodeVectorBytes(vec)}
	if err := db.PutRow("writer", "widgets", 1, cols, []string{"id", "embedding"}); err != nil {
		t.Fatal(err)
	}

	results, _, err := db.SearchVectors("widgets", "embedding", query.Request{Query: vec, K: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].RowID != 1 {
		t.Fatalf("results = %+v, want auto-maintained rowid 1", results)
	}

	if err := db.DeleteRow("writer", "widgets", 1); err != nil {
		t.Fatal(err)
	}
	snap, err := db.VectorIndexSnapshot("widgets", "embedding")
	if err != nil {
		t.Fatal(err)
	}
	if snap.PendingDeleteCount == 0 {
		t.Fatal("expected DeleteRow to tombstone the vector automatically")
	}
}

// TestQueryRowsEnforcesColumnScopeAndRowFilter mirrors §8 scenario S5:
// an agent scoped to "logs.message" may select that column but not a
// wildcard select, and a RowAccessEvaluator can filter individual rows
// out of a scan the entitlement check alone would have allowed.
func TestQueryRowsEnforcesColumnScopeAndRowFilter(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if err := db.CreateTable("logs", "CREATE TABLE logs(id INTEGER PRIMARY KEY, tag TEXT, message TEXT)"); err != nil {
		t.Fatal(err)
	}

	rootSigner := trust.NewHMACSigner("root")
	rootAttestation, err := rootSigner.Sign(ctx, []byte("root"))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.RegisterAgent(ctx, "root", nil, "*", rootAttestation); err != nil {
		t.Fatal(err)
	}
	rows := []struct {
		rowid   int64
		tag     string
		message string
	}{
		{1, "public", "hello"},
		{2, "secret", "classified"},
	}
	for _, r := range rows {
		if err := db.PutRow("root", "logs", r.rowid, []any{r.rowid, r.tag, r.message}, []string{"id", "tag", "message"}); err != nil {
			t.Fatal(err)
		}
	}

	readerSigner := trust.NewHMACSigner("reader")
	readerAttestation, err := readerSigner.Sign(ctx, []byte("reader"))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.RegisterAgent(ctx, "reader", nil, "logs.message", readerAttestation); err != nil {
		t.Fatal(err)
	}

	if err := db.QueryRows("reader", "logs", nil, nil, func(int64, []record.ColumnValue) error { return nil }); err == nil {
		t.Fatal("expected wildcard select to be denied for a column-restricted scope")
	}

	evaluator := &entitlement.EntitlementRowEvaluator{TagColumn: 1, AllowedTags: map[string]bool{"public": true}}
	var seen []int64
	err = db.QueryRows("reader", "logs", []string{"message"}, evaluator, func(rowid int64, cols []record.ColumnValue) error {
		seen = append(seen, rowid)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 || seen[0] != 1 {
		t.Fatalf("seen = %v, want only the public-tagged row 1", seen)
	}
}

// TestRegisterAgentWithPolicyDeniesWriteOutsideWriteScope checks that a
// reader granted only ReadScope cannot write through PutRow, and that
// WriteScope alone (independent of ReadScope) governs EnforceWrite.
func TestRegisterAgentWithPolicyDeniesWriteOutsideWriteScope(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if err := db.CreateTable("widgets", "CREATE TABLE widgets(id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
		t.Fatal(err)
	}

	signer := trust.NewHMACSigner("reader-only")
	attestation, err := signer.Sign(ctx, []byte("reader-only"))
	if err != nil {
		t.Fatal(err)
	}
	id := agent.Identity{AgentID: "reader-only", ReadScope: "widgets"}
	if err := db.RegisterAgentWithPolicy(ctx, id, attestation); err != nil {
		t.Fatal(err)
	}
	if err := db.PutRow("reader-only", "widgets", 1, []any{int64(1), "gizmo"}, []string{"id", "name"}); err == nil {
		t.Fatal("expected PutRow to fail for an agent with no write scope")
	}
}
