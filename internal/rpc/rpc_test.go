package rpc

import (
	"context"
	"testing"

	"github.com/sharc-db/sharc/internal/trust"
	"github.com/sharc-db/sharc/internal/trust/ledger"
)

func TestWireRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := ledger.New()
	signer := trust.NewHMACSigner("agent-1")
	entry, err := l.Append(ctx, "agent-1", "write", []byte("payload"), signer)
	if err != nil {
		t.Fatal(err)
	}

	wire := toWire(entry)
	back, err := fromWire(wire)
	if err != nil {
		t.Fatal(err)
	}
	if back.Sequence != entry.Sequence || back.AgentID != entry.AgentID ||
		back.PayloadHash != entry.PayloadHash || back.PrevHash != entry.PrevHash {
		t.Fatalf("round trip mismatch: got %+v, want %+v", back, entry)
	}
}

func TestFromWireRejectsMalformedHash(t *testing.T) {
	_, err := fromWire(EntryWire{Sequence: 1, PayloadHash: []byte{1, 2, 3}, PrevHash: make([]byte, 32)})
	if err == nil {
		t.Fatal("expected error for malformed payload hash length")
	}
}

func TestServiceExportAndImportDelta(t *testing.T) {
	ctx := context.Background()
	src := ledger.New()
	signer := trust.NewHMACSigner("agent-1")
	for i := 0; i < 3; i++ {
		if _, err := src.Append(ctx, "agent-1", "write", []byte{byte(i)}, signer); err != nil {
			t.Fatal(err)
		}
	}

	lookup := func(agentID string) (trust.Signer, error) { return trust.NewHMACSigner(agentID), nil }
	srcSvc := &Service{Ledger: src, LookupVerifier: lookup}

	exportResp, err := srcSvc.ExportDelta(ctx, &ExportRequest{FromSequence: 0})
	if err != nil {
		t.Fatal(err)
	}
	if len(exportResp.Entries) != 3 {
		t.Fatalf("exported %d entries, want 3", len(exportResp.Entries))
	}

	dst := ledger.New()
	dstSvc := &Service{Ledger: dst, LookupVerifier: lookup}
	importResp, err := dstSvc.ImportDelta(ctx, &ImportRequest{Entries: exportResp.Entries})
	if err != nil {
		t.Fatal(err)
	}
	if importResp.Error != "" {
		t.Fatalf("import failed: %s", importResp.Error)
	}
	if importResp.Accepted != 3 {
		t.Fatalf("accepted = %d, want 3", importResp.Accepted)
	}
	if dst.Len() != 3 {
		t.Fatalf("dst.Len() = %d, want 3", dst.Len())
	}
}

func TestServiceImportDeltaReportsSignatureFailure(t *testing.T) {
	ctx := context.Background()
	src := ledger.New()
	signer := trust.NewHMACSigner("agent-1")
	src.Append(ctx, "agent-1", "write", []byte("x"), signer)

	wrongLookup := func(agentID string) (trust.Signer, error) { return trust.NewHMACSigner("someone-else"), nil }
	dst := ledger.New()
	dstSvc := &Service{Ledger: dst, LookupVerifier: wrongLookup}

	entries := src.ExportDelta(0)
	wire := make([]EntryWire, len(entries))
	for i, e := range entries {
		wire[i] = toWire(e)
	}

	resp, err := dstSvc.ImportDelta(ctx, &ImportRequest{Entries: wire})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Error == "" {
		t.Fatal("expected import to report a signature verification error")
	}
}
