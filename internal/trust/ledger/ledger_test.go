package ledger

import (
	"context"
	"testing"

	"github.com/sharc-db/sharc/internal/trust"
)

func TestAppendAndVerifyIntegrity(t *testing.T) {
	ctx := context.Background()
	l := New()
	signer := trust.NewHMACSigner("agent-1")

	for i := 0; i < 5; i++ {
		if _, err := l.Append(ctx, "agent-1", "write", []byte{byte(i)}, signer); err != nil {
			t.Fatal(err)
		}
	}
	lookup := func(agentID string) (trust.Signer, error) { return trust.NewHMACSigner(agentID), nil }
	if err := l.VerifyIntegrity(ctx, lookup); err != nil {
		t.Fatal(err)
	}
}

func TestVerifyIntegrityDetectsTamperedPayload(t *testing.T) {
	ctx := context.Background()
	l := New()
	signer := trust.NewHMACSigner("agent-1")
	l.Append(ctx, "agent-1", "write", []byte("original"), signer)

	entries := l.Entries()
	entries[0].Payload = []byte("tampered")

	lookup := func(agentID string) (trust.Signer, error) { return trust.NewHMACSigner(agentID), nil }
	if err := l.VerifyIntegrity(ctx, lookup); err == nil {
		t.Fatal("expected tampered payload to be detected")
	}
}

func TestPrevHashIsPreviousPayloadHash(t *testing.T) {
	ctx := context.Background()
	l := New()
	signer := trust.NewHMACSigner("agent-1")
	for i := 0; i < 4; i++ {
		if _, err := l.Append(ctx, "agent-1", "write", []byte{byte(i)}, signer); err != nil {
			t.Fatal(err)
		}
	}
	entries := l.Entries()
	for i := 1; i < len(entries); i++ {
		if entries[i].PrevHash != entries[i-1].PayloadHash {
			t.Fatalf("entry %d PrevHash does not equal entry %d's PayloadHash (I3)", i, i-1)
		}
	}
	var zero [32]byte
	if entries[0].PrevHash != zero {
		t.Fatal("first entry's PrevHash must be zero")
	}
}

func TestExportImportDelta(t *testing.T) {
	ctx := context.Background()
	src := New()
	signer := trust.NewHMACSigner("agent-1")
	for i := 0; i < 3; i++ {
		src.Append(ctx, "agent-1", "write", []byte{byte(i)}, signer)
	}

	dst := New()
	delta := src.ExportDelta(0)
	lookup := func(agentID string) (trust.Signer, error) { return trust.NewHMACSigner(agentID), nil }
	if err := dst.ImportDelta(ctx, delta, lookup); err != nil {
		t.Fatal(err)
	}
	if dst.Len() != 3 {
		t.Fatalf("dst.Len() = %d, want 3", dst.Len())
	}
	if err := dst.VerifyIntegrity(ctx, lookup); err != nil {
		t.Fatal(err)
	}
}
