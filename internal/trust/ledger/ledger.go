// Package ledger implements the hash-chained append-only provenance
// ledger (§4.9): every entry commits to its payload and to the hash of
// the entry before it, so tampering with any entry breaks verification
// for everything after it.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/sharc-db/sharc/internal/trust"
)

// Entry is one ledger record.
type Entry struct {
	Sequence  uint64
	AgentID   string
	Operation string
	Payload   []byte
	PayloadHash [32]byte
	PrevHash  [32]byte
	Signature []byte
}

// dataToSign is the byte concatenation an agent signs for each entry:
// sequence || agentID || operation || payloadHash || prevHash. Committing
// to the chain position (not just the payload) means a replayed
// signature cannot be reinserted at a different point in the chain.
func dataToSign(e *Entry) []byte {
	var buf []byte
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], e.Sequence)
	buf = append(buf, seqBuf[:]...)
	buf = append(buf, []byte(e.AgentID)...)
	buf = append(buf, []byte(e.Operation)...)
	buf = append(buf, e.PayloadHash[:]...)
	buf = append(buf, e.PrevHash[:]...)
	return buf
}

// Ledger is the in-memory append-only chain. A production deployment
// persists entries to a system table; this type holds the logical
// sequence and chain-verification behavior independent of storage, so it
// can be embedded by a table-backed wrapper.
type Ledger struct {
	mu      sync.Mutex
	entries []*Entry
	lastHash [32]byte
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Append adds a new entry signed by signer, computing payload and chain
// hashes and verifying the signature before committing.
func (l *Ledger) Append(ctx context.Context, agentID, operation string, payload []byte, signer trust.Signer) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := &Entry{
		Sequence:    uint64(len(l.entries)),
		AgentID:     agentID,
		Operation:   operation,
		Payload:     payload,
		PayloadHash: sha256.Sum256(payload),
		PrevHash:    l.lastHash,
	}
	sig, err := signer.Sign(ctx, dataToSign(e))
	if err != nil {
		return nil, fmt.Errorf("ledger: sign entry %d: %w", e.Sequence, err)
	}
	e.Signature = sig
	l.entries = append(l.entries, e)
	l.lastHash = e.PayloadHash
	return e, nil
}

// Restore appends a previously-committed entry without re-signing or
// re-verifying it (used when reloading the chain from its backing
// system table on open). Callers must restore entries in ascending
// sequence order.
func (l *Ledger) Restore(e *Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	l.lastHash = e.PayloadHash
}

// Entries returns every entry in sequence order.
func (l *Ledger) Entries() []*Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len reports how many entries the chain holds.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// VerifyIntegrity walks the whole chain, checking payload hashes,
// prev-hash linkage, and signatures (resolving each entry's signer via
// lookupVerifier, typically backed by the agent registry).
func (l *Ledger) VerifyIntegrity(ctx context.Context, lookupVerifier func(agentID string) (trust.Signer, error)) error {
	l.mu.Lock()
	entries := make([]*Entry, len(l.entries))
	copy(entries, l.entries)
	l.mu.Unlock()

	var prevHash [32]byte
	for _, e := range entries {
		if e.PrevHash != prevHash {
			return fmt.Errorf("ledger: entry %d has broken prev-hash linkage", e.Sequence)
		}
		wantPayloadHash := sha256.Sum256(e.Payload)
		if wantPayloadHash != e.PayloadHash {
			return fmt.Errorf("ledger: entry %d payload hash mismatch", e.Sequence)
		}
		signer, err := lookupVerifier(e.AgentID)
		if err != nil {
			return fmt.Errorf("ledger: entry %d: %w", e.Sequence, err)
		}
		ok, err := signer.Verify(ctx, dataToSign(e), e.Signature)
		if err != nil {
			return fmt.Errorf("ledger: entry %d: verify: %w", e.Sequence, err)
		}
		if !ok {
			return fmt.Errorf("ledger: entry %d has an invalid signature", e.Sequence)
		}
		prevHash = e.PayloadHash
	}
	return nil
}

// ExportDelta returns every entry with Sequence >= fromSeq, for transfer
// to another ledger instance.
func (l *Ledger) ExportDelta(fromSeq uint64) []*Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*Entry
	for _, e := range l.entries {
		if e.Sequence >= fromSeq {
			out = append(out, e)
		}
	}
	return out
}

// ImportDelta appends entries from another ledger's export, requiring
// sequence contiguity (no gaps, no overlap with existing entries) and
// re-validating every signature via lookupVerifier before committing any
// of them.
func (l *Ledger) ImportDelta(ctx context.Context, entries []*Entry, lookupVerifier func(agentID string) (trust.Signer, error)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	nextExpected := uint64(len(l.entries))
	prevHash := l.lastHash
	for _, e := range entries {
		if e.Sequence != nextExpected {
			return fmt.Errorf("ledger: import expected sequence %d, got %d", nextExpected, e.Sequence)
		}
		if e.PrevHash != prevHash {
			return fmt.Errorf("ledger: import entry %d has broken prev-hash linkage", e.Sequence)
		}
		signer, err := lookupVerifier(e.AgentID)
		if err != nil {
			return fmt.Errorf("ledger: import entry %d: %w", e.Sequence, err)
		}
		ok, err := signer.Verify(ctx, dataToSign(e), e.Signature)
		if err != nil {
			return fmt.Errorf("ledger: import entry %d: verify: %w", e.Sequence, err)
		}
		if !ok {
			return fmt.Errorf("ledger: import entry %d has an invalid signature", e.Sequence)
		}
		prevHash = e.PayloadHash
		nextExpected++
	}
	l.entries = append(l.entries, entries...)
	l.lastHash = prevHash
	return nil
}
