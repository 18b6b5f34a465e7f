// Package agent implements the agent identity registry (§4.9): every
// writer to the ledger is a registered agent with a self-attested public
// key, looked up by id on every ledger append and cached in memory.
package agent

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync"

	"github.com/sharc-db/sharc/internal/trust"
)

// Identity is one registered agent: its id, its public key material (nil
// for HMAC-only agents, since the shared secret is derived from the id
// rather than stored), and the scope grammar string governing what it
// may read and write.
type Identity struct {
	AgentID    string
	PublicKey  *ecdsa.PublicKey // nil for HMAC agents
	ReadScope  string
	WriteScope string
	// ValidityStart/ValidityEnd bound the agent's active window as unix
	// seconds; 0 means unrestricted on that side (§4.9).
	ValidityStart int64
	ValidityEnd   int64
}

// attestation is the byte concatenation an agent signs to prove it
// controls AgentID at registration time: AgentID || PublicKey bytes (or
// just AgentID for HMAC agents, whose key is derived rather than
// presented).
func attestationPayload(id Identity) []byte {
	payload := []byte(id.AgentID)
	if id.PublicKey != nil {
		payload = append(payload, id.PublicKey.X.Bytes()...)
		payload = append(payload, id.PublicKey.Y.Bytes()...)
	}
	return payload
}

// Registry holds every known agent identity, keyed by agent id. A
// registry entry is immutable once self-attestation succeeds — an agent
// cannot silently replace its key by re-registering under the same id.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]Identity
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{byID: make(map[string]Identity)}
}

// Register verifies id's self-attestation signature and adds it to the
// registry. signature must have been produced by the agent's own key
// (ECDSA) or its derived HMAC key over attestationPayload(id).
func (r *Registry) Register(ctx context.Context, id Identity, signature []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byID[id.AgentID]; ok {
		return fmt.Errorf("trust/agent: %q already registered with a different identity", existing.AgentID)
	}

	var ok bool
	var err error
	if id.PublicKey != nil {
		ok, err = trust.VerifyECDSA(id.PublicKey, attestationPayload(id), signature)
	} else {
		signer := trust.NewHMACSigner(id.AgentID)
		ok, err = signer.Verify(ctx, attestationPayload(id), signature)
	}
	if err != nil {
		return fmt.Errorf("trust/agent: verify attestation for %q: %w", id.AgentID, err)
	}
	if !ok {
		return fmt.Errorf("trust/agent: self-attestation failed for %q", id.AgentID)
	}
	r.byID[id.AgentID] = id
	return nil
}

// Restore inserts a previously-registered identity into the registry
// without re-checking its self-attestation, used when reloading the
// agent table from disk on open (the attestation was already verified
// the first time Register accepted it).
func (r *Registry) Restore(id Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id.AgentID] = id
}

// Lookup returns the registered identity for agentID.
func (r *Registry) Lookup(agentID string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byID[agentID]
	return id, ok
}

// Invalidate drops a cached identity, forcing the next Lookup to miss —
// used when an agent's registration is externally revoked.
func (r *Registry) Invalidate(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, agentID)
}

// SignerFor returns the Signer an agent would use, given its registered
// identity and (for ECDSA agents) its private key — which the registry
// itself never holds, since it only ever sees public material.
func SignerFor(id Identity, priv *ecdsa.PrivateKey) (trust.Signer, error) {
	if id.PublicKey != nil {
		if priv == nil {
			return nil, fmt.Errorf("trust/agent: %q is an ECDSA agent but no private key was supplied", id.AgentID)
		}
		return trust.ECDSASignerFromKey(priv), nil
	}
	return trust.NewHMACSigner(id.AgentID), nil
}
