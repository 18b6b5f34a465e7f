// Package trust implements the cryptographic provenance layer (§4.9):
// agent self-attestation, a hash-chained append-only ledger, scope-based
// entitlement enforcement, a decaying reputation model, and a separately
// chained audit log.
package trust

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
)

// Signer produces and verifies signatures over arbitrary byte payloads.
// Two implementations are provided: HMACSigner for symmetric
// deployments (a single shared secret per agent) and ECDSASigner for
// asymmetric attestation (each agent holds its own private key).
type Signer interface {
	Sign(ctx context.Context, payload []byte) ([]byte, error)
	Verify(ctx context.Context, payload, signature []byte) (bool, error)
}

// HMACSigner signs with HMAC-SHA256 using a key derived as SHA-256 of
// the agent's id — so verification never needs to look up a secret out
// of band, only the agent id the signature is claimed to belong to.
type HMACSigner struct {
	key []byte
}

// NewHMACSigner derives a signer's key from agentID.
func NewHMACSigner(agentID string) *HMACSigner {
	sum := sha256.Sum256([]byte(agentID))
	return &HMACSigner{key: sum[:]}
}

func (s *HMACSigner) Sign(_ context.Context, payload []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	return mac.Sum(nil), nil
}

func (s *HMACSigner) Verify(_ context.Context, payload, signature []byte) (bool, error) {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	want := mac.Sum(nil)
	return hmac.Equal(want, signature), nil
}

// ECDSASigner signs with P-256/SHA-256, encoding signatures as a fixed
// 64-byte IEEE P1363 r||s pair rather than crypto/ecdsa's default ASN.1
// DER, so signature length is constant and comparable across agents.
type ECDSASigner struct {
	priv *ecdsa.PrivateKey
}

// NewECDSASigner generates a fresh P-256 keypair.
func NewECDSASigner() (*ECDSASigner, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("trust: generate ecdsa key: %w", err)
	}
	return &ECDSASigner{priv: priv}, nil
}

// ECDSASignerFromKey wraps an existing private key, for agents loading a
// previously generated identity.
func ECDSASignerFromKey(priv *ecdsa.PrivateKey) *ECDSASigner {
	return &ECDSASigner{priv: priv}
}

// PublicKey exposes the verification key for registry storage.
func (s *ECDSASigner) PublicKey() *ecdsa.PublicKey { return &s.priv.PublicKey }

func (s *ECDSASigner) Sign(_ context.Context, payload []byte) ([]byte, error) {
	digest := sha256.Sum256(payload)
	r, sVal, err := ecdsa.Sign(rand.Reader, s.priv, digest[:])
	if err != nil {
		return nil, fmt.Errorf("trust: ecdsa sign: %w", err)
	}
	return encodeP1363(r, sVal), nil
}

func (s *ECDSASigner) Verify(_ context.Context, payload, signature []byte) (bool, error) {
	return VerifyECDSA(&s.priv.PublicKey, payload, signature)
}

// ECDSAVerifier implements Signer using only a public key, for verifying
// an ECDSA agent's ledger entries without ever holding its private key
// (e.g. a remote ledger replica that only ever imports deltas).
type ECDSAVerifier struct {
	pub *ecdsa.PublicKey
}

// NewECDSAVerifier wraps pub for verify-only use.
func NewECDSAVerifier(pub *ecdsa.PublicKey) *ECDSAVerifier {
	return &ECDSAVerifier{pub: pub}
}

func (v *ECDSAVerifier) Sign(context.Context, []byte) ([]byte, error) {
	return nil, fmt.Errorf("trust: ECDSAVerifier holds no private key, cannot sign")
}

func (v *ECDSAVerifier) Verify(_ context.Context, payload, signature []byte) (bool, error) {
	return VerifyECDSA(v.pub, payload, signature)
}

// VerifyECDSA checks a P1363-encoded signature against pub, for
// verifying another agent's attestation without holding its private key.
func VerifyECDSA(pub *ecdsa.PublicKey, payload, signature []byte) (bool, error) {
	r, sVal, err := decodeP1363(signature)
	if err != nil {
		return false, err
	}
	digest := sha256.Sum256(payload)
	return ecdsa.Verify(pub, digest[:], r, sVal), nil
}

// p256FieldBytes is the fixed width of each coordinate in a P-256
// IEEE P1363 signature.
const p256FieldBytes = 32

func encodeP1363(r, s *big.Int) []byte {
	out := make([]byte, 2*p256FieldBytes)
	r.FillBytes(out[:p256FieldBytes])
	s.FillBytes(out[p256FieldBytes:])
	return out
}

func decodeP1363(sig []byte) (*big.Int, *big.Int, error) {
	if len(sig) != 2*p256FieldBytes {
		return nil, nil, fmt.Errorf("trust: signature is %d bytes, want %d", len(sig), 2*p256FieldBytes)
	}
	r := new(big.Int).SetBytes(sig[:p256FieldBytes])
	s := new(big.Int).SetBytes(sig[p256FieldBytes:])
	return r, s, nil
}
