package trust

import (
	"context"
	"testing"
)

func TestHMACSignerRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewHMACSigner("agent-1")
	sig, err := s.Sign(ctx, []byte("payload"))
	if err != nil {
		t.Fatal(err)
	}
	ok, err := s.Verify(ctx, []byte("payload"), sig)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected signature to verify")
	}
	if ok, _ := s.Verify(ctx, []byte("tampered"), sig); ok {
		t.Fatal("expected signature over a different payload to fail")
	}
}

func TestECDSASignerAndVerifier(t *testing.T) {
	ctx := context.Background()
	s, err := NewECDSASigner()
	if err != nil {
		t.Fatal(err)
	}
	sig, err := s.Sign(ctx, []byte("payload"))
	if err != nil {
		t.Fatal(err)
	}

	verifier := NewECDSAVerifier(s.PublicKey())
	ok, err := verifier.Verify(ctx, []byte("payload"), sig)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected signature to verify against the public key")
	}
	if _, err := verifier.Sign(ctx, []byte("payload")); err == nil {
		t.Fatal("expected a verify-only signer to refuse to sign")
	}

	other, err := NewECDSASigner()
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := verifier.Verify(ctx, []byte("payload"), mustSign(t, other, "payload")); ok {
		t.Fatal("expected a signature from a different key to fail verification")
	}
}

func TestAsyncSignerResolvesImmediately(t *testing.T) {
	ctx := context.Background()
	async := NewAsyncSigner(NewHMACSigner("agent-1"))

	signCh := async.SignAsync(ctx, []byte("payload"))
	signRes, ok := <-signCh
	if !ok {
		t.Fatal("expected SignAsync's channel to carry a result before closing")
	}
	if signRes.Err != nil {
		t.Fatal(signRes.Err)
	}

	verifyCh := async.VerifyAsync(ctx, []byte("payload"), signRes.Signature)
	verifyRes := <-verifyCh
	if verifyRes.Err != nil {
		t.Fatal(verifyRes.Err)
	}
	if !verifyRes.Valid {
		t.Fatal("expected async verification to report the signature as valid")
	}
}

func mustSign(t *testing.T, s *ECDSASigner, payload string) []byte {
	t.Helper()
	sig, err := s.Sign(context.Background(), []byte(payload))
	if err != nil {
		t.Fatal(err)
	}
	return sig
}
