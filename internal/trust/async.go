package trust

import "context"

// SignResult is the outcome of an asynchronous signing call.
type SignResult struct {
	Signature []byte
	Err       error
}

// AsyncSigner wraps a Signer with channel-based call signatures for
// callers that want to overlap signing with other work. Every
// implementation here is actually synchronous under the hood (signing is
// cheap relative to I/O) — the channel is returned already resolved so
// callers that do select on it never block, but the API shape matches
// what a genuinely async signer (e.g. one that calls out to an HSM)
// would expose.
type AsyncSigner struct {
	inner Signer
}

// NewAsyncSigner wraps inner.
func NewAsyncSigner(inner Signer) *AsyncSigner {
	return &AsyncSigner{inner: inner}
}

// SignAsync returns a channel carrying the single result.
func (a *AsyncSigner) SignAsync(ctx context.Context, payload []byte) <-chan SignResult {
	ch := make(chan SignResult, 1)
	sig, err := a.inner.Sign(ctx, payload)
	ch <- SignResult{Signature: sig, Err: err}
	close(ch)
	return ch
}

// VerifyResult is the outcome of an asynchronous verification call.
type VerifyResult struct {
	Valid bool
	Err   error
}

// VerifyAsync mirrors SignAsync for verification.
func (a *AsyncSigner) VerifyAsync(ctx context.Context, payload, signature []byte) <-chan VerifyResult {
	ch := make(chan VerifyResult, 1)
	ok, err := a.inner.Verify(ctx, payload, signature)
	ch <- VerifyResult{Valid: ok, Err: err}
	close(ch)
	return ch
}
