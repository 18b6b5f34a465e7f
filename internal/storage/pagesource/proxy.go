package pagesource

import "sync"

// ProxyPageSource forwards every call to a target that can be swapped out
// atomically. The transaction manager hands callers a single long-lived
// ProxyPageSource and retargets it between the shadow overlay (while a
// write transaction is open) and the base source (once it commits or
// rolls back), so callers never need to know which is current.
type ProxyPageSource struct {
	mu     sync.RWMutex
	target PageSource
}

// NewProxyPageSource creates a proxy forwarding to target.
func NewProxyPageSource(target PageSource) *ProxyPageSource {
	return &ProxyPageSource{target: target}
}

// Retarget atomically swaps the forwarding target.
func (p *ProxyPageSource) Retarget(target PageSource) {
	p.mu.Lock()
	p.target = target
	p.mu.Unlock()
}

func (p *ProxyPageSource) current() PageSource {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.target
}

func (p *ProxyPageSource) PageSize() int       { return p.current().PageSize() }
func (p *ProxyPageSource) PageCount() uint32   { return p.current().PageCount() }
func (p *ProxyPageSource) DataVersion() uint64 { return p.current().DataVersion() }

func (p *ProxyPageSource) GetPage(n uint32) ([]byte, error) { return p.current().GetPage(n) }

func (p *ProxyPageSource) GetPageMemory(n uint32) (PageMemory, error) {
	return p.current().GetPageMemory(n)
}

func (p *ProxyPageSource) ReadPage(n uint32, dest []byte) error {
	return p.current().ReadPage(n, dest)
}

func (p *ProxyPageSource) WritePage(n uint32, data []byte) error {
	return p.current().WritePage(n, data)
}

func (p *ProxyPageSource) Invalidate(n uint32) { p.current().Invalidate(n) }

// Close closes the current target. The proxy itself does not own the
// base source's lifetime beyond that — callers that swap targets in and
// out are responsible for closing each one they retire.
func (p *ProxyPageSource) Close() error { return p.current().Close() }
