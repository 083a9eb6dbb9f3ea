package tool

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// clientPool hands out clients that share one keep-alive transport, so
// submissions, polls and probes against the same backend reuse connections.
// Calls are bounded by their context; the probe client also carries a
// client-level timeout as a backstop.
type clientPool struct {
	once      sync.Once
	transport *http.Transport

	mu        sync.Mutex
	byTimeout map[time.Duration]*http.Client
}

var sharedHTTPClientPool = &clientPool{}

func (p *clientPool) sharedTransport() *http.Transport {
	p.once.Do(func() {
		dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
		p.transport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   16,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		}
	})
	return p.transport
}

// client returns the pooled client for timeout; zero means context-bounded only.
func (p *clientPool) client(timeout time.Duration) *http.Client {
	transport := p.sharedTransport()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.byTimeout == nil {
		p.byTimeout = map[time.Duration]*http.Client{}
	}
	if existing, ok := p.byTimeout[timeout]; ok {
		return existing
	}
	created := &http.Client{Timeout: timeout, Transport: transport}
	p.byTimeout[timeout] = created
	return created
}

// closeIdle drops idle keep-alive connections.
func (p *clientPool) closeIdle() {
	p.sharedTransport().CloseIdleConnections()
}
