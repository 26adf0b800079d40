// Package collaborators holds the HTTP client adapters for the five
// external services the core treats as collaborators: Directory,
// Payments, Storage, Notifier, and Moderation. Only their interfaces
// are fixed; everything here is a thin, swappable client plus the
// shared connection pool and health poller that monitor them.
package collaborators

import (
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// PoolConfig holds shared HTTP transport tuning.
type PoolConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	DialTimeout         time.Duration
	KeepAlive           time.Duration
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:        128,
		MaxIdleConnsPerHost: 16,
		MaxConnsPerHost:     32,
		IdleConnTimeout:     90 * time.Second,
		DialTimeout:         10 * time.Second,
		KeepAlive:           30 * time.Second,
	}
}

// ConnectionPool manages one shared *http.Transport per collaborator
// name (directory, payments, storage, notifier, moderation) so each
// client reuses connections instead of dialing fresh ones per request.
type ConnectionPool struct {
	mu         sync.RWMutex
	transports map[string]*http.Transport
	clients    map[string]*http.Client
	cfg        PoolConfig
	metrics    *poolMetrics
}

type poolMetrics struct {
	totalRequests sync.Map // name -> *int64
	totalErrors   sync.Map
}

func NewConnectionPool(cfg PoolConfig) *ConnectionPool {
	return &ConnectionPool{
		transports: make(map[string]*http.Transport),
		clients:    make(map[string]*http.Client),
		cfg:        cfg,
		metrics:    &poolMetrics{},
	}
}

// Client returns the shared *http.Client for a named collaborator,
// creating it on first use with a per-call timeout.
func (p *ConnectionPool) Client(name string, timeout time.Duration) *http.Client {
	p.mu.RLock()
	if c, ok := p.clients[name]; ok {
		p.mu.RUnlock()
		return c
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[name]; ok {
		return c
	}

	dialer := &net.Dialer{Timeout: p.cfg.DialTimeout, KeepAlive: p.cfg.KeepAlive}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        p.cfg.MaxIdleConns,
		MaxIdleConnsPerHost: p.cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     p.cfg.MaxConnsPerHost,
		IdleConnTimeout:     p.cfg.IdleConnTimeout,
	}
	p.transports[name] = transport

	client := &http.Client{
		Transport: &metricsRoundTripper{inner: transport, name: name, metrics: p.metrics},
		Timeout:   timeout,
	}
	p.clients[name] = client
	return client
}

// Close releases idle connections across all collaborators. Called on
// shutdown.
func (p *ConnectionPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.transports {
		t.CloseIdleConnections()
	}
}

type metricsRoundTripper struct {
	inner   http.RoundTripper
	name    string
	metrics *poolMetrics
}

func (m *metricsRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	total := counter(&m.metrics.totalRequests, m.name)
	atomic.AddInt64(total, 1)

	resp, err := m.inner.RoundTrip(req)
	if err != nil {
		errs := counter(&m.metrics.totalErrors, m.name)
		atomic.AddInt64(errs, 1)
	}
	return resp, err
}

func counter(store *sync.Map, key string) *int64 {
	if v, ok := store.Load(key); ok {
		return v.(*int64)
	}
	c := new(int64)
	actual, _ := store.LoadOrStore(key, c)
	return actual.(*int64)
}
