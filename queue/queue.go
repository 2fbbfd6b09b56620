package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config limits jobs of one target.
type Config struct {
	// Target is the job target descriptor, e.g. "function::sendMail" or
	// "url::hooks.example.com/ping".
	Target string

	// MaxConcurrency limits how many jobs of this target may run at once
	// in the local pool. Zero means no target-specific limit.
	MaxConcurrency int

	// RateLimit is the sustained number of jobs per second that may start.
	// Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the token-bucket burst. Defaults to 1 when RateLimit is
	// set.
	RateBurst int
}

// gate is the runtime state behind one Config or ClientConfig.
type gate struct {
	limiter        *rate.Limiter
	maxConcurrency int
	active         int
}

func newGate(limit float64, burst, maxConcurrency int) *gate {
	g := &gate{maxConcurrency: maxConcurrency}
	if limit > 0 {
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}
	return g
}

func (g *gate) full() bool {
	return g != nil && g.maxConcurrency > 0 && g.active >= g.maxConcurrency
}

func (g *gate) allow() bool {
	return g == nil || g.limiter == nil || g.limiter.Allow()
}

func (g *gate) acquire() {
	if g != nil {
		g.active++
	}
}

func (g *gate) release() {
	if g != nil && g.active > 0 {
		g.active--
	}
}

// Manager enforces per-target and per-client rate limits and concurrency.
// It is safe for concurrent use. worker.Pool consults it before claiming a
// job.
type Manager struct {
	mu      sync.Mutex
	targets map[string]*gate
	clients map[string]*gate
}

// NewManager creates a Manager with the given target configurations.
// Targets not listed here have no limits.
func NewManager(configs ...Config) *Manager {
	m := &Manager{
		targets: make(map[string]*gate, len(configs)),
		clients: make(map[string]*gate),
	}
	for _, cfg := range configs {
		m.targets[cfg.Target] = newGate(cfg.RateLimit, cfg.RateBurst, cfg.MaxConcurrency)
	}
	return m
}

// Acquire reports whether a job of target, tagged with client, may start
// now. On success it takes a concurrency slot; the caller must call
// Release when the job finishes. Rate tokens are only spent when both
// concurrency checks pass.
func (m *Manager) Acquire(target, client string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	tg := m.targets[target]
	var cg *gate
	if client != "" {
		cg = m.clients[client]
	}

	if tg.full() || cg.full() {
		return false
	}
	if !tg.allow() || !cg.allow() {
		return false
	}

	tg.acquire()
	cg.acquire()
	return true
}

// Release frees the slot taken by a successful Acquire.
func (m *Manager) Release(target, client string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.targets[target].release()
	if client != "" {
		m.clients[client].release()
	}
}

// SetConfig updates (or creates) a target configuration. The active
// count survives reconfiguration.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := newGate(cfg.RateLimit, cfg.RateBurst, cfg.MaxConcurrency)
	if existing := m.targets[cfg.Target]; existing != nil {
		g.active = existing.active
	}
	m.targets[cfg.Target] = g
}

// ActiveCount returns the number of running jobs for a target.
func (m *Manager) ActiveCount(target string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g := m.targets[target]; g != nil {
		return g.active
	}
	return 0
}
