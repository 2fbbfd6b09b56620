package queue

// ClientConfig limits jobs tagged with one client, across all targets.
type ClientConfig struct {
	// Client is the job client tag.
	Client string

	// RateLimit is the sustained number of jobs per second for this client.
	RateLimit float64

	// RateBurst is the burst size for the client's rate limiter.
	RateBurst int

	// MaxConcurrency limits simultaneous jobs for this client. Zero means no
	// client-specific limit.
	MaxConcurrency int
}

// SetClientConfig configures limits for a client tag. Calling it again
// for the same client replaces the previous configuration.
func (m *Manager) SetClientConfig(cfg ClientConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := newGate(cfg.RateLimit, cfg.RateBurst, cfg.MaxConcurrency)
	if existing := m.clients[cfg.Client]; existing != nil {
		g.active = existing.active
	}
	m.clients[cfg.Client] = g
}

// ClientActiveCount returns the number of running jobs for a client tag.
func (m *Manager) ClientActiveCount(client string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g := m.clients[client]; g != nil {
		return g.active
	}
	return 0
}
