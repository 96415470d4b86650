package session

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// ManagerOptions configures the client cache.
type ManagerOptions struct {
	BaseURL      string
	HTTPTimeout  time.Duration
	SpawnTimeout time.Duration

	// Factory overrides client construction, used by tests. When nil,
	// NewClient is used.
	Factory func(user, token string) (Client, error)
}

// Manager maintains a cache of delegated tokens to platform clients. Many
// resolutions may run concurrently for the same token; construction is
// deduplicated so each token builds at most one client.
type Manager struct {
	factory func(user, token string) (Client, error)
	group   singleflight.Group

	mu      sync.RWMutex
	clients map[string]Client
}

// NewManager creates a client cache.
func NewManager(o ManagerOptions) *Manager {
	factory := o.Factory
	if factory == nil {
		factory = func(user, token string) (Client, error) {
			return NewClient(ClientOptions{
				BaseURL:      o.BaseURL,
				User:         user,
				Token:        token,
				HTTPTimeout:  o.HTTPTimeout,
				SpawnTimeout: o.SpawnTimeout,
			})
		}
	}
	return &Manager{
		factory: factory,
		clients: make(map[string]Client),
	}
}

// Client returns the cached client for a token, constructing it on first
// use. Concurrent calls with the same token share a single construction.
func (m *Manager) Client(ctx context.Context, user, token string) (Client, error) {
	m.mu.RLock()
	c, ok := m.clients[token]
	m.mu.RUnlock()
	if ok {
		return c, nil
	}

	v, err, _ := m.group.Do(token, func() (any, error) {
		m.mu.RLock()
		c, ok := m.clients[token]
		m.mu.RUnlock()
		if ok {
			return c, nil
		}

		c, err := m.factory(user, token)
		if err != nil {
			return nil, err
		}
		log.Debugf("built platform client for user %s", user)

		m.mu.Lock()
		m.clients[token] = c
		m.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Client), nil
}

// Close shuts down all cached clients and empties the cache.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var first error
	for token, c := range m.clients {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
		delete(m.clients, token)
	}
	return first
}
