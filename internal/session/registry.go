package session

import (
	"context"
	"sync"
	"time"

	"webcarros/internal/identity"
	"webcarros/internal/notify"
	"webcarros/internal/observability"
)

// AuthFactory hands out one Authenticator per client session.
type AuthFactory interface {
	ForClient(clientID string) identity.Authenticator
}

// Client is everything the server keeps for one browser.
type Client struct {
	ID     string
	Auth   identity.Authenticator
	Store  *Store
	Toasts *notify.Queue

	mu       sync.Mutex
	lastSeen time.Time
}

func (c *Client) touch(now time.Time) {
	c.mu.Lock()
	c.lastSeen = now
	c.mu.Unlock()
}

func (c *Client) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

func (c *Client) close() {
	c.Store.Close()
	c.Auth.Close()
	c.Toasts.Close()
}

// Registry owns the client sessions of the process.
type Registry struct {
	auth     AuthFactory
	profiles ProfileLookup
	idle     time.Duration
	now      func() time.Time

	mu      sync.Mutex
	clients map[string]*Client
	onEvict []func(clientID string)
	closed  bool
}

// NewRegistry builds an empty registry. Sessions unused for idle are evicted by Sweep.
func NewRegistry(auth AuthFactory, profiles ProfileLookup, idle time.Duration) *Registry {
	return &Registry{
		auth:     auth,
		profiles: profiles,
		idle:     idle,
		now:      time.Now,
		clients:  make(map[string]*Client),
	}
}

// OnEvict registers fn to run after a client session is torn down.
func (r *Registry) OnEvict(fn func(clientID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEvict = append(r.onEvict, fn)
}

// Get returns the client session for id, creating it on first contact.
func (r *Registry) Get(id string) *Client {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[id]; ok {
		c.touch(now)
		return c
	}

	toasts := notify.NewQueue()
	auth := r.auth.ForClient(id)
	c := &Client{
		ID:       id,
		Auth:     auth,
		Store:    NewStore(auth, r.profiles, toasts),
		Toasts:   toasts,
		lastSeen: now,
	}
	if r.closed {
		// Shutting down: serve the request but do not keep the session.
		return c
	}
	r.clients[id] = c
	observability.ActiveClientSessions.Inc()
	return c
}

// Lookup returns an existing client session without creating one.
func (r *Registry) Lookup(id string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	return c, ok
}

// Len is the number of live client sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Sweep evicts sessions idle for longer than the idle timeout and returns how many.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idle)

	r.mu.Lock()
	var stale []*Client
	for id, c := range r.clients {
		if c.idleSince().Before(cutoff) {
			stale = append(stale, c)
			delete(r.clients, id)
		}
	}
	hooks := append([]func(string){}, r.onEvict...)
	r.mu.Unlock()

	for _, c := range stale {
		r.evict(c, hooks)
	}
	return len(stale)
}

func (r *Registry) evict(c *Client, hooks []func(string)) {
	c.close()
	observability.ActiveClientSessions.Dec()
	for _, fn := range hooks {
		fn(c.ID)
	}
}

// Run sweeps every interval until ctx ends.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Close tears down every client session.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	all := make([]*Client, 0, len(r.clients))
	for id, c := range r.clients {
		all = append(all, c)
		delete(r.clients, id)
	}
	hooks := append([]func(string){}, r.onEvict...)
	r.mu.Unlock()

	for _, c := range all {
		r.evict(c, hooks)
	}
}
