package identity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const restoreTimeout = 5 * time.Second

// clientAuth delivers notifications on its own goroutine, in order.
type clientAuth struct {
	provider *Provider
	clientID string

	events    chan func()
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	current   *Principal
	resolved  bool
	listeners map[int]func(*Principal)
	nextID    int
}

func newClientAuth(p *Provider, clientID string) *clientAuth {
	c := &clientAuth{
		provider:  p,
		clientID:  clientID,
		events:    make(chan func(), 32),
		done:      make(chan struct{}),
		listeners: make(map[int]func(*Principal)),
	}
	go c.run()
	c.enqueue(c.restore)
	return c
}

func (c *clientAuth) run() {
	for {
		select {
		case fn := <-c.events:
			fn()
		case <-c.done:
			return
		}
	}
}

func (c *clientAuth) enqueue(fn func()) {
	select {
	case c.events <- fn:
	case <-c.done:
	}
}

func (c *clientAuth) restore() {
	ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
	defer cancel()

	principal, err := c.provider.restore(ctx, c.clientID)
	if err != nil {
		slog.WarnContext(ctx, "failed to restore client sign-in", "client_id", c.clientID, "err", err)
	}

	c.mu.Lock()
	if c.resolved {
		// A sign-in or sign-out already decided the state and notified.
		c.mu.Unlock()
		return
	}
	c.current = principal
	c.resolved = true
	fns := c.snapshotLocked()
	c.mu.Unlock()

	deliver(fns, principal)
}

// snapshotLocked copies the listeners registered so far. Later subscribers
// get the current state through their own delivery.
func (c *clientAuth) snapshotLocked() []func(*Principal) {
	fns := make([]func(*Principal), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func deliver(fns []func(*Principal), p *Principal) {
	for _, fn := range fns {
		fn(p)
	}
}

// setState records p and schedules a notification carrying it.
func (c *clientAuth) setState(p *Principal) {
	c.mu.Lock()
	c.current = p
	c.resolved = true
	fns := c.snapshotLocked()
	c.mu.Unlock()
	c.enqueue(func() { deliver(fns, p) })
}

func (c *clientAuth) OnAuthStateChanged(fn func(*Principal)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	resolved := c.resolved
	c.mu.Unlock()

	if resolved {
		c.enqueue(func() {
			c.mu.Lock()
			_, live := c.listeners[id]
			cur := c.current
			c.mu.Unlock()
			if live {
				fn(cur)
			}
		})
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *clientAuth) SignInWithPassword(ctx context.Context, email, password string) (*Principal, error) {
	account, err := c.provider.accounts.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	principal, err := c.provider.signIn(ctx, c.clientID, account)
	if err != nil {
		return nil, err
	}
	c.setState(principal)
	return principal, nil
}

func (c *clientAuth) CreateUser(ctx context.Context, email, password string) (*Principal, error) {
	account, err := c.provider.accounts.Create(ctx, email, password)
	if err != nil {
		return nil, err
	}
	principal, err := c.provider.signIn(ctx, c.clientID, account)
	if err != nil {
		return nil, err
	}
	c.setState(principal)
	return principal, nil
}

// SignOut forgets the persisted sign-in. Local state is cleared even if that fails.
func (c *clientAuth) SignOut(ctx context.Context) error {
	err := c.provider.sessions.Delete(ctx, c.clientID)
	c.setState(nil)
	return err
}

// Close stops notifications. It does not sign the client out.
func (c *clientAuth) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
