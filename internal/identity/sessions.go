package identity

import (
	"context"
	"sync"
	"time"

	"webcarros/internal/cache"

	"github.com/redis/go-redis/v9"
)

// SessionStore persists which principal is signed in on a client session,
// so a restarted process restores sign-ins the way a reloaded browser tab does.
type SessionStore interface {
	Save(ctx context.Context, clientID string, p Principal, ttl time.Duration) error
	// Load returns nil, nil when nothing is persisted.
	Load(ctx context.Context, clientID string) (*Principal, error)
	Delete(ctx context.Context, clientID string) error
}

// RedisSessions keeps sign-ins in Redis with the token's TTL.
type RedisSessions struct {
	rdb *redis.Client
}

// NewRedisSessions returns a Redis-backed SessionStore.
func NewRedisSessions(rdb *redis.Client) *RedisSessions {
	return &RedisSessions{rdb: rdb}
}

func (s *RedisSessions) Save(ctx context.Context, clientID string, p Principal, ttl time.Duration) error {
	return cache.SetJSON(ctx, s.rdb, cache.ClientSessionKey(clientID), p, ttl)
}

func (s *RedisSessions) Load(ctx context.Context, clientID string) (*Principal, error) {
	var p Principal
	found, err := cache.GetJSON(ctx, s.rdb, cache.ClientSessionKey(clientID), &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

func (s *RedisSessions) Delete(ctx context.Context, clientID string) error {
	return cache.Invalidate(ctx, s.rdb, cache.ClientSessionKey(clientID))
}

type memorySession struct {
	principal Principal
	expires   time.Time
}

// MemorySessions is the in-process SessionStore used when Redis is not configured.
type MemorySessions struct {
	mu    sync.Mutex
	items map[string]memorySession
	now   func() time.Time
}

// NewMemorySessions returns an empty in-memory SessionStore.
func NewMemorySessions() *MemorySessions {
	return &MemorySessions{items: make(map[string]memorySession), now: time.Now}
}

func (s *MemorySessions) Save(_ context.Context, clientID string, p Principal, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[clientID] = memorySession{principal: p, expires: s.now().Add(ttl)}
	return nil
}

func (s *MemorySessions) Load(_ context.Context, clientID string) (*Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[clientID]
	if !ok {
		return nil, nil
	}
	if s.now().After(item.expires) {
		delete(s.items, clientID)
		return nil, nil
	}
	p := item.principal
	return &p, nil
}

func (s *MemorySessions) Delete(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, clientID)
	return nil
}
