// Package session holds the per-client-session identity state.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"webcarros/internal/identity"
	"webcarros/internal/models"
	"webcarros/internal/notify"
)

const profileLookupTimeout = 5 * time.Second

// ProfileLookup resolves display names for identity ids.
type ProfileLookup interface {
	GetProfile(ctx context.Context, uid string) (*models.Profile, error)
}

// State is a snapshot of a Store.
type State struct {
	Identity *models.Identity
	// Loading is true until the provider reported the initial sign-in state.
	Loading bool
}

// Signed reports whether an identity is present.
func (s State) Signed() bool {
	return s.Identity != nil
}

// Store tracks who is signed in on one client session.
type Store struct {
	auth     identity.Authenticator
	profiles ProfileLookup
	toasts   notify.Notifier

	mu       sync.Mutex
	identity *models.Identity
	loading  bool
	closed   bool
	watchers map[int]func(State)
	nextW    int
	ready    chan struct{}

	// mergeMu orders profile merges so a slower, older lookup never
	// overwrites a newer one.
	mergeMu     sync.Mutex
	unsubscribe func()
	closeOnce   sync.Once
}

// NewStore subscribes to auth and starts in the loading state.
func NewStore(auth identity.Authenticator, profiles ProfileLookup, toasts notify.Notifier) *Store {
	s := &Store{
		auth:     auth,
		profiles: profiles,
		toasts:   toasts,
		loading:  true,
		watchers: make(map[int]func(State)),
		ready:    make(chan struct{}),
	}
	s.unsubscribe = auth.OnAuthStateChanged(s.onAuthStateChanged)
	return s
}

func (s *Store) onAuthStateChanged(p *identity.Principal) {
	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()

	if s.isClosed() {
		return
	}

	var next *models.Identity
	if p != nil {
		ctx, cancel := context.WithTimeout(context.Background(), profileLookupTimeout)
		next = &models.Identity{ID: p.UID, Token: p.Token, Name: s.lookupName(ctx, p.UID)}
		cancel()
	}
	s.set(next, true)
}

// lookupName treats a missing or unreadable profile as an empty name.
func (s *Store) lookupName(ctx context.Context, uid string) string {
	profile, err := s.profiles.GetProfile(ctx, uid)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			slog.WarnContext(ctx, "failed to load profile for identity", "user_id", uid, "err", err)
		}
		return ""
	}
	return profile.Name
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// set replaces the identity and notifies watchers. resolved ends loading.
func (s *Store) set(id *models.Identity, resolved bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.identity = id
	if resolved && s.loading {
		s.loading = false
		close(s.ready)
	}
	st := s.stateLocked()
	fns := make([]func(State), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

func (s *Store) stateLocked() State {
	st := State{Loading: s.loading}
	if s.identity != nil {
		cp := *s.identity
		st.Identity = &cp
	}
	return st
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Await blocks until the initial auth check finished or ctx ends.
func (s *Store) Await(ctx context.Context) (State, error) {
	select {
	case <-s.ready:
		return s.State(), nil
	case <-ctx.Done():
		return s.State(), ctx.Err()
	}
}

// AwaitIdentity blocks until the store reports uid as signed in or ctx ends.
// Used right after a sign-in, before the provider notification has been merged.
func (s *Store) AwaitIdentity(ctx context.Context, uid string) (State, error) {
	matched := make(chan struct{}, 1)
	cancel := s.Watch(func(st State) {
		if st.Identity != nil && st.Identity.ID == uid {
			select {
			case matched <- struct{}{}:
			default:
			}
		}
	})
	defer cancel()

	if st := s.State(); st.Identity != nil && st.Identity.ID == uid {
		return st, nil
	}
	select {
	case <-matched:
		return s.State(), nil
	case <-ctx.Done():
		return s.State(), ctx.Err()
	}
}

// Watch calls fn after every change until the returned cancel is called.
func (s *Store) Watch(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextW
	s.nextW++
	s.watchers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

// Refresh re-reads the display name of the current identity.
func (s *Store) Refresh(ctx context.Context) {
	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()

	cur := s.State().Identity
	if cur == nil {
		return
	}
	name := s.lookupName(ctx, cur.ID)

	s.mu.Lock()
	stale := s.identity == nil || s.identity.ID != cur.ID
	s.mu.Unlock()
	if stale {
		return
	}
	cur.Name = name
	s.set(cur, false)
}

// SignOut clears the identity at once, then asks the provider to sign out.
func (s *Store) SignOut(ctx context.Context) error {
	s.set(nil, false)

	if err := s.auth.SignOut(ctx); err != nil {
		slog.ErrorContext(ctx, "sign-out failed", "err", err)
		s.toasts.Error("Erro ao sair da conta")
		return models.NewInternalError(err)
	}
	s.toasts.Success("Logout efetuado com sucesso!")
	return nil
}

// Close releases the provider subscription. Safe to call more than once.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.watchers = make(map[int]func(State))
		s.mu.Unlock()
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
	})
}
