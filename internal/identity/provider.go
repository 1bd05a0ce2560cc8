package identity

import (
	"context"
	"fmt"
)

// Principal is a signed-in account as reported by the provider.
type Principal struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Token string `json:"token"`
}

// Authenticator is one client session's view of the identity provider.
type Authenticator interface {
	// OnAuthStateChanged registers fn for every sign-in state change. The
	// current state is delivered once the initial check completes.
	OnAuthStateChanged(fn func(*Principal)) (unsubscribe func())
	SignInWithPassword(ctx context.Context, email, password string) (*Principal, error)
	CreateUser(ctx context.Context, email, password string) (*Principal, error)
	SignOut(ctx context.Context) error
	Close()
}

// Provider issues per-client Authenticators sharing one account store.
type Provider struct {
	accounts *Accounts
	tokens   *TokenIssuer
	sessions SessionStore
}

// NewProvider wires accounts, tokens and sign-in persistence.
func NewProvider(accounts *Accounts, tokens *TokenIssuer, sessions SessionStore) *Provider {
	if sessions == nil {
		sessions = NewMemorySessions()
	}
	return &Provider{accounts: accounts, tokens: tokens, sessions: sessions}
}

// ForClient returns the Authenticator for clientID. Callers own it and must Close it.
func (p *Provider) ForClient(clientID string) Authenticator {
	return newClientAuth(p, clientID)
}

// VerifyToken validates a bearer token issued by this provider.
func (p *Provider) VerifyToken(token string) (*Claims, error) {
	return p.tokens.Verify(token)
}

// Accounts exposes the credential store.
func (p *Provider) Accounts() *Accounts {
	return p.accounts
}

func (p *Provider) signIn(ctx context.Context, clientID string, account *Account) (*Principal, error) {
	token, err := p.tokens.Issue(account.ID, account.Email)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	principal := &Principal{UID: account.ID, Email: account.Email, Token: token}
	if err := p.sessions.Save(ctx, clientID, *principal, p.tokens.TTL()); err != nil {
		return nil, fmt.Errorf("persist sign-in: %w", err)
	}
	return principal, nil
}

// restore returns the persisted principal for clientID if its token is still valid.
func (p *Provider) restore(ctx context.Context, clientID string) (*Principal, error) {
	principal, err := p.sessions.Load(ctx, clientID)
	if err != nil || principal == nil {
		return nil, err
	}
	if _, err := p.tokens.Verify(principal.Token); err != nil {
		_ = p.sessions.Delete(ctx, clientID)
		return nil, nil
	}
	return principal, nil
}
