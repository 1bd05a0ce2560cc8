package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"webcarros/internal/identity"
	"webcarros/internal/models"
	"webcarros/internal/repository"
	"webcarros/internal/session"
)

const defaultSignInWait = 5 * time.Second

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Name     string `form:"name" json:"name"`
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// SignInInput is the login form.
type SignInInput struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// AccountFlow signs client sessions up, in and out.
type AccountFlow struct {
	profiles repository.ProfileRepository
	wait     time.Duration
}

func NewAccountFlow(profiles repository.ProfileRepository) *AccountFlow {
	return &AccountFlow{profiles: profiles, wait: defaultSignInWait}
}

// Register creates the account, stores the display name and signs the client in.
func (f *AccountFlow) Register(ctx context.Context, client *session.Client, in RegisterInput) (*models.Identity, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)

	fields := make(map[string]string)
	if in.Name == "" {
		fields["name"] = "O campo nome é obrigatório"
	}
	validateCredentials(fields, in.Email, in.Password)
	if len(fields) > 0 {
		return nil, models.NewFieldErrors(fields)
	}

	principal, err := client.Auth.CreateUser(ctx, in.Email, in.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrEmailInUse):
			return nil, models.NewFieldErrors(map[string]string{"email": "Este email já está cadastrado"})
		case errors.Is(err, identity.ErrWeakPassword):
			return nil, models.NewFieldErrors(map[string]string{"password": "A senha deve ter pelo menos 6 caracteres"})
		}
		slog.ErrorContext(ctx, "account creation failed", "client_id", client.ID, "err", err)
		client.Toasts.Error("Erro ao cadastrar usuário")
		return nil, models.NewInternalError(err)
	}

	if err := f.profiles.PutProfile(ctx, &models.Profile{UID: principal.UID, Name: in.Name}); err != nil {
		// The account exists; the header just shows no name until the profile is written.
		slog.ErrorContext(ctx, "profile write failed", "user_id", principal.UID, "err", err)
	}
	client.Store.Refresh(ctx)

	who, err := f.awaitSignedIn(ctx, client, principal.UID)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "account registered", "user_id", principal.UID)
	client.Toasts.Success("Bem-vindo ao WebCarros!")
	return who, nil
}

// SignIn authenticates with email and password.
func (f *AccountFlow) SignIn(ctx context.Context, client *session.Client, in SignInInput) (*models.Identity, error) {
	in.Email = strings.TrimSpace(in.Email)

	fields := make(map[string]string)
	validateCredentials(fields, in.Email, in.Password)
	if len(fields) > 0 {
		return nil, models.NewFieldErrors(fields)
	}

	principal, err := client.Auth.SignInWithPassword(ctx, in.Email, in.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			client.Toasts.Error("Email ou senha inválidos")
			return nil, models.NewUnauthorizedError("Email ou senha inválidos")
		}
		slog.ErrorContext(ctx, "sign-in failed", "client_id", client.ID, "err", err)
		client.Toasts.Error("Erro ao fazer login")
		return nil, models.NewInternalError(err)
	}

	who, err := f.awaitSignedIn(ctx, client, principal.UID)
	if err != nil {
		return nil, err
	}
	client.Toasts.Success("Logado com sucesso!")
	return who, nil
}

// SignOut signs the client session out.
func (f *AccountFlow) SignOut(ctx context.Context, client *session.Client) error {
	return client.Store.SignOut(ctx)
}

// awaitSignedIn waits for the provider notification to reach the session store,
// so the next page render already sees the identity.
func (f *AccountFlow) awaitSignedIn(ctx context.Context, client *session.Client, uid string) (*models.Identity, error) {
	waitCtx, cancel := context.WithTimeout(ctx, f.wait)
	defer cancel()
	st, err := client.Store.AwaitIdentity(waitCtx, uid)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return st.Identity, nil
}

func validateCredentials(fields map[string]string, email, password string) {
	if email == "" {
		fields["email"] = "O campo email é obrigatório"
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		fields["email"] = "Insira um email válido"
	}
	if password == "" {
		fields["password"] = "O campo senha é obrigatório"
	} else if len(password) < identity.MinPasswordLength {
		fields["password"] = "A senha deve ter pelo menos 6 caracteres"
	}
}
