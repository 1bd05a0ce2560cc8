// Package identity is the self-hosted identity provider: password accounts,
// signed tokens and per-client sign-in state with change notifications.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// MinPasswordLength matches the hosted provider this replaces.
const MinPasswordLength = 6

var (
	ErrEmailInUse         = errors.New("identity: email already in use")
	ErrInvalidCredentials = errors.New("identity: invalid email or password")
	ErrWeakPassword       = fmt.Errorf("identity: password must have at least %d characters", MinPasswordLength)
)

// Account is a password credential. Display names live in the profiles collection.
type Account struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Email        string    `gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time
}

// TableName pins the table name.
func (Account) TableName() string {
	return "accounts"
}

// Accounts stores credentials in the accounts table.
type Accounts struct {
	db   *gorm.DB
	cost int
}

// NewAccounts returns an account store using bcrypt.DefaultCost.
func NewAccounts(db *gorm.DB) *Accounts {
	return &Accounts{db: db, cost: bcrypt.DefaultCost}
}

// WithCost overrides the bcrypt cost, mainly to keep tests fast.
func (a *Accounts) WithCost(cost int) *Accounts {
	a.cost = cost
	return a
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create registers a new account.
func (a *Accounts) Create(ctx context.Context, email, password string) (*Account, error) {
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account := &Account{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(email),
		PasswordHash: string(hash),
	}
	if err := a.db.WithContext(ctx).Create(account).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailInUse
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

// Authenticate checks email and password.
func (a *Accounts) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	var account Account
	err := a.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &account, nil
}

// FindByEmail returns the account for email or ErrInvalidCredentials.
func (a *Accounts) FindByEmail(ctx context.Context, email string) (*Account, error) {
	var account Account
	err := a.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return &account, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
