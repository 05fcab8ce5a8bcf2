// Package accounts declares the repository contract for accounts and their
// entitlement state.
package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/toolmeter/internal/server/models"
)

// Grant describes the entitlement written by a settled payment.
type Grant struct {
	Plan                  models.Plan
	MessageAllowance      int64
	SendAllowance         int64
	SubscriptionStartedAt time.Time
	ExpiresAt             time.Time
}

// Repository defines account persistence. Every mutation of an allowance is a
// single statement, so callers never read-then-write.
type Repository interface {
	// Create inserts a new account; unique violations surface as common.ErrorAlreadyExists.
	Create(ctx context.Context, account *models.Account) (*models.Account, error)

	GetByID(ctx context.Context, id string) (*models.Account, error)

	// GetByLogin matches login against email or username.
	GetByLogin(ctx context.Context, login string) (*models.Account, error)

	Exists(ctx context.Context, id string) (bool, error)

	List(ctx context.Context) ([]*models.Account, error)

	// ConsumeAllowance decrements the kind's allowance by one if and only if it
	// is positive. common.ErrorNotFound means no row matched: either the account
	// is missing or the allowance is exhausted.
	ConsumeAllowance(ctx context.Context, id string, kind models.AllowanceKind) (*models.Account, error)

	// SetAllowances overwrites the counters selected by scope with value.
	SetAllowances(ctx context.Context, id string, scope models.AllowanceScope, value int64) (*models.Account, error)

	// ApplyGrant writes a paid entitlement.
	ApplyGrant(ctx context.Context, id string, grant Grant) (*models.Account, error)

	SetRole(ctx context.Context, id string, role models.Role) error

	UpdatePassword(ctx context.Context, id, passwordHash string) error
}
