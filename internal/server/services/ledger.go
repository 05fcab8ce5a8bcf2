// Package services contains server-side business logic: the entitlement
// ledger, the payment bridge, authentication and metered tool generation.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/toolmeter/internal/common"
	"github.com/dmitrijs2005/toolmeter/internal/dbx"
	"github.com/dmitrijs2005/toolmeter/internal/logging"
	"github.com/dmitrijs2005/toolmeter/internal/server/metrics"
	"github.com/dmitrijs2005/toolmeter/internal/server/models"
	"github.com/dmitrijs2005/toolmeter/internal/server/plans"
	"github.com/dmitrijs2005/toolmeter/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/toolmeter/internal/server/repositories/repomanager"
)

// Entitlement is the read-only view of what an account may currently do.
type Entitlement struct {
	AccountID             string
	Plan                  models.Plan
	MessageAllowance      int64
	SendAllowance         int64
	SubscriptionStartedAt *time.Time
	ExpiresAt             *time.Time
	Expired               bool
}

// LedgerService owns every mutation of account allowances.
type LedgerService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	restock     int64
	log         logging.Logger
	now         func() time.Time
}

func NewLedgerService(db *sql.DB, m repomanager.RepositoryManager, restock int64, log logging.Logger) *LedgerService {
	return &LedgerService{
		db:          db,
		repomanager: m,
		restock:     restock,
		log:         log,
		now:         time.Now,
	}
}

// CheckAndConsume spends one unit of kind. On common.ErrLimitExceeded the
// account is left untouched.
func (s *LedgerService) CheckAndConsume(ctx context.Context, accountID string, kind models.AllowanceKind) (*models.Account, error) {
	return s.ConsumeIn(ctx, s.db, accountID, kind)
}

// ConsumeIn is CheckAndConsume bound to db, which may be a transaction the
// caller commits together with its own writes.
func (s *LedgerService) ConsumeIn(ctx context.Context, db dbx.DBTX, accountID string, kind models.AllowanceKind) (*models.Account, error) {
	repo := s.repomanager.Accounts(db)

	acc, err := repo.ConsumeAllowance(ctx, accountID, kind)
	if err == nil {
		metrics.LedgerConsumptions.WithLabelValues(string(kind), "consumed").Inc()
		return acc, nil
	}
	if errors.Is(err, common.ErrorValidation) {
		return nil, err
	}
	if !errors.Is(err, common.ErrorNotFound) {
		metrics.LedgerConsumptions.WithLabelValues(string(kind), "error").Inc()
		return nil, fmt.Errorf("consume %s allowance: %w", kind, err)
	}

	// No row matched: tell a missing account from an exhausted allowance.
	exists, err := repo.Exists(ctx, accountID)
	if err != nil {
		metrics.LedgerConsumptions.WithLabelValues(string(kind), "error").Inc()
		return nil, fmt.Errorf("look up account: %w", err)
	}
	if !exists {
		metrics.LedgerConsumptions.WithLabelValues(string(kind), "not_found").Inc()
		return nil, common.ErrorNotFound
	}
	metrics.LedgerConsumptions.WithLabelValues(string(kind), "limit_exceeded").Inc()
	return nil, common.ErrLimitExceeded
}

// Entitlement returns the account's plan, allowances and expiry.
func (s *LedgerService) Entitlement(ctx context.Context, accountID string) (*Entitlement, error) {
	acc, err := s.repomanager.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.entitlementOf(acc), nil
}

func (s *LedgerService) entitlementOf(acc *models.Account) *Entitlement {
	return &Entitlement{
		AccountID:             acc.ID,
		Plan:                  acc.Plan,
		MessageAllowance:      acc.MessageAllowance,
		SendAllowance:         acc.SendAllowance,
		SubscriptionStartedAt: acc.SubscriptionStartedAt,
		ExpiresAt:             acc.ExpiresAt,
		Expired:               acc.Expired(s.now()),
	}
}

// ResetAllowances sets the counters selected by scope to the restock value.
func (s *LedgerService) ResetAllowances(ctx context.Context, accountID string, scope models.AllowanceScope) (*models.Account, error) {
	acc, err := s.repomanager.Accounts(s.db).SetAllowances(ctx, accountID, scope, s.restock)
	if err != nil {
		return nil, err
	}
	metrics.LedgerResets.Inc()
	s.log.Info(ctx, "allowances reset",
		"account_id", accountID, "message", scope.Message, "send", scope.Send, "value", s.restock)
	return acc, nil
}

// GrantPlan writes a paid entitlement using tx. It is only called from the
// settlement transaction.
func (s *LedgerService) GrantPlan(ctx context.Context, tx dbx.DBTX, accountID string, plan plans.Plan) (*models.Account, error) {
	now := s.now().UTC()
	acc, err := s.repomanager.Accounts(tx).ApplyGrant(ctx, accountID, accounts.Grant{
		Plan:                  models.PlanPaid,
		MessageAllowance:      plan.MessageAllowance,
		SendAllowance:         plan.SendAllowance,
		SubscriptionStartedAt: now,
		ExpiresAt:             now.Add(plan.Duration()),
	})
	if err != nil {
		return nil, fmt.Errorf("grant plan %s: %w", plan.ID, err)
	}
	return acc, nil
}

func (s *LedgerService) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	return s.repomanager.Accounts(s.db).List(ctx)
}

// SetRole changes an account's role.
func (s *LedgerService) SetRole(ctx context.Context, accountID string, role models.Role) error {
	if role != models.RoleUser && role != models.RoleAdmin {
		return fmt.Errorf("%w: unknown role %q", common.ErrorValidation, role)
	}
	return s.repomanager.Accounts(s.db).SetRole(ctx, accountID, role)
}
