package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/toolmeter/internal/common"
	"github.com/dmitrijs2005/toolmeter/internal/dbx"
	"github.com/dmitrijs2005/toolmeter/internal/server/models"
)

const paymentColumns = `id, account_id, order_id, payment_id, amount, currency, plan_id, status, paid_at, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, p *models.Payment) (*models.Payment, error) {
	query := `
		INSERT INTO payments (id, account_id, order_id, payment_id, amount, currency, plan_id, status, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (order_id) DO NOTHING
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		p.ID, p.AccountID, p.OrderID, p.PaymentID, p.Amount, p.Currency, p.PlanID, p.Status, p.PaidAt,
	).Scan(&p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrAlreadyProcessed
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) ExistsForOrder(ctx context.Context, orderID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE order_id = $1)`, orderID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.Payment, error) {
	return r.list(ctx, `SELECT `+paymentColumns+` FROM payments WHERE account_id = $1 ORDER BY paid_at DESC`, accountID)
}

func (r *PostgresRepository) ListAll(ctx context.Context) ([]*models.Payment, error) {
	return r.list(ctx, `SELECT `+paymentColumns+` FROM payments ORDER BY paid_at DESC`)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Payment, 0)
	for rows.Next() {
		p := &models.Payment{}
		if err := rows.Scan(&p.ID, &p.AccountID, &p.OrderID, &p.PaymentID, &p.Amount, &p.Currency,
			&p.PlanID, &p.Status, &p.PaidAt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
