package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/toolmeter/internal/common"
	"github.com/dmitrijs2005/toolmeter/internal/dbx"
	"github.com/dmitrijs2005/toolmeter/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, order *models.ExternalOrder) error {
	query := `
		INSERT INTO external_orders (order_id, amount, currency, plan_id)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query, order.OrderID, order.Amount, order.Currency, order.PlanID).
		Scan(&order.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, orderID string) (*models.ExternalOrder, error) {
	query := `
		SELECT order_id, amount, currency, plan_id, created_at
		FROM external_orders
		WHERE order_id = $1
	`
	o := &models.ExternalOrder{}
	err := r.db.QueryRowContext(ctx, query, orderID).Scan(&o.OrderID, &o.Amount, &o.Currency, &o.PlanID, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return o, nil
}
