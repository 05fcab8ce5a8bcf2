// Package orders stores gateway orders created at checkout. Rows are written
// once and never updated.
package orders

import (
	"context"

	"github.com/dmitrijs2005/toolmeter/internal/server/models"
)

type Repository interface {
	// Create inserts the order; a duplicate order id yields common.ErrorAlreadyExists.
	Create(ctx context.Context, order *models.ExternalOrder) error

	// Get returns common.ErrorNotFound when the order is unknown.
	Get(ctx context.Context, orderID string) (*models.ExternalOrder, error)
}
