// Package payments stores settled payments. The order id is unique and acts
// as the settlement idempotency key.
package payments

import (
	"context"

	"github.com/dmitrijs2005/toolmeter/internal/server/models"
)

type Repository interface {
	// Insert writes the payment unless one already exists for its order, in
	// which case common.ErrAlreadyProcessed is returned and nothing is written.
	Insert(ctx context.Context, payment *models.Payment) (*models.Payment, error)

	ExistsForOrder(ctx context.Context, orderID string) (bool, error)

	// ListByAccount returns the account's payments, newest first.
	ListByAccount(ctx context.Context, accountID string) ([]*models.Payment, error)

	// ListAll returns every payment, newest first.
	ListAll(ctx context.Context) ([]*models.Payment, error)
}
