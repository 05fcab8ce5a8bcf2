// Package refreshtokens declares the repository for server-held refresh
// tokens. Tokens are opaque random strings rotated on every use.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/toolmeter/internal/server/models"
)

type Repository interface {
	// Create stores token for accountID, expiring at now+validity.
	Create(ctx context.Context, accountID string, token string, validity time.Duration) error

	// Find returns common.ErrorNotFound when the token is unknown.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// Delete returns common.ErrorNotFound when no row was removed, e.g. when a
	// concurrent rotation already consumed the token.
	Delete(ctx context.Context, token string) error

	// DeleteForAccount revokes every token of the account.
	DeleteForAccount(ctx context.Context, accountID string) error
}
