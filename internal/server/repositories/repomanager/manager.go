package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/toolmeter/internal/dbx"
	"github.com/dmitrijs2005/toolmeter/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/toolmeter/internal/server/repositories/conversations"
	"github.com/dmitrijs2005/toolmeter/internal/server/repositories/orders"
	"github.com/dmitrijs2005/toolmeter/internal/server/repositories/payments"
	"github.com/dmitrijs2005/toolmeter/internal/server/repositories/refreshtokens"
)

// RepositoryManager vends repositories bound to a DBTX, so the same code runs
// against the pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	Conversations(db dbx.DBTX) conversations.Repository
	Orders(db dbx.DBTX) orders.Repository
	Payments(db dbx.DBTX) payments.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
