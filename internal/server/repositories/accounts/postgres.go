package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/toolmeter/internal/common"
	"github.com/dmitrijs2005/toolmeter/internal/dbx"
	"github.com/dmitrijs2005/toolmeter/internal/server/models"
)

const accountColumns = `id, username, email, password_hash, role, plan, active,
		message_allowance, send_allowance, subscription_started_at, expires_at, created_at`

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	a := &models.Account{}
	var started, expires sql.NullTime
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Role, &a.Plan, &a.Active,
		&a.MessageAllowance, &a.SendAllowance, &started, &expires, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if started.Valid {
		t := started.Time
		a.SubscriptionStartedAt = &t
	}
	if expires.Valid {
		t := expires.Time
		a.ExpiresAt = &t
	}
	return a, nil
}

// queryOne runs a single-row query and maps sql.ErrNoRows to common.ErrorNotFound.
// An id that is not a UUID cannot match any row and is reported the same way.
func (r *PostgresRepository) queryOne(ctx context.Context, query string, args ...any) (*models.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbx.IsInvalidText(err) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	query := `
		INSERT INTO accounts (id, username, email, password_hash, role, plan, active, message_allowance, send_allowance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		account.ID, account.Username, account.Email, account.PasswordHash,
		account.Role, account.Plan, account.Active,
		account.MessageAllowance, account.SendAllowance,
	).Scan(&account.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", common.ErrorAlreadyExists, dbx.ConstraintName(err))
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return account, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return r.queryOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByLogin(ctx context.Context, login string) (*models.Account, error) {
	return r.queryOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1 OR username = $1`, login)
}

func (r *PostgresRepository) Exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&ok); err != nil {
		if dbx.IsInvalidText(err) {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func allowanceColumn(kind models.AllowanceKind) (string, error) {
	switch kind {
	case models.AllowanceMessage:
		return "message_allowance", nil
	case models.AllowanceSend:
		return "send_allowance", nil
	default:
		return "", fmt.Errorf("%w: unknown allowance kind %q", common.ErrorValidation, kind)
	}
}

func (r *PostgresRepository) ConsumeAllowance(ctx context.Context, id string, kind models.AllowanceKind) (*models.Account, error) {
	col, err := allowanceColumn(kind)
	if err != nil {
		return nil, err
	}
	query := `UPDATE accounts SET ` + col + ` = ` + col + ` - 1
		WHERE id = $1 AND ` + col + ` > 0
		RETURNING ` + accountColumns
	return r.queryOne(ctx, query, id)
}

func (r *PostgresRepository) SetAllowances(ctx context.Context, id string, scope models.AllowanceScope, value int64) (*models.Account, error) {
	var sets []string
	if scope.Message {
		sets = append(sets, "message_allowance = $2")
	}
	if scope.Send {
		sets = append(sets, "send_allowance = $2")
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("%w: empty allowance scope", common.ErrorValidation)
	}
	query := `UPDATE accounts SET ` + strings.Join(sets, ", ") + `
		WHERE id = $1
		RETURNING ` + accountColumns
	return r.queryOne(ctx, query, id, value)
}

func (r *PostgresRepository) ApplyGrant(ctx context.Context, id string, grant Grant) (*models.Account, error) {
	query := `UPDATE accounts
		SET plan = $2, message_allowance = $3, send_allowance = $4,
			subscription_started_at = $5, expires_at = $6
		WHERE id = $1
		RETURNING ` + accountColumns
	return r.queryOne(ctx, query, id, grant.Plan, grant.MessageAllowance, grant.SendAllowance,
		grant.SubscriptionStartedAt, grant.ExpiresAt)
}

func (r *PostgresRepository) SetRole(ctx context.Context, id string, role models.Role) error {
	return r.execOne(ctx, `UPDATE accounts SET role = $2 WHERE id = $1`, id, role)
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.execOne(ctx, `UPDATE accounts SET password_hash = $2 WHERE id = $1`, id, passwordHash)
}

// execOne runs an update addressed by id and reports common.ErrorNotFound
// when no row matched.
func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if dbx.IsInvalidText(err) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
