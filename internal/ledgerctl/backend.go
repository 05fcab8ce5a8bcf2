package ledgerctl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrijs2005/toolmeter/internal/logging"
	"github.com/dmitrijs2005/toolmeter/internal/server/config"
	"github.com/dmitrijs2005/toolmeter/internal/server/models"
	"github.com/dmitrijs2005/toolmeter/internal/server/plans"
	"github.com/dmitrijs2005/toolmeter/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/toolmeter/internal/server/services"
)

// Backend is everything the commands need from the ledger. Accounts are
// addressed by id, email or username.
type Backend interface {
	Migrate(ctx context.Context) error
	Plans() []plans.Plan
	ListAccounts(ctx context.Context) ([]*models.Account, error)
	ResetAllowances(ctx context.Context, ref string, scope models.AllowanceScope) (*models.Account, error)
	SetRole(ctx context.Context, ref string, role models.Role) (*models.Account, error)
	CreateAdmin(ctx context.Context, username, email, password string) (*models.Account, error)
	Close() error
}

// Settings are read by viper from flags, TOOLMETER_* variables or a config
// file. The plan table and the signup allowances use the server's config keys;
// unset values keep the server defaults.
type Settings struct {
	DatabaseDSN            string       `mapstructure:"database_dsn"`
	RestockAllowance       int64        `mapstructure:"restock_allowance"`
	Env                    string       `mapstructure:"env"`
	SignupMessageAllowance *int64       `mapstructure:"signup_message_allowance"`
	SignupSendAllowance    *int64       `mapstructure:"signup_send_allowance"`
	Plans                  []plans.Plan `mapstructure:"plans"`
}

// Opener builds a Backend from settings; swapped in tests.
type Opener func(s Settings) (Backend, error)

type serviceBackend struct {
	db      *sql.DB
	rm      repomanager.RepositoryManager
	catalog []plans.Plan
	ledger  *services.LedgerService
	users   *services.UserService
}

// OpenPostgres connects the ledger services to PostgreSQL.
func OpenPostgres(s Settings) (Backend, error) {
	cfg, err := s.serverConfig()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	log := logging.New(s.Env, os.Stderr)
	return &serviceBackend{
		db:      db,
		rm:      rm,
		catalog: cfg.Plans,
		ledger:  services.NewLedgerService(db, rm, cfg.RestockAllowance, log),
		users:   services.NewUserService(db, rm, cfg),
	}, nil
}

// serverConfig lays s over the server defaults.
func (s Settings) serverConfig() (*config.Config, error) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	if s.DatabaseDSN != "" {
		cfg.DatabaseDSN = s.DatabaseDSN
	}
	if s.RestockAllowance > 0 {
		cfg.RestockAllowance = s.RestockAllowance
	}
	if s.SignupMessageAllowance != nil {
		cfg.SignupMessageAllowance = *s.SignupMessageAllowance
	}
	if s.SignupSendAllowance != nil {
		cfg.SignupSendAllowance = *s.SignupSendAllowance
	}
	if len(s.Plans) > 0 {
		cfg.Plans = s.Plans
	}

	if cfg.SignupMessageAllowance < 0 || cfg.SignupSendAllowance < 0 {
		return nil, errors.New("signup allowances must not be negative")
	}
	catalog, err := plans.NewCatalog(cfg.Plans)
	if err != nil {
		return nil, fmt.Errorf("plan table: %w", err)
	}
	cfg.Plans = catalog.List()
	return cfg, nil
}

func (b *serviceBackend) Migrate(ctx context.Context) error {
	return b.rm.RunMigrations(ctx, b.db)
}

func (b *serviceBackend) Plans() []plans.Plan {
	return b.catalog
}

func (b *serviceBackend) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	return b.ledger.ListAccounts(ctx)
}

func (b *serviceBackend) ResetAllowances(ctx context.Context, ref string, scope models.AllowanceScope) (*models.Account, error) {
	acc, err := b.users.Lookup(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("account %q: %w", ref, err)
	}
	return b.ledger.ResetAllowances(ctx, acc.ID, scope)
}

func (b *serviceBackend) SetRole(ctx context.Context, ref string, role models.Role) (*models.Account, error) {
	acc, err := b.users.Lookup(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("account %q: %w", ref, err)
	}
	if err := b.ledger.SetRole(ctx, acc.ID, role); err != nil {
		return nil, err
	}
	acc.Role = role
	return acc, nil
}

func (b *serviceBackend) CreateAdmin(ctx context.Context, username, email, password string) (*models.Account, error) {
	return b.users.CreateAccount(ctx, username, email, password, models.RoleAdmin)
}

func (b *serviceBackend) Close() error {
	return b.db.Close()
}
