// Package server wires the toolmeter components together and runs the HTTP
// API until the process is asked to stop.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/toolmeter/internal/logging"
	"github.com/dmitrijs2005/toolmeter/internal/server/completion"
	"github.com/dmitrijs2005/toolmeter/internal/server/config"
	"github.com/dmitrijs2005/toolmeter/internal/server/gateway"
	"github.com/dmitrijs2005/toolmeter/internal/server/httpapi"
	"github.com/dmitrijs2005/toolmeter/internal/server/metrics"
	"github.com/dmitrijs2005/toolmeter/internal/server/plans"
	"github.com/dmitrijs2005/toolmeter/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/toolmeter/internal/server/services"
)

// App owns every long-lived resource: the database pool and one HTTP client
// per outbound dependency.
type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	gateway     *gateway.RazorpayClient
	completer   *completion.Client
	server      *httpapi.Server
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.New(c.Env, os.Stdout)

	catalog, err := plans.NewCatalog(c.Plans)
	if err != nil {
		return nil, fmt.Errorf("plan table: %w", err)
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	proxies, err := c.TrustedProxyPrefixes()
	if err != nil {
		return nil, err
	}

	rm := repomanager.NewPostgresRepositoryManager()
	gw := gateway.NewRazorpayClient(c.RazorpayKeyID, c.RazorpayKeySecret, c.RazorpayBaseURL, c.GatewayTimeout)
	llm := completion.NewClient(c.LLMServiceURL, c.LLMTimeout)

	ledger := services.NewLedgerService(db, rm, c.RestockAllowance, logger.With("module", "ledger"))
	billing := services.NewBillingService(db, rm, gw, catalog, ledger, logger.With("module", "billing"))
	users := services.NewUserService(db, rm, c)
	tools := services.NewToolService(db, rm, ledger, llm, services.DefaultTools(), logger.With("module", "tools"))

	srv := httpapi.NewServer(httpapi.Options{
		Addr:               c.HTTPAddr,
		SecretKey:          c.SecretKey,
		KeyID:              gw.KeyID(),
		PublicMetrics:      c.PublicMetrics,
		RateLimitPerMinute: c.RateLimitPerMinute,
		ShutdownTimeout:    c.ShutdownTimeout,
		TrustedProxies:     proxies,
	}, logger, ledger, billing, users, tools)

	if c.RazorpayKeySecret == "" {
		logger.Warn(context.Background(), "payment gateway credentials are not set; checkout will fail")
	}

	return &App{
		config:      c,
		logger:      logger,
		db:          db,
		repomanager: rm,
		gateway:     gw,
		completer:   llm,
		server:      srv,
	}, nil
}

// Run applies migrations and serves until SIGINT/SIGTERM or ctx cancellation.
// Resources are released before it returns.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()
	defer app.close(ctx)

	app.logger.Info(ctx, "Starting app...")

	if err := app.repomanager.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.server.Run(gctx)
	})
	g.Go(func() error {
		return app.watchDatabase(gctx, app.db, app.config.DBPingInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	app.logger.Info(ctx, "App stopped")
	return nil
}

const dbPingTimeout = 5 * time.Second

type pinger interface {
	PingContext(ctx context.Context) error
}

// watchDatabase pings db every interval until ctx is done and exports the
// result as the database up gauge.
func (app *App) watchDatabase(ctx context.Context, db pinger, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	up := true
	for {
		up = app.checkDatabase(ctx, db, up)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// checkDatabase pings once and logs only state changes.
func (app *App) checkDatabase(ctx context.Context, db pinger, wasUp bool) bool {
	pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if ctx.Err() != nil {
			return wasUp
		}
		metrics.DatabaseUp.Set(0)
		if wasUp {
			app.logger.Error(ctx, "database unreachable", "error", err)
		}
		return false
	}
	metrics.DatabaseUp.Set(1)
	if !wasUp {
		app.logger.Info(ctx, "database reachable again")
	}
	return true
}

func (app *App) close(ctx context.Context) {
	app.gateway.Close()
	app.completer.Close()
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "closing database", "error", err)
	}
}
