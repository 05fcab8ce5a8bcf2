// Package httpapi exposes the ledger, billing, auth and tool services as a
// JSON HTTP API.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/dmitrijs2005/toolmeter/internal/logging"
	"github.com/dmitrijs2005/toolmeter/internal/server/models"
	"github.com/dmitrijs2005/toolmeter/internal/server/plans"
	"github.com/dmitrijs2005/toolmeter/internal/server/services"
)

// Ledger is the part of services.LedgerService used by the handlers.
type Ledger interface {
	CheckAndConsume(ctx context.Context, accountID string, kind models.AllowanceKind) (*models.Account, error)
	Entitlement(ctx context.Context, accountID string) (*services.Entitlement, error)
	ResetAllowances(ctx context.Context, accountID string, scope models.AllowanceScope) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]*models.Account, error)
}

// Billing is the part of services.BillingService used by the handlers.
type Billing interface {
	Plans() []plans.Plan
	CreateOrder(ctx context.Context, planID, accountID string) (*services.Checkout, error)
	VerifyAndSettle(ctx context.Context, accountID string, req services.VerifyRequest) (*models.Payment, error)
	History(ctx context.Context, accountID string) ([]*models.Payment, error)
	ExportPayments(ctx context.Context, w io.Writer) error
}

// Users is the part of services.UserService used by the handlers.
type Users interface {
	Register(ctx context.Context, username, email, password string) (*models.Account, *services.TokenPair, error)
	Login(ctx context.Context, login, password string) (*models.Account, *services.TokenPair, error)
	RefreshToken(ctx context.Context, token string) (*services.TokenPair, error)
	Logout(ctx context.Context, accountID string) error
	ChangePassword(ctx context.Context, accountID, current, next string) error
	Account(ctx context.Context, accountID string) (*models.Account, error)
}

// Tools is the part of services.ToolService used by the handlers.
type Tools interface {
	Tools() []services.Tool
	Generate(ctx context.Context, accountID, toolName, conversationID, prompt string) (*services.Generation, error)
	Conversations(ctx context.Context, accountID, toolName string) ([]*models.Conversation, error)
	Conversation(ctx context.Context, accountID, toolName, id string) (*models.Conversation, error)
}

// Options configures a Server.
type Options struct {
	Addr               string
	SecretKey          string
	KeyID              string
	PublicMetrics      bool
	RateLimitPerMinute int
	ShutdownTimeout    time.Duration

	// TrustedProxies are the peers allowed to set X-Forwarded-For.
	TrustedProxies []netip.Prefix
}

type Server struct {
	opts      Options
	logger    logging.Logger
	ledger    Ledger
	billing   Billing
	users     Users
	tools     Tools
	jwtSecret []byte
	limiter   *ipLimiter
	proxies   proxySet
}

func NewServer(opts Options, l logging.Logger, ledger Ledger, billing Billing, users Users, tools Tools) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	return &Server{
		opts:      opts,
		logger:    l.With("module", "http_server"),
		ledger:    ledger,
		billing:   billing,
		users:     users,
		tools:     tools,
		jwtSecret: []byte(opts.SecretKey),
		limiter:   newIPLimiter(opts.RateLimitPerMinute),
		proxies:   proxySet(opts.TrustedProxies),
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.serve(ctx, listen)
}

func (s *Server) serve(ctx context.Context, listen net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
		defer cancel()
		errCh <- srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-errCh
}
