package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/toolmeter/internal/common"
	"github.com/dmitrijs2005/toolmeter/internal/dbx"
	"github.com/dmitrijs2005/toolmeter/internal/logging"
	"github.com/dmitrijs2005/toolmeter/internal/server/gateway"
	"github.com/dmitrijs2005/toolmeter/internal/server/metrics"
	"github.com/dmitrijs2005/toolmeter/internal/server/models"
	"github.com/dmitrijs2005/toolmeter/internal/server/plans"
	"github.com/dmitrijs2005/toolmeter/internal/server/reports"
	"github.com/dmitrijs2005/toolmeter/internal/server/repositories/repomanager"
)

// PaymentGateway is the part of the gateway client the bridge needs.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, in gateway.CreateOrderRequest) (*gateway.Order, error)
	VerifySignature(orderID, paymentID, signature string) bool
	KeyID() string
}

// Checkout is what the browser needs to open the hosted payment page.
type Checkout struct {
	Order *gateway.Order
	KeyID string
	Plan  plans.Plan
}

// VerifyRequest is the checkout callback. Amount is in minor units.
type VerifyRequest struct {
	OrderID   string
	PaymentID string
	Signature string
	Amount    int64
	Currency  string
}

// BillingService turns verified gateway payments into entitlements, exactly
// once per order.
type BillingService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	gateway     PaymentGateway
	catalog     *plans.Catalog
	ledger      *LedgerService
	log         logging.Logger
	now         func() time.Time
}

func NewBillingService(db *sql.DB, m repomanager.RepositoryManager, gw PaymentGateway, catalog *plans.Catalog,
	ledger *LedgerService, log logging.Logger) *BillingService {
	return &BillingService{
		db:          db,
		repomanager: m,
		gateway:     gw,
		catalog:     catalog,
		ledger:      ledger,
		log:         log,
		now:         time.Now,
	}
}

// Plans lists the purchasable plans.
func (s *BillingService) Plans() []plans.Plan {
	return s.catalog.List()
}

// CreateOrder registers a gateway order for planID and records it before
// handing it out. accountID is optional and only tagged onto the order notes.
func (s *BillingService) CreateOrder(ctx context.Context, planID, accountID string) (*Checkout, error) {
	plan, ok := s.catalog.Get(planID)
	if !ok {
		metrics.BillingOrders.WithLabelValues("invalid_plan").Inc()
		return nil, common.ErrInvalidPlan
	}

	amount, err := plan.AmountMinor()
	if err != nil {
		metrics.BillingOrders.WithLabelValues("error").Inc()
		s.log.Error(ctx, "plan amount conversion failed", "plan", plan.ID, "error", err)
		return nil, common.ErrorInternal
	}

	notes := map[string]string{"plan": plan.ID}
	if accountID != "" {
		notes["account_id"] = accountID
	}
	order, err := s.gateway.CreateOrder(ctx, gateway.CreateOrderRequest{
		Amount:   amount,
		Currency: plan.Currency,
		Receipt:  "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Notes:    notes,
	})
	if err != nil {
		metrics.BillingOrders.WithLabelValues("gateway_error").Inc()
		s.log.Error(ctx, "gateway order creation failed", "plan", plan.ID, "error", err)
		return nil, common.ErrorInternal
	}

	// The stored amount comes from the plan table, not from the gateway echo.
	record := &models.ExternalOrder{
		OrderID:  order.ID,
		Amount:   amount,
		Currency: plan.Currency,
		PlanID:   plan.ID,
	}
	if err := s.repomanager.Orders(s.db).Create(ctx, record); err != nil {
		metrics.BillingOrders.WithLabelValues("persist_error").Inc()
		s.log.Error(ctx, "order persistence failed", "order_id", order.ID, "plan", plan.ID, "error", err)
		return nil, common.ErrorInternal
	}

	metrics.BillingOrders.WithLabelValues("created").Inc()
	s.log.Info(ctx, "order created", "order_id", order.ID, "plan", plan.ID, "amount", amount, "currency", plan.Currency)
	return &Checkout{Order: order, KeyID: s.gateway.KeyID(), Plan: plan}, nil
}

// VerifyAndSettle checks a payment callback and, if it is genuine and new,
// records the payment and grants the plan in one transaction.
func (s *BillingService) VerifyAndSettle(ctx context.Context, accountID string, req VerifyRequest) (payment *models.Payment, err error) {
	outcome := "error"
	defer func() {
		metrics.BillingSettlements.WithLabelValues(outcome).Inc()
	}()

	if !s.gateway.VerifySignature(req.OrderID, req.PaymentID, req.Signature) {
		outcome = "invalid_signature"
		s.log.Warn(ctx, "payment signature mismatch", "order_id", req.OrderID, "payment_id", req.PaymentID, "account_id", accountID)
		return nil, common.ErrInvalidSignature
	}

	order, err := s.repomanager.Orders(s.db).Get(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			outcome = "order_not_found"
			return nil, common.ErrOrderNotFound
		}
		s.log.Error(ctx, "order lookup failed", "order_id", req.OrderID, "error", err)
		return nil, common.ErrorInternal
	}

	if req.Amount != order.Amount || !plans.SameCurrency(req.Currency, order.Currency) {
		outcome = "amount_mismatch"
		s.log.Warn(ctx, "payment amount mismatch", "order_id", order.OrderID,
			"claimed_amount", req.Amount, "claimed_currency", req.Currency,
			"order_amount", order.Amount, "order_currency", order.Currency)
		return nil, common.ErrAmountMismatch
	}

	plan, ok := s.catalog.Get(order.PlanID)
	if !ok {
		s.log.Error(ctx, "order references unknown plan", "order_id", order.OrderID, "plan", order.PlanID)
		return nil, common.ErrorInternal
	}

	done, err := s.repomanager.Payments(s.db).ExistsForOrder(ctx, order.OrderID)
	if err != nil {
		s.log.Error(ctx, "payment lookup failed", "order_id", order.OrderID, "error", err)
		return nil, common.ErrorInternal
	}
	if done {
		outcome = "already_processed"
		return nil, common.ErrAlreadyProcessed
	}

	payment = &models.Payment{
		ID:        uuid.NewString(),
		AccountID: accountID,
		OrderID:   order.OrderID,
		PaymentID: req.PaymentID,
		Amount:    order.Amount,
		Currency:  order.Currency,
		PlanID:    plan.ID,
		Status:    models.PaymentStatusCompleted,
		PaidAt:    s.now().UTC(),
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Payments(tx).Insert(ctx, payment); err != nil {
			return err
		}
		if _, err := s.ledger.GrantPlan(ctx, tx, accountID, plan); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrAlreadyProcessed) {
			// A concurrent verification of the same order won the insert.
			outcome = "already_processed"
			return nil, common.ErrAlreadyProcessed
		}
		s.log.Error(ctx, "settlement failed", "order_id", order.OrderID, "account_id", accountID, "error", err)
		return nil, common.ErrorInternal
	}

	outcome = "settled"
	s.log.Info(ctx, "payment settled", "order_id", order.OrderID, "payment_id", req.PaymentID,
		"account_id", accountID, "plan", plan.ID)
	return payment, nil
}

// History returns the account's payments, newest first.
func (s *BillingService) History(ctx context.Context, accountID string) ([]*models.Payment, error) {
	list, err := s.repomanager.Payments(s.db).ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("payment history: %w", err)
	}
	return list, nil
}

// ExportPayments writes every payment as an XLSX workbook.
func (s *BillingService) ExportPayments(ctx context.Context, w io.Writer) error {
	list, err := s.repomanager.Payments(s.db).ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list payments: %w", err)
	}
	return reports.WritePayments(w, list)
}
