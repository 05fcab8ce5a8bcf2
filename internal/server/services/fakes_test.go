package services

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dmitrijs2005/toolmeter/internal/common"
	"github.com/dmitrijs2005/toolmeter/internal/dbx"
	"github.com/dmitrijs2005/toolmeter/internal/logging"
	"github.com/dmitrijs2005/toolmeter/internal/server/models"
	"github.com/dmitrijs2005/toolmeter/internal/server/plans"
	"github.com/dmitrijs2005/toolmeter/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/toolmeter/internal/server/repositories/conversations"
	"github.com/dmitrijs2005/toolmeter/internal/server/repositories/orders"
	"github.com/dmitrijs2005/toolmeter/internal/server/repositories/payments"
	"github.com/dmitrijs2005/toolmeter/internal/server/repositories/refreshtokens"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

// memStore backs every repository with maps behind one mutex. Each method is
// atomic, like the single-statement SQL it stands in for.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	orders   map[string]*models.ExternalOrder
	payments map[string]*models.Payment // by order id
	tokens   map[string]*models.RefreshToken
	convs    map[string]*models.Conversation
	messages []*models.Message

	// failure hooks
	getErr       error
	consumeErr   error
	grantErr     error
	ordersErr    error
	insertErr    error
	existsErr    error
	tokenErr     error
	messageErr   error
	hidePayments bool // ExistsForOrder always reports false
	// afterTokenFind runs once Find has returned, before the caller acts on it.
	afterTokenFind func(token string)
}

func newMemStore() *memStore {
	return &memStore{
		accounts: map[string]*models.Account{},
		orders:   map[string]*models.ExternalOrder{},
		payments: map[string]*models.Payment{},
		tokens:   map[string]*models.RefreshToken{},
		convs:    map[string]*models.Conversation{},
	}
}

func (s *memStore) put(a *models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.accounts[a.ID] = &cp
}

func (s *memStore) account(id string) *models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

func (s *memStore) paymentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payments)
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

type memAccounts struct{ s *memStore }

func (r memAccounts) Create(_ context.Context, a *models.Account) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, ex := range r.s.accounts {
		if ex.Username == a.Username {
			return nil, common.ErrorAlreadyExists
		}
		if ex.Email == a.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	a.CreatedAt = time.Now()
	cp := *a
	r.s.accounts[a.ID] = &cp
	return a, nil
}

func (r memAccounts) GetByID(_ context.Context, id string) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.getErr != nil {
		return nil, r.s.getErr
	}
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *a
	return &cp, nil
}

func (r memAccounts) GetByLogin(_ context.Context, login string) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.getErr != nil {
		return nil, r.s.getErr
	}
	for _, a := range r.s.accounts {
		if a.Email == login || a.Username == login {
			cp := *a
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memAccounts) Exists(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.accounts[id]
	return ok, nil
}

func (r memAccounts) List(_ context.Context) ([]*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.Account, 0, len(r.s.accounts))
	for _, a := range r.s.accounts {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (r memAccounts) ConsumeAllowance(_ context.Context, id string, kind models.AllowanceKind) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.consumeErr != nil {
		return nil, r.s.consumeErr
	}
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	switch kind {
	case models.AllowanceMessage:
		if a.MessageAllowance <= 0 {
			return nil, common.ErrorNotFound
		}
		a.MessageAllowance--
	case models.AllowanceSend:
		if a.SendAllowance <= 0 {
			return nil, common.ErrorNotFound
		}
		a.SendAllowance--
	default:
		return nil, common.ErrorValidation
	}
	cp := *a
	return &cp, nil
}

func (r memAccounts) SetAllowances(_ context.Context, id string, scope models.AllowanceScope, value int64) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if !scope.Message && !scope.Send {
		return nil, common.ErrorValidation
	}
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if scope.Message {
		a.MessageAllowance = value
	}
	if scope.Send {
		a.SendAllowance = value
	}
	cp := *a
	return &cp, nil
}

func (r memAccounts) ApplyGrant(_ context.Context, id string, g accounts.Grant) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.grantErr != nil {
		return nil, r.s.grantErr
	}
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	started, expires := g.SubscriptionStartedAt, g.ExpiresAt
	a.Plan = g.Plan
	a.MessageAllowance = g.MessageAllowance
	a.SendAllowance = g.SendAllowance
	a.SubscriptionStartedAt = &started
	a.ExpiresAt = &expires
	cp := *a
	return &cp, nil
}

func (r memAccounts) SetRole(_ context.Context, id string, role models.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return common.ErrorNotFound
	}
	a.Role = role
	return nil
}

func (r memAccounts) UpdatePassword(_ context.Context, id, hash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return common.ErrorNotFound
	}
	a.PasswordHash = hash
	return nil
}

type memOrders struct{ s *memStore }

func (r memOrders) Create(_ context.Context, o *models.ExternalOrder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.ordersErr != nil {
		return r.s.ordersErr
	}
	if _, ok := r.s.orders[o.OrderID]; ok {
		return common.ErrorAlreadyExists
	}
	cp := *o
	r.s.orders[o.OrderID] = &cp
	return nil
}

func (r memOrders) Get(_ context.Context, id string) (*models.ExternalOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.ordersErr != nil {
		return nil, r.s.ordersErr
	}
	o, ok := r.s.orders[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *o
	return &cp, nil
}

type memPayments struct{ s *memStore }

func (r memPayments) Insert(_ context.Context, p *models.Payment) (*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.insertErr != nil {
		return nil, r.s.insertErr
	}
	if _, ok := r.s.payments[p.OrderID]; ok {
		return nil, common.ErrAlreadyProcessed
	}
	p.CreatedAt = time.Now()
	cp := *p
	r.s.payments[p.OrderID] = &cp
	return p, nil
}

func (r memPayments) ExistsForOrder(_ context.Context, orderID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.existsErr != nil {
		return false, r.s.existsErr
	}
	if r.s.hidePayments {
		return false, nil
	}
	_, ok := r.s.payments[orderID]
	return ok, nil
}

func (r memPayments) list(accountID string) []*models.Payment {
	out := []*models.Payment{}
	for _, p := range r.s.payments {
		if accountID == "" || p.AccountID == accountID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaidAt.After(out[j].PaidAt) })
	return out
}

func (r memPayments) ListByAccount(_ context.Context, accountID string) ([]*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.list(accountID), nil
}

func (r memPayments) ListAll(_ context.Context) ([]*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.list(""), nil
}

type memTokens struct{ s *memStore }

func (r memTokens) Create(_ context.Context, accountID, token string, validity time.Duration) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.tokenErr != nil {
		return r.s.tokenErr
	}
	r.s.tokens[token] = &models.RefreshToken{AccountID: accountID, Token: token, Expires: time.Now().Add(validity)}
	return nil
}

func (r memTokens) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	r.s.mu.Lock()
	t, ok := r.s.tokens[token]
	hook := r.s.afterTokenFind
	r.s.mu.Unlock()
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *t
	if hook != nil {
		hook(token)
	}
	return &cp, nil
}

func (r memTokens) Delete(_ context.Context, token string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tokens[token]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.tokens, token)
	return nil
}

func (r memTokens) DeleteForAccount(_ context.Context, accountID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for k, t := range r.s.tokens {
		if t.AccountID == accountID {
			delete(r.s.tokens, k)
		}
	}
	return nil
}

type memConversations struct{ s *memStore }

func (r memConversations) Create(_ context.Context, c *models.Conversation) (*models.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	r.s.convs[c.ID] = &cp
	return c, nil
}

func (r memConversations) Get(_ context.Context, accountID, tool, id string) (*models.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.convs[id]
	if !ok || c.AccountID != accountID || c.Tool != tool {
		return nil, common.ErrorNotFound
	}
	cp := *c
	return &cp, nil
}

func (r memConversations) ListByAccount(_ context.Context, accountID, tool string) ([]*models.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.Conversation, 0)
	for _, c := range r.s.convs {
		if c.AccountID == accountID && c.Tool == tool {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r memConversations) AddMessage(_ context.Context, m *models.Message) (*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.messageErr != nil {
		return nil, r.s.messageErr
	}
	c, ok := r.s.convs[m.ConversationID]
	if !ok {
		return nil, errBoom{}
	}
	m.ID = int64(len(r.s.messages) + 1)
	m.CreatedAt = time.Now()
	c.UpdatedAt = m.CreatedAt
	cp := *m
	r.s.messages = append(r.s.messages, &cp)
	return m, nil
}

func (r memConversations) Messages(_ context.Context, conversationID string, limit int) ([]*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.Message, 0)
	for _, m := range r.s.messages {
		if m.ConversationID == conversationID {
			cp := *m
			out = append(out, &cp)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *memStore) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// fakeRepoManager ignores the DBTX; transactions are asserted through sqlmock.
type fakeRepoManager struct{ s *memStore }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (m *fakeRepoManager) Accounts(dbx.DBTX) accounts.Repository           { return memAccounts{m.s} }
func (m *fakeRepoManager) Conversations(dbx.DBTX) conversations.Repository { return memConversations{m.s} }
func (m *fakeRepoManager) Orders(dbx.DBTX) orders.Repository               { return memOrders{m.s} }
func (m *fakeRepoManager) Payments(dbx.DBTX) payments.Repository           { return memPayments{m.s} }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return memTokens{m.s} }

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func testAccount(id string, message, send int64) *models.Account {
	return &models.Account{
		ID:               id,
		Username:         "user" + strings.ReplaceAll(id, "-", ""),
		Email:            id + "@example.com",
		Role:             models.RoleUser,
		Plan:             models.PlanFree,
		Active:           true,
		MessageAllowance: message,
		SendAllowance:    send,
	}
}

// accountRows is one accounts row in the column order the postgres
// repository scans.
func accountRows(id string, message, send int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "username", "email", "password_hash", "role", "plan", "active",
		"message_allowance", "send_allowance", "subscription_started_at", "expires_at", "created_at"}).
		AddRow(id, "alice01", id+"@example.com", "hash", "user", "Free", true, message, send, nil, nil, time.Now())
}

func testCatalog(t *testing.T) *plans.Catalog {
	t.Helper()
	c, err := plans.NewCatalog(plans.Defaults())
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return c
}

func newLedger(db *sql.DB, store *memStore, restock int64) *LedgerService {
	return NewLedgerService(db, &fakeRepoManager{s: store}, restock, logging.Discard())
}
