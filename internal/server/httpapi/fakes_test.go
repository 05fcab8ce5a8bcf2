package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/toolmeter/internal/logging"
	"github.com/dmitrijs2005/toolmeter/internal/server/auth"
	"github.com/dmitrijs2005/toolmeter/internal/server/models"
	"github.com/dmitrijs2005/toolmeter/internal/server/plans"
	"github.com/dmitrijs2005/toolmeter/internal/server/services"
)

const testSecret = "test-secret"

type fakeLedger struct {
	consume  func(ctx context.Context, id string, kind models.AllowanceKind) (*models.Account, error)
	ent      func(ctx context.Context, id string) (*services.Entitlement, error)
	reset    func(ctx context.Context, id string, scope models.AllowanceScope) (*models.Account, error)
	accounts []*models.Account
}

func (f *fakeLedger) CheckAndConsume(ctx context.Context, id string, kind models.AllowanceKind) (*models.Account, error) {
	return f.consume(ctx, id, kind)
}

func (f *fakeLedger) Entitlement(ctx context.Context, id string) (*services.Entitlement, error) {
	return f.ent(ctx, id)
}

func (f *fakeLedger) ResetAllowances(ctx context.Context, id string, scope models.AllowanceScope) (*models.Account, error) {
	return f.reset(ctx, id, scope)
}

func (f *fakeLedger) ListAccounts(context.Context) ([]*models.Account, error) {
	return f.accounts, nil
}

type fakeBilling struct {
	create  func(ctx context.Context, planID, accountID string) (*services.Checkout, error)
	verify  func(ctx context.Context, accountID string, req services.VerifyRequest) (*models.Payment, error)
	history []*models.Payment
	export  func(w io.Writer) error
}

func (f *fakeBilling) Plans() []plans.Plan { return plans.Defaults() }

func (f *fakeBilling) CreateOrder(ctx context.Context, planID, accountID string) (*services.Checkout, error) {
	return f.create(ctx, planID, accountID)
}

func (f *fakeBilling) VerifyAndSettle(ctx context.Context, accountID string, req services.VerifyRequest) (*models.Payment, error) {
	return f.verify(ctx, accountID, req)
}

func (f *fakeBilling) History(context.Context, string) ([]*models.Payment, error) {
	return f.history, nil
}

func (f *fakeBilling) ExportPayments(_ context.Context, w io.Writer) error {
	return f.export(w)
}

type fakeUsers struct {
	register  func(username, email, password string) (*models.Account, *services.TokenPair, error)
	login     func(login, password string) (*models.Account, *services.TokenPair, error)
	refresh   func(token string) (*services.TokenPair, error)
	account   *models.Account
	loggedOut string
	changePw  func(accountID, current, next string) error
}

func (f *fakeUsers) Register(_ context.Context, username, email, password string) (*models.Account, *services.TokenPair, error) {
	return f.register(username, email, password)
}

func (f *fakeUsers) Login(_ context.Context, login, password string) (*models.Account, *services.TokenPair, error) {
	return f.login(login, password)
}

func (f *fakeUsers) RefreshToken(_ context.Context, token string) (*services.TokenPair, error) {
	return f.refresh(token)
}

func (f *fakeUsers) Logout(_ context.Context, accountID string) error {
	f.loggedOut = accountID
	return nil
}

func (f *fakeUsers) ChangePassword(_ context.Context, accountID, current, next string) error {
	return f.changePw(accountID, current, next)
}

func (f *fakeUsers) Account(context.Context, string) (*models.Account, error) {
	return f.account, nil
}

type fakeTools struct {
	generate func(accountID, tool, chatID, prompt string) (*services.Generation, error)
	chats    func(accountID, tool string) ([]*models.Conversation, error)
	chat     func(accountID, tool, id string) (*models.Conversation, error)
}

func (f *fakeTools) Tools() []services.Tool { return services.DefaultTools() }

func (f *fakeTools) Generate(_ context.Context, accountID, tool, chatID, prompt string) (*services.Generation, error) {
	return f.generate(accountID, tool, chatID, prompt)
}

func (f *fakeTools) Conversations(_ context.Context, accountID, tool string) ([]*models.Conversation, error) {
	return f.chats(accountID, tool)
}

func (f *fakeTools) Conversation(_ context.Context, accountID, tool, id string) (*models.Conversation, error) {
	return f.chat(accountID, tool, id)
}

type testDeps struct {
	ledger  *fakeLedger
	billing *fakeBilling
	users   *fakeUsers
	tools   *fakeTools
	opts    Options
}

func newTestDeps() *testDeps {
	return &testDeps{
		ledger:  &fakeLedger{},
		billing: &fakeBilling{},
		users:   &fakeUsers{},
		tools:   &fakeTools{},
		opts:    Options{SecretKey: testSecret, KeyID: "rzp_test", RateLimitPerMinute: 1000},
	}
}

func (d *testDeps) handler() http.Handler {
	return NewServer(d.opts, logging.Discard(), d.ledger, d.billing, d.users, d.tools).Handler()
}

func bearer(t *testing.T, userID string, role models.Role) string {
	t.Helper()
	tok, err := auth.GenerateToken(userID, string(role), []byte(testSecret), time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func do(t *testing.T, h http.Handler, method, path, authz, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}
