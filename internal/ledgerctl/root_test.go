package ledgerctl

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/toolmeter/internal/common"
	"github.com/dmitrijs2005/toolmeter/internal/server/models"
	"github.com/dmitrijs2005/toolmeter/internal/server/plans"
)

type fakeBackend struct {
	settings   Settings
	migrated   bool
	closed     bool
	resetRef   string
	resetScope models.AllowanceScope
	adminPass  string
	accounts   map[string]*models.Account
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{accounts: map[string]*models.Account{
		"alice01": {ID: "acc-1", Username: "alice01", Role: models.RoleUser, Plan: models.PlanFree},
	}}
}

func (f *fakeBackend) Migrate(context.Context) error { f.migrated = true; return nil }
func (f *fakeBackend) Plans() []plans.Plan           { return plans.Defaults() }

func (f *fakeBackend) ListAccounts(context.Context) ([]*models.Account, error) {
	return []*models.Account{f.accounts["alice01"]}, nil
}

func (f *fakeBackend) ResetAllowances(_ context.Context, ref string, scope models.AllowanceScope) (*models.Account, error) {
	acc, ok := f.accounts[ref]
	if !ok {
		return nil, common.ErrorNotFound
	}
	f.resetRef, f.resetScope = ref, scope
	acc.MessageAllowance, acc.SendAllowance = 50, 50
	return acc, nil
}

func (f *fakeBackend) SetRole(_ context.Context, ref string, role models.Role) (*models.Account, error) {
	acc, ok := f.accounts[ref]
	if !ok {
		return nil, common.ErrorNotFound
	}
	acc.Role = role
	return acc, nil
}

func (f *fakeBackend) CreateAdmin(_ context.Context, username, email, password string) (*models.Account, error) {
	f.adminPass = password
	return &models.Account{ID: "adm-1", Username: username, Email: email, Role: models.RoleAdmin}, nil
}

func (f *fakeBackend) Close() error { f.closed = true; return nil }

func executeCLI(t *testing.T, b *fakeBackend, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(func(s Settings) (Backend, error) {
		b.settings = s
		return b, nil
	})
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMigrate(t *testing.T) {
	b := newFakeBackend()
	out, err := executeCLI(t, b, "", "migrate", "--database-dsn", "postgres://x")
	require.NoError(t, err)
	assert.True(t, b.migrated)
	assert.True(t, b.closed)
	assert.Equal(t, "postgres://x", b.settings.DatabaseDSN)
	assert.Contains(t, out, "migrations applied")
}

func TestSettingsFromEnvAndConfigFile(t *testing.T) {
	t.Setenv("TOOLMETER_DATABASE_DSN", "postgres://from-env")

	path := filepath.Join(t.TempDir(), "ledgerctl.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"restock_allowance": 75}`), 0o600))

	b := newFakeBackend()
	_, err := executeCLI(t, b, "", "plans", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://from-env", b.settings.DatabaseDSN)
	assert.Equal(t, int64(75), b.settings.RestockAllowance)
}

func TestSettings_PlanTableAndSignupAllowances(t *testing.T) {
	t.Setenv("TOOLMETER_SIGNUP_SEND_ALLOWANCE", "7")

	path := filepath.Join(t.TempDir(), "ledgerctl.yaml")
	cfg := `
signup_message_allowance: 25
plans:
  - id: starter
    name: Starter
    amount: 9
    currency: USD
    duration_days: 7
    message_allowance: 100
    send_allowance: 10
`
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))

	b := newFakeBackend()
	_, err := executeCLI(t, b, "", "plans", "--config", path)
	require.NoError(t, err)

	s := b.settings
	require.NotNil(t, s.SignupMessageAllowance)
	assert.Equal(t, int64(25), *s.SignupMessageAllowance)
	require.NotNil(t, s.SignupSendAllowance)
	assert.Equal(t, int64(7), *s.SignupSendAllowance)
	require.Len(t, s.Plans, 1)
	assert.Equal(t, plans.Plan{ID: "starter", Name: "Starter", Amount: 9, Currency: "USD",
		DurationDays: 7, MessageAllowance: 100, SendAllowance: 10}, s.Plans[0])

	server, err := s.serverConfig()
	require.NoError(t, err)
	assert.Equal(t, int64(25), server.SignupMessageAllowance)
	assert.Equal(t, int64(7), server.SignupSendAllowance)
	assert.Equal(t, s.Plans, server.Plans)
}

func TestSettings_ServerConfigDefaultsAndValidation(t *testing.T) {
	cfg, err := Settings{}.serverConfig()
	require.NoError(t, err)
	assert.Equal(t, plans.Defaults(), cfg.Plans)
	assert.Equal(t, int64(50), cfg.SignupMessageAllowance)

	negative := int64(-1)
	_, err = Settings{SignupSendAllowance: &negative}.serverConfig()
	require.Error(t, err)

	_, err = Settings{Plans: []plans.Plan{{ID: "broken"}}}.serverConfig()
	require.Error(t, err)
}

func TestPlansAndAccounts(t *testing.T) {
	b := newFakeBackend()
	out, err := executeCLI(t, b, "", "plans")
	require.NoError(t, err)
	assert.Contains(t, out, "premium")
	assert.Contains(t, out, "5666 INR")

	out, err = executeCLI(t, b, "", "accounts")
	require.NoError(t, err)
	assert.Contains(t, out, "alice01")
}

func TestResetAllowances(t *testing.T) {
	b := newFakeBackend()
	out, err := executeCLI(t, b, "", "reset-allowances", "alice01", "--kind", "email")
	require.NoError(t, err)
	assert.Equal(t, models.AllowanceScope{Send: true}, b.resetScope)
	assert.Contains(t, out, "emails=50")

	_, err = executeCLI(t, b, "", "reset-allowances", "alice01", "--kind", "sms")
	require.Error(t, err)

	_, err = executeCLI(t, b, "", "reset-allowances", "nobody")
	require.ErrorIs(t, err, common.ErrorNotFound)

	_, err = executeCLI(t, b, "", "reset-allowances")
	require.Error(t, err)
}

func TestSetRole(t *testing.T) {
	b := newFakeBackend()
	out, err := executeCLI(t, b, "", "set-role", "alice01", "admin")
	require.NoError(t, err)
	assert.Contains(t, out, "alice01 is now admin")
}

func TestCreateAdmin_FromStdin(t *testing.T) {
	orig := isInteractive
	t.Cleanup(func() { isInteractive = orig })
	isInteractive = func() bool { return false }

	b := newFakeBackend()
	out, err := executeCLI(t, b, "s3cret-pass\n", "create-admin", "--username", "root01", "--email", "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, "s3cret-pass", b.adminPass)
	assert.Contains(t, out, "created admin root01")

	_, err = executeCLI(t, b, "", "create-admin", "--username", "root01")
	require.Error(t, err)
}

func TestPromptPassword_Interactive(t *testing.T) {
	orig := readPassword
	t.Cleanup(func() { readPassword = orig })

	answers := []string{"pw-one", "pw-one"}
	readPassword = func(int) ([]byte, error) {
		a := answers[0]
		answers = answers[1:]
		return []byte(a), nil
	}
	var w bytes.Buffer
	got, err := promptPassword(strings.NewReader(""), &w, true)
	require.NoError(t, err)
	assert.Equal(t, "pw-one", got)
	assert.Contains(t, w.String(), "Repeat password")

	answers = []string{"a", "b"}
	_, err = promptPassword(strings.NewReader(""), &w, true)
	require.ErrorIs(t, err, errPasswordMismatch)

	readPassword = func(int) ([]byte, error) { return nil, errors.New("no tty") }
	_, err = promptPassword(strings.NewReader(""), &w, true)
	require.Error(t, err)
}

func TestOpenerError(t *testing.T) {
	cmd := NewRootCmd(func(Settings) (Backend, error) { return nil, errors.New("no db") })
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"plans"})
	require.EqualError(t, cmd.Execute(), "no db")
}
