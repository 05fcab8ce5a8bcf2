// Package ledgerctl is the operator command line for the entitlement ledger:
// migrations, plan listing and administrative account changes.
package ledgerctl

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "TOOLMETER"

type app struct {
	v       *viper.Viper
	open    Opener
	backend Backend
}

// isInteractive reports whether passwords can be prompted for on a terminal.
var isInteractive = stdinIsTerminal

// Execute runs the command line against PostgreSQL.
func Execute() error {
	return NewRootCmd(OpenPostgres).Execute()
}

func NewRootCmd(open Opener) *cobra.Command {
	a := &app{v: viper.New(), open: open}

	rootCmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operate the toolmeter entitlement ledger",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if a.backend == nil {
				return nil
			}
			return a.backend.Close()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (json, yaml or toml)")
	pf.String("database-dsn", "", "PostgreSQL DSN")
	pf.Int64("restock-allowance", 0, "value written by reset-allowances (0 keeps the server default)")
	pf.String("env", "prod", "environment; dev enables debug logs")

	for _, key := range []string{"database-dsn", "restock-allowance", "env"} {
		_ = a.v.BindPFlag(strings.ReplaceAll(key, "-", "_"), pf.Lookup(key))
	}
	_ = a.v.BindPFlag("config", pf.Lookup("config"))
	// Not flags: an unset value must stay distinguishable from zero.
	for _, key := range []string{"signup_message_allowance", "signup_send_allowance"} {
		_ = a.v.BindEnv(key, envPrefix+"_"+strings.ToUpper(key))
	}

	rootCmd.AddCommand(
		newMigrateCmd(a),
		newPlansCmd(a),
		newAccountsCmd(a),
		newResetCmd(a),
		newSetRoleCmd(a),
		newCreateAdminCmd(a),
	)
	return rootCmd
}

func (a *app) setup() error {
	a.v.SetEnvPrefix(envPrefix)
	a.v.AutomaticEnv()

	if path := a.v.GetString("config"); path != "" {
		a.v.SetConfigFile(path)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	var s Settings
	if err := a.v.Unmarshal(&s); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}

	b, err := a.open(s)
	if err != nil {
		return err
	}
	a.backend = b
	return nil
}
