package ledgerctl

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/toolmeter/internal/server/models"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.backend.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newPlansCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "List purchasable plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tNAME\tPRICE\tDAYS\tMESSAGES\tEMAILS")
			for _, p := range a.backend.Plans() {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%d %s\t%d\t%d\t%d\n",
					p.ID, p.Name, p.Amount, p.Currency, p.DurationDays, p.MessageAllowance, p.SendAllowance)
			}
			return tw.Flush()
		},
	}
}

func newAccountsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List accounts with their allowances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := a.backend.ListAccounts(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tUSERNAME\tROLE\tPLAN\tMESSAGES\tEMAILS")
			for _, acc := range list {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
					acc.ID, acc.Username, acc.Role, acc.Plan, acc.MessageAllowance, acc.SendAllowance)
			}
			return tw.Flush()
		},
	}
}

func newResetCmd(a *app) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "reset-allowances <account>",
		Short: "Restock an account's allowances",
		Long:  "Sets the selected allowances to the restock value. <account> is an id, email or username.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := models.ParseAllowanceScope(kind)
			if err != nil {
				return err
			}
			acc, err := a.backend.ResetAllowances(cmd.Context(), args[0], scope)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: messages=%d emails=%d\n",
				acc.Username, acc.MessageAllowance, acc.SendAllowance)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "both", "message, email or both")
	return cmd
}

func newSetRoleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-role <account> <user|admin>",
		Short: "Change an account's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			acc, err := a.backend.SetRole(cmd.Context(), args[0], models.Role(args[1]))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", acc.Username, acc.Role)
			return nil
		},
	}
}

func newCreateAdminCmd(a *app) *cobra.Command {
	var username, email string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		Long:  "Creates an admin account. The password is prompted for, or read from the first line of stdin when it is not a terminal.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := promptPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), isInteractive())
			if err != nil {
				return err
			}
			acc, err := a.backend.CreateAdmin(cmd.Context(), username, email, password)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", acc.Username, acc.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "login name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
