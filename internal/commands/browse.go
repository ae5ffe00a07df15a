package commands

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jask/moneyimport/internal/database/repository"
	"github.com/jask/moneyimport/internal/tui"
)

func newAccountsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List the accounts imports have created",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, err := a.accounts.List(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.RenderAccounts(accounts))
			return nil
		},
	}
}

func newFormatsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List supported statement formats and configured custom mappings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := a.imports.Registry
			fmt.Fprintln(cmd.OutOrStdout(), tui.RenderFormats(reg.Formats(), reg.Mappings().Names()))
			return nil
		},
	}
}

func newTransactionsCommand(a *app) *cobra.Command {
	var session, account, month, search string
	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "List stored transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f := repository.TransactionFilters{SessionID: session, Search: search}
			if account != "" {
				f.AccountID = repository.AccountID(account)
			}
			if month != "" {
				m, err := time.Parse("2006-01", month)
				if err != nil {
					return fmt.Errorf("--month wants YYYY-MM: %w", err)
				}
				f.Month = m
			}
			txns, err := a.transactions.List(ctx, f)
			if err != nil {
				return err
			}
			total, err := a.transactions.Count(ctx)
			if err != nil {
				return err
			}
			names, err := a.categories.IDsByName(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.RenderTransactions(txns, invert(names), total))
			return nil
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "only rows added by this import session")
	cmd.Flags().StringVar(&account, "account", "", "only rows of this account label")
	cmd.Flags().StringVar(&month, "month", "", "only rows of this month (YYYY-MM)")
	cmd.Flags().StringVar(&search, "search", "", "description contains")
	return cmd
}

func newRulesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage merchant rules applied to new imports",
	}
	var contains bool
	add := &cobra.Command{
		Use:   "add PATTERN CATEGORY",
		Short: "Categorize future imports whose description matches PATTERN",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ids, err := a.categories.IDsByName(ctx)
			if err != nil {
				return err
			}
			categoryID, ok := ids[args[1]]
			if !ok {
				return fmt.Errorf("unknown category %q", args[1])
			}
			kind := "exact"
			if contains {
				kind = "contains"
			}
			if err := a.rules.Add(ctx, repository.MerchantRule{
				ID:          uuid.NewString(),
				Pattern:     args[0],
				PatternType: kind,
				CategoryID:  categoryID,
				Confidence:  1,
				Source:      "user",
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rule added: %s %q -> %s\n", kind, args[0], args[1])
			return nil
		},
	}
	add.Flags().BoolVar(&contains, "contains", false, "match descriptions containing PATTERN")
	cmd.AddCommand(add)
	return cmd
}

func invert(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}
