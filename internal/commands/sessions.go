package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jask/moneyimport/internal/database"
	"github.com/jask/moneyimport/internal/formats"
	"github.com/jask/moneyimport/internal/logger"
	"github.com/jask/moneyimport/internal/tui"
)

func newSessionsCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sessions [SESSION]",
		Short: "List import sessions, or show one with its files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				s, err := a.imports.Session(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(out, tui.RenderSession(s))
				return nil
			}
			sessions, err := a.imports.Sessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, tui.RenderSessions(sessions))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of sessions to list")
	return cmd
}

func newRollbackCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback SESSION",
		Short: "Remove every transaction an import session added",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.imports.Rollback(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.RenderSession(s))
			return nil
		},
	}
}

func newResetCommand(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Roll back every import session and clear merchant rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("reset rolls back every import; pass --yes to confirm")
			}
			n, err := a.maintenance.Reset(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reverted %d import sessions\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

func newMigrateCommand(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:         "migrate",
		Short:       "Apply database migrations",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{manualMigrations: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := a.cfg.Database.Path
			var err error
			if dir != "" {
				err = database.RunMigrationsFromDir(path, dir)
			} else {
				err = database.RunMigrations(path)
			}
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if err := database.SeedDefaults(ctx, a.db, formats.Buckets); err != nil {
				return fmt.Errorf("seed categories: %w", err)
			}
			log := logger.FromContext(ctx)
			log.Info().Str("db", path).Msg("migrated")
			fmt.Fprintln(cmd.OutOrStdout(), "database is up to date")
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "read migrations from this directory instead of the built-in set")
	return cmd
}
