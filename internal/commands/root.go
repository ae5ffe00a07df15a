package commands

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jask/moneyimport/internal/buildinfo"
	"github.com/jask/moneyimport/internal/config"
	"github.com/jask/moneyimport/internal/database"
	"github.com/jask/moneyimport/internal/database/repository"
	"github.com/jask/moneyimport/internal/formats"
	"github.com/jask/moneyimport/internal/logger"
	"github.com/jask/moneyimport/internal/service"
)

// manualMigrations marks commands that manage the schema themselves.
const manualMigrations = "manual-migrations"

type options struct {
	configPath string
	dbPath     string
	logLevel   string
}

// app holds what the subcommands share once the root pre-run has opened it.
type app struct {
	cfg         config.Config
	db          *sql.DB
	imports     *service.ImportService
	maintenance *service.MaintenanceService

	accounts     *repository.AccountRepo
	categories   *repository.CategoryRepo
	transactions *repository.TransactionRepo
	rules        *repository.MerchantRuleRepo
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	o := &options{}
	a := &app{}

	rootCmd := &cobra.Command{
		Use:     "moneyimport",
		Short:   "Import bank and card statements without duplicating transactions",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd, o)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&o.configPath, "config", "", "config file (default $HOME/.config/moneyimport/config.toml)")
	flags.StringVar(&o.dbPath, "db", "", "sqlite database path")
	flags.StringVar(&o.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newPreviewCommand(a),
		newImportCommand(a),
		newSessionsCommand(a),
		newRollbackCommand(a),
		newResetCommand(a),
		newMigrateCommand(a),
		newAccountsCommand(a),
		newFormatsCommand(a),
		newTransactionsCommand(a),
		newRulesCommand(a),
	)
	return rootCmd
}

func (a *app) open(cmd *cobra.Command, o *options) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.dbPath != "" {
		cfg.Database.Path = o.dbPath
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	a.cfg = cfg

	log := logger.NewConsole(cmd.ErrOrStderr(), cfg.Log.Level)
	if cfg.Log.Format == "json" {
		log = logger.NewWithWriter(cmd.ErrOrStderr()).Level(logger.ParseLevel(cfg.Log.Level))
	}
	ctx := logger.WithContext(cmd.Context(), log)
	cmd.SetContext(ctx)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	manual := cmd.Annotations[manualMigrations] != ""
	if !manual {
		if err := database.RunMigrations(cfg.Database.Path); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.db = db
	if !manual {
		if err := database.SeedDefaults(ctx, db, formats.Buckets); err != nil {
			return fmt.Errorf("seed categories: %w", err)
		}
	}

	mappings, err := formats.LoadMappings(cfg.Import.FormatsFile)
	if err != nil {
		return err
	}
	sessions := repository.NewSessionRepo(db)
	a.accounts = repository.NewAccountRepo(db)
	a.categories = repository.NewCategoryRepo(db)
	a.transactions = repository.NewTransactionRepo(db)
	a.rules = repository.NewMerchantRuleRepo(db)
	a.imports = &service.ImportService{
		Store:      sessions,
		Registry:   formats.NewRegistry(mappings),
		Categories: a.categories,
		Enricher:   &service.RuleEnricher{Transactions: a.transactions, Rules: a.rules},
		Limits: service.Limits{
			MaxFiles:        cfg.Import.MaxFiles,
			MaxBytes:        cfg.Import.MaxBytes,
			PreviewTTL:      cfg.Import.PreviewTTL,
			PreviewCapacity: cfg.Import.PreviewCapacity,
			SampleRows:      cfg.Import.SampleRows,
		},
	}
	a.maintenance = &service.MaintenanceService{DB: db, Sessions: sessions}
	log.Debug().Str("db", cfg.Database.Path).Strs("mappings", mappings.Names()).Msg("ready")
	return nil
}

func (a *app) close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}
