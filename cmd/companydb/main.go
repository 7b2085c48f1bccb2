package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltyorg/companydb/internal/config"
	"github.com/saltyorg/companydb/internal/database"
	"github.com/saltyorg/companydb/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLI flags
var (
	dbPath     string
	configFile string
	verbosity  int
)

// app holds what the subcommands share once the root pre-run has loaded
// configuration and logging.
type app struct {
	cfg *config.Config
	db  *database.Manager
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "companydb",
		Short: "Companydb - SQLite company database manager",
		Long: `Companydb manages a SQLite database of departments and employees: schema
migrations, queries, transactional writes, statistics, backups and scheduled maintenance.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.db != nil {
				a.db.Disconnect()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "SQLite database path (or set COMPANYDB_DATABASE_PATH)")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default ./companydb.yaml if present)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")

	rootCmd.AddCommand(
		a.initCmd(),
		a.queryCmd(),
		a.execCmd(),
		a.txCmd(),
		a.schemaCmd(),
		a.tablesCmd(),
		a.statsCmd(),
		a.planCmd(),
		a.summaryCmd(),
		a.backupCmd(),
		a.maintainCmd(),
	)

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:               "version",
		Short:             "Show version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "companydb %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	return rootCmd
}

// setup loads configuration, applies flag overrides and logging, and creates
// the session manager. The database is opened lazily by the first operation.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	cfg.Log.Level = logging.LevelForVerbosity(verbosity, cfg.Log.Level)

	logging.Apply(cfg.Log, cfg.Database.Path)

	log.Debug().
		Str("version", version).
		Str("command", cmd.Name()).
		Str("database", cfg.Database.Path).
		Str("config", cfg.FileUsed()).
		Msg("Starting companydb")

	a.cfg = cfg
	a.db = database.New(database.Config{
		Path:        cfg.Database.Path,
		BusyTimeout: cfg.Database.BusyTimeout,
		AutoMigrate: cfg.Database.AutoMigrate,
	})

	return nil
}
