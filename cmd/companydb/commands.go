package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltyorg/companydb/internal/config"
	"github.com/saltyorg/companydb/internal/database"
	"github.com/saltyorg/companydb/internal/logging"
	"github.com/saltyorg/companydb/internal/maintenance"
)

func (a *app) initCmd() *cobra.Command {
	var seed bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create or upgrade the schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.db.Connect(); err != nil {
				return err
			}
			if !a.cfg.Database.AutoMigrate {
				if err := a.db.Migrate(); err != nil {
					return err
				}
			}
			if seed {
				if err := a.db.SeedSampleData(); err != nil {
					return err
				}
			}

			v, err := a.db.SchemaVersion()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s at schema version %d\n", a.db.Path(), v)
			return nil
		},
	}

	cmd.Flags().BoolVar(&seed, "seed", false, "Load the sample departments and employees")
	return cmd
}

func (a *app) queryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query SQL [ARG...]",
		Short: "Run a read statement and print the rows as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := a.db.Query(args[0], parseArgs(args[1:])...)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rows)
		},
	}
}

func (a *app) execCmd() *cobra.Command {
	var batch []string

	cmd := &cobra.Command{
		Use:   "exec SQL [ARG...]",
		Short: "Run a write statement in its own transaction",
		Long: `Run a write statement in its own transaction. With --batch, the statement runs
once per comma-separated parameter set, all in a single transaction.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				n   int64
				err error
			)
			if len(batch) > 0 {
				if len(args) > 1 {
					return fmt.Errorf("--batch cannot be combined with positional arguments")
				}
				n, err = a.db.MutateMany(args[0], parseBatch(batch))
			} else {
				n, err = a.db.Mutate(args[0], parseArgs(args[1:])...)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s rows affected\n", humanize.Comma(n))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&batch, "batch", nil, "Parameter set for one execution, comma separated (repeatable)")
	return cmd
}

func (a *app) txCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tx SQL [SQL...]",
		Short: "Run several parameterless statements atomically",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops := make([]database.Operation, 0, len(args))
			for _, stmt := range args {
				ops = append(ops, database.Exec(stmt))
			}

			if _, err := a.db.ExecuteTransaction(ops); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "committed %d statements\n", len(ops))
			return nil
		},
	}
}

func (a *app) schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema TABLE",
		Short: "Print a table's columns as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := a.db.TableSchema(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), schema)
		},
	}
}

func (a *app) tablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List user tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, err := a.db.Tables()
			if err != nil {
				return err
			}
			for _, t := range tables {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
}

func (a *app) statsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show tables, row counts and database size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := a.db.Stats()
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			return writeStats(cmd.OutOrStdout(), a.db.Path(), stats)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func (a *app) planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan SQL [ARG...]",
		Short: "Show SQLite's query plan for a statement",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := a.db.QueryPlan(args[0], parseArgs(args[1:])...)
			if err != nil {
				return err
			}
			writePlan(cmd.OutOrStdout(), steps)
			return nil
		},
	}
}

func (a *app) summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Rebuild the department_summary table and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := a.db.RefreshDepartmentSummary()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rows)
		},
	}
}

func (a *app) backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup DEST",
		Short: "Write a consistent copy of the database to DEST",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.db.Backup(args[0]); err != nil {
				return err
			}

			info, err := os.Stat(args[0])
			if err != nil {
				return fmt.Errorf("failed to stat backup: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backed up to %s (%s)\n", args[0], humanize.Bytes(uint64(info.Size())))
			return nil
		},
	}
}

func (a *app) maintainCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Run scheduled optimize and backup jobs",
		Long: `Run the maintenance scheduler until interrupted. Each run optimizes the database,
writes a timestamped backup into maintenance.backup_dir and prunes old backups.
Changes to the config file are picked up without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scheduler := maintenance.New(a.db, a.cfg.Maintenance)

			if once {
				result, err := scheduler.RunOnce()
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), result)
			}

			if err := a.db.Connect(); err != nil {
				return err
			}
			if err := scheduler.Start(); err != nil {
				return err
			}
			defer scheduler.Stop()

			log.Info().Time("next_run", scheduler.NextRun()).Msg("Waiting for next maintenance run")

			a.cfg.Watch(func(next *config.Config) {
				logging.SetLevel(logging.LevelForVerbosity(verbosity, next.Log.Level))
				if err := scheduler.UpdateConfig(next.Maintenance); err != nil {
					log.Error().Err(err).Msg("Keeping previous maintenance schedule")
				}
			})

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			<-ctx.Done()
			log.Info().Msg("Received shutdown signal")
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Run maintenance once and exit")
	return cmd
}
