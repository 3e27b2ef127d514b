package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"madcrm/api/internal/app"
	"madcrm/api/internal/hrsync"
	"madcrm/api/internal/metrics"
	"madcrm/api/internal/store"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateDownCmd())
	return cmd
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			applied, err := store.ApplyMigrations(cmd.Context(), rt.db, rt.cfg.MigrationsDir)
			for _, version := range applied {
				color.Green("  applied  %s", version)
			}
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Println("Database is up to date.")
			}
			return nil
		},
	}
}

func migrateDownCmd() *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the newest migrations",
		Long: `Runs the .down.sql file of the newest applied migrations, newest first.
--steps 0 rolls back everything.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			rolledBack, err := store.RollbackMigrations(cmd.Context(), rt.db, rt.cfg.MigrationsDir, steps)
			for _, version := range rolledBack {
				color.Yellow("  reverted %s", version)
			}
			if err != nil {
				return err
			}
			if len(rolledBack) == 0 {
				fmt.Println("Nothing to roll back.")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}

func syncUsersCmd() *cobra.Command {
	var (
		since       string
		stopOnError bool
	)

	cmd := &cobra.Command{
		Use:   "sync-users",
		Short: "Pull users from the HR system once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := hrsync.Options{StopOnError: stopOnError}
			if since != "" {
				t, err := parseSince(since)
				if err != nil {
					return err
				}
				opts.Since = &t
			}

			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			client, err := hrsync.NewClient(rt.cfg.HasuraEndpoint, rt.cfg.HasuraToken, rt.log.Named("hrsync"))
			if err != nil {
				return err
			}
			syncer := hrsync.NewSyncer(client, rt.pg, metrics.New(), rt.log.Named("hrsync"))
			stats, err := syncer.Run(cmd.Context(), opts)
			printSyncStats(stats)
			return err
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "only sync users updated after this date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().BoolVar(&stopOnError, "stop-on-error", false, "abort on the first failing user")
	return cmd
}

func parseSince(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --since %q: use YYYY-MM-DD or RFC3339", raw)
}

func printSyncStats(stats hrsync.Stats) {
	bold := color.New(color.Bold)
	bold.Printf("User sync: %d users\n", stats.Total)
	color.Green("  created  %d", stats.Created)
	color.Cyan("  updated  %d", stats.Updated)
	fmt.Printf("  skipped  %d\n", stats.Skipped)
	if stats.Errors > 0 {
		color.Red("  errors   %d", stats.Errors)
	}
}

func seedStatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-states",
		Short: "Insert the Indian states and union territories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			inserted, err := rt.pg.InsertStates(cmd.Context(), app.IndianStates)
			if err != nil {
				return err
			}
			color.Green("Inserted %d of %d states.", inserted, len(app.IndianStates))
			return nil
		},
	}
}
