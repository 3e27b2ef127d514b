package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"madcrm/api/internal/config"
	"madcrm/api/internal/logging"
	"madcrm/api/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "api",
		Short: "MAD CRM API server and maintenance commands",
		Long: `Runs the CRM HTTP API. Without a subcommand the server is started.

Configuration is read from the environment; a .env file in the working
directory is applied first.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(syncUsersCmd())
	root.AddCommand(seedStatesCmd())
	return root
}

// runtime holds what every command needs before doing its own work.
type runtime struct {
	cfg config.Config
	log *zap.Logger
	db  *sql.DB
	pg  *store.PostgresStore
}

func openRuntime(ctx context.Context) (*runtime, error) {
	cfg := config.Load()
	log, err := logging.New(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	db, err := store.Open(ctx, cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	if err != nil {
		_ = log.Sync()
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	return &runtime{cfg: cfg, log: log, db: db, pg: store.NewPostgresStore(db)}, nil
}

func (r *runtime) Close() {
	_ = r.db.Close()
	_ = r.log.Sync()
}
