package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"telos_booking/internal/adapters/observability"
	"telos_booking/internal/shared"
	mysqlrepo "telos_booking/internal/storage/mysql"
)

var cfgFile string

// env is what every subcommand needs; built lazily so --help works offline.
type env struct {
	cfg  shared.Config
	db   *sql.DB
	repo *mysqlrepo.Repo
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "telosctl",
		Short:         "Maintenance jobs for the telos directory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (overrides CONFIG_FILE)")

	cmd.AddCommand(newMigrateCmd(), newSeedCmd(), newEnrichCmd(), newGeocodeCmd())
	return cmd
}

func openEnv(ctx context.Context) (*env, error) {
	cfg := shared.LoadFile(cfgFile)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return &env{cfg: cfg, db: db, repo: mysqlrepo.New(db)}, nil
}

func (e *env) Close() {
	if err := e.db.Close(); err != nil {
		log.Warn().Err(err).Msg("db close failed")
	}
}
