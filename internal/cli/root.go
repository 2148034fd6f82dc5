// Package cli wires configuration, storage and the services into the
// chipledger command tree.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/susu3304/chipledger/internal/bot"
	"github.com/susu3304/chipledger/internal/config"
	"github.com/susu3304/chipledger/internal/db"
	"github.com/susu3304/chipledger/internal/db/sqlite"
	"github.com/susu3304/chipledger/internal/ledger"
	"github.com/susu3304/chipledger/internal/logging"
	"github.com/susu3304/chipledger/internal/settlement"
)

var rootCmd = &cobra.Command{
	Use:           "chipledger",
	Short:         "Poker session ledger and group debt settlement",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// store is what both backends provide.
type store interface {
	ledger.Store
	settlement.Store
	bot.DigestStore
	UpsertDigest(ctx context.Context, groupID uuid.UUID, channelID string, intervalMinutes int, nextDueAt *time.Time) error
	RunMigrations(ctx context.Context) error
	Close() error
}

var (
	_ store = (*db.DB)(nil)
	_ store = (*sqlite.Store)(nil)
)

func openStore(ctx context.Context, cfg *config.Config) (store, error) {
	backend, dsn, err := cfg.Store()
	if err != nil {
		return nil, err
	}
	switch backend {
	case config.BackendPostgres:
		return db.New(ctx, dsn, cfg.DBMaxConns)
	default:
		return sqlite.Open(dsn)
	}
}

// setup loads config, builds the logger and opens a migrated store.
func setup(ctx context.Context) (*config.Config, *zap.Logger, store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, nil, err
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := st.RunMigrations(ctx); err != nil {
		_ = st.Close()
		return nil, nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return cfg, log, st, nil
}
