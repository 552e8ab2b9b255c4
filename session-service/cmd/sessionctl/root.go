package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	sharedDatabase "mestrai-server/shared/database"
	"mestrai-server/shared/interfaces"
)

// storeFlags - откуда читать журнал.
type storeFlags struct {
	dsn        string
	sqlitePath string
}

func newRootCmd() *cobra.Command {
	flags := &storeFlags{}
	root := &cobra.Command{
		Use:           "sessionctl",
		Short:         "Operator tool for campaign sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
			if flags.dsn == "" {
				flags.dsn = os.Getenv("SESSION_DB_DSN")
			}
		},
	}
	root.PersistentFlags().StringVar(&flags.dsn, "dsn", "", "PostgreSQL DSN (default: $SESSION_DB_DSN)")
	root.PersistentFlags().StringVar(&flags.sqlitePath, "sqlite", "", "SQLite event log file (takes precedence over --dsn)")

	root.AddCommand(
		newReplayCmd(flags),
		newRollCmd(),
		newNormalizeCmd(),
		newMigrateCmd(flags),
	)
	return root
}

// sessionStore - журнал и, для PostgreSQL, персонажи.
type sessionStore struct {
	events     interfaces.SessionEventLog
	characters interfaces.CharacterRepository
	close      func()
}

func (f *storeFlags) open(ctx context.Context) (*sessionStore, error) {
	logger := zap.NewNop()
	if f.sqlitePath != "" {
		repo, err := sharedDatabase.OpenSqliteSessionEventRepository(ctx, f.sqlitePath, logger)
		if err != nil {
			return nil, err
		}
		return &sessionStore{events: repo, close: func() { _ = repo.Close() }}, nil
	}
	if f.dsn == "" {
		return nil, fmt.Errorf("either --sqlite or --dsn is required")
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(connectCtx, f.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &sessionStore{
		events:     sharedDatabase.NewPgSessionEventRepository(pool, logger),
		characters: sharedDatabase.NewPgCharacterRepository(pool, logger),
		close:      pool.Close,
	}, nil
}
