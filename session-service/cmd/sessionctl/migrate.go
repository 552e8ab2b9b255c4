package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	sharedDatabase "mestrai-server/shared/database"
)

func newMigrateCmd(flags *storeFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply embedded PostgreSQL migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.dsn == "" {
				return fmt.Errorf("--dsn is required")
			}
			version, err := sharedDatabase.RunMigrations(flags.dsn, zap.NewNop())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return err
		},
	}
}
