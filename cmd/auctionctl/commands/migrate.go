package commands

import (
	"fmt"

	"github.com/shinyyama/auction-backend/internal/db"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the auction tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		gdb, err := connect()
		if err != nil {
			return err
		}
		if err := db.Migrate(gdb); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
		return nil
	},
}
