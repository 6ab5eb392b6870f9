package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var sweepAt string

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Close every active auction whose end time has passed",
	Long: `sweep runs the same expiry pass as the API's background sweeper once and exits.
Winners are taken from each auction's highest bid. Running it twice is harmless.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		now := time.Now().UTC()
		if sweepAt != "" {
			t, err := time.Parse(time.RFC3339, sweepAt)
			if err != nil {
				return fmt.Errorf("--at: %w", err)
			}
			now = t.UTC()
		}
		gdb, err := connect()
		if err != nil {
			return err
		}
		n, err := ledger(gdb).CloseExpired(cmd.Context(), now)
		if err != nil {
			return fmt.Errorf("sweep (closed %d before failing): %w", n, err)
		}
		if jsonOutput {
			fmt.Fprintf(cmd.OutOrStdout(), "{\"closed\":%d,\"at\":%q}\n", n, now.Format(time.RFC3339))
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "closed %d expired auctions as of %s\n", n, now.Format(time.RFC3339))
		return nil
	},
}

func init() {
	sweepCmd.Flags().StringVar(&sweepAt, "at", "", "Treat this RFC3339 time as now")
}
