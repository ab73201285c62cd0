package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// statusCmd is the one-shot overview: session state plus the aggregate
// tables, without starting the live dashboard.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show scan session and aggregate statistics",
	Long: `Show the current scan session followed by the aggregate statistics
over all stored results. Equivalent to scan status and stats combined.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, _, err := newClient()
	if err != nil {
		return err
	}

	ctx := context.Background()
	status, err := client.Status(ctx)
	if err != nil {
		return err
	}
	stats, err := client.Stats(ctx)
	if err != nil {
		return err
	}

	printScanStatus(status)
	fmt.Println()
	renderStats(stats)
	return nil
}
