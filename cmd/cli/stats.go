package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/scanhud/scanhud/internal/api"
	"github.com/scanhud/scanhud/internal/view"
)

// statsCmd summarizes the stored result table.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate scan statistics",
	Long: `Show aggregate statistics over all stored results: totals, status
class distribution, the most common server software and vulnerability
findings by severity.`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	client, _, err := newClient()
	if err != nil {
		return err
	}

	stats, err := client.Stats(context.Background())
	if err != nil {
		return err
	}

	renderStats(stats)
	return nil
}

// renderStats writes the aggregate tables shared by stats and status.
func renderStats(stats *api.Stats) {
	fmt.Printf("Total scans: %d    Avg response: %.1f ms\n\n",
		stats.TotalScans, stats.AvgResponseMS)

	fmt.Println(color.New(color.Bold).Sprint("Status classes"))
	statusTable := tablewriter.NewWriter(os.Stdout)
	statusTable.Header("Class", "Count")
	for _, class := range []string{"2xx", "3xx", "4xx", "5xx"} {
		_ = statusTable.Append([]string{
			view.ColorStatus(class, class),
			strconv.FormatInt(stats.StatusCounts[class], 10),
		})
	}
	_ = statusTable.Render()

	if len(stats.ServerStats) > 0 {
		fmt.Println()
		fmt.Println(color.New(color.Bold).Sprint("Top servers"))
		serverTable := tablewriter.NewWriter(os.Stdout)
		serverTable.Header("Server", "Count")
		for _, server := range stats.ServerStats {
			_ = serverTable.Append([]string{server.Name, strconv.FormatInt(server.Count, 10)})
		}
		_ = serverTable.Render()
	}

	fmt.Println()
	fmt.Println(color.New(color.Bold).Sprint("Findings"))
	vulnTable := tablewriter.NewWriter(os.Stdout)
	vulnTable.Header("Severity", "Count")
	_ = vulnTable.Append([]string{view.ColorRisk(api.RiskCritical), strconv.FormatInt(stats.VulnStats.Critical, 10)})
	_ = vulnTable.Append([]string{view.ColorRisk(api.RiskHigh), strconv.FormatInt(stats.VulnStats.High, 10)})
	_ = vulnTable.Append([]string{view.ColorRisk(api.RiskMedium), strconv.FormatInt(stats.VulnStats.Medium, 10)})
	_ = vulnTable.Append([]string{view.ColorRisk(api.RiskLow), strconv.FormatInt(stats.VulnStats.Low, 10)})
	_ = vulnTable.Render()
	fmt.Printf("total findings: %d\n", stats.VulnStats.TotalFindings)
}
