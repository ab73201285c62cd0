package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/scanhud/scanhud/internal/api"
	"github.com/scanhud/scanhud/internal/view"
)

var (
	scanPorts       string
	scanScreenshots bool
	scanVulnCheck   bool
	scanRegex       string
	scanSubdomains  bool
)

// scanCmd groups scan session control.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Control the server's scan session",
	Long: `Start, stop and inspect the scan session on the server. A random
sweep probes addresses at random; a target scan walks an explicit list
of hosts, IPs or CIDR blocks. Only one session runs at a time.`,
}

var scanStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a random sweep",
	Example: `  scanhud scan start
  scanhud scan start --ports 80,443 --screenshots=false
  scanhud scan start --ports 8080,8443 --search-regex "admin"`,
	RunE: runScanStart,
}

var scanTargetCmd = &cobra.Command{
	Use:   "target <targets...>",
	Short: "Scan an explicit target list",
	Long: `Scan specific targets. Targets may be hostnames, IP addresses or
CIDR blocks, given as separate arguments or comma separated.`,
	Example: `  scanhud scan target 192.168.1.0/28
  scanhud scan target example.com 203.0.113.7 --ports 443 --subdomains`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScanTarget,
}

var scanStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running scan",
	Long:  `Stop the running scan. Stopping an idle scanner is not an error.`,
	RunE:  runScanStop,
}

var scanStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current scan session",
	RunE:  runScanStatus,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.AddCommand(scanStartCmd, scanTargetCmd, scanStopCmd, scanStatusCmd)

	for _, cmd := range []*cobra.Command{scanStartCmd, scanTargetCmd} {
		cmd.Flags().StringVar(&scanPorts, "ports", "80,443", "comma separated ports to probe")
		cmd.Flags().BoolVar(&scanScreenshots, "screenshots", true, "capture screenshots of responding services")
		cmd.Flags().BoolVar(&scanVulnCheck, "vuln-check", true, "run vulnerability checks on responses")
		cmd.Flags().StringVar(&scanRegex, "search-regex", "", "only keep results whose body matches this pattern")
	}
	scanTargetCmd.Flags().BoolVar(&scanSubdomains, "subdomains", false, "also enumerate subdomains of hostname targets")
}

func runScanStart(cmd *cobra.Command, args []string) error {
	ports, err := parsePorts(scanPorts)
	if err != nil {
		return err
	}

	client, _, err := newClient()
	if err != nil {
		return err
	}

	resp, err := client.StartScan(context.Background(), api.StartScanRequest{
		Ports:           ports,
		TakeScreenshots: scanScreenshots,
		RunVulnCheck:    scanVulnCheck,
		SearchRegex:     scanRegex,
	})
	if err != nil {
		return err
	}

	fmt.Printf("%s mode=%s ports=%v\n",
		color.New(color.FgGreen).Sprint("Scan started:"), resp.Mode, resp.Ports)
	return nil
}

func runScanTarget(cmd *cobra.Command, args []string) error {
	targets := strings.Join(args, ", ")
	ports, err := parsePorts(scanPorts)
	if err != nil {
		return err
	}

	client, _, err := newClient()
	if err != nil {
		return err
	}

	resp, err := client.StartTargetScan(context.Background(), api.TargetScanRequest{
		Targets:         targets,
		Ports:           ports,
		TakeScreenshots: scanScreenshots,
		RunVulnCheck:    scanVulnCheck,
		SearchRegex:     scanRegex,
		Subdomains:      scanSubdomains,
	})
	if err != nil {
		return err
	}

	fmt.Printf("%s mode=%s targets=%d probes=%d\n",
		color.New(color.FgGreen).Sprint("Scan started:"), resp.Mode, resp.TargetCount, resp.TotalScans)
	return nil
}

func runScanStop(cmd *cobra.Command, args []string) error {
	client, _, err := newClient()
	if err != nil {
		return err
	}

	if _, err := client.StopScan(context.Background()); err != nil {
		return err
	}
	fmt.Println(color.New(color.FgYellow).Sprint("Scan stopped"))
	return nil
}

func runScanStatus(cmd *cobra.Command, args []string) error {
	client, _, err := newClient()
	if err != nil {
		return err
	}

	status, err := client.Status(context.Background())
	if err != nil {
		return err
	}

	printScanStatus(status)
	return nil
}

// printScanStatus writes the session block shared by the status
// commands.
func printScanStatus(status *api.ScanStatus) {
	state := color.New(color.Faint).Sprint("IDLE")
	if status.Running {
		state = color.New(color.FgGreen, color.Bold).Sprint("SCANNING")
	}
	fmt.Printf("%s mode=%s\n", state, status.Mode)
	fmt.Printf("  scanned: %d  found: %d  rate: %.1f/s\n",
		status.TotalScanned, status.TotalFound, status.CurrentRate)
	if status.ElapsedSeconds != nil {
		elapsed := time.Duration(*status.ElapsedSeconds) * time.Second
		fmt.Printf("  elapsed: %s\n", view.FormatElapsed(elapsed))
	}
	if status.TargetTotal > 0 {
		fmt.Printf("  targets: %d/%d\n", status.TargetDone, status.TargetTotal)
	}
}
