package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/scanhud/scanhud/internal/api"
)

var (
	exportSearch string
	exportStatus string
	exportRisk   string
	exportOutput string
)

// exportCmd downloads a filtered export, or just prints the address so
// it can be handed to curl or a browser.
var exportCmd = &cobra.Command{
	Use:   "export <csv|json|pdf>",
	Short: "Export scan results",
	Long: `Export stored scan results in the given format. The same filters
the results command accepts narrow the export. Without --output the
download address is printed instead of fetching the document.`,
	Example: `  # Print the export address for all results
  scanhud export csv

  # Download findings on 5xx hosts to a file
  scanhud export json --status 5xx --output errors.json

  # PDF report of everything matching a search
  scanhud export pdf --search nginx --output nginx.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	addFilterFlags(exportCmd.Flags(), &exportSearch, &exportStatus, &exportRisk)
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write the export to this file")
}

func runExport(cmd *cobra.Command, args []string) error {
	format := strings.ToLower(args[0])
	if !api.ValidExportFormat(format) {
		return fmt.Errorf("unsupported format %q (want csv, json or pdf)", args[0])
	}
	if err := validateFilterFlags(exportStatus, exportRisk); err != nil {
		return err
	}

	client, _, err := newClient()
	if err != nil {
		return err
	}

	params := api.ResultsParams{
		Search:       exportSearch,
		StatusFilter: exportStatus,
		RiskFilter:   exportRisk,
	}

	if exportOutput == "" {
		exportURL, err := client.ExportURL(format, params)
		if err != nil {
			return err
		}
		fmt.Println(exportURL)
		return nil
	}

	body, filename, err := client.Download(context.Background(), format, params)
	if err != nil {
		return err
	}

	if err := os.WriteFile(exportOutput, body, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", exportOutput, err)
	}

	fmt.Printf("%s %s (%d bytes, server name %s)\n",
		color.GreenString("Saved"), exportOutput, len(body), filename)
	return nil
}
