package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scanhud/scanhud/internal/api"
	"github.com/scanhud/scanhud/internal/view"
)

var (
	resultsSearch  string
	resultsStatus  string
	resultsRisk    string
	resultsPage    int
	resultsLimit   int
	resultsGallery bool
	clearYes       bool
)

// resultsCmd lists stored results one page at a time.
var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "List stored scan results",
	Long: `Fetch one page of stored results from the server. Filters narrow by
status class (2xx, 3xx, 4xx, 5xx) or risk (has_vuln, critical, high,
medium, low); search matches addresses, titles, servers and headers.`,
	Example: `  scanhud results
  scanhud results --search nginx --status 2xx
  scanhud results --risk critical --gallery
  scanhud results --page 3 --limit 20`,
	RunE: runResults,
}

var resultsShowCmd = &cobra.Command{
	Use:     "show <id>",
	Short:   "Show one result in full",
	Args:    cobra.ExactArgs(1),
	Example: `  scanhud results show 42`,
	RunE:    runResultsShow,
}

var resultsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all stored results on the server",
	RunE:  runResultsClear,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
	resultsCmd.AddCommand(resultsShowCmd, resultsClearCmd)

	addFilterFlags(resultsCmd.Flags(), &resultsSearch, &resultsStatus, &resultsRisk)
	resultsCmd.Flags().IntVar(&resultsPage, "page", 1, "page number")
	resultsCmd.Flags().IntVar(&resultsLimit, "limit", 0, "page size (overrides config)")
	resultsCmd.Flags().BoolVar(&resultsGallery, "gallery", false, "render cards instead of a table")

	resultsClearCmd.Flags().BoolVar(&clearYes, "yes", false, "skip the confirmation prompt")
}

func runResults(cmd *cobra.Command, args []string) error {
	if err := validateFilterFlags(resultsStatus, resultsRisk); err != nil {
		return err
	}
	if resultsPage < 1 {
		resultsPage = 1
	}

	client, cfg, err := newClient()
	if err != nil {
		return err
	}
	limit := cfg.View.PageSize
	if resultsLimit > 0 {
		limit = resultsLimit
	}

	snapshot, err := client.Results(context.Background(), api.ResultsParams{
		Search:       resultsSearch,
		StatusFilter: resultsStatus,
		RiskFilter:   resultsRisk,
		Limit:        limit,
		Offset:       (resultsPage - 1) * limit,
	})
	if err != nil {
		return err
	}

	filtered := resultsSearch != "" || resultsStatus != "" || resultsRisk != "" || resultsPage > 1
	adapter := view.NewAdapter(cfg.View.MaxFieldWidth, cfg.Server.URL)
	if resultsGallery {
		view.NewGalleryRenderer(os.Stdout, adapter).Render(snapshot.Results, filtered)
	} else {
		view.NewTableRenderer(os.Stdout, adapter).Render(snapshot.Results, filtered)
	}

	if len(snapshot.Results) > 0 {
		fmt.Printf("\npage %d, %d result(s)\n", resultsPage, len(snapshot.Results))
	}
	return nil
}

func runResultsShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid result id %q", args[0])
	}

	client, cfg, err := newClient()
	if err != nil {
		return err
	}

	result, err := client.ResultByID(context.Background(), id)
	if err != nil {
		return err
	}

	adapter := view.NewAdapter(cfg.View.MaxFieldWidth, cfg.Server.URL)
	view.NewGalleryRenderer(os.Stdout, adapter).Render([]api.Result{*result}, true)

	if headers := result.HeaderMap(); len(headers) > 0 {
		fmt.Println("\nHeaders:")
		keys := make([]string, 0, len(headers))
		for k := range headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s: %s\n", view.Field(k, 0), view.Field(headers[k], cfg.View.MaxFieldWidth))
		}
	}
	return nil
}

func runResultsClear(cmd *cobra.Command, args []string) error {
	if !clearYes {
		fmt.Print("Delete ALL stored results on the server? [y/N] ")
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if !strings.EqualFold(strings.TrimSpace(answer), "y") {
			fmt.Println("Aborted")
			return nil
		}
	}

	client, _, err := newClient()
	if err != nil {
		return err
	}
	if _, err := client.ClearResults(context.Background()); err != nil {
		return err
	}
	fmt.Println("Results cleared")
	return nil
}
