package view

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/scanhud/scanhud/internal/api"
)

// TableRenderer writes the table view: one row per result, compact
// columns, no color so widths stay honest.
type TableRenderer struct {
	out     io.Writer
	adapter *Adapter
}

// NewTableRenderer creates a renderer writing to out.
func NewTableRenderer(out io.Writer, adapter *Adapter) *TableRenderer {
	return &TableRenderer{out: out, adapter: adapter}
}

// Render writes one table for the window. filtered selects the empty
// state wording when the window has no rows.
func (t *TableRenderer) Render(results []api.Result, filtered bool) {
	if len(results) == 0 {
		fmt.Fprintln(t.out, EmptyState(filtered))
		return
	}

	table := tablewriter.NewWriter(t.out)
	table.Header("ID", "Address", "Status", "Title", "Server", "CC",
		"Risk", "Vulns", "RT(ms)", "Scanned")

	for _, row := range t.adapter.Rows(results) {
		_ = table.Append([]string{
			row.ID,
			row.Address,
			row.Status,
			row.Title,
			row.Server,
			row.Country,
			row.Risk,
			row.Vulns,
			row.ResponseMS,
			row.ScannedAt,
		})
	}

	_ = table.Render()
}
