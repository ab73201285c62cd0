package view

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/scanhud/scanhud/internal/api"
)

// GalleryRenderer writes the card view: one block per result with the
// detail the table omits, colored by status class and risk.
type GalleryRenderer struct {
	out     io.Writer
	adapter *Adapter
}

// NewGalleryRenderer creates a renderer writing to out.
func NewGalleryRenderer(out io.Writer, adapter *Adapter) *GalleryRenderer {
	return &GalleryRenderer{out: out, adapter: adapter}
}

// Render writes one card per result. filtered selects the empty state
// wording when the window has no rows.
func (g *GalleryRenderer) Render(results []api.Result, filtered bool) {
	if len(results) == 0 {
		fmt.Fprintln(g.out, EmptyState(filtered))
		return
	}

	for i, card := range g.adapter.Cards(results) {
		if i > 0 {
			fmt.Fprintln(g.out)
		}
		g.renderCard(card)
	}
}

func (g *GalleryRenderer) renderCard(card Card) {
	header := color.New(color.Bold).Sprint(card.Address)
	fmt.Fprintf(g.out, "%s  [%s]  %s\n",
		header, ColorStatus(card.Status, card.StatusClass), ColorRisk(card.Risk))

	fmt.Fprintf(g.out, "  Title:  %s\n", card.Title)

	fmt.Fprintf(g.out, "  Server: %s", card.Server)
	if card.Hostname != Placeholder {
		fmt.Fprintf(g.out, "  Host: %s", card.Hostname)
	}
	if card.Country != Placeholder {
		fmt.Fprintf(g.out, "  Country: %s", card.Country)
	}
	fmt.Fprintln(g.out)

	if card.SSLIssuer != Placeholder {
		fmt.Fprintf(g.out, "  TLS:    %s (expires %s)\n", card.SSLIssuer, card.SSLExpiry)
	}
	if len(card.Technologies) > 0 {
		fmt.Fprintf(g.out, "  Tech:   %s\n", strings.Join(card.Technologies, ", "))
	}
	for _, finding := range card.Findings {
		fmt.Fprintf(g.out, "  ! %s %s: %s\n",
			ColorRisk(finding.Risk), finding.Name, finding.Description)
	}
	if card.ScreenshotURL != "" {
		fmt.Fprintf(g.out, "  Shot:   %s\n", card.ScreenshotURL)
	}

	fmt.Fprintf(g.out, "  Seen:   %s  (#%s)\n", card.ScannedAt, card.ID)
}

// ColorStatus colors a status code by its class.
func ColorStatus(status, class string) string {
	switch class {
	case "2xx":
		return color.New(color.FgGreen).Sprint(status)
	case "3xx":
		return color.New(color.FgCyan).Sprint(status)
	case "4xx":
		return color.New(color.FgYellow).Sprint(status)
	case "5xx":
		return color.New(color.FgRed).Sprint(status)
	default:
		return status
	}
}

// ColorRisk colors a risk label by severity, uppercased for emphasis.
func ColorRisk(risk string) string {
	switch risk {
	case api.RiskCritical:
		return color.New(color.FgRed, color.Bold).Sprint("CRITICAL")
	case api.RiskHigh:
		return color.New(color.FgRed).Sprint("HIGH")
	case api.RiskMedium:
		return color.New(color.FgYellow).Sprint("MEDIUM")
	case api.RiskLow:
		return color.New(color.FgCyan).Sprint("LOW")
	case api.RiskInfo:
		return color.New(color.FgWhite).Sprint("INFO")
	default:
		return risk
	}
}
