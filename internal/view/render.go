package view

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/scanhud/scanhud/internal/api"
	"github.com/scanhud/scanhud/internal/errors"
)

// Mode selects the render shape. It never affects window contents,
// only how they are mapped.
type Mode string

const (
	ModeTable   Mode = "table"
	ModeGallery Mode = "gallery"
)

// ParseMode validates a mode name from config or user input.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeTable:
		return ModeTable, nil
	case ModeGallery:
		return ModeGallery, nil
	default:
		return "", errors.NewRequestError(errors.CodeValidation,
			fmt.Sprintf("unknown view mode: %q", s))
	}
}

// Toggle returns the other mode.
func (m Mode) Toggle() Mode {
	if m == ModeTable {
		return ModeGallery
	}
	return ModeTable
}

// Row is one result mapped for the table view. Every field is display
// ready: sanitized, truncated and placeholder substituted.
type Row struct {
	ID          string
	Address     string
	Status      string
	StatusClass string
	Title       string
	Server      string
	Country     string
	Risk        string
	Vulns       string
	ResponseMS  string
	ScannedAt   string
}

// Card is one result mapped for the gallery view, carrying the richer
// per-result detail the table omits.
type Card struct {
	ID            string
	Address       string
	Status        string
	StatusClass   string
	Title         string
	Server        string
	Hostname      string
	Country       string
	Risk          string
	Findings      []FindingLine
	Technologies  []string
	SSLIssuer     string
	SSLExpiry     string
	ScreenshotURL string
	ScannedAt     string
}

// FindingLine is one vulnerability finding prepared for display.
type FindingLine struct {
	Name        string
	Risk        string
	Description string
}

// Adapter maps results to render data. It holds only configuration,
// no mutable state.
type Adapter struct {
	maxFieldWidth int
	baseURL       string
}

// NewAdapter creates an adapter. maxFieldWidth bounds free text
// columns; baseURL roots screenshot links.
func NewAdapter(maxFieldWidth int, baseURL string) *Adapter {
	return &Adapter{
		maxFieldWidth: maxFieldWidth,
		baseURL:       strings.TrimRight(baseURL, "/"),
	}
}

// Row maps one result for the table view.
func (a *Adapter) Row(r *api.Result) Row {
	return Row{
		ID:          strconv.FormatInt(r.ID, 10),
		Address:     Field(r.URL(), 0),
		Status:      statusText(r.StatusCode),
		StatusClass: StatusClass(r.StatusCode),
		Title:       Field(r.Title, a.maxFieldWidth),
		Server:      Field(r.Server, a.maxFieldWidth),
		Country:     Field(r.CountryCode, a.maxFieldWidth),
		Risk:        riskText(r),
		Vulns:       strconv.Itoa(r.VulnCount),
		ResponseMS:  responseText(r.ResponseTimeMS),
		ScannedAt:   Field(r.ScannedAt, a.maxFieldWidth),
	}
}

// Rows maps a window for the table view, preserving order.
func (a *Adapter) Rows(results []api.Result) []Row {
	rows := make([]Row, len(results))
	for i := range results {
		rows[i] = a.Row(&results[i])
	}
	return rows
}

// Card maps one result for the gallery view.
func (a *Adapter) Card(r *api.Result) Card {
	findings := r.Findings()
	lines := make([]FindingLine, 0, len(findings))
	for _, f := range findings {
		lines = append(lines, FindingLine{
			Name:        Field(f.Name, a.maxFieldWidth),
			Risk:        normalizeRisk(f.Risk),
			Description: Field(f.Description, a.maxFieldWidth),
		})
	}

	techs := r.Technologies()
	tags := make([]string, 0, len(techs))
	for _, tech := range techs {
		if tag := Field(tech, a.maxFieldWidth); tag != Placeholder {
			tags = append(tags, tag)
		}
	}

	return Card{
		ID:            strconv.FormatInt(r.ID, 10),
		Address:       Field(r.URL(), 0),
		Status:        statusText(r.StatusCode),
		StatusClass:   StatusClass(r.StatusCode),
		Title:         Field(r.Title, a.maxFieldWidth),
		Server:        Field(r.Server, a.maxFieldWidth),
		Hostname:      Field(r.Hostname, a.maxFieldWidth),
		Country:       Field(r.Country, a.maxFieldWidth),
		Risk:          riskText(r),
		Findings:      lines,
		Technologies:  tags,
		SSLIssuer:     Field(r.SSLIssuer, a.maxFieldWidth),
		SSLExpiry:     Field(r.SSLExpiry, a.maxFieldWidth),
		ScreenshotURL: a.screenshotURL(r.ScreenshotPath),
		ScannedAt:     Field(r.ScannedAt, a.maxFieldWidth),
	}
}

// Cards maps a window for the gallery view, preserving order.
func (a *Adapter) Cards(results []api.Result) []Card {
	cards := make([]Card, len(results))
	for i := range results {
		cards[i] = a.Card(&results[i])
	}
	return cards
}

// screenshotURL roots a server-relative screenshot path. Empty paths
// stay empty; the renderers skip the line entirely.
func (a *Adapter) screenshotURL(path string) string {
	clean := Sanitize(path)
	if clean == "" {
		return ""
	}
	return a.baseURL + "/" + strings.TrimLeft(clean, "/")
}

// EmptyState returns the text shown for a zero-length window. A
// filtered empty page is a valid outcome, not an error, and the two
// situations read differently.
func EmptyState(filtered bool) string {
	if filtered {
		return "No results match the current filters."
	}
	return "Waiting for results..."
}

// StatusClass buckets an HTTP status code into its class. Codes
// outside 100..599 yield an empty class.
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return ""
	}
	return strconv.Itoa(code/100) + "xx"
}

// FormatElapsed renders a duration as mm:ss, growing to h:mm:ss past
// an hour.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func statusText(code int) string {
	if code == 0 {
		return Placeholder
	}
	return strconv.Itoa(code)
}

func riskText(r *api.Result) string {
	if !r.HasFindings() {
		return Placeholder
	}
	return normalizeRisk(r.VulnMaxRisk)
}

func normalizeRisk(risk string) string {
	clean := strings.ToLower(Sanitize(risk))
	if api.RiskRank(clean) < 0 {
		return Placeholder
	}
	return clean
}

func responseText(ms float64) string {
	if ms <= 0 {
		return Placeholder
	}
	return strconv.FormatFloat(ms, 'f', 0, 64)
}
