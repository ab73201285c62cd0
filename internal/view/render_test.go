package view

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanhud/scanhud/internal/api"
)

func fullResult() api.Result {
	return api.Result{
		ID:              91,
		IP:              "203.0.113.9",
		Port:            443,
		Protocol:        "https",
		StatusCode:      200,
		Title:           "Admin Console",
		Server:          "nginx/1.24.0",
		SSLIssuer:       "Let's Encrypt",
		SSLExpiry:       "2026-11-01",
		SSLDomain:       "web.example.com",
		ScreenshotPath:  "screenshots/203.0.113.9_443.png",
		ResponseTimeMS:  182.4,
		Vulnerabilities: `[{"type":"header","name":"missing_hsts","description":"no HSTS header","risk":"critical"}]`,
		VulnCount:       1,
		VulnMaxRisk:     "critical",
		Hostname:        "web.example.com",
		Country:         "Germany",
		CountryCode:     "DE",
		TechStack:       `["nginx","PHP"]`,
		ScannedAt:       "2026-08-21 10:15:00",
	}
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("table")
	require.NoError(t, err)
	assert.Equal(t, ModeTable, mode)

	mode, err = ParseMode(" GALLERY ")
	require.NoError(t, err)
	assert.Equal(t, ModeGallery, mode)

	_, err = ParseMode("cards")
	assert.Error(t, err)
}

func TestModeToggle(t *testing.T) {
	assert.Equal(t, ModeGallery, ModeTable.Toggle())
	assert.Equal(t, ModeTable, ModeGallery.Toggle())
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", StatusClass(200))
	assert.Equal(t, "3xx", StatusClass(301))
	assert.Equal(t, "4xx", StatusClass(404))
	assert.Equal(t, "5xx", StatusClass(503))
	assert.Equal(t, "", StatusClass(0))
	assert.Equal(t, "", StatusClass(99))
	assert.Equal(t, "", StatusClass(600))
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "00:00", FormatElapsed(0))
	assert.Equal(t, "00:05", FormatElapsed(5*time.Second))
	assert.Equal(t, "01:05", FormatElapsed(65*time.Second))
	assert.Equal(t, "1:02:05", FormatElapsed(3725*time.Second))
	assert.Equal(t, "00:00", FormatElapsed(-3*time.Second))
}

func TestAdapterRow(t *testing.T) {
	adapter := NewAdapter(60, "http://scanner.local:8000")
	result := fullResult()
	row := adapter.Row(&result)

	assert.Equal(t, "91", row.ID)
	assert.Equal(t, "https://web.example.com:443", row.Address)
	assert.Equal(t, "200", row.Status)
	assert.Equal(t, "2xx", row.StatusClass)
	assert.Equal(t, "Admin Console", row.Title)
	assert.Equal(t, "nginx/1.24.0", row.Server)
	assert.Equal(t, "DE", row.Country)
	assert.Equal(t, "critical", row.Risk)
	assert.Equal(t, "1", row.Vulns)
	assert.Equal(t, "182", row.ResponseMS)
}

func TestAdapterRowAbsentFields(t *testing.T) {
	adapter := NewAdapter(60, "http://scanner.local:8000")
	result := api.Result{ID: 5, IP: "198.51.100.1", Port: 80, Protocol: "http"}
	row := adapter.Row(&result)

	assert.Equal(t, Placeholder, row.Status)
	assert.Equal(t, Placeholder, row.Title)
	assert.Equal(t, Placeholder, row.Server)
	assert.Equal(t, Placeholder, row.Country)
	assert.Equal(t, Placeholder, row.Risk)
	assert.Equal(t, Placeholder, row.ResponseMS)
	assert.Equal(t, Placeholder, row.ScannedAt)
	assert.Equal(t, "0", row.Vulns)
}

func TestAdapterRowSanitizesRemoteText(t *testing.T) {
	adapter := NewAdapter(60, "http://scanner.local:8000")
	result := fullResult()
	result.Title = "\x1b[2J\x1b]0;owned\x07Fake Prompt"
	result.Server = "evil\nserver"

	row := adapter.Row(&result)
	assert.Equal(t, "Fake Prompt", row.Title)
	assert.Equal(t, "evil server", row.Server)
}

func TestAdapterRowTruncatesLongFields(t *testing.T) {
	adapter := NewAdapter(10, "http://scanner.local:8000")
	result := fullResult()
	result.Title = "An exceedingly long page title"

	row := adapter.Row(&result)
	assert.Equal(t, "An exceed…", row.Title)
}

func TestAdapterRowNoRiskWithoutFindings(t *testing.T) {
	adapter := NewAdapter(60, "http://scanner.local:8000")
	result := fullResult()
	result.VulnCount = 0

	assert.Equal(t, Placeholder, adapter.Row(&result).Risk)
}

func TestAdapterCard(t *testing.T) {
	adapter := NewAdapter(60, "http://scanner.local:8000")
	result := fullResult()
	card := adapter.Card(&result)

	assert.Equal(t, "https://web.example.com:443", card.Address)
	assert.Equal(t, "critical", card.Risk)
	require.Len(t, card.Findings, 1)
	assert.Equal(t, "missing_hsts", card.Findings[0].Name)
	assert.Equal(t, "critical", card.Findings[0].Risk)
	assert.Equal(t, []string{"nginx", "PHP"}, card.Technologies)
	assert.Equal(t,
		"http://scanner.local:8000/screenshots/203.0.113.9_443.png",
		card.ScreenshotURL)
}

func TestAdapterCardScreenshotPaths(t *testing.T) {
	adapter := NewAdapter(60, "http://scanner.local:8000/")

	result := fullResult()
	result.ScreenshotPath = "/screenshots/a.png"
	assert.Equal(t, "http://scanner.local:8000/screenshots/a.png",
		adapter.Card(&result).ScreenshotURL)

	result.ScreenshotPath = ""
	assert.Empty(t, adapter.Card(&result).ScreenshotURL)
}

func TestAdapterCardUnknownFindingRisk(t *testing.T) {
	adapter := NewAdapter(60, "http://scanner.local:8000")
	result := fullResult()
	result.Vulnerabilities = `[{"name":"odd","risk":"catastrophic","description":"x"}]`

	card := adapter.Card(&result)
	require.Len(t, card.Findings, 1)
	assert.Equal(t, Placeholder, card.Findings[0].Risk)
}

func TestEmptyState(t *testing.T) {
	assert.NotEqual(t, EmptyState(true), EmptyState(false))
	assert.Contains(t, EmptyState(true), "No results")
	assert.Contains(t, EmptyState(false), "Waiting")
}

func TestTableRenderer(t *testing.T) {
	adapter := NewAdapter(60, "http://scanner.local:8000")

	t.Run("renders rows", func(t *testing.T) {
		var buf bytes.Buffer
		renderer := NewTableRenderer(&buf, adapter)
		renderer.Render([]api.Result{fullResult()}, false)

		out := buf.String()
		assert.Contains(t, out, "Address")
		assert.Contains(t, out, "https://web.example.com:443")
		assert.Contains(t, out, "Admin Console")
		assert.Contains(t, out, "nginx/1.24.0")
	})

	t.Run("empty window shows waiting state", func(t *testing.T) {
		var buf bytes.Buffer
		NewTableRenderer(&buf, adapter).Render(nil, false)
		assert.Contains(t, buf.String(), EmptyState(false))
	})

	t.Run("empty filtered window shows no-match state", func(t *testing.T) {
		var buf bytes.Buffer
		NewTableRenderer(&buf, adapter).Render(nil, true)
		assert.Contains(t, buf.String(), EmptyState(true))
	})
}

func TestGalleryRenderer(t *testing.T) {
	old := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = old }()

	adapter := NewAdapter(60, "http://scanner.local:8000")

	t.Run("renders cards", func(t *testing.T) {
		var buf bytes.Buffer
		renderer := NewGalleryRenderer(&buf, adapter)
		renderer.Render([]api.Result{fullResult()}, false)

		out := buf.String()
		assert.Contains(t, out, "https://web.example.com:443")
		assert.Contains(t, out, "CRITICAL")
		assert.Contains(t, out, "missing_hsts")
		assert.Contains(t, out, "nginx, PHP")
		assert.Contains(t, out, "screenshots/203.0.113.9_443.png")
		assert.Contains(t, out, "Let's Encrypt")
	})

	t.Run("empty window shows waiting state", func(t *testing.T) {
		var buf bytes.Buffer
		NewGalleryRenderer(&buf, adapter).Render(nil, false)
		assert.Contains(t, buf.String(), EmptyState(false))
	})

	t.Run("empty filtered window shows no-match state", func(t *testing.T) {
		var buf bytes.Buffer
		NewGalleryRenderer(&buf, adapter).Render(nil, true)
		assert.Contains(t, buf.String(), EmptyState(true))
	})
}

func TestColorRiskLabels(t *testing.T) {
	old := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = old }()

	assert.Equal(t, "CRITICAL", ColorRisk(api.RiskCritical))
	assert.Equal(t, "HIGH", ColorRisk(api.RiskHigh))
	assert.Equal(t, "MEDIUM", ColorRisk(api.RiskMedium))
	assert.Equal(t, "LOW", ColorRisk(api.RiskLow))
	assert.Equal(t, "INFO", ColorRisk(api.RiskInfo))
	assert.Equal(t, Placeholder, ColorRisk(Placeholder))
}
