package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/scanhud/scanhud/internal/api"
	"github.com/scanhud/scanhud/internal/config"
	"github.com/scanhud/scanhud/internal/dashboard"
	"github.com/scanhud/scanhud/internal/query"
	"github.com/scanhud/scanhud/internal/session"
	"github.com/scanhud/scanhud/internal/store"
	"github.com/scanhud/scanhud/internal/view"
)

// newTestUI builds a UI with plain output. The dashboard is nil:
// renderState works from a supplied state and never touches it.
func newTestUI(t *testing.T) (*watchUI, *bytes.Buffer) {
	t.Helper()
	color.NoColor = true
	out := &bytes.Buffer{}
	return newWatchUI(out, nil, config.Default()), out
}

func sampleResult() api.Result {
	return api.Result{
		ID:         7,
		IP:         "203.0.113.9",
		Port:       443,
		Protocol:   "https",
		StatusCode: 200,
		Title:      "Welcome",
		Server:     "nginx/1.24.0",
	}
}

func TestRenderStateRunningSession(t *testing.T) {
	ui, out := newTestUI(t)

	ui.renderState(dashboard.ViewState{
		Results:   []api.Result{sampleResult()},
		ViewMode:  view.ModeTable,
		StoreMode: store.ModeSnapshot,
		Filtered:  true,
		Query:     query.Query{Search: "nginx", StatusFilter: "2xx", Page: 2},
		Session: session.Snapshot{
			Running:      true,
			Mode:         api.ModeTarget,
			TotalScanned: 1200,
			TotalFound:   34,
			CurrentRate:  9.5,
			TargetTotal:  100,
			TargetDone:   60,
			Elapsed:      125 * time.Second,
		},
		Connected: true,
		Count:     34,
		Received:  7,
		PageSize:  50,
		Notices: []dashboard.Notice{
			{Level: dashboard.NoticeInfo, Text: "Scan started", At: time.Now()},
		},
	})

	text := out.String()
	assert.Contains(t, text, "SCANNING")
	assert.Contains(t, text, "scanned 1200")
	assert.Contains(t, text, "found 34")
	assert.Contains(t, text, "9.5/s")
	assert.Contains(t, text, "02:05")
	assert.Contains(t, text, "targets 60/100 (60%)")
	assert.Contains(t, text, "203.0.113.9")

	assert.Contains(t, text, "page 2")
	assert.Contains(t, text, `search="nginx"`)
	assert.Contains(t, text, "status=2xx")
	assert.Contains(t, text, "pinned")
	assert.Contains(t, text, "window 1/50")
	assert.Contains(t, text, "received 7")
	assert.Contains(t, text, "Scan started")

	assert.NotContains(t, text, "\033[2J")
}

func TestRenderStateIdleLiveTail(t *testing.T) {
	ui, out := newTestUI(t)

	ui.renderState(dashboard.ViewState{
		ViewMode:  view.ModeTable,
		StoreMode: store.ModeLiveTail,
		Query:     query.DefaultQuery(),
		PageSize:  50,
	})

	text := out.String()
	assert.Contains(t, text, "IDLE")
	assert.Contains(t, text, "live")
	assert.Contains(t, text, "page 1")
	assert.Contains(t, text, "Waiting for results...")
	assert.NotContains(t, text, "pinned")
	assert.NotContains(t, text, "search=")
}

func TestRenderStateFilteredEmptyWindow(t *testing.T) {
	ui, out := newTestUI(t)

	ui.renderState(dashboard.ViewState{
		ViewMode:  view.ModeTable,
		StoreMode: store.ModeSnapshot,
		Filtered:  true,
		Query:     query.Query{Search: "tomcat", Page: 1},
		PageSize:  50,
	})

	assert.Contains(t, out.String(), "No results match the current filters.")
}

func TestRenderStateServerAddress(t *testing.T) {
	ui, out := newTestUI(t)

	ui.server = "http://scan.example:8000"
	ui.renderState(dashboard.ViewState{
		ViewMode: view.ModeTable,
		Query:    query.DefaultQuery(),
		PageSize: 50,
	})

	assert.Contains(t, out.String(), "http://scan.example:8000")
}

func TestRenderStatePendingSearch(t *testing.T) {
	ui, out := newTestUI(t)

	ui.renderState(dashboard.ViewState{
		ViewMode: view.ModeTable,
		Filtered: true,
		Pending:  true,
		Query:    query.Query{Search: "ngi", Page: 1},
		PageSize: 50,
	})

	assert.Contains(t, out.String(), "searching")
}

func TestRenderStateGalleryMode(t *testing.T) {
	ui, out := newTestUI(t)

	ui.renderState(dashboard.ViewState{
		Results:  []api.Result{sampleResult()},
		ViewMode: view.ModeGallery,
		Query:    query.DefaultQuery(),
		PageSize: 50,
	})

	text := out.String()
	assert.Contains(t, text, "Title:")
	assert.Contains(t, text, "Welcome")
	assert.Contains(t, text, "nginx/1.24.0")
}

func TestRenderStateDetailOverridesBody(t *testing.T) {
	ui, out := newTestUI(t)

	detail := sampleResult()
	ui.detail = &detail
	ui.renderState(dashboard.ViewState{
		ViewMode: view.ModeTable,
		Query:    query.DefaultQuery(),
		PageSize: 50,
	})

	text := out.String()
	assert.Contains(t, text, "Title:")
	assert.Contains(t, text, "203.0.113.9")
}

func TestRenderStateNoticeTail(t *testing.T) {
	ui, out := newTestUI(t)

	notices := make([]dashboard.Notice, 0, 5)
	for _, text := range []string{"one", "two", "three", "four", "five"} {
		notices = append(notices, dashboard.Notice{
			Level: dashboard.NoticeInfo,
			Text:  "notice " + text,
			At:    time.Now(),
		})
	}

	ui.renderState(dashboard.ViewState{
		ViewMode: view.ModeTable,
		Query:    query.DefaultQuery(),
		PageSize: 50,
		Notices:  notices,
	})

	text := out.String()
	assert.NotContains(t, text, "notice one")
	assert.NotContains(t, text, "notice two")
	assert.Contains(t, text, "notice three")
	assert.Contains(t, text, "notice four")
	assert.Contains(t, text, "notice five")
}

func TestRenderStateFlashLine(t *testing.T) {
	ui, out := newTestUI(t)

	ui.flash = "unknown command \"x\" (? for help)"
	ui.renderState(dashboard.ViewState{
		ViewMode: view.ModeTable,
		Query:    query.DefaultQuery(),
		PageSize: 50,
	})

	assert.Contains(t, out.String(), `unknown command "x"`)
}

func TestRenderStateClearsFrame(t *testing.T) {
	ui, out := newTestUI(t)

	ui.clearEachFrame = true
	ui.renderState(dashboard.ViewState{
		ViewMode: view.ModeTable,
		Query:    query.DefaultQuery(),
		PageSize: 50,
	})

	assert.True(t, strings.HasPrefix(out.String(), "\033[2J\033[H"))
}

func TestSweepRequestKeepsCaptureOn(t *testing.T) {
	req := sweepRequest([]int{80, 443})

	assert.Equal(t, []int{80, 443}, req.Ports)
	assert.True(t, req.TakeScreenshots)
	assert.True(t, req.RunVulnCheck)
}

func TestReadInputClosesOnEOF(t *testing.T) {
	lines := make(chan string, 4)
	go readInput(strings.NewReader("q\n/nginx\n"), lines)

	assert.Equal(t, "q", <-lines)
	assert.Equal(t, "/nginx", <-lines)
	_, open := <-lines
	assert.False(t, open)
}
