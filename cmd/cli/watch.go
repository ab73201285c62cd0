package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/scanhud/scanhud/internal/api"
	"github.com/scanhud/scanhud/internal/config"
	"github.com/scanhud/scanhud/internal/dashboard"
	"github.com/scanhud/scanhud/internal/errors"
	"github.com/scanhud/scanhud/internal/logging"
	"github.com/scanhud/scanhud/internal/metrics"
	"github.com/scanhud/scanhud/internal/monitor"
	"github.com/scanhud/scanhud/internal/store"
	"github.com/scanhud/scanhud/internal/view"
)

var (
	watchGallery     bool
	watchPageSize    int
	watchMonitor     bool
	watchMonitorPort int
)

// noticeTail bounds how many recent notices the footer shows.
const noticeTail = 3

// watchCmd runs the live dashboard: the event stream fills the window
// in real time while commands typed at the prompt filter, page and
// control the scan.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch scan results live",
	Long: `Watch scan results as they arrive. The window follows the newest
results until a search, filter or page pins it to a fixed snapshot;
clearing the query returns to the live tail.

Commands are read from stdin, one per line:

  /text          search (bare / clears the search)
  :status 2xx    filter by status class
  :risk high     filter by risk (has_vuln, critical, high, medium, low)
  n / p          next / previous page
  v              toggle table and gallery view
  d <id>         show one result in full
  r              refetch the current page
  c              clear all stored results on the server
  reset          drop filters and return to the live tail
  start <ports>  start a random sweep (comma-separated ports)
  stop           stop the running scan
  s              show aggregate statistics
  q              quit`,
	Example: `  # Follow the live tail
  scanhud watch

  # Gallery view with a smaller window and local metrics listener
  scanhud watch --gallery --page-size 20 --monitor`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVar(&watchGallery, "gallery", false, "start in gallery view")
	watchCmd.Flags().IntVar(&watchPageSize, "page-size", 0, "result window capacity (default from config)")
	watchCmd.Flags().BoolVar(&watchMonitor, "monitor", false, "serve /metrics and /healthz locally")
	watchCmd.Flags().IntVar(&watchMonitorPort, "monitor-port", 0, "metrics listener port (default from config)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadClientConfig()
	if err != nil {
		return err
	}
	if watchGallery {
		cfg.View.Mode = string(view.ModeGallery)
	}
	if watchPageSize > 0 {
		cfg.View.PageSize = watchPageSize
	}
	if watchMonitor {
		cfg.Monitor.Enabled = true
	}
	if watchMonitorPort > 0 {
		cfg.Monitor.Port = watchMonitorPort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := api.NewClient(cfg)
	dash := dashboard.New(cfg, client)

	if cfg.IsMonitorEnabled() {
		mon := monitor.New(cfg, metrics.Default())
		go func() {
			if err := mon.Start(ctx); err != nil {
				logging.Error("monitor failed", "error", err)
			}
		}()
		logging.Info("monitor listening", "addr", cfg.GetMonitorAddress())
	}

	if err := dash.Start(ctx); err != nil {
		return err
	}
	defer dash.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	input := make(chan string)
	go readInput(os.Stdin, input)

	ui := newWatchUI(os.Stdout, dash, cfg)
	ui.clearEachFrame = true
	ui.server = client.BaseURL()

	ticker := time.NewTicker(cfg.Display.TickInterval)
	defer ticker.Stop()

	ui.render()
	for {
		select {
		case <-sigChan:
			fmt.Fprintln(ui.out)
			return nil
		case <-ctx.Done():
			return nil
		case <-dash.Updates():
			ui.render()
		case <-ticker.C:
			ui.render()
		case line, ok := <-input:
			if !ok {
				return nil
			}
			if ui.handle(ctx, line) {
				return nil
			}
			ui.render()
		}
	}
}

// readInput feeds stdin lines into the event loop. The channel closes
// on EOF so a piped command list terminates the watch cleanly.
func readInput(r io.Reader, out chan<- string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out <- scanner.Text()
	}
	close(out)
}

// watchUI renders dashboard state to a terminal and dispatches typed
// commands. Rendering is frame-oriented: every update repaints the
// whole screen.
type watchUI struct {
	out     io.Writer
	dash    *dashboard.Dashboard
	adapter *view.Adapter
	table   *view.TableRenderer
	gallery *view.GalleryRenderer

	// Shown in the header when set, so a frame names its server.
	server string

	// Painted as ANSI clear-home before each frame; off in tests.
	clearEachFrame bool

	flash  string
	detail *api.Result
}

func newWatchUI(out io.Writer, dash *dashboard.Dashboard, cfg *config.Config) *watchUI {
	adapter := view.NewAdapter(cfg.View.MaxFieldWidth, cfg.Server.URL)
	return &watchUI{
		out:     out,
		dash:    dash,
		adapter: adapter,
		table:   view.NewTableRenderer(out, adapter),
		gallery: view.NewGalleryRenderer(out, adapter),
	}
}

func (ui *watchUI) render() {
	timer := metrics.NewTimer("render_duration_seconds", nil)
	defer timer.Stop()
	ui.renderState(ui.dash.State())
}

func (ui *watchUI) renderState(state dashboard.ViewState) {
	if ui.clearEachFrame {
		fmt.Fprint(ui.out, "\033[2J\033[H")
	}

	ui.renderHeader(state)

	switch {
	case ui.detail != nil:
		ui.gallery.Render([]api.Result{*ui.detail}, false)
	case state.ViewMode == view.ModeGallery:
		ui.gallery.Render(state.Results, state.Filtered)
	default:
		ui.table.Render(state.Results, state.Filtered)
	}

	ui.renderFooter(state)
}

func (ui *watchUI) renderHeader(state dashboard.ViewState) {
	dot := color.RedString("●")
	if state.Connected {
		dot = color.GreenString("●")
	}

	sess := state.Session
	label := color.New(color.Faint).Sprint("IDLE")
	if sess.Running {
		label = color.New(color.FgGreen, color.Bold).Sprint("SCANNING")
	}

	line := fmt.Sprintf("%s %s  scanned %d  found %d  %.1f/s  %s",
		dot, label,
		sess.TotalScanned, sess.TotalFound, sess.CurrentRate,
		view.FormatElapsed(sess.Elapsed))
	if sess.HasProgress() {
		line += fmt.Sprintf("  targets %d/%d (%d%%)",
			sess.TargetDone, sess.TargetTotal, sess.Percent())
	}
	if ui.server != "" {
		line += "  " + color.New(color.Faint).Sprint(ui.server)
	}
	fmt.Fprintln(ui.out, line)
	fmt.Fprintln(ui.out)
}

func (ui *watchUI) renderFooter(state dashboard.ViewState) {
	fmt.Fprintln(ui.out)

	parts := []string{fmt.Sprintf("page %d", state.Query.Page)}
	if state.Query.Search != "" {
		parts = append(parts, fmt.Sprintf("search=%q", state.Query.Search))
	}
	if state.Query.StatusFilter != "" {
		parts = append(parts, "status="+state.Query.StatusFilter)
	}
	if state.Query.RiskFilter != "" {
		parts = append(parts, "risk="+state.Query.RiskFilter)
	}
	if state.Pending {
		parts = append(parts, "searching")
	}
	if state.StoreMode == store.ModeSnapshot {
		parts = append(parts, "pinned")
	} else {
		parts = append(parts, "live")
	}

	fmt.Fprintf(ui.out, "%s  window %d/%d  received %d\n",
		strings.Join(parts, "  "), len(state.Results), state.PageSize, state.Received)

	notices := state.Notices
	if len(notices) > noticeTail {
		notices = notices[len(notices)-noticeTail:]
	}
	for _, notice := range notices {
		text := notice.Text
		switch notice.Level {
		case dashboard.NoticeError:
			text = color.RedString(text)
		case dashboard.NoticeWarn:
			text = color.YellowString(text)
		default:
			text = color.CyanString(text)
		}
		fmt.Fprintf(ui.out, "%s %s\n", notice.At.Format("15:04:05"), text)
	}

	if ui.flash != "" {
		fmt.Fprintln(ui.out, color.YellowString(ui.flash))
	}

	fmt.Fprintln(ui.out, color.New(color.Faint).Sprint(
		"/text search  :status 2xx  :risk high  n/p page  v view  d <id> detail  r refresh  q quit  ? help"))
}

// command is one parsed input line.
type command struct {
	verb string
	arg  string
}

// parseCommand normalizes an input line. Search uses a leading slash,
// filters a leading colon; everything else is a bare verb with an
// optional argument.
func parseCommand(line string) command {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}
	}
	if strings.HasPrefix(line, "/") {
		return command{verb: "search", arg: strings.TrimSpace(line[1:])}
	}
	line = strings.TrimPrefix(line, ":")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}
	}
	return command{
		verb: strings.ToLower(fields[0]),
		arg:  strings.Join(fields[1:], " "),
	}
}

// handle executes one input line. It returns true when the user asked
// to quit. Errors never escape: they land in the flash line so the
// next frame shows them.
func (ui *watchUI) handle(ctx context.Context, line string) bool {
	ui.flash = ""

	// Any input dismisses an open detail card.
	if ui.detail != nil {
		ui.detail = nil
		if strings.TrimSpace(line) == "" {
			return false
		}
	}

	cmd := parseCommand(line)
	switch cmd.verb {
	case "":
	case "q", "quit", "exit":
		return true
	case "v", "view":
		ui.dash.ToggleViewMode()
	case "n", "next":
		ui.dash.NextPage()
	case "p", "prev":
		ui.dash.PrevPage()
	case "r", "refresh":
		ui.dash.Refresh()
	case "reset":
		ui.dash.ResetQuery()
	case "search":
		ui.dash.Search(cmd.arg)
	case "status":
		if err := ui.dash.FilterStatus(cmd.arg); err != nil {
			ui.flash = errors.UserMessage(err)
		}
	case "risk":
		if err := ui.dash.FilterRisk(cmd.arg); err != nil {
			ui.flash = errors.UserMessage(err)
		}
	case "d", "detail", "show":
		ui.showDetail(ctx, cmd.arg)
	case "c", "clear":
		if err := ui.dash.Clear(ctx); err != nil {
			ui.flash = errors.UserMessage(err)
		}
	case "start":
		ui.startScan(ctx, cmd.arg)
	case "stop":
		if err := ui.dash.StopScan(ctx); err != nil {
			ui.flash = errors.UserMessage(err)
		}
	case "s", "stats":
		ui.showStats(ctx)
	case "?", "h", "help":
		ui.flash = "commands: /text  :status <class>  :risk <level>  n p v r c reset  d <id>  s stats  start <ports>  stop  q"
	default:
		ui.flash = fmt.Sprintf("unknown command %q (? for help)", cmd.verb)
	}
	return false
}

func (ui *watchUI) showStats(ctx context.Context) {
	stats, err := ui.dash.Stats(ctx)
	if err != nil {
		ui.flash = errors.UserMessage(err)
		return
	}
	ui.flash = fmt.Sprintf("%d scans, avg %.0f ms, findings %d (%d critical, %d high)",
		stats.TotalScans, stats.AvgResponseMS, stats.VulnStats.TotalFindings,
		stats.VulnStats.Critical, stats.VulnStats.High)
}

func (ui *watchUI) showDetail(ctx context.Context, arg string) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		ui.flash = "detail wants a numeric result id, e.g. d 42"
		return
	}
	result, err := ui.dash.Detail(ctx, id)
	if err != nil {
		ui.flash = errors.UserMessage(err)
		return
	}
	ui.detail = result
}

// sweepRequest builds the start request for the prompt's start
// command. The prompt takes no flags, so screenshots and vulnerability
// checks stay on.
func sweepRequest(ports []int) api.StartScanRequest {
	return api.StartScanRequest{
		Ports:           ports,
		TakeScreenshots: true,
		RunVulnCheck:    true,
	}
}

func (ui *watchUI) startScan(ctx context.Context, arg string) {
	if arg == "" {
		arg = "80,443"
	}
	ports, err := parsePorts(arg)
	if err != nil {
		ui.flash = err.Error()
		return
	}
	if err := ui.dash.StartScan(ctx, sweepRequest(ports)); err != nil {
		ui.flash = errors.UserMessage(err)
	}
}
