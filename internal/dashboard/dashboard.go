// Package dashboard wires the push channel, the snapshot fetcher, the
// result window, the session tracker and the query controller into one
// coordinator. All state mutations funnel through it, so a snapshot
// application, a pushed result and a clear can never interleave.
package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/scanhud/scanhud/internal/api"
	"github.com/scanhud/scanhud/internal/config"
	"github.com/scanhud/scanhud/internal/errors"
	"github.com/scanhud/scanhud/internal/logging"
	"github.com/scanhud/scanhud/internal/metrics"
	"github.com/scanhud/scanhud/internal/query"
	"github.com/scanhud/scanhud/internal/sched"
	"github.com/scanhud/scanhud/internal/session"
	"github.com/scanhud/scanhud/internal/store"
	"github.com/scanhud/scanhud/internal/stream"
	"github.com/scanhud/scanhud/internal/view"
)

// maxNotices bounds the user-visible notice feed.
const maxNotices = 5

// NoticeLevel grades a notice for display.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeWarn  NoticeLevel = "warn"
	NoticeError NoticeLevel = "error"
)

// Notice is one line of operational feedback for the user, such as a
// rejected request or a dropped channel.
type Notice struct {
	Level NoticeLevel
	Text  string
	At    time.Time
}

// ViewState is an immutable snapshot of everything a renderer needs
// for one frame.
type ViewState struct {
	Results   []api.Result
	ViewMode  view.Mode
	StoreMode store.Mode
	Filtered  bool
	Pending   bool
	Query     query.Query
	Session   session.Snapshot
	Connected bool
	Count     int
	Received  uint64
	PageSize  int
	Notices   []Notice
}

// Dashboard coordinates client-side state for one scan server.
type Dashboard struct {
	cfg     *config.Config
	client  *api.Client
	stream  *stream.Manager
	store   *store.Store
	session *session.Tracker
	query   *query.Controller

	connTicker *sched.Ticker
	resync     *cron.Cron
	updates    chan struct{}

	mu            sync.Mutex
	ctx           context.Context
	cancel        context.CancelFunc
	started       bool
	viewMode      view.Mode
	fetchSeq      uint64
	lastConnected bool
	everLost      bool
	notices       []Notice
	unsubscribe   func()
}

// New assembles a dashboard from its configuration. Start must be
// called before any state flows.
func New(cfg *config.Config, client *api.Client) *Dashboard {
	viewMode, err := view.ParseMode(cfg.View.Mode)
	if err != nil {
		viewMode = view.ModeTable
	}
	tick := cfg.Display.TickInterval
	if tick <= 0 {
		tick = time.Second
	}
	d := &Dashboard{
		cfg:        cfg,
		client:     client,
		stream:     stream.NewManager(cfg),
		store:      store.New(cfg.View.PageSize),
		session:    session.New(),
		connTicker: sched.NewTicker(tick),
		updates:    make(chan struct{}, 1),
		viewMode:   viewMode,
	}
	d.query = query.New(cfg.Fetch.Debounce, d.onQueryChange)
	return d
}

// Start opens the push channel, begins consuming events and requests
// the initial snapshot and session status. It returns immediately.
func (d *Dashboard) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = true
	runCtx, cancel := context.WithCancel(ctx)
	d.ctx = runCtx
	d.cancel = cancel
	d.mu.Unlock()

	events, unsubscribe := d.stream.Subscribe()
	d.mu.Lock()
	d.unsubscribe = unsubscribe
	d.mu.Unlock()
	go d.eventLoop(runCtx, events)

	if err := d.stream.Connect(runCtx); err != nil {
		return err
	}

	d.connTicker.Start(d.checkConnectivity)
	d.startResync()

	d.requestStatus()
	d.requestSnapshot(d.query.Current())
	return nil
}

// Stop tears everything down. Safe to call more than once.
func (d *Dashboard) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	unsubscribe := d.unsubscribe
	resync := d.resync
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.connTicker.Stop()
	if resync != nil {
		resync.Stop()
	}
	_ = d.stream.Close()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// Updates yields a coalesced signal whenever displayed state may have
// changed. Renderers select on it alongside their redraw tick.
func (d *Dashboard) Updates() <-chan struct{} {
	return d.updates
}

// State captures one consistent frame for rendering. It holds the
// dashboard lock for the whole assembly; Clear resets under the same
// lock, so a frame never mixes pre-clear and post-clear state.
func (d *Dashboard) State() ViewState {
	d.mu.Lock()
	defer d.mu.Unlock()

	notices := make([]Notice, len(d.notices))
	copy(notices, d.notices)

	q := d.query.Current()
	return ViewState{
		Results:   d.store.Results(),
		ViewMode:  d.viewMode,
		StoreMode: d.store.Mode(),
		Filtered:  !q.IsDefault(),
		Pending:   d.query.SearchPending(),
		Query:     q,
		Session:   d.session.Snapshot(),
		Connected: d.stream.Connected(),
		Count:     d.store.Count(),
		Received:  d.store.Received(),
		PageSize:  d.store.Capacity(),
		Notices:   notices,
	}
}

// Connected reports whether the push channel is up.
func (d *Dashboard) Connected() bool {
	return d.stream.Connected()
}

// Search schedules a debounced snapshot fetch for the given text.
func (d *Dashboard) Search(text string) {
	d.query.SetSearch(text)
}

// FilterStatus narrows results to a status class and refetches.
func (d *Dashboard) FilterStatus(filter string) error {
	return d.query.SetStatusFilter(filter)
}

// FilterRisk narrows results to a risk band and refetches.
func (d *Dashboard) FilterRisk(filter string) error {
	return d.query.SetRiskFilter(filter)
}

// NextPage advances one page and refetches.
func (d *Dashboard) NextPage() {
	d.query.NextPage()
}

// PrevPage steps back one page. On the first page it does nothing.
func (d *Dashboard) PrevPage() {
	d.query.PrevPage()
}

// ResetQuery drops filters, search and pagination, then refetches so
// the window returns to the live tail.
func (d *Dashboard) ResetQuery() {
	d.query.Reset()
	d.requestSnapshot(d.query.Current())
}

// ToggleViewMode flips between table and gallery. It only changes how
// the window is rendered; the window itself is untouched and nothing
// is fetched.
func (d *Dashboard) ToggleViewMode() view.Mode {
	d.mu.Lock()
	d.viewMode = d.viewMode.Toggle()
	mode := d.viewMode
	d.mu.Unlock()
	d.signal()
	return mode
}

// StartScan launches a random sweep and seeds the local session.
func (d *Dashboard) StartScan(ctx context.Context, req api.StartScanRequest) error {
	resp, err := d.client.StartScan(ctx, req)
	if err != nil {
		d.pushNotice(NoticeError, errors.UserMessage(err))
		return err
	}
	d.session.BeginLocal(resp.Mode, resp.TotalScans)
	d.pushNotice(NoticeInfo, "Scan started")
	d.signal()
	return nil
}

// StartTargetScan launches a targeted scan and seeds the local
// session, including target progress totals.
func (d *Dashboard) StartTargetScan(ctx context.Context, req api.TargetScanRequest) error {
	resp, err := d.client.StartTargetScan(ctx, req)
	if err != nil {
		d.pushNotice(NoticeError, errors.UserMessage(err))
		return err
	}
	d.session.BeginLocal(resp.Mode, resp.TotalScans)
	d.pushNotice(NoticeInfo, "Scan started")
	d.signal()
	return nil
}

// StopScan halts the running scan. Stopping an idle scanner counts as
// success.
func (d *Dashboard) StopScan(ctx context.Context) error {
	if _, err := d.client.StopScan(ctx); err != nil {
		d.pushNotice(NoticeError, errors.UserMessage(err))
		return err
	}
	d.session.MarkStopped()
	d.pushNotice(NoticeInfo, "Scan stopped")
	d.signal()
	return nil
}

// Clear wipes the server's result table, then resets the window, the
// session counters, the query and any in-flight fetch in one step. The
// resets share the dashboard lock with State, so no frame can observe
// a half-applied clear.
func (d *Dashboard) Clear(ctx context.Context) error {
	if _, err := d.client.ClearResults(ctx); err != nil {
		d.pushNotice(NoticeError, errors.UserMessage(err))
		return err
	}

	d.mu.Lock()
	d.fetchSeq++
	d.query.Reset()
	d.store.Reset()
	d.session.Reset()
	d.mu.Unlock()

	d.pushNotice(NoticeInfo, "Results cleared")
	d.signal()
	return nil
}

// Refresh forces an immediate snapshot and status re-pull at the
// current query.
func (d *Dashboard) Refresh() {
	d.requestStatus()
	d.requestSnapshot(d.query.Current())
}

// Detail fetches one stored result by id.
func (d *Dashboard) Detail(ctx context.Context, id int64) (*api.Result, error) {
	return d.client.ResultByID(ctx, id)
}

// Stats fetches the server's aggregate statistics.
func (d *Dashboard) Stats(ctx context.Context) (*api.Stats, error) {
	return d.client.Stats(ctx)
}

// Notices returns the recent notice feed, oldest first.
func (d *Dashboard) Notices() []Notice {
	d.mu.Lock()
	defer d.mu.Unlock()
	notices := make([]Notice, len(d.notices))
	copy(notices, d.notices)
	return notices
}

// eventLoop consumes decoded stream events for the life of the
// dashboard. It is the only goroutine that applies pushes.
func (d *Dashboard) eventLoop(ctx context.Context, events <-chan stream.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			d.handleEvent(event)
		}
	}
}

func (d *Dashboard) handleEvent(event stream.Event) {
	switch event.Type {
	case stream.EventResult:
		d.store.PushResult(*event.Result)
		d.signal()
	case stream.EventStatus:
		d.session.ApplyStatus(event.Status)
		d.signal()
	}
}

// onQueryChange is the query controller's fetch callback. Every
// mutation that survives debouncing lands here exactly once.
func (d *Dashboard) onQueryChange(q query.Query) {
	d.requestSnapshot(q)
}

// requestSnapshot fetches one page for q in the background. Each
// request takes a fresh sequence number; a completion whose number is
// no longer current is discarded, so the last requested query always
// defines the window.
func (d *Dashboard) requestSnapshot(q query.Query) {
	d.mu.Lock()
	if d.ctx == nil {
		d.mu.Unlock()
		return
	}
	d.fetchSeq++
	seq := d.fetchSeq
	ctx := d.ctx
	d.mu.Unlock()

	go func() {
		snap, err := d.client.Results(ctx, q.Params(d.cfg.View.PageSize))

		d.mu.Lock()
		defer d.mu.Unlock()
		if seq != d.fetchSeq {
			metrics.IncrementFetchStale()
			logging.Debug("discarding stale snapshot", "seq", seq, "current", d.fetchSeq)
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				d.pushNoticeLocked(NoticeError, errors.UserMessage(err))
			}
			return
		}
		d.store.LoadSnapshot(snap.Results, snap.Count, q.IsDefault())
		d.signal()
	}()
}

// requestStatus re-pulls authoritative session state.
func (d *Dashboard) requestStatus() {
	d.mu.Lock()
	ctx := d.ctx
	d.mu.Unlock()
	if ctx == nil {
		return
	}

	go func() {
		status, err := d.client.Status(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logging.ErrorFetch("status resync failed", "/api/scan/status", err)
			}
			return
		}
		d.session.ApplyStatus(status)
		d.signal()
	}()
}

// checkConnectivity runs on the display tick and reacts to channel
// edges. A restored channel means pushes were missed, so both the
// session and the window are re-pulled. The first edge after Start is
// the dial completing rather than a recovery, so it re-pulls without
// announcing anything.
func (d *Dashboard) checkConnectivity() {
	connected := d.stream.Connected()

	d.mu.Lock()
	changed := connected != d.lastConnected
	d.lastConnected = connected
	wasLost := d.everLost
	if changed && !connected {
		d.everLost = true
	}
	d.mu.Unlock()
	if !changed {
		return
	}

	if connected {
		if wasLost {
			d.pushNotice(NoticeInfo, "Event channel restored")
		}
		d.requestStatus()
		d.requestSnapshot(d.query.Current())
	} else {
		d.pushNotice(NoticeWarn, "Event channel lost, retrying")
	}
	d.signal()
}

// startResync arms the periodic status re-pull. An interval of zero
// disables it.
func (d *Dashboard) startResync() {
	if d.cfg.Display.ResyncInterval <= 0 {
		return
	}
	c := cron.New()
	spec := fmt.Sprintf("@every %s", d.cfg.Display.ResyncInterval)
	if _, err := c.AddFunc(spec, d.requestStatus); err != nil {
		logging.Error("failed to schedule status resync", "spec", spec, "error", err)
		return
	}
	c.Start()
	d.mu.Lock()
	d.resync = c
	d.mu.Unlock()
}

// signal coalesces change notifications; a full buffer already means
// "redraw needed".
func (d *Dashboard) signal() {
	select {
	case d.updates <- struct{}{}:
	default:
	}
}

func (d *Dashboard) pushNotice(level NoticeLevel, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pushNoticeLocked(level, text)
}

func (d *Dashboard) pushNoticeLocked(level NoticeLevel, text string) {
	d.notices = append(d.notices, Notice{Level: level, Text: text, At: time.Now()})
	if len(d.notices) > maxNotices {
		d.notices = d.notices[len(d.notices)-maxNotices:]
	}
}
