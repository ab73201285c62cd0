// Package query tracks the active result selection: free text search,
// status and risk filters, and the current page. Mutations decide when
// a fetch is due; search input is debounced so a typing burst costs a
// single request.
package query

import (
	"fmt"
	"sync"
	"time"

	"github.com/scanhud/scanhud/internal/api"
	"github.com/scanhud/scanhud/internal/errors"
	"github.com/scanhud/scanhud/internal/sched"
)

// Query is one result selection. Page is 1-based.
type Query struct {
	Search       string
	StatusFilter string
	RiskFilter   string
	Page         int
}

// DefaultQuery returns the unfiltered first page.
func DefaultQuery() Query {
	return Query{Page: 1}
}

// IsDefault reports whether no filter is active and the first page is
// selected.
func (q Query) IsDefault() bool {
	return q == DefaultQuery()
}

// Offset converts the page number into a row offset.
func (q Query) Offset(pageSize int) int {
	if q.Page <= 1 {
		return 0
	}
	return (q.Page - 1) * pageSize
}

// Params converts the query into request parameters for one page.
func (q Query) Params(pageSize int) api.ResultsParams {
	return api.ResultsParams{
		Search:       q.Search,
		StatusFilter: q.StatusFilter,
		RiskFilter:   q.RiskFilter,
		Limit:        pageSize,
		Offset:       q.Offset(pageSize),
	}
}

// Controller serializes query mutations. Filter and page changes fetch
// immediately; search changes fetch once the debounce delay passes
// without further typing. A due fetch is delivered through the change
// callback with the query to load.
type Controller struct {
	mu       sync.Mutex
	query    Query
	debounce *sched.Debouncer
	onChange func(Query)
}

// New creates a controller around a non-nil change callback.
func New(debounceDelay time.Duration, onChange func(Query)) *Controller {
	return &Controller{
		query:    DefaultQuery(),
		debounce: sched.NewDebouncer(debounceDelay),
		onChange: onChange,
	}
}

// Current returns the query as of now.
func (c *Controller) Current() Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

// SearchPending reports whether a debounced search fetch is waiting.
func (c *Controller) SearchPending() bool {
	return c.debounce.Pending()
}

// SetSearch records the search text and schedules one fetch after the
// debounce delay. Calls within the delay supersede the pending fetch,
// so only the last of a burst executes. Changing the search returns to
// the first page.
func (c *Controller) SetSearch(text string) {
	c.mu.Lock()
	if text == c.query.Search {
		c.mu.Unlock()
		return
	}
	c.query.Search = text
	c.query.Page = 1
	c.mu.Unlock()

	c.debounce.Trigger(c.fire)
}

// SetStatusFilter applies a status-class filter and fetches
// immediately, resetting to the first page. Setting the active value
// again is a no-op.
func (c *Controller) SetStatusFilter(filter string) error {
	if !api.ValidStatusFilter(filter) {
		return errors.NewRequestError(errors.CodeValidation,
			fmt.Sprintf("invalid status filter: %q", filter))
	}
	c.applyFilter(func(q *Query) { q.StatusFilter = filter },
		func(q Query) bool { return q.StatusFilter == filter })
	return nil
}

// SetRiskFilter applies a risk filter and fetches immediately,
// resetting to the first page. "all" clears the filter.
func (c *Controller) SetRiskFilter(filter string) error {
	if !api.ValidRiskFilter(filter) {
		return errors.NewRequestError(errors.CodeValidation,
			fmt.Sprintf("invalid risk filter: %q", filter))
	}
	if filter == "all" {
		filter = ""
	}
	c.applyFilter(func(q *Query) { q.RiskFilter = filter },
		func(q Query) bool { return q.RiskFilter == filter })
	return nil
}

// applyFilter commits a filter mutation unless it is already in
// effect. A pending search fetch is folded into the immediate one.
func (c *Controller) applyFilter(set func(*Query), same func(Query) bool) {
	c.mu.Lock()
	if same(c.query) {
		c.mu.Unlock()
		return
	}
	set(&c.query)
	c.query.Page = 1
	c.mu.Unlock()

	c.debounce.Cancel()
	c.fire()
}

// NextPage advances one page and fetches. The upper bound is not known
// client side; a page past the end comes back empty.
func (c *Controller) NextPage() {
	c.mu.Lock()
	c.query.Page++
	c.mu.Unlock()

	c.debounce.Cancel()
	c.fire()
}

// PrevPage steps back one page and fetches. On the first page it does
// nothing.
func (c *Controller) PrevPage() {
	c.mu.Lock()
	if c.query.Page <= 1 {
		c.query.Page = 1
		c.mu.Unlock()
		return
	}
	c.query.Page--
	c.mu.Unlock()

	c.debounce.Cancel()
	c.fire()
}

// Reset drops filters, returns to page one and discards any pending
// search fetch. No fetch is issued; the caller decides what follows.
func (c *Controller) Reset() {
	c.debounce.Cancel()

	c.mu.Lock()
	c.query = DefaultQuery()
	c.mu.Unlock()
}

// fire delivers the query as of firing time, so a debounced fetch
// carries mutations that landed while it waited.
func (c *Controller) fire() {
	c.mu.Lock()
	q := c.query
	c.mu.Unlock()
	c.onChange(q)
}
