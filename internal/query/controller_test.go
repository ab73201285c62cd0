package query

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanhud/scanhud/internal/errors"
)

const testDebounce = 50 * time.Millisecond

// recorder captures fetch callbacks for inspection.
type recorder struct {
	mu    sync.Mutex
	calls []Query
}

func (r *recorder) record(q Query) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, q)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recorder) last() Query {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return Query{}
	}
	return r.calls[len(r.calls)-1]
}

func newTestController() (*Controller, *recorder) {
	rec := &recorder{}
	return New(testDebounce, rec.record), rec
}

func TestQueryDefaults(t *testing.T) {
	q := DefaultQuery()
	assert.True(t, q.IsDefault())
	assert.Equal(t, 1, q.Page)

	q.Search = "nginx"
	assert.False(t, q.IsDefault())
}

func TestQueryOffset(t *testing.T) {
	assert.Equal(t, 0, Query{Page: 1}.Offset(50))
	assert.Equal(t, 50, Query{Page: 2}.Offset(50))
	assert.Equal(t, 100, Query{Page: 3}.Offset(50))
	assert.Equal(t, 0, Query{Page: 0}.Offset(50))
}

func TestQueryParams(t *testing.T) {
	q := Query{
		Search:       "login",
		StatusFilter: "2xx",
		RiskFilter:   "high",
		Page:         3,
	}
	params := q.Params(50)
	assert.Equal(t, "login", params.Search)
	assert.Equal(t, "2xx", params.StatusFilter)
	assert.Equal(t, "high", params.RiskFilter)
	assert.Equal(t, 50, params.Limit)
	assert.Equal(t, 100, params.Offset)
}

func TestSetSearchDebouncesBurst(t *testing.T) {
	ctrl, rec := newTestController()

	ctrl.SetSearch("n")
	ctrl.SetSearch("ng")
	ctrl.SetSearch("ngi")
	assert.Equal(t, 0, rec.count())
	assert.True(t, ctrl.SearchPending())

	require.Eventually(t, func() bool { return rec.count() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, "ngi", rec.last().Search)
	assert.Equal(t, 1, rec.last().Page)
	assert.False(t, ctrl.SearchPending())

	// quiet period: no further fetches
	time.Sleep(2 * testDebounce)
	assert.Equal(t, 1, rec.count())
}

func TestSetSearchSameValueIsNoop(t *testing.T) {
	ctrl, rec := newTestController()

	ctrl.SetSearch("nginx")
	require.Eventually(t, func() bool { return rec.count() == 1 },
		time.Second, 5*time.Millisecond)

	ctrl.SetSearch("nginx")
	time.Sleep(2 * testDebounce)
	assert.Equal(t, 1, rec.count())
}

func TestSetSearchResetsPage(t *testing.T) {
	ctrl, rec := newTestController()

	ctrl.NextPage()
	ctrl.NextPage()
	assert.Equal(t, 3, ctrl.Current().Page)

	ctrl.SetSearch("admin")
	require.Eventually(t, func() bool { return rec.count() == 3 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, rec.last().Page)
	assert.Equal(t, "admin", rec.last().Search)
}

func TestSetStatusFilter(t *testing.T) {
	t.Run("fetches immediately and resets page", func(t *testing.T) {
		ctrl, rec := newTestController()

		ctrl.NextPage()
		assert.Equal(t, 1, rec.count())

		require.NoError(t, ctrl.SetStatusFilter("4xx"))
		assert.Equal(t, 2, rec.count())
		assert.Equal(t, "4xx", rec.last().StatusFilter)
		assert.Equal(t, 1, rec.last().Page)
	})

	t.Run("same value is a no-op", func(t *testing.T) {
		ctrl, rec := newTestController()

		require.NoError(t, ctrl.SetStatusFilter("2xx"))
		require.NoError(t, ctrl.SetStatusFilter("2xx"))
		assert.Equal(t, 1, rec.count())
	})

	t.Run("rejects unknown classes", func(t *testing.T) {
		ctrl, rec := newTestController()

		err := ctrl.SetStatusFilter("teapot")
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeValidation))
		assert.Equal(t, 0, rec.count())
		assert.True(t, ctrl.Current().IsDefault())
	})
}

func TestSetRiskFilter(t *testing.T) {
	t.Run("all clears the filter", func(t *testing.T) {
		ctrl, rec := newTestController()

		require.NoError(t, ctrl.SetRiskFilter("high"))
		assert.Equal(t, "high", rec.last().RiskFilter)

		require.NoError(t, ctrl.SetRiskFilter("all"))
		assert.Equal(t, 2, rec.count())
		assert.Equal(t, "", rec.last().RiskFilter)
	})

	t.Run("rejects unknown levels", func(t *testing.T) {
		ctrl, rec := newTestController()

		err := ctrl.SetRiskFilter("catastrophic")
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeValidation))
		assert.Equal(t, 0, rec.count())
	})
}

func TestFilterFoldsPendingSearch(t *testing.T) {
	ctrl, rec := newTestController()

	ctrl.SetSearch("adm")
	require.NoError(t, ctrl.SetStatusFilter("2xx"))

	// the immediate filter fetch carries the typed search; the
	// debounced fetch must not fire a second time
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, "adm", rec.last().Search)
	assert.Equal(t, "2xx", rec.last().StatusFilter)

	time.Sleep(2 * testDebounce)
	assert.Equal(t, 1, rec.count())
	assert.False(t, ctrl.SearchPending())
}

func TestPageNavigation(t *testing.T) {
	ctrl, rec := newTestController()

	ctrl.NextPage()
	ctrl.NextPage()
	assert.Equal(t, 2, rec.count())
	assert.Equal(t, 3, rec.last().Page)

	ctrl.PrevPage()
	assert.Equal(t, 3, rec.count())
	assert.Equal(t, 2, rec.last().Page)

	ctrl.PrevPage()
	assert.Equal(t, 4, rec.count())
	assert.Equal(t, 1, rec.last().Page)

	// already on the first page: clamp without fetching
	ctrl.PrevPage()
	assert.Equal(t, 4, rec.count())
	assert.Equal(t, 1, ctrl.Current().Page)
}

func TestPrevPageOnFirstPageNeverFetches(t *testing.T) {
	ctrl, rec := newTestController()

	ctrl.PrevPage()
	ctrl.PrevPage()
	assert.Equal(t, 0, rec.count())
	assert.Equal(t, 1, ctrl.Current().Page)
}

func TestPageNavigationFoldsPendingSearch(t *testing.T) {
	ctrl, rec := newTestController()

	ctrl.SetSearch("shop")
	ctrl.NextPage()

	assert.Equal(t, 1, rec.count())
	assert.Equal(t, "shop", rec.last().Search)
	assert.Equal(t, 2, rec.last().Page)

	time.Sleep(2 * testDebounce)
	assert.Equal(t, 1, rec.count())
}

func TestReset(t *testing.T) {
	ctrl, rec := newTestController()

	require.NoError(t, ctrl.SetStatusFilter("5xx"))
	ctrl.NextPage()
	ctrl.SetSearch("pending")
	before := rec.count()

	ctrl.Reset()
	assert.True(t, ctrl.Current().IsDefault())
	assert.False(t, ctrl.SearchPending())

	// reset neither fetches nor lets the canceled debounce fire
	time.Sleep(2 * testDebounce)
	assert.Equal(t, before, rec.count())
}
