package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"maps"
	"slices"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketMirror/internal/collector"
	"MarketMirror/internal/eventloop"
	"MarketMirror/internal/model"
	"MarketMirror/internal/quotes"
)

// fakeAPI answers from in-memory tables. Manual runs all background work on
// the test goroutine, so no locking is needed.
type fakeAPI struct {
	tabs       []model.Tab
	watchlists map[int64][]model.WatchlistEntry
	quotes     map[int64]map[string]model.Quote
	quoteErr   error
	emptyChart map[string]bool
	deleteErr  error

	quoteCalls []int64
	chartCalls []string
	reorders   [][]string
	searches   []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		tabs: []model.Tab{{ID: 1, Name: "Main"}, {ID: 2, Name: "Tech", SortOrder: 1}},
		watchlists: map[int64][]model.WatchlistEntry{
			1: {{Ticker: "AAPL", Name: "Apple"}, {Ticker: "MSFT", Name: "Microsoft"}},
			2: {{Ticker: "NVDA", Name: "NVIDIA"}},
		},
		quotes: map[int64]map[string]model.Quote{
			1: {"AAPL": {Ticker: "AAPL", Price: 190.5}, "MSFT": {Ticker: "MSFT", Price: 410.25}},
			2: {"NVDA": {Ticker: "NVDA", Price: 880.1}},
		},
		emptyChart: map[string]bool{},
	}
}

func (f *fakeAPI) FetchQuotes(_ context.Context, tabID int64) (map[string]model.Quote, error) {
	f.quoteCalls = append(f.quoteCalls, tabID)
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return maps.Clone(f.quotes[tabID]), nil
}

func (f *fakeAPI) FetchChart(_ context.Context, ticker, period, interval string) ([]model.RawBar, error) {
	f.chartCalls = append(f.chartCalls, ticker+"/"+period+"/"+interval)
	if f.emptyChart[ticker] {
		return []model.RawBar{}, nil
	}
	return []model.RawBar{
		{Time: 1708740000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100},
		{Time: 1708826400, Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 200},
	}, nil
}

func (f *fakeAPI) Search(_ context.Context, query string) ([]model.SearchResult, error) {
	f.searches = append(f.searches, query)
	return []model.SearchResult{{Ticker: "AAPL", Name: "Apple"}}, nil
}

func (f *fakeAPI) FetchTabs(context.Context) ([]model.Tab, error) {
	return slices.Clone(f.tabs), nil
}

func (f *fakeAPI) FetchWatchlist(_ context.Context, tabID int64) ([]model.WatchlistEntry, error) {
	return slices.Clone(f.watchlists[tabID]), nil
}

func (f *fakeAPI) AddTicker(_ context.Context, tabID int64, ticker, name string) error {
	f.watchlists[tabID] = append(f.watchlists[tabID], model.WatchlistEntry{Ticker: ticker, Name: name})
	return nil
}

func (f *fakeAPI) RemoveTicker(_ context.Context, tabID int64, ticker string) error {
	f.watchlists[tabID] = slices.DeleteFunc(f.watchlists[tabID], func(e model.WatchlistEntry) bool { return e.Ticker == ticker })
	return nil
}

func (f *fakeAPI) Reorder(_ context.Context, _ int64, tickers []string) error {
	f.reorders = append(f.reorders, tickers)
	return nil
}

func (f *fakeAPI) CreateTab(_ context.Context, name string) (model.Tab, error) {
	tab := model.Tab{ID: int64(len(f.tabs) + 10), Name: name, SortOrder: len(f.tabs)}
	f.tabs = append(f.tabs, tab)
	return tab, nil
}

func (f *fakeAPI) RenameTab(_ context.Context, tabID int64, name string) error {
	for i := range f.tabs {
		if f.tabs[i].ID == tabID {
			f.tabs[i].Name = name
		}
	}
	return nil
}

func (f *fakeAPI) DeleteTab(_ context.Context, tabID int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.tabs = slices.DeleteFunc(f.tabs, func(t model.Tab) bool { return t.ID == tabID })
	return nil
}

type recorder struct{ events []Event }

func (r *recorder) Notify(ev Event) { r.events = append(r.events, ev) }

func (r *recorder) reset() { r.events = nil }

func (r *recorder) notices() []string {
	var out []string
	for _, ev := range r.events {
		if n, ok := ev.(Notice); ok {
			out = append(out, n.Text)
		}
	}
	return out
}

func newTestApp(t *testing.T, api *fakeAPI, opts Options) (*App, *eventloop.Manual, *recorder) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	d := eventloop.NewManual()
	a := New(context.Background(), d, api, opts, log)
	rec := &recorder{}
	a.Subscribe(rec)
	return a, d, rec
}

func started(t *testing.T, api *fakeAPI, opts Options) (*App, *eventloop.Manual, *recorder) {
	t.Helper()
	a, d, rec := newTestApp(t, api, opts)
	a.Init()
	d.Drain()
	rec.reset()
	return a, d, rec
}

func TestApp_InitLoadsFirstTabQuotesAndChart(t *testing.T) {
	api := newFakeAPI()
	a, d, rec := newTestApp(t, api, Options{})

	a.Init()
	d.Drain()

	s := a.Snapshot()
	assert.Equal(t, int64(1), s.ActiveTab)
	assert.Equal(t, "AAPL", s.Selection.Ticker)
	assert.Equal(t, "1mo", s.Selection.Period)
	require.NotNil(t, s.Chart)
	assert.Equal(t, "AAPL", s.Chart.Ticker)
	assert.False(t, s.Chart.ShowTime)
	assert.Len(t, s.Quotes, 2)
	assert.False(t, s.Refreshing)
	assert.Equal(t, []int64{1}, api.quoteCalls)

	var types []string
	for _, ev := range rec.events {
		types = append(types, ev.Type())
	}
	assert.Contains(t, types, "tabs")
	assert.Contains(t, types, "watchlist")
	assert.Contains(t, types, "chart")
	assert.Contains(t, types, "quotes")
}

func TestApp_InitOpensConfiguredTab(t *testing.T) {
	api := newFakeAPI()
	a, _, _ := started(t, api, Options{TabID: 2})

	s := a.Snapshot()
	assert.Equal(t, int64(2), s.ActiveTab)
	assert.Equal(t, "NVDA", s.Selection.Ticker)
}

func TestApp_FastTickerSwitchKeepsLatestChart(t *testing.T) {
	api := newFakeAPI()
	a, d, rec := started(t, api, Options{})

	a.SelectTicker("MSFT")
	a.SelectTicker("NVDA")
	require.Equal(t, 2, d.PendingWork())

	d.RunWork(1)
	d.RunCompletions()
	d.RunWork(0)
	d.RunCompletions()

	s := a.Snapshot()
	require.NotNil(t, s.Chart)
	assert.Equal(t, "NVDA", s.Chart.Ticker)

	var charts []string
	for _, ev := range rec.events {
		if c, ok := ev.(ChartUpdated); ok {
			charts = append(charts, c.Ticker)
		}
	}
	assert.Equal(t, []string{"NVDA"}, charts)
}

func TestApp_RangeChangeDiscardsOlderRange(t *testing.T) {
	api := newFakeAPI()
	a, d, _ := started(t, api, Options{})

	a.SetRange("5d", "15m")
	a.SetRange("1y", "1d")
	d.RunWork(1)
	d.RunCompletions()
	d.RunWork(0)
	d.RunCompletions()

	s := a.Snapshot()
	require.NotNil(t, s.Chart)
	assert.Equal(t, "1y", s.Chart.Period)
	assert.False(t, s.Chart.ShowTime)
}

func TestApp_QuotesForPreviousTabAreDiscarded(t *testing.T) {
	api := newFakeAPI()
	a, d, rec := started(t, api, Options{})

	require.True(t, a.Refresh())
	require.NoError(t, a.SwitchTab(2))

	// The tab 2 watchlist lands first, while the tab 1 refresh is in flight.
	require.Equal(t, 2, d.PendingWork())
	d.RunWork(1)
	d.RunCompletions()
	d.RunWork(0)
	d.RunCompletions()
	d.Drain()

	s := a.Snapshot()
	assert.Equal(t, int64(2), s.ActiveTab)
	assert.Equal(t, []string{"NVDA"}, slices.Sorted(maps.Keys(s.Quotes)))
	assert.Equal(t, []int64{1, 1, 2}, api.quoteCalls)

	for _, ev := range rec.events {
		if q, ok := ev.(QuotesUpdated); ok {
			assert.Equal(t, int64(2), q.TabID)
			for ticker := range q.Quotes {
				assert.Equal(t, "NVDA", ticker)
			}
		}
	}
}

func TestApp_FailedRefreshKeepsPriorQuotes(t *testing.T) {
	tests := []struct {
		name  string
		setup func(api *fakeAPI)
	}{
		{"network failure", func(api *fakeAPI) {
			api.quoteErr = &collector.StatusError{Method: "GET", Path: "/api/quotes/1", StatusCode: 502}
		}},
		{"empty result", func(api *fakeAPI) {
			api.quotes[1] = map[string]model.Quote{}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			a, d, _ := started(t, api, Options{})
			before := a.Snapshot().Quotes

			tt.setup(api)
			require.True(t, a.Refresh())
			d.Drain()

			s := a.Snapshot()
			assert.Equal(t, before, s.Quotes)
			assert.False(t, s.Refreshing)
			refreshes, failures, _ := a.Poller().Stats()
			assert.Equal(t, 2, refreshes)
			assert.Equal(t, 1, failures)
		})
	}
}

func TestApp_RefreshReportsChanges(t *testing.T) {
	api := newFakeAPI()
	a, d, rec := started(t, api, Options{})

	api.quotes[1] = map[string]model.Quote{
		"AAPL": {Ticker: "AAPL", Price: 191},
		"MSFT": {Ticker: "MSFT", Price: 410.251},
	}
	a.Refresh()
	d.Drain()

	var last QuotesUpdated
	for _, ev := range rec.events {
		if q, ok := ev.(QuotesUpdated); ok {
			last = q
		}
	}
	assert.Equal(t, quotes.Increased, last.Changes["AAPL"])
	assert.Equal(t, quotes.Unchanged, last.Changes["MSFT"])
}

func TestApp_ManualRefreshIgnoredWhileInFlight(t *testing.T) {
	api := newFakeAPI()
	a, d, _ := started(t, api, Options{})

	require.True(t, a.Refresh())
	assert.False(t, a.Refresh())
	d.Drain()

	assert.Equal(t, []int64{1, 1}, api.quoteCalls)
}

func TestApp_CountdownTriggersAutoRefresh(t *testing.T) {
	api := newFakeAPI()
	a, d, rec := started(t, api, Options{Cycle: 3 * time.Second})

	for range 3 {
		a.Poller().Tick()
	}
	d.Drain()

	assert.Equal(t, []int64{1, 1}, api.quoteCalls)
	var remaining []int
	for _, ev := range rec.events {
		if c, ok := ev.(Countdown); ok {
			remaining = append(remaining, c.Remaining)
		}
	}
	assert.Equal(t, []int{2, 1, 3}, remaining)
}

func TestApp_EmptyChartKeepsPreviousChart(t *testing.T) {
	api := newFakeAPI()
	a, d, rec := started(t, api, Options{})
	api.emptyChart["MSFT"] = true

	a.SelectTicker("MSFT")
	d.Drain()

	s := a.Snapshot()
	assert.Equal(t, "MSFT", s.Selection.Ticker)
	require.NotNil(t, s.Chart)
	assert.Equal(t, "AAPL", s.Chart.Ticker)
	for _, ev := range rec.events {
		assert.NotEqual(t, "chart", ev.Type())
	}
}

func TestApp_DailyChartUsesUserTimezone(t *testing.T) {
	api := newFakeAPI()
	a, _, _ := started(t, api, Options{TZOffset: -5 * 3600})

	s := a.Snapshot()
	require.NotNil(t, s.Chart)
	require.Len(t, s.Chart.Points, 2)
	// 2024-02-24T02:00Z is still the 23rd five hours west of UTC.
	assert.Equal(t, model.Daily("2024-02-23"), s.Chart.Points[0].Time)
	assert.Equal(t, model.Daily("2024-02-24"), s.Chart.Points[1].Time)
}

func TestApp_IntradayChartShiftsEpochs(t *testing.T) {
	api := newFakeAPI()
	a, d, _ := started(t, api, Options{TZOffset: -5 * 3600})

	a.SetRange("1d", "5m")
	d.Drain()

	s := a.Snapshot()
	require.NotNil(t, s.Chart)
	assert.True(t, s.Chart.ShowTime)
	assert.Equal(t, model.Intraday(1708740000-5*3600), s.Chart.Points[0].Time)
}

func TestApp_MoveSendsFullOrderOnce(t *testing.T) {
	api := newFakeAPI()
	a, d, rec := started(t, api, Options{})

	require.NoError(t, a.MoveTicker(1, 0))
	d.Drain()

	require.Len(t, api.reorders, 1)
	assert.Equal(t, []string{"MSFT", "AAPL"}, api.reorders[0])
	s := a.Snapshot()
	assert.Equal(t, []string{"MSFT", "AAPL"}, s.Tabs[0].Tickers())

	var changes int
	for _, ev := range rec.events {
		if _, ok := ev.(WatchlistChanged); ok {
			changes++
		}
	}
	assert.Equal(t, 1, changes)
}

func TestApp_AddTickerRefreshesQuotes(t *testing.T) {
	api := newFakeAPI()
	a, d, _ := started(t, api, Options{})

	api.quotes[1]["TSLA"] = model.Quote{Ticker: "TSLA", Price: 175}
	require.NoError(t, a.AddTicker("tsla", "Tesla"))
	d.Drain()

	s := a.Snapshot()
	assert.Equal(t, []string{"AAPL", "MSFT", "TSLA"}, s.Tabs[0].Tickers())
	assert.Contains(t, s.Quotes, "TSLA")
	assert.Equal(t, []int64{1, 1}, api.quoteCalls)
}

func TestApp_RemoveSelectedTickerMovesSelection(t *testing.T) {
	api := newFakeAPI()
	a, d, _ := started(t, api, Options{})

	require.NoError(t, a.RemoveTicker("AAPL"))
	d.Drain()

	s := a.Snapshot()
	assert.Equal(t, "MSFT", s.Selection.Ticker)
	require.NotNil(t, s.Chart)
	assert.Equal(t, "MSFT", s.Chart.Ticker)
}

func TestApp_DeleteLastTabShowsServerMessage(t *testing.T) {
	api := newFakeAPI()
	api.tabs = api.tabs[:1]
	api.deleteErr = &collector.StatusError{
		Method:     "DELETE",
		Path:       "/api/tabs/1",
		StatusCode: 400,
		Message:    "Cannot delete the last tab",
	}
	a, d, rec := started(t, api, Options{})

	require.NoError(t, a.DeleteTab(1))
	d.Drain()

	assert.Equal(t, []string{"Cannot delete the last tab"}, rec.notices())
	assert.Len(t, a.Snapshot().Tabs, 1)
}

func TestApp_DeleteActiveTabActivatesFirstRemaining(t *testing.T) {
	api := newFakeAPI()
	a, d, _ := started(t, api, Options{})

	require.NoError(t, a.DeleteTab(1))
	d.Drain()

	s := a.Snapshot()
	assert.Equal(t, int64(2), s.ActiveTab)
	require.Len(t, s.Tabs, 1)
	assert.Equal(t, "NVDA", s.Selection.Ticker)
}

func TestApp_CreateTabSwitchesToIt(t *testing.T) {
	api := newFakeAPI()
	a, d, _ := started(t, api, Options{})

	require.NoError(t, a.CreateTab("  Energy "))
	d.Drain()

	s := a.Snapshot()
	require.Len(t, s.Tabs, 3)
	assert.Equal(t, "Energy", s.Tabs[2].Name)
	assert.Equal(t, s.Tabs[2].ID, s.ActiveTab)
	assert.Empty(t, s.Quotes)
}

func TestApp_SwitchToUnknownTab(t *testing.T) {
	api := newFakeAPI()
	a, _, _ := started(t, api, Options{})

	err := a.SwitchTab(99)
	assert.True(t, errors.Is(err, ErrUnknownTab))
}

func TestApp_SearchIsDebounced(t *testing.T) {
	api := newFakeAPI()
	a, d, rec := started(t, api, Options{})

	a.Query("a")
	d.Advance(100 * time.Millisecond)
	a.Query("ap")
	d.Advance(300 * time.Millisecond)
	d.Drain()

	assert.Equal(t, []string{"ap"}, api.searches)
	require.NotEmpty(t, rec.events)
	res, ok := rec.events[len(rec.events)-1].(SearchResults)
	require.True(t, ok)
	assert.Equal(t, "ap", res.Query)
	assert.Len(t, res.Results, 1)
}

func TestApp_Execute(t *testing.T) {
	api := newFakeAPI()
	a, d, _ := started(t, api, Options{})

	require.NoError(t, a.Execute(Command{Action: "select", Value: json.RawMessage(`"msft"`)}))
	require.NoError(t, a.Execute(Command{Action: "range", Value: json.RawMessage(`{"period":"5d","interval":"30m"}`)}))
	d.Drain()

	s := a.Snapshot()
	require.NotNil(t, s.Chart)
	assert.Equal(t, Selection{Ticker: "MSFT", Period: "5d", Interval: "30m"}, s.Chart.Selection)

	require.NoError(t, a.Execute(Command{Action: "move", Value: json.RawMessage(`{"from":0,"to":1}`)}))
	d.Drain()
	assert.Equal(t, [][]string{{"MSFT", "AAPL"}}, api.reorders)

	assert.Error(t, a.Execute(Command{Action: "range", Value: json.RawMessage(`{"period":"5d"}`)}))
	assert.Error(t, a.Execute(Command{Action: "select"}))
	assert.Error(t, a.Execute(Command{Action: "explode"}))
	assert.ErrorIs(t, a.Execute(Command{Action: "tab", Value: json.RawMessage(`42`)}), ErrUnknownTab)
}
