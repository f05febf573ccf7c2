// Package app wires the synchronization engine together. App owns the
// application state and must only be used from the event loop goroutine.
package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"MarketMirror/internal/collector"
	"MarketMirror/internal/eventloop"
	"MarketMirror/internal/model"
	"MarketMirror/internal/normalize"
	"MarketMirror/internal/quotes"
	"MarketMirror/internal/scheduler"
	"MarketMirror/internal/search"
	"MarketMirror/internal/watchlist"
)

// Options configures a new App.
type Options struct {
	// TabID is the tab to open first; 0 or unknown means the first tab.
	TabID    int64
	Period   string
	Interval string
	// TZOffset is the user's offset from UTC in seconds.
	TZOffset int64
	Cycle    time.Duration
	Debounce time.Duration
}

// Selection identifies the chart being displayed.
type Selection struct {
	Ticker   string `json:"ticker"`
	Period   string `json:"period"`
	Interval string `json:"interval"`
}

// Chart is the last successfully loaded chart.
type Chart struct {
	Selection
	ShowTime bool               `json:"show_time"`
	Points   []model.ChartPoint `json:"points"`
}

// State is the explicit application state.
type State struct {
	Tabs       []model.Tab            `json:"tabs"`
	ActiveTab  int64                  `json:"active_tab"`
	Selection  Selection              `json:"selection"`
	Chart      *Chart                 `json:"chart"`
	Quotes     map[string]model.Quote `json:"quotes"`
	Countdown  int                    `json:"countdown"`
	Refreshing bool                   `json:"refreshing"`
}

type App struct {
	ctx        context.Context
	dispatcher eventloop.Dispatcher
	api        collector.API
	opts       Options
	log        logrus.FieldLogger

	tabs      []model.Tab
	activeTab int64
	selection Selection
	chart     *Chart
	chartSeq  uint64
	// refreshAgain asks for another quote refresh once the in-flight one
	// settles, after the tab or its tickers changed under it.
	refreshAgain bool

	quotes    *quotes.Cache
	watchlist *watchlist.Store
	poller    *scheduler.Poller
	search    *search.Session

	observers []Observer
}

func New(ctx context.Context, d eventloop.Dispatcher, api collector.API, opts Options, log logrus.FieldLogger) *App {
	if opts.Period == "" {
		opts.Period = "1mo"
	}
	if opts.Interval == "" {
		opts.Interval = "1d"
	}
	a := &App{
		ctx:        ctx,
		dispatcher: d,
		api:        api,
		opts:       opts,
		log:        log.WithField("component", "app"),
		selection:  Selection{Period: opts.Period, Interval: opts.Interval},
		quotes:     quotes.NewCache(0),
	}
	a.watchlist = watchlist.NewStore(ctx, d, api, a, log)
	a.poller = scheduler.NewPoller(d, opts.Cycle, a.refreshQuotes, log)
	a.poller.OnCountdown(func(n int) { a.emit(Countdown{Remaining: n}) })
	a.poller.OnState(func(s scheduler.State) { a.emit(RefreshState{Refreshing: s == scheduler.Refreshing}) })
	a.search = search.NewSession(ctx, d, api, opts.Debounce, a.searchSettled, log)
	return a
}

// Subscribe adds an observer for all subsequent events.
func (a *App) Subscribe(o Observer) { a.observers = append(a.observers, o) }

func (a *App) emit(ev Event) {
	for _, o := range a.observers {
		o.Notify(ev)
	}
}

// Poller exposes the refresh scheduler, e.g. for Tick in tests.
func (a *App) Poller() *scheduler.Poller { return a.poller }

// Start starts the countdown ticker.
func (a *App) Start() error { return a.poller.Start() }

// Stop stops the countdown ticker.
func (a *App) Stop() { a.poller.Stop() }

// Snapshot returns a copy of the current state.
func (a *App) Snapshot() State {
	tabs := slices.Clone(a.tabs)
	for i := range tabs {
		if tabs[i].ID == a.activeTab {
			tabs[i].Entries = a.watchlist.Entries(a.activeTab)
		}
	}
	return State{
		Tabs:       tabs,
		ActiveTab:  a.activeTab,
		Selection:  a.selection,
		Chart:      a.chart,
		Quotes:     a.quotes.Snapshot(),
		Countdown:  a.poller.Countdown(),
		Refreshing: a.poller.State() == scheduler.Refreshing,
	}
}

// Init loads the tabs, opens the configured one and starts the first refresh.
func (a *App) Init() {
	a.loadTabs(a.opts.TabID)
}

func (a *App) loadTabs(want int64) {
	a.dispatcher.Go(func() {
		tabs, err := a.api.FetchTabs(a.ctx)
		a.dispatcher.Post(func() {
			if err != nil {
				a.warn(err, "load tabs failed")
				return
			}
			if len(tabs) == 0 {
				a.warn(ErrEmptyResult, "backend returned no tabs")
				return
			}
			a.tabs = tabs
			target := tabs[0].ID
			if a.hasTab(want) {
				target = want
			} else if a.hasTab(a.activeTab) {
				target = a.activeTab
			}
			if target != a.activeTab {
				a.activate(target)
			}
			a.emit(TabsLoaded{Tabs: slices.Clone(a.tabs), Active: a.activeTab})
		})
	})
}

// SwitchTab makes tabID the active tab. Responses for the previous tab still
// in flight are discarded when they arrive.
func (a *App) SwitchTab(tabID int64) error {
	if !a.hasTab(tabID) {
		return fmt.Errorf("switch to tab %d: %w", tabID, ErrUnknownTab)
	}
	if tabID == a.activeTab {
		return nil
	}
	a.activate(tabID)
	a.emit(TabsLoaded{Tabs: slices.Clone(a.tabs), Active: a.activeTab})
	return nil
}

func (a *App) activate(tabID int64) {
	a.log.WithField("tab_id", tabID).Info("tab activated")
	a.activeTab = tabID
	a.quotes.Reset(tabID)
	a.emit(QuotesUpdated{TabID: tabID, Quotes: map[string]model.Quote{}, Changes: map[string]quotes.ChangeKind{}})
	a.loadWatchlist(tabID)
}

func (a *App) loadWatchlist(tabID int64) {
	a.dispatcher.Go(func() {
		rows, err := a.api.FetchWatchlist(a.ctx, tabID)
		a.dispatcher.Post(func() {
			log := a.log.WithField("tab_id", tabID)
			if tabID != a.activeTab {
				log.Debug("stale watchlist response discarded")
				return
			}
			if err != nil {
				a.warn(err, "load watchlist failed")
				return
			}
			a.watchlist.Load(tabID, rows)
			a.ensureSelection()
			a.refreshSoon()
		})
	})
}

// refreshSoon refreshes quotes now, or right after the refresh in flight.
func (a *App) refreshSoon() {
	if a.poller.State() == scheduler.Refreshing {
		a.refreshAgain = true
		return
	}
	a.poller.RequestRefresh()
}

// Refresh is the user's manual refresh. It is ignored while a refresh is in flight.
func (a *App) Refresh() bool { return a.poller.RequestRefresh() }

func (a *App) refreshQuotes(trigger scheduler.Trigger, done func(error)) {
	tabID := a.activeTab
	if tabID == 0 {
		done(nil)
		return
	}
	a.dispatcher.Go(func() {
		incoming, err := a.api.FetchQuotes(a.ctx, tabID)
		a.dispatcher.Post(func() {
			done(a.applyQuotes(tabID, incoming, err))
			if a.refreshAgain {
				a.refreshAgain = false
				a.poller.RequestRefresh()
			}
		})
	})
}

func (a *App) applyQuotes(tabID int64, incoming map[string]model.Quote, err error) error {
	log := a.log.WithField("tab_id", tabID)
	if tabID != a.activeTab {
		log.WithError(ErrStaleResponse).Debug("quotes for inactive tab discarded")
		return nil
	}
	if err != nil {
		return err
	}
	if len(incoming) == 0 && len(a.watchlist.Entries(tabID)) > 0 {
		return fmt.Errorf("quotes for tab %d: %w", tabID, ErrEmptyResult)
	}
	changes := a.quotes.Apply(incoming)
	log.WithField("count", len(incoming)).Info("quotes updated")
	a.emit(QuotesUpdated{TabID: tabID, Quotes: a.quotes.Snapshot(), Changes: changes})
	return nil
}

// SelectTicker shows ticker's chart for the current range.
func (a *App) SelectTicker(ticker string) {
	a.selection.Ticker = strings.ToUpper(strings.TrimSpace(ticker))
	a.loadChart()
}

// SetRange changes the chart period and interval.
func (a *App) SetRange(period, interval string) {
	a.selection.Period = period
	a.selection.Interval = interval
	a.loadChart()
}

func (a *App) ensureSelection() {
	tickers := a.watchlist.Tickers(a.activeTab)
	if a.selection.Ticker != "" && slices.Contains(tickers, a.selection.Ticker) {
		if a.chart == nil || a.chart.Selection != a.selection {
			a.loadChart()
		}
		return
	}
	if len(tickers) == 0 {
		a.selection.Ticker = ""
		a.chartSeq++
		return
	}
	a.SelectTicker(tickers[0])
}

func (a *App) loadChart() {
	sel := a.selection
	if sel.Ticker == "" {
		return
	}
	a.chartSeq++
	seq := a.chartSeq
	a.dispatcher.Go(func() {
		bars, err := a.api.FetchChart(a.ctx, sel.Ticker, sel.Period, sel.Interval)
		a.dispatcher.Post(func() { a.applyChart(seq, sel, bars, err) })
	})
}

func (a *App) applyChart(seq uint64, sel Selection, bars []model.RawBar, err error) {
	log := a.log.WithFields(logrus.Fields{"ticker": sel.Ticker, "period": sel.Period, "interval": sel.Interval})
	if seq != a.chartSeq || sel != a.selection {
		log.WithError(ErrStaleResponse).Debug("chart response discarded")
		return
	}
	if err != nil {
		log.WithError(err).Warn("chart fetch failed, keeping previous chart")
		return
	}
	if len(bars) == 0 {
		log.WithError(ErrEmptyResult).Warn("chart has no data, keeping previous chart")
		return
	}
	points := normalize.Normalize(bars, sel.Interval, a.opts.TZOffset)
	a.chart = &Chart{Selection: sel, ShowTime: normalize.ShowsTime(sel.Period), Points: points}
	a.emit(ChartUpdated{
		Ticker:   sel.Ticker,
		Period:   sel.Period,
		Interval: sel.Interval,
		ShowTime: a.chart.ShowTime,
		Points:   points,
	})
}

// Query feeds the search box.
func (a *App) Query(text string) { a.search.OnQueryChange(text) }

func (a *App) searchSettled(r search.Result) {
	a.emit(SearchResults{Query: r.Query, Results: r.Results, Cleared: r.Cleared})
}

// Reorder applies a new ticker order to the active tab and persists it.
func (a *App) Reorder(tickers []string) error {
	return a.watchlist.Reorder(a.activeTab, tickers)
}

// MoveTicker drags the ticker at index from to index to in the active tab.
func (a *App) MoveTicker(from, to int) error {
	return a.watchlist.Move(a.activeTab, from, to)
}

// AddTicker adds a ticker to the active tab and refreshes quotes once the
// server accepted it.
func (a *App) AddTicker(ticker, name string) error {
	tabID := a.activeTab
	return a.watchlist.Add(tabID, ticker, name, func(err error) {
		if err == nil && tabID == a.activeTab {
			a.ensureSelection()
			a.refreshSoon()
		}
	})
}

// RemoveTicker removes a ticker from the active tab.
func (a *App) RemoveTicker(ticker string) error {
	tabID := a.activeTab
	return a.watchlist.Remove(tabID, ticker, func(err error) {
		if err == nil && tabID == a.activeTab {
			a.ensureSelection()
			a.refreshSoon()
		}
	})
}

// CreateTab creates a tab on the server and switches to it.
func (a *App) CreateTab(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("create tab: empty name")
	}
	a.dispatcher.Go(func() {
		tab, err := a.api.CreateTab(a.ctx, name)
		a.dispatcher.Post(func() {
			if err != nil {
				a.warn(err, "create tab failed")
				return
			}
			a.loadTabs(tab.ID)
		})
	})
	return nil
}

// RenameTab renames a tab once the server confirms.
func (a *App) RenameTab(tabID int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("rename tab: empty name")
	}
	if !a.hasTab(tabID) {
		return fmt.Errorf("rename tab %d: %w", tabID, ErrUnknownTab)
	}
	a.dispatcher.Go(func() {
		err := a.api.RenameTab(a.ctx, tabID, name)
		a.dispatcher.Post(func() {
			if err != nil {
				a.warn(err, "rename tab failed")
				return
			}
			for i := range a.tabs {
				if a.tabs[i].ID == tabID {
					a.tabs[i].Name = name
				}
			}
			a.emit(TabsLoaded{Tabs: slices.Clone(a.tabs), Active: a.activeTab})
		})
	})
	return nil
}

// DeleteTab deletes a tab. The server refuses to delete the last one; its
// message is surfaced as a Notice.
func (a *App) DeleteTab(tabID int64) error {
	if !a.hasTab(tabID) {
		return fmt.Errorf("delete tab %d: %w", tabID, ErrUnknownTab)
	}
	a.dispatcher.Go(func() {
		err := a.api.DeleteTab(a.ctx, tabID)
		a.dispatcher.Post(func() {
			if err != nil {
				a.warn(err, "delete tab failed")
				return
			}
			a.tabs = slices.DeleteFunc(a.tabs, func(t model.Tab) bool { return t.ID == tabID })
			a.watchlist.Forget(tabID)
			if tabID == a.activeTab && len(a.tabs) > 0 {
				a.activate(a.tabs[0].ID)
			}
			a.emit(TabsLoaded{Tabs: slices.Clone(a.tabs), Active: a.activeTab})
		})
	})
	return nil
}

// WatchlistChanged implements watchlist.Listener.
func (a *App) WatchlistChanged(tabID int64, entries []model.WatchlistEntry) {
	if tabID != a.activeTab {
		return
	}
	a.emit(WatchlistChanged{TabID: tabID, Entries: entries})
}

// WatchlistFailed implements watchlist.Listener.
func (a *App) WatchlistFailed(tabID int64, op string, err error) {
	a.emit(WriteFailed{TabID: tabID, Op: op, Error: err.Error()})
	if msg := collector.Message(err); msg != "" {
		a.emit(Notice{Level: "warn", Text: msg})
	}
}

func (a *App) hasTab(tabID int64) bool {
	return slices.ContainsFunc(a.tabs, func(t model.Tab) bool { return t.ID == tabID })
}

func (a *App) warn(err error, msg string) {
	a.log.WithError(err).Warn(msg)
	text := collector.Message(err)
	if text == "" {
		text = fmt.Sprintf("%s: %v", msg, err)
	}
	a.emit(Notice{Level: "warn", Text: text})
}
