package app

import (
	"MarketMirror/internal/model"
	"MarketMirror/internal/quotes"
)

// Event is something the presentation layer should react to. Events are
// delivered on the event loop.
type Event interface {
	Type() string
}

// Observer receives engine events. Notify must not block.
type Observer interface {
	Notify(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

func (f ObserverFunc) Notify(ev Event) { f(ev) }

type TabsLoaded struct {
	Tabs   []model.Tab `json:"tabs"`
	Active int64       `json:"active"`
}

type WatchlistChanged struct {
	TabID   int64                  `json:"tab_id"`
	Entries []model.WatchlistEntry `json:"entries"`
}

type QuotesUpdated struct {
	TabID   int64                        `json:"tab_id"`
	Quotes  map[string]model.Quote       `json:"quotes"`
	Changes map[string]quotes.ChangeKind `json:"changes"`
}

type ChartUpdated struct {
	Ticker   string             `json:"ticker"`
	Period   string             `json:"period"`
	Interval string             `json:"interval"`
	ShowTime bool               `json:"show_time"`
	Points   []model.ChartPoint `json:"points"`
}

type Countdown struct {
	Remaining int `json:"remaining"`
}

type RefreshState struct {
	Refreshing bool `json:"refreshing"`
}

type SearchResults struct {
	Query   string               `json:"query"`
	Results []model.SearchResult `json:"results"`
	Cleared bool                 `json:"cleared,omitempty"`
}

// WriteFailed reports a watchlist write the server rejected. For reorders the
// local order has already been reverted to the last confirmed one.
type WriteFailed struct {
	TabID int64  `json:"tab_id"`
	Op    string `json:"op"`
	Error string `json:"error"`
}

// Notice is a user-facing message, e.g. a refused tab deletion.
type Notice struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

func (TabsLoaded) Type() string       { return "tabs" }
func (WatchlistChanged) Type() string { return "watchlist" }
func (QuotesUpdated) Type() string    { return "quotes" }
func (ChartUpdated) Type() string     { return "chart" }
func (Countdown) Type() string        { return "countdown" }
func (RefreshState) Type() string     { return "refresh" }
func (SearchResults) Type() string    { return "search" }
func (WriteFailed) Type() string      { return "write_failed" }
func (Notice) Type() string           { return "notice" }
