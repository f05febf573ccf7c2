package collector

import (
	"context"

	"MarketMirror/internal/model"
)

// Fetcher reads market data from the dashboard backend.
type Fetcher interface {
	FetchQuotes(ctx context.Context, tabID int64) (map[string]model.Quote, error)
	FetchChart(ctx context.Context, ticker, period, interval string) ([]model.RawBar, error)
	Search(ctx context.Context, query string) ([]model.SearchResult, error)
}

// Watchlists reads and writes tabs and their tickers.
type Watchlists interface {
	FetchTabs(ctx context.Context) ([]model.Tab, error)
	FetchWatchlist(ctx context.Context, tabID int64) ([]model.WatchlistEntry, error)
	AddTicker(ctx context.Context, tabID int64, ticker, name string) error
	RemoveTicker(ctx context.Context, tabID int64, ticker string) error
	Reorder(ctx context.Context, tabID int64, tickers []string) error
	CreateTab(ctx context.Context, name string) (model.Tab, error)
	RenameTab(ctx context.Context, tabID int64, name string) error
	DeleteTab(ctx context.Context, tabID int64) error
}

// API is everything the engine needs from the backend.
type API interface {
	Fetcher
	Watchlists
}

var _ API = (*Client)(nil)
